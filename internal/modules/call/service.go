// README: Call service: intake writes, proximity search for drivers, atomic take for the accept path.
package call

import (
	"context"
	"log/slog"

	"taxi/internal/apperr"
	"taxi/internal/infra"
	"taxi/internal/types"
)

type Service struct {
	store    *Store
	radiusKm float64
	log      *slog.Logger
}

func NewService(store *Store, radiusKm float64, log *slog.Logger) *Service {
	return &Service{store: store, radiusKm: radiusKm, log: log}
}

// Record is idempotent per passenger: a repeat request overwrites the previous one.
func (s *Service) Record(ctx context.Context, r Request) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return s.store.Put(ctx, r)
}

// FindNearby lists open calls within the matching radius of p, nearest first.
func (s *Service) FindNearby(ctx context.Context, p types.Point) ([]OpenCall, error) {
	if err := p.Validate(); err != nil {
		return nil, badPoint(err)
	}
	reqs, err := s.store.Nearby(ctx, p, s.radiusKm)
	if err != nil {
		return nil, err
	}
	out := make([]OpenCall, len(reqs))
	for i, r := range reqs {
		out[i] = OpenCall{Request: r, DistanceKm: p.DistanceKm(r.Start())}
	}
	return out, nil
}

func (s *Service) Remove(ctx context.Context, passengerID string) error {
	return s.store.Remove(ctx, passengerID)
}

func (s *Service) Take(ctx context.Context, passengerID string) (Request, error) {
	return s.store.Take(ctx, passengerID)
}

// Restore puts back a call taken by an accept whose relational write failed.
// A newer call the passenger submitted in the meantime wins over the taken one.
func (s *Service) Restore(ctx context.Context, r Request) error {
	restored, err := s.store.PutIfAbsent(ctx, r)
	if err != nil {
		return err
	}
	if !restored {
		infra.Action(s.log, "RestoreCall").Info("newer call kept; taken call discarded", "passenger_id", r.PassengerID)
	}
	return nil
}

func badPoint(err error) error {
	return apperr.BadRequest("driver position: " + err.Error())
}
