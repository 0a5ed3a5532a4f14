// README: Open-call store backed by Redis GEO plus one JSON detail key per passenger.
package call

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"taxi/internal/apperr"
	"taxi/internal/types"
)

const (
	geoKey          = "ride:request"
	detailKeyPrefix = "ride:detail:"
)

// takeScript removes both structures and returns the detail, or nil when no call is open.
// A geo member without detail is dropped as well.
var takeScript = redis.NewScript(`
local detail = redis.call('GET', KEYS[2])
redis.call('ZREM', KEYS[1], ARGV[1])
if detail then
	redis.call('DEL', KEYS[2])
end
return detail
`)

// restoreScript writes the call back only when the passenger has no open call.
var restoreScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end
redis.call('GEOADD', KEYS[1], ARGV[2], ARGV[3], ARGV[1])
redis.call('SET', KEYS[2], ARGV[4])
return 1
`)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func detailKey(passengerID string) string {
	return detailKeyPrefix + passengerID
}

// Put upserts the geo member and the detail record in one MULTI/EXEC.
func (s *Store) Put(ctx context.Context, r Request) error {
	body, err := json.Marshal(r)
	if err != nil {
		return apperr.Internal("encode call detail", err)
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
			Name:      r.PassengerID,
			Longitude: r.StartLng,
			Latitude:  r.StartLat,
		})
		pipe.Set(ctx, detailKey(r.PassengerID), body, 0)
		return nil
	})
	if err != nil {
		return apperr.Internal("record call", err)
	}
	return nil
}

// PutIfAbsent records r unless a detail record for the passenger exists, and reports whether it wrote.
func (s *Store) PutIfAbsent(ctx context.Context, r Request) (bool, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return false, apperr.Internal("encode call detail", err)
	}
	n, err := restoreScript.Run(ctx, s.redis, []string{geoKey, detailKey(r.PassengerID)},
		r.PassengerID, r.StartLng, r.StartLat, string(body)).Int()
	if err != nil {
		return false, apperr.Internal("restore call", err)
	}
	return n == 1, nil
}

func (s *Store) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]Request, error) {
	locs, err := s.redis.GeoRadius(ctx, geoKey, p.Lng, p.Lat, &redis.GeoRadiusQuery{
		Radius: radiusKm,
		Unit:   "km",
		Sort:   "ASC",
	}).Result()
	if err != nil {
		return nil, apperr.Internal("search open calls", err)
	}
	if len(locs) == 0 {
		return []Request{}, nil
	}

	keys := make([]string, len(locs))
	for i, l := range locs {
		keys[i] = detailKey(l.Name)
	}
	vals, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperr.Internal("load call details", err)
	}

	out := make([]Request, 0, len(vals))
	for _, v := range vals {
		// Removed between the geo lookup and the fetch.
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var r Request
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, apperr.Internal("decode call detail", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Remove deletes both structures; removing an absent call is a no-op.
func (s *Store) Remove(ctx context.Context, passengerID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, detailKey(passengerID))
		pipe.ZRem(ctx, geoKey, passengerID)
		return nil
	})
	if err != nil {
		return apperr.Internal("remove call", err)
	}
	return nil
}

// Take atomically removes and returns the passenger's open call.
// Exactly one of several concurrent callers observes the call.
func (s *Store) Take(ctx context.Context, passengerID string) (Request, error) {
	raw, err := takeScript.Run(ctx, s.redis, []string{geoKey, detailKey(passengerID)}, passengerID).Text()
	if errors.Is(err, redis.Nil) {
		return Request{}, ErrCallNotFound
	}
	if err != nil {
		return Request{}, apperr.Internal("take call", err)
	}
	var r Request
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Request{}, apperr.Internal("decode call detail", err)
	}
	return r, nil
}
