// README: Ride lifecycle manager; validates and applies accept/cancel/start/complete and publishes the outcome.
package ride

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"taxi/internal/infra"
	"taxi/internal/modules/call"
	"taxi/internal/modules/event"
	"taxi/internal/userdir"
)

type CallIndex interface {
	Take(ctx context.Context, passengerID string) (call.Request, error)
	Restore(ctx context.Context, r call.Request) error
}

type Directory interface {
	UserByEmail(ctx context.Context, email string) (userdir.User, error)
	UserByID(ctx context.Context, id int64) (userdir.User, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, e event.Event) error
}

type AcceptCommand struct {
	PassengerEmail string
	DriverEmail    string
}

// RideCommand addresses an existing ride on behalf of Caller, the authenticated email.
type RideCommand struct {
	RideID int64
	Caller string
}

type CompleteCommand struct {
	RideID int64
	Caller string
	Fare   int64
}

type Service struct {
	repo   Repository
	calls  CallIndex
	users  Directory
	events EventPublisher
	log    *slog.Logger
}

func NewService(repo Repository, calls CallIndex, users Directory, events EventPublisher, log *slog.Logger) *Service {
	return &Service{repo: repo, calls: calls, users: users, events: events, log: log}
}

// AcceptCall matches the passenger's open call to the driver. The call is taken from the
// geo index only after the driver row is locked and checked, and restored if the transaction fails.
func (s *Service) AcceptCall(ctx context.Context, cmd AcceptCommand) (event.Event, error) {
	log := infra.Action(s.log, "AcceptCall").With("passenger", cmd.PassengerEmail, "driver", cmd.DriverEmail)
	if strings.TrimSpace(cmd.PassengerEmail) == "" || strings.TrimSpace(cmd.DriverEmail) == "" {
		return event.Event{}, ErrMissingEmail
	}

	passenger, err := s.users.UserByEmail(ctx, cmd.PassengerEmail)
	if err != nil {
		return event.Event{}, err
	}
	driverUser, err := s.users.UserByEmail(ctx, cmd.DriverEmail)
	if err != nil {
		return event.Event{}, err
	}

	var (
		taken *call.Request
		ev    event.Event
	)
	err = s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		d, err := tx.DriverByUserID(ctx, driverUser.UserID)
		if errors.Is(err, errNoDriver) {
			return ErrDriverNotRegistered
		}
		if err != nil {
			return err
		}
		if err := d.Reserve(); err != nil {
			return err
		}

		c, err := s.calls.Take(ctx, cmd.PassengerEmail)
		if err != nil {
			return err
		}
		taken = &c

		r := newRide(passenger.UserID, d.ID, c)
		if err := tx.CreateRide(ctx, r); err != nil {
			return err
		}
		if err := tx.UpdateDriver(ctx, d); err != nil {
			return err
		}
		ev = buildEvent(event.KindAccept, r, d, passenger, driverUser)
		return nil
	})
	if err != nil {
		if taken != nil {
			if rerr := s.calls.Restore(context.WithoutCancel(ctx), *taken); rerr != nil {
				log.Error("taken call lost after failed accept", "error", rerr)
			}
		}
		log.Warn("accept rejected", "error", err)
		return event.Event{}, err
	}

	log.Info("ride accepted", "ride_id", ev.RideID)
	if err := s.events.Publish(ctx, ev); err != nil {
		return event.Event{}, err
	}
	return ev, nil
}

// CancelRide may be requested by either participant.
func (s *Service) CancelRide(ctx context.Context, cmd RideCommand) (event.Event, error) {
	return s.transition(ctx, "CancelRide", event.KindCancel, cmd.RideID, cmd.Caller, true, func(r *Ride, d *Driver) error {
		if err := r.Cancel(); err != nil {
			return err
		}
		d.Release()
		return nil
	})
}

func (s *Service) StartRide(ctx context.Context, cmd RideCommand) (event.Event, error) {
	return s.transition(ctx, "StartRide", event.KindStart, cmd.RideID, cmd.Caller, false, func(r *Ride, d *Driver) error {
		if err := r.Drive(); err != nil {
			return err
		}
		return d.Drive()
	})
}

func (s *Service) CompleteRide(ctx context.Context, cmd CompleteCommand) (event.Event, error) {
	if cmd.Fare < 0 {
		return event.Event{}, ErrNegativeFare
	}
	return s.transition(ctx, "CompleteRide", event.KindComplete, cmd.RideID, cmd.Caller, false, func(r *Ride, d *Driver) error {
		if err := r.Complete(cmd.Fare); err != nil {
			return err
		}
		return d.FinishRide()
	})
}

// transition locks ride then driver, checks that caller is the ride's driver (or passenger when
// passengerAllowed), applies mutate, persists both and publishes kind.
func (s *Service) transition(ctx context.Context, action string, kind event.Kind, rideID int64,
	caller string, passengerAllowed bool, mutate func(r *Ride, d *Driver) error) (event.Event, error) {
	log := infra.Action(s.log, action).With("ride_id", rideID, "caller", caller)
	if strings.TrimSpace(caller) == "" {
		return event.Event{}, ErrNotParticipant
	}

	var ev event.Event
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.RideByID(ctx, rideID)
		if err != nil {
			return err
		}
		d, err := tx.DriverByID(ctx, r.DriverID)
		if errors.Is(err, errNoDriver) {
			return ErrDriverMissing
		}
		if err != nil {
			return err
		}

		passenger, err := s.users.UserByID(ctx, r.PassengerID)
		if err != nil {
			return err
		}
		driverUser, err := s.users.UserByID(ctx, d.UserID)
		if err != nil {
			return err
		}
		if !strings.EqualFold(caller, driverUser.Email) &&
			!(passengerAllowed && strings.EqualFold(caller, passenger.Email)) {
			return ErrNotParticipant
		}

		if err := mutate(r, d); err != nil {
			return err
		}
		if err := tx.UpdateRide(ctx, r); err != nil {
			return err
		}
		if err := tx.UpdateDriver(ctx, d); err != nil {
			return err
		}
		ev = buildEvent(kind, r, d, passenger, driverUser)
		return nil
	})
	if err != nil {
		log.Warn("transition rejected", "error", err)
		return event.Event{}, err
	}

	log.Info("ride transitioned", "status", ev.Status)
	if err := s.events.Publish(ctx, ev); err != nil {
		return event.Event{}, err
	}
	return ev, nil
}

// SetDriverAvailability toggles a driver between OFFLINE and WAITING.
func (s *Service) SetDriverAvailability(ctx context.Context, email string, to DriverStatus) (*Driver, error) {
	user, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	var out *Driver
	err = s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		d, err := tx.DriverByUserID(ctx, user.UserID)
		if errors.Is(err, errNoDriver) {
			return ErrDriverNotRegistered
		}
		if err != nil {
			return err
		}
		if err := d.SetAvailability(to); err != nil {
			return err
		}
		if err := tx.UpdateDriver(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	infra.Action(s.log, "SetDriverAvailability").Info("driver availability changed", "driver_id", out.ID, "status", out.Status)
	return out, nil
}

func (s *Service) GetRide(ctx context.Context, rideID int64) (*Ride, error) {
	return s.repo.Ride(ctx, rideID)
}

func buildEvent(kind event.Kind, r *Ride, d *Driver, passenger, driverUser userdir.User) event.Event {
	return event.Event{
		Kind:            kind,
		RideID:          r.ID,
		Status:          r.Status.String(),
		PassengerUserID: passenger.UserID,
		PassengerEmail:  passenger.Email,
		PassengerName:   passenger.Name,
		PassengerPhone:  passenger.Phone,
		DriverUserID:    d.UserID,
		DriverEmail:     driverUser.Email,
		DriverName:      driverUser.Name,
		DriverPhone:     d.PhoneNumber,
		CarName:         d.CarName,
		CarNumber:       d.CarNumber,
		Capacity:        d.Capacity,
		TotalRides:      d.TotalRides,
		StartLocation:   r.StartLocation,
		EndLocation:     r.EndLocation,
		Fare:            r.Fare,
	}
}
