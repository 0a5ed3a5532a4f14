// README: Saga handler; applies the compensation chosen by the event publisher.
package ride

import (
	"context"
	"errors"
	"fmt"

	"taxi/internal/apperr"
	"taxi/internal/modules/saga"
)

func (s *Service) Compensate(ctx context.Context, cmd saga.Command) error {
	switch cmd.Action {
	case saga.ActionRevert:
		return s.revert(ctx, cmd)
	case saga.ActionForceStart:
		return s.forceStart(ctx, cmd)
	case saga.ActionForceComplete:
		return s.forceComplete(ctx, cmd)
	}
	return apperr.Internal("compensate", fmt.Errorf("unknown action %s", cmd.Action))
}

// revert deletes the ride outright; no event ever referenced it.
func (s *Service) revert(ctx context.Context, cmd saga.Command) error {
	return s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.DeleteRide(ctx, cmd.RideID); err != nil {
			return err
		}
		d, err := tx.DriverByUserID(ctx, cmd.DriverUserID)
		if errors.Is(err, errNoDriver) {
			return ErrDriverMissing
		}
		if err != nil {
			return err
		}
		d.Status = DriverWaiting
		return tx.UpdateDriver(ctx, d)
	})
}

// forceStart only moves an ACCEPT ride; a ride that already started or finished is left alone.
func (s *Service) forceStart(ctx context.Context, cmd saga.Command) error {
	return s.forward(ctx, cmd.RideID, func(r *Ride, d *Driver) bool {
		if r.Status != RideAccept {
			return false
		}
		r.Status = RideDriving
		d.Status = DriverDriving
		return true
	})
}

// forceComplete counts the ride once even if the completion already committed.
func (s *Service) forceComplete(ctx context.Context, cmd saga.Command) error {
	return s.forward(ctx, cmd.RideID, func(r *Ride, d *Driver) bool {
		switch r.Status {
		case RideCancel:
			return false
		case RideComplete:
			if d.Status == DriverWaiting {
				return false
			}
		default:
			r.Fare = cmd.Fare
			r.Status = RideComplete
			d.TotalRides++
		}
		d.Status = DriverWaiting
		return true
	})
}

// forward locks ride then driver and persists both when apply reports a change.
func (s *Service) forward(ctx context.Context, rideID int64, apply func(r *Ride, d *Driver) bool) error {
	return s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
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
		if !apply(r, d) {
			return nil
		}
		if err := tx.UpdateRide(ctx, r); err != nil {
			return err
		}
		return tx.UpdateDriver(ctx, d)
	})
}
