// README: Ride and Driver aggregates; status and ride-count change only through these methods.
package ride

import (
	"fmt"
	"time"

	"taxi/internal/modules/call"
)

type Ride struct {
	ID            int64      `json:"rideId"`
	PassengerID   int64      `json:"passengerId"`
	DriverID      int64      `json:"driverId"`
	Fare          int64      `json:"fare"`
	StartLat      float64    `json:"startLat"`
	StartLng      float64    `json:"startLng"`
	StartLocation string     `json:"startLocation"`
	EndLat        float64    `json:"endLat"`
	EndLng        float64    `json:"endLng"`
	EndLocation   string     `json:"endLocation"`
	Status        RideStatus `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type Driver struct {
	ID          int64        `json:"driverId"`
	UserID      int64        `json:"userId"`
	CarNumber   string       `json:"carNumber"`
	Capacity    int          `json:"capacity"`
	CarName     string       `json:"carName"`
	License     string       `json:"license"`
	PhoneNumber string       `json:"phoneNumber"`
	Status      DriverStatus `json:"driverStatus"`
	TotalRides  int          `json:"totalRides"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func newRide(passengerID, driverID int64, c call.Request) *Ride {
	return &Ride{
		PassengerID:   passengerID,
		DriverID:      driverID,
		StartLat:      c.StartLat,
		StartLng:      c.StartLng,
		StartLocation: c.StartLocation,
		EndLat:        c.EndLat,
		EndLng:        c.EndLng,
		EndLocation:   c.EndLocation,
		Status:        RideAccept,
	}
}

func (r *Ride) transition(to RideStatus) error {
	if r.Status.Terminal() {
		return fmt.Errorf("%w: ride %d is already %s", ErrInvalidRideState, r.ID, r.Status)
	}
	if !CanTransitionRide(r.Status, to) {
		return fmt.Errorf("%w: ride %d is %s, cannot become %s", ErrInvalidRideState, r.ID, r.Status, to)
	}
	r.Status = to
	return nil
}

func (r *Ride) Cancel() error {
	return r.transition(RideCancel)
}

func (r *Ride) Drive() error {
	return r.transition(RideDriving)
}

// Complete records the fare; fare stays 0 until then.
func (r *Ride) Complete(fare int64) error {
	if fare < 0 {
		return ErrNegativeFare
	}
	if err := r.transition(RideComplete); err != nil {
		return err
	}
	r.Fare = fare
	return nil
}

func (d *Driver) transition(to DriverStatus) error {
	if !CanTransitionDriver(d.Status, to) {
		return fmt.Errorf("%w: driver %d is %s, cannot become %s", ErrInvalidDriverState, d.ID, d.Status, to)
	}
	d.Status = to
	return nil
}

func (d *Driver) Reserve() error {
	if d.Status != DriverWaiting {
		return fmt.Errorf("%w: driver %d is %s, must be WAITING", ErrInvalidDriverState, d.ID, d.Status)
	}
	return d.transition(DriverReservation)
}

func (d *Driver) Drive() error {
	if d.Status != DriverReservation {
		return fmt.Errorf("%w: driver %d is %s, must be RESERVATION", ErrInvalidDriverState, d.ID, d.Status)
	}
	return d.transition(DriverDriving)
}

func (d *Driver) FinishRide() error {
	if d.Status != DriverDriving {
		return fmt.Errorf("%w: driver %d is %s, must be DRIVING", ErrInvalidDriverState, d.ID, d.Status)
	}
	d.TotalRides++
	d.Status = DriverWaiting
	return nil
}

// Release frees the driver after a cancellation regardless of the current status.
func (d *Driver) Release() {
	d.Status = DriverWaiting
}

// SetAvailability applies the externally requested OFFLINE/WAITING toggle.
func (d *Driver) SetAvailability(to DriverStatus) error {
	if to != DriverOffline && to != DriverWaiting {
		return ErrInvalidAvailability
	}
	if d.Status == to {
		return nil
	}
	if d.Status != DriverOffline && d.Status != DriverWaiting {
		return fmt.Errorf("%w: driver %d is %s", ErrInvalidDriverState, d.ID, d.Status)
	}
	return d.transition(to)
}
