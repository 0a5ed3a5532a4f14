// README: Lifecycle event payload shared by all four ride topics.
package event

import (
	"time"

	"taxi/internal/bus"
	"taxi/internal/modules/saga"
)

type Kind string

const (
	KindAccept   Kind = "ride-accept"
	KindCancel   Kind = "ride-cancel"
	KindStart    Kind = "ride-start"
	KindComplete Kind = "ride-complete"
)

func (k Kind) Topic() (string, bool) {
	switch k {
	case KindAccept:
		return bus.TopicRideAccept, true
	case KindCancel:
		return bus.TopicRideCancel, true
	case KindStart:
		return bus.TopicRideStart, true
	case KindComplete:
		return bus.TopicRideComplete, true
	}
	return "", false
}

// Compensation picks the saga direction: early transitions are undone, late ones forced forward.
func (k Kind) Compensation() saga.Action {
	switch k {
	case KindStart:
		return saga.ActionForceStart
	case KindComplete:
		return saga.ActionForceComplete
	default:
		return saga.ActionRevert
	}
}

// Event carries both audiences' fields so the dispatcher can address passenger and driver.
type Event struct {
	EventID string `json:"eventId"`
	Kind    Kind   `json:"kind"`
	RideID  int64  `json:"rideId"`
	Status  string `json:"status"`

	PassengerUserID int64  `json:"passengerUserId"`
	PassengerEmail  string `json:"passengerEmail"`
	PassengerName   string `json:"passengerName,omitempty"`
	PassengerPhone  string `json:"passengerPhoneNumber"`

	DriverUserID int64  `json:"driverUserId"`
	DriverEmail  string `json:"driverEmail"`
	DriverName   string `json:"driverName"`
	DriverPhone  string `json:"driverPhoneNumber"`
	CarName      string `json:"carName"`
	CarNumber    string `json:"carNumber"`
	Capacity     int    `json:"capacity"`
	TotalRides   int    `json:"totalRides"`

	StartLocation string `json:"startLocation"`
	EndLocation   string `json:"endLocation"`
	Fare          int64  `json:"fare"`

	OccurredAt time.Time `json:"timestamp"`
}

// CompensationCommand captures everything needed to repair state if e cannot be published.
func (e Event) CompensationCommand() saga.Command {
	return saga.Command{
		ID:           e.EventID,
		Action:       e.Kind.Compensation(),
		RideID:       e.RideID,
		DriverUserID: e.DriverUserID,
		Fare:         e.Fare,
	}
}
