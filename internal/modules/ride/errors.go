package ride

import (
	"errors"

	"taxi/internal/apperr"
)

var (
	ErrRideNotFound        = apperr.BadRequest("ride not found")
	ErrInvalidRideState    = apperr.BadRequest("ride status does not allow this operation")
	ErrInvalidDriverState  = apperr.BadRequest("driver status does not allow this operation")
	ErrDriverNotRegistered = apperr.BadRequest("driver is not registered")
	ErrNegativeFare        = apperr.BadRequest("fare must not be negative")
	ErrInvalidAvailability = apperr.BadRequest("driver status can only be set to OFFLINE or WAITING")
	ErrMissingEmail        = apperr.BadRequest("passengerEmail and driverEmail are required")
	ErrNotParticipant      = apperr.Auth("caller is not a participant of this ride")

	// ErrDriverMissing means a ride references a driver row that does not exist.
	ErrDriverMissing = apperr.Internal("driver of ride not found", nil)
)

// errNoDriver is returned by stores; the service decides whether it is the caller's fault.
var errNoDriver = errors.New("driver row not found")
