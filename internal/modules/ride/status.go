// README: Closed status enums for rides and drivers; unknown names are rejected when decoding.
package ride

import (
	"database/sql/driver"
	"fmt"
)

type RideStatus uint8

const (
	RideAccept RideStatus = iota + 1
	RideDriving
	RideComplete
	RideCancel
)

var rideStatusNames = map[RideStatus]string{
	RideAccept:   "ACCEPT",
	RideDriving:  "DRIVING",
	RideComplete: "COMPLETE",
	RideCancel:   "CANCEL",
}

type DriverStatus uint8

const (
	DriverOffline DriverStatus = iota + 1
	DriverWaiting
	DriverReservation
	DriverDriving
)

var driverStatusNames = map[DriverStatus]string{
	DriverOffline:     "OFFLINE",
	DriverWaiting:     "WAITING",
	DriverReservation: "RESERVATION",
	DriverDriving:     "DRIVING",
}

// rideTransitions is the ride flow; COMPLETE and CANCEL are terminal.
var rideTransitions = map[RideStatus][]RideStatus{
	RideAccept:  {RideDriving, RideCancel},
	RideDriving: {RideComplete},
}

var driverTransitions = map[DriverStatus][]DriverStatus{
	DriverOffline:     {DriverWaiting},
	DriverWaiting:     {DriverOffline, DriverReservation},
	DriverReservation: {DriverDriving, DriverWaiting},
	DriverDriving:     {DriverWaiting},
}

func CanTransitionRide(from, to RideStatus) bool {
	for _, s := range rideTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func CanTransitionDriver(from, to DriverStatus) bool {
	for _, s := range driverTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s RideStatus) String() string {
	if name, ok := rideStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("RideStatus(%d)", uint8(s))
}

func (s RideStatus) Terminal() bool {
	return s == RideComplete || s == RideCancel
}

func ParseRideStatus(v string) (RideStatus, error) {
	for s, name := range rideStatusNames {
		if name == v {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown ride status %q", v)
}

func (s RideStatus) MarshalText() ([]byte, error) {
	name, ok := rideStatusNames[s]
	if !ok {
		return nil, fmt.Errorf("invalid ride status %d", uint8(s))
	}
	return []byte(name), nil
}

func (s *RideStatus) UnmarshalText(b []byte) error {
	v, err := ParseRideStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s *RideStatus) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	}
	return fmt.Errorf("scan ride status from %T", src)
}

func (s RideStatus) Value() (driver.Value, error) {
	b, err := s.MarshalText()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s DriverStatus) String() string {
	if name, ok := driverStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("DriverStatus(%d)", uint8(s))
}

func ParseDriverStatus(v string) (DriverStatus, error) {
	for s, name := range driverStatusNames {
		if name == v {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown driver status %q", v)
}

func (s DriverStatus) MarshalText() ([]byte, error) {
	name, ok := driverStatusNames[s]
	if !ok {
		return nil, fmt.Errorf("invalid driver status %d", uint8(s))
	}
	return []byte(name), nil
}

func (s *DriverStatus) UnmarshalText(b []byte) error {
	v, err := ParseDriverStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s *DriverStatus) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	}
	return fmt.Errorf("scan driver status from %T", src)
}

func (s DriverStatus) Value() (driver.Value, error) {
	b, err := s.MarshalText()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
