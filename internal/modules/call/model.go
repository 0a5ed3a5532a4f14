// README: Open call payload as carried on the intake topic and stored in the geo index.
package call

import (
	"strings"

	"taxi/internal/apperr"
	"taxi/internal/types"
)

var (
	ErrCallNotFound = apperr.BadRequest("call request not found")
	ErrMissingID    = apperr.BadRequest("passengerId is required")
	ErrMissingLabel = apperr.BadRequest("startLocation and endLocation are required")
)

// Request is keyed by PassengerID, the passenger's directory identity (email).
type Request struct {
	PassengerID   string  `json:"passengerId"`
	StartLat      float64 `json:"startLat"`
	StartLng      float64 `json:"startLng"`
	StartLocation string  `json:"startLocation"`
	EndLat        float64 `json:"endLat"`
	EndLng        float64 `json:"endLng"`
	EndLocation   string  `json:"endLocation"`
}

// OpenCall is a search hit: the stored request and its pickup distance from the searching driver.
type OpenCall struct {
	Request
	DistanceKm float64 `json:"distanceKm"`
}

func (r Request) Start() types.Point {
	return types.Point{Lat: r.StartLat, Lng: r.StartLng}
}

func (r Request) End() types.Point {
	return types.Point{Lat: r.EndLat, Lng: r.EndLng}
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.PassengerID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(r.StartLocation) == "" || strings.TrimSpace(r.EndLocation) == "" {
		return ErrMissingLabel
	}
	if err := r.Start().Validate(); err != nil {
		return apperr.BadRequest("start: " + err.Error())
	}
	if err := r.End().Validate(); err != nil {
		return apperr.BadRequest("end: " + err.Error())
	}
	return nil
}
