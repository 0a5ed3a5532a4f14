// README: Ride handlers: call request, proximity search, accept/cancel/start/complete, lookup.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"taxi/internal/apperr"
	"taxi/internal/bus"
	"taxi/internal/http/middleware"
	"taxi/internal/modules/call"
	"taxi/internal/modules/event"
	"taxi/internal/modules/ride"
	"taxi/internal/types"
)

type RideService interface {
	AcceptCall(ctx context.Context, cmd ride.AcceptCommand) (event.Event, error)
	CancelRide(ctx context.Context, cmd ride.RideCommand) (event.Event, error)
	StartRide(ctx context.Context, cmd ride.RideCommand) (event.Event, error)
	CompleteRide(ctx context.Context, cmd ride.CompleteCommand) (event.Event, error)
	GetRide(ctx context.Context, rideID int64) (*ride.Ride, error)
}

type CallFinder interface {
	FindNearby(ctx context.Context, p types.Point) ([]call.OpenCall, error)
}

type RideHandler struct {
	rides   RideService
	calls   CallFinder
	publish bus.Publisher
}

func NewRideHandler(rides RideService, calls CallFinder, publish bus.Publisher) *RideHandler {
	return &RideHandler{rides: rides, calls: calls, publish: publish}
}

type callReq struct {
	PassengerID   string  `json:"passengerId"`
	StartLat      float64 `json:"startLat"`
	StartLng      float64 `json:"startLng"`
	StartLocation string  `json:"startLocation" binding:"required"`
	EndLat        float64 `json:"endLat"`
	EndLng        float64 `json:"endLng"`
	EndLocation   string  `json:"endLocation" binding:"required"`
}

// Call hands the request to the intake topic; the geo index is written asynchronously.
func (h *RideHandler) Call(c *gin.Context) {
	var req callReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	caller := middleware.CallerEmail(c)
	if !callerMatches(c, req.PassengerID, caller) {
		return
	}
	r := call.Request{
		PassengerID:   caller,
		StartLat:      req.StartLat,
		StartLng:      req.StartLng,
		StartLocation: req.StartLocation,
		EndLat:        req.EndLat,
		EndLng:        req.EndLng,
		EndLocation:   req.EndLocation,
	}
	if err := r.Validate(); err != nil {
		writeAppError(c, err)
		return
	}
	body, err := json.Marshal(r)
	if err != nil {
		writeAppError(c, apperr.Internal("encode call request", err))
		return
	}
	if err := h.publish.Send(c.Request.Context(), bus.TopicRideRequest, r.PassengerID, body); err != nil {
		writeAppError(c, apperr.Internal("enqueue call request", err))
		return
	}
	writeJSON(c, http.StatusAccepted, r)
}

type findReq struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (h *RideHandler) Find(c *gin.Context) {
	var req findReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	calls, err := h.calls.FindNearby(c.Request.Context(), types.Point{Lat: req.Latitude, Lng: req.Longitude})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, calls)
}

type acceptReq struct {
	PassengerEmail string `json:"passengerEmail" binding:"required,email"`
	DriverEmail    string `json:"driverEmail" binding:"omitempty,email"`
}

func (h *RideHandler) Accept(c *gin.Context) {
	var req acceptReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	caller := middleware.CallerEmail(c)
	if !callerMatches(c, req.DriverEmail, caller) {
		return
	}
	ev, err := h.rides.AcceptCall(c.Request.Context(), ride.AcceptCommand{
		PassengerEmail: req.PassengerEmail,
		DriverEmail:    caller,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ev)
}

func (h *RideHandler) Cancel(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	ev, err := h.rides.CancelRide(c.Request.Context(), ride.RideCommand{RideID: id, Caller: middleware.CallerEmail(c)})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ev)
}

func (h *RideHandler) Start(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	ev, err := h.rides.StartRide(c.Request.Context(), ride.RideCommand{RideID: id, Caller: middleware.CallerEmail(c)})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ev)
}

type completeReq struct {
	RideID int64  `json:"rideId" binding:"required,gt=0"`
	Fare   *int64 `json:"fare" binding:"required,gte=0"`
}

func (h *RideHandler) Complete(c *gin.Context) {
	var req completeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := h.rides.CompleteRide(c.Request.Context(), ride.CompleteCommand{
		RideID: req.RideID,
		Caller: middleware.CallerEmail(c),
		Fare:   *req.Fare,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ev)
}

func (h *RideHandler) Get(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	r, err := h.rides.GetRide(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}
