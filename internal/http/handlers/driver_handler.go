// README: Driver handlers: availability toggle.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"taxi/internal/http/middleware"
	"taxi/internal/modules/ride"
)

type DriverService interface {
	SetDriverAvailability(ctx context.Context, email string, to ride.DriverStatus) (*ride.Driver, error)
}

type DriverHandler struct {
	drivers DriverService
}

func NewDriverHandler(drivers DriverService) *DriverHandler {
	return &DriverHandler{drivers: drivers}
}

type driverStatusReq struct {
	Email        string            `json:"email" binding:"omitempty,email"`
	DriverStatus ride.DriverStatus `json:"driverStatus" binding:"required"`
}

func (h *DriverHandler) SetStatus(c *gin.Context) {
	var req driverStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	caller := middleware.CallerEmail(c)
	if !callerMatches(c, req.Email, caller) {
		return
	}
	d, err := h.drivers.SetDriverAvailability(c.Request.Context(), caller, req.DriverStatus)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}
