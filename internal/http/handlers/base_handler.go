// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"taxi/internal/apperr"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeAppError maps the error kind to a status; internal details stay in the log.
func writeAppError(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindBadRequest:
		writeError(c, http.StatusBadRequest, err.Error())
	case apperr.KindAuth:
		writeError(c, http.StatusUnauthorized, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal server error")
	}
}

func rideIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("rideId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return 0, false
	}
	return id, true
}

// callerMatches checks an optional body identity against the authenticated one.
func callerMatches(c *gin.Context, claimed, caller string) bool {
	if claimed != "" && claimed != caller {
		writeAppError(c, apperr.Auth("request identity does not match authenticated user"))
		return false
	}
	return true
}
