// README: API gateway; wires module services into handlers and exposes the HTTP handler.
package http

import (
	"log/slog"
	"net/http"

	"taxi/internal/bus"
	"taxi/internal/http/handlers"
	"taxi/internal/modules/call"
	"taxi/internal/modules/ride"
)

type ServerDeps struct {
	Rides  *ride.Service
	Calls  *call.Service
	Intake bus.Publisher
	Log    *slog.Logger
}

type Server struct {
	rides  *handlers.RideHandler
	driver *handlers.DriverHandler
	log    *slog.Logger
}

func NewServer(deps ServerDeps) *Server {
	return &Server{
		rides:  handlers.NewRideHandler(deps.Rides, deps.Calls, deps.Intake),
		driver: handlers.NewDriverHandler(deps.Rides),
		log:    deps.Log,
	}
}

func (s *Server) Routes() http.Handler {
	return NewRouter(s.rides, s.driver, s.log)
}
