// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"taxi/internal/http/handlers"
	"taxi/internal/http/middleware"
)

func NewRouter(
	rideHandler *handlers.RideHandler,
	driverHandler *handlers.DriverHandler,
	log *slog.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(log), middleware.Logging(log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth())

	rides := api.Group("/ride")
	rides.POST("/call", rideHandler.Call)
	rides.POST("/find", rideHandler.Find)
	rides.POST("/accept", rideHandler.Accept)
	rides.POST("/cancel/:rideId", rideHandler.Cancel)
	rides.POST("/start/:rideId", rideHandler.Start)
	rides.POST("/complete", rideHandler.Complete)
	rides.GET("/:rideId", rideHandler.Get)

	api.PATCH("/driver/status", driverHandler.SetStatus)

	return r
}
