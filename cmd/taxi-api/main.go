// README: Entry point; loads config, wires stores, bus, saga queue and services, starts the call intake and HTTP server.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taxi/internal/bus"
	"taxi/internal/config"
	httptransport "taxi/internal/http"
	"taxi/internal/infra"
	"taxi/internal/modules/call"
	"taxi/internal/modules/event"
	"taxi/internal/modules/ride"
	"taxi/internal/modules/saga"
	"taxi/internal/userdir"
)

type transport interface {
	bus.Publisher
	bus.Subscriber
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := infra.NewLogger(os.Stdout, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Timeout)
	defer redisClient.Close()

	broker, err := newTransport(cfg.Bus, logger)
	if err != nil {
		log.Fatalf("bus: %v", err)
	}
	defer broker.Close()

	callSvc := call.NewService(call.NewStore(redisClient), cfg.Matching.RadiusKm, logger)
	intake := call.NewIntake(broker, callSvc, logger)

	queue := saga.NewQueue(cfg.Saga.Workers, cfg.Saga.MaxAttempts, cfg.Saga.Backoff, logger)
	publisher := event.NewPublisher(broker, queue, cfg.Bus.Timeout, logger)

	users := userdir.NewClient(cfg.UserDir.BaseURL, cfg.UserDir.Timeout)
	rideSvc := ride.NewService(ride.NewStore(dbPool), callSvc, users, publisher, logger)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Rides:  rideSvc,
		Calls:  callSvc,
		Intake: broker,
		Log:    logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	go queue.Run(ctx, rideSvc)
	go func() {
		if err := intake.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("call intake stopped", "error", err)
			stop()
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("taxi api listening", "addr", cfg.HTTP.Addr, "bus", cfg.Bus.Driver)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func newTransport(cfg config.BusConfig, logger *slog.Logger) (transport, error) {
	switch cfg.Driver {
	case config.BusAMQP:
		return bus.NewAMQP(cfg.AMQPURL, cfg.Exchange, cfg.GroupID, logger)
	default:
		return bus.NewKafka(cfg.Brokers, cfg.GroupID, cfg.Timeout, logger), nil
	}
}
