// README: Compensation command queue; the publisher submits, lifecycle workers consume with retries.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"taxi/internal/infra"
)

type Action uint8

const (
	// ActionRevert deletes the ride and frees the driver.
	ActionRevert Action = iota + 1
	ActionForceStart
	ActionForceComplete
)

func (a Action) String() string {
	switch a {
	case ActionRevert:
		return "revert"
	case ActionForceStart:
		return "force_start"
	case ActionForceComplete:
		return "force_complete"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

var ErrQueueClosed = errors.New("saga: queue stopped")

type Command struct {
	ID           string
	Action       Action
	RideID       int64
	DriverUserID int64
	Fare         int64
}

type Handler interface {
	Compensate(ctx context.Context, cmd Command) error
}

type job struct {
	ctx  context.Context
	cmd  Command
	done chan error
}

type Queue struct {
	jobs        chan job
	stopped     chan struct{}
	maxAttempts int
	backoff     time.Duration
	workers     int
	log         *slog.Logger
}

func NewQueue(workers, maxAttempts int, backoff time.Duration, log *slog.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Queue{
		jobs:        make(chan job),
		stopped:     make(chan struct{}),
		maxAttempts: maxAttempts,
		backoff:     backoff,
		workers:     workers,
		log:         log,
	}
}

// Submit enqueues cmd and blocks until a worker reports the final outcome.
// Cancellation of ctx is ignored; only queue shutdown ends the wait early.
func (q *Queue) Submit(ctx context.Context, cmd Command) error {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	j := job{ctx: context.WithoutCancel(ctx), cmd: cmd, done: make(chan error, 1)}
	select {
	case q.jobs <- j:
	case <-q.stopped:
		return ErrQueueClosed
	}
	select {
	case err := <-j.done:
		return err
	case <-q.stopped:
		return ErrQueueClosed
	}
}

// Run starts the workers and blocks until ctx is done.
func (q *Queue) Run(ctx context.Context, h Handler) {
	finished := make(chan struct{})
	for i := 0; i < q.workers; i++ {
		go func() {
			defer func() { finished <- struct{}{} }()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-q.jobs:
					j.done <- q.execute(ctx, j, h)
				}
			}
		}()
	}
	for i := 0; i < q.workers; i++ {
		<-finished
	}
	close(q.stopped)
}

// execute retries with linear backoff; worker shutdown interrupts the wait between attempts.
func (q *Queue) execute(ctx context.Context, j job, h Handler) error {
	log := infra.Action(q.log, "Compensate").With("command_id", j.cmd.ID,
		"kind", j.cmd.Action.String(), "ride_id", j.cmd.RideID)

	var err error
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		if err = h.Compensate(j.ctx, j.cmd); err == nil {
			log.Info("compensation applied", "attempt", attempt)
			return nil
		}
		log.Warn("compensation attempt failed", "attempt", attempt, "error", err)
		if attempt == q.maxAttempts {
			break
		}
		select {
		case <-time.After(q.backoff * time.Duration(attempt)):
		case <-ctx.Done():
			log.Error("compensation abandoned at shutdown; manual reconciliation required", "attempt", attempt, "error", err)
			return fmt.Errorf("compensation %s for ride %d: %w: %w", j.cmd.Action, j.cmd.RideID, ErrQueueClosed, err)
		}
	}
	log.Error("compensation exhausted retries; manual reconciliation required", "error", err)
	return fmt.Errorf("compensation %s for ride %d: %w", j.cmd.Action, j.cmd.RideID, err)
}
