// Package supervisor coordinates the gateway's long-lived worker tasks:
// PI-intake, OTA-in, and the OTA dispatcher.
package supervisor

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Status is the supervisor's lifecycle state, reported by
// Supervisor.Status. The worker tasks do not read it; they stop when
// their context is cancelled.
type Status int32

// Status values.
const (
	StatusStarting Status = iota
	StatusRunning
	StatusShuttingDown
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "STARTING"
	case StatusRunning:
		return "RUNNING"
	case StatusShuttingDown:
		return "SHUTTING_DOWN"
	default:
		return "UNKNOWN"
	}
}

// Task is one of the long-lived workers, run until ctx is cancelled.
type Task func(ctx context.Context) error

// Supervisor runs a fixed set of tasks under a shared context and
// errgroup, exposing a polled Status.
type Supervisor struct {
	log    zerolog.Logger
	status atomic.Int32
	tasks  []namedTask
}

type namedTask struct {
	name string
	fn   Task
}

// New creates an empty Supervisor in STARTING state.
func New(log zerolog.Logger) *Supervisor {
	s := &Supervisor{log: log.With().Str("component", "supervisor").Logger()}
	s.status.Store(int32(StatusStarting))
	return s
}

// Add registers a named task to run when Run is called.
func (s *Supervisor) Add(name string, fn Task) {
	s.tasks = append(s.tasks, namedTask{name: name, fn: fn})
}

// Status reports the current supervisor status.
func (s *Supervisor) Status() Status {
	return Status(s.status.Load())
}

// Run starts every registered task under an errgroup.Group bound to
// ctx. It blocks until every task returns, cancelling the shared
// context as soon as one returns a non-nil error, so the others wake on
// a closed ctx.Done and exit. A task that returns nil does not cancel
// its siblings.
func (s *Supervisor) Run(ctx context.Context) error {
	s.status.Store(int32(StatusRunning))

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range s.tasks {
		t := t
		g.Go(func() error {
			err := t.fn(gctx)
			if err != nil && err != context.Canceled {
				s.log.Error().Err(err).Str("task", t.name).Msg("task exited with error")
			}
			return err
		})
	}

	err := g.Wait()
	s.status.Store(int32(StatusShuttingDown))
	return err
}
