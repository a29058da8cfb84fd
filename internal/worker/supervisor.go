package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accounts/internal/clock"
	"github.com/dmitrijs2005/accounts/internal/logging"
	"golang.org/x/sync/errgroup"
)

// Supervisor runs a set of workers. A worker that fails before it ever
// consumed takes the whole group down; one that fails later is restarted
// after the restart delay.
type Supervisor struct {
	workers []*Worker
	delay   time.Duration
	clock   clock.Clock
	log     logging.Logger
}

func NewSupervisor(workers []*Worker, restartDelay time.Duration, c clock.Clock, log logging.Logger) *Supervisor {
	if restartDelay <= 0 {
		restartDelay = DefaultReconnectDelay
	}
	return &Supervisor{workers: workers, delay: restartDelay, clock: c, log: log.With("module", "supervisor")}
}

// Workers returns the supervised workers.
func (s *Supervisor) Workers() []*Worker { return s.workers }

// Run blocks until every worker has returned.
func (s *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range s.workers {
		g.Go(func() error { return s.supervise(ctx, w) })
	}
	return g.Wait()
}

// Stop stops every worker.
func (s *Supervisor) Stop() {
	for _, w := range s.workers {
		w.Stop()
	}
}

func (s *Supervisor) supervise(ctx context.Context, w *Worker) error {
	for {
		err := w.Run(ctx)
		if err == nil || ctx.Err() != nil || w.Stopped() {
			return nil
		}
		if !w.HasConsumed() {
			return fmt.Errorf("worker %s: %w", w.Queue(), err)
		}

		s.log.Error(ctx, "worker failed, restarting", "queue", w.Queue(), "error", err, "delay", s.delay)
		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(s.delay):
		}
	}
}
