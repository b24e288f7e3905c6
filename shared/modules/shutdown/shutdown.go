// Package shutdown sequences an ordered teardown across a service's
// long-lived tasks (retry tickers, sweepers, reconnect loops) on
// SIGINT/SIGTERM, generalizing the signal-wait pattern every
// phrimp-agrisa_be cmd/main.go repeats inline.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Sequencer cancels registered tasks in LIFO order when a shutdown
// signal arrives, then waits up to a grace period for them to finish.
type Sequencer struct {
	mu      sync.Mutex
	cancels []func()
	wg      sync.WaitGroup
	grace   time.Duration
}

// New creates a Sequencer that allows `grace` for tasks to drain after
// being cancelled.
func New(grace time.Duration) *Sequencer {
	return &Sequencer{grace: grace}
}

// Go runs fn in a tracked goroutine. fn must return once ctx is done.
func (s *Sequencer) Go(ctx context.Context, cancel func(), fn func(ctx context.Context)) {
	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

// Wait blocks until SIGINT/SIGTERM, cancels every registered task in
// reverse registration order, waits up to the grace period for them to
// finish, then returns.
func (s *Sequencer) Wait() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutdown: signal received", "signal", sig.String())

	s.mu.Lock()
	cancels := make([]func(), len(s.cancels))
	copy(cancels, s.cancels)
	s.mu.Unlock()

	for i := len(cancels) - 1; i >= 0; i-- {
		cancels[i]()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("shutdown: all tasks drained")
	case <-time.After(s.grace):
		slog.Warn("shutdown: grace period exceeded, exiting anyway")
	}
}
