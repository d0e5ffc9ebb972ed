package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/padherd/internal/logger"
)

// StepFunc is one loop iteration. Returning false ends the loop.
type StepFunc func(ctx context.Context) bool

// Worker runs a StepFunc repeatedly on one goroutine that can be started
// again after it stops.
type Worker struct {
	name   string
	logger logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(name string, log logger.Logger) *Worker {
	return &Worker{name: name, logger: log}
}

// Start launches the loop unless it is already running.
func (w *Worker) Start(parent context.Context, step StepFunc) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.runningLocked() {
		return false
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	w.cancel, w.done = cancel, done

	go func() {
		defer close(done)
		defer cancel()

		w.logger.Info("worker started", logger.String("worker", w.name))
		for ctx.Err() == nil {
			if !step(ctx) {
				break
			}
		}
		w.logger.Info("worker stopped", logger.String("worker", w.name))
	}()

	return true
}

// Stop cancels the loop and blocks until it has exited. It must not be
// called from inside the step function.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runningLocked()
}

func (w *Worker) runningLocked() bool {
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Sleep waits for d or until ctx ends. It reports whether the full
// duration elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
