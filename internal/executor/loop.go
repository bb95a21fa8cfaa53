package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Loop is a single-goroutine event loop. Every job posted to it runs on the
// same goroutine, one at a time, which is what a JS runtime needs: fragment
// code, timers and frame callbacks never run concurrently.
//
// Auxiliary goroutines started with Go share the loop's lifetime and are
// waited for by Stop.
type Loop struct {
	logger *slog.Logger
	jobs   chan func()
	done   chan struct{}
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewLoop creates a stopped loop.
func NewLoop(logger *slog.Logger) *Loop {
	return &Loop{
		logger: logger,
		jobs:   make(chan func(), 256),
		done:   make(chan struct{}),
	}
}

// Start launches the loop goroutine. Calling it again does nothing.
func (l *Loop) Start() {
	l.startOnce.Do(func() {
		l.wg.Add(1)
		go l.run()
	})
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case fn := <-l.jobs:
			// Stop may have raced with the receive.
			select {
			case <-l.done:
				return
			default:
			}
			l.runJob(fn)
		}
	}
}

func (l *Loop) runJob(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			l.logger.Error("event loop job panicked", slog.Any("panic", rec))
		}
	}()
	fn()
}

// Post queues fn. It reports false when the loop has been stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.jobs <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return fmt.Errorf("waiting for event loop: %w", ctx.Err())
	}
}

// Go runs fn on its own goroutine until the loop stops. fn must return once
// done is closed.
func (l *Loop) Go(fn func(done <-chan struct{})) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn(l.done)
	}()
}

// Done is closed when the loop stops.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Stop ends the loop and waits for it and every auxiliary goroutine. A job
// that is running keeps running until it returns, so callers interrupt JS
// before stopping. Safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
}
