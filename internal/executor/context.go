package executor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/fragments/internal/surface"
)

// DefaultFrameInterval is roughly 60 frames per second.
const DefaultFrameInterval = 16 * time.Millisecond

// Viewport is the reported size of the surface.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Context is the live binding between one execution attempt and a rendering
// surface plus everything the attempt acquired.
//
// LIFECYCLE:
//
//	NewContext -> Begin (by an executor) -> ... frames/timers/listeners ... -> Release
//
// Begin fails with ErrContextBusy while a previous attempt is live, and fails
// with surface.ErrBound while another context owns the canvas. Release is
// idempotent and after it the context may be used for a new attempt.
type Context struct {
	ID         string
	Surface    *surface.Canvas
	Container  *surface.Container
	Viewport   Viewport
	Fullscreen bool

	logger        *slog.Logger
	frameInterval time.Duration

	mu       sync.Mutex
	executor string
	loop     *Loop
	res      *Resources

	frames atomic.Int64
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithContainer attaches a DOM container.
func WithContainer(c *surface.Container) ContextOption {
	return func(ec *Context) { ec.Container = c }
}

// WithFullscreen marks the context fullscreen; the surface is locked to the
// viewport for the duration of each attempt.
func WithFullscreen(width, height int) ContextOption {
	return func(ec *Context) {
		ec.Fullscreen = true
		ec.Viewport = Viewport{Width: width, Height: height}
	}
}

// WithLogger sets the logger used by the context's event loop.
func WithLogger(l *slog.Logger) ContextOption {
	return func(ec *Context) { ec.logger = l }
}

// WithFrameInterval sets the animation frame interval.
func WithFrameInterval(d time.Duration) ContextOption {
	return func(ec *Context) {
		if d > 0 {
			ec.frameInterval = d
		}
	}
}

// NewContext creates an unbound context for canvas.
func NewContext(canvas *surface.Canvas, opts ...ContextOption) *Context {
	w, h := canvas.Size()
	ec := &Context{
		ID:            uuid.NewString(),
		Surface:       canvas,
		Viewport:      Viewport{Width: w, Height: h},
		logger:        slog.Default(),
		frameInterval: DefaultFrameInterval,
		res:           NewResources(),
	}
	for _, opt := range opts {
		opt(ec)
	}
	return ec
}

// Begin binds the context to an attempt run by executor. It resets the
// resource arena, locks the surface when fullscreen and starts the event
// loop and frame pump.
func (ec *Context) Begin(executor string) error {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	if ec.executor != "" {
		return fmt.Errorf("%w (bound to %s)", ErrContextBusy, ec.executor)
	}
	if err := ec.Surface.Acquire(ec.ID); err != nil {
		return err
	}
	if err := ec.res.ReleaseAll(); err != nil {
		ec.logger.Warn("resetting resources", slog.String("context", ec.ID), slog.Any("error", err))
	}
	if ec.Fullscreen {
		ec.Surface.Lock(ec.Viewport.Width, ec.Viewport.Height)
	}

	ec.frames.Store(0)
	ec.loop = NewLoop(ec.logger)
	ec.loop.Start()
	loop := ec.loop
	loop.Go(func(done <-chan struct{}) { ec.pumpFrames(loop, done) })

	ec.executor = executor
	return nil
}

// Executor returns the name of the executor bound to the context, or "".
func (ec *Context) Executor() string {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.executor
}

// Live reports whether an attempt is bound.
func (ec *Context) Live() bool {
	return ec.Executor() != ""
}

// Loop returns the event loop of the live attempt, or nil.
func (ec *Context) Loop() *Loop {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.loop
}

// Resources returns the context's resource arena.
func (ec *Context) Resources() *Resources {
	return ec.res
}

// FramesDelivered returns how many frame batches ran in the current attempt.
func (ec *Context) FramesDelivered() int64 {
	return ec.frames.Load()
}

// SetTimer schedules fn on the event loop after delay, repeatedly when repeat
// is set. The timer is tracked until it fires (one-shot), is cleared, or the
// context is released.
func (ec *Context) SetTimer(delay time.Duration, repeat bool, fn func()) int {
	loop := ec.Loop()
	if loop == nil {
		return 0
	}
	delay = max(delay, 0)
	return ec.res.startTimer(delay, func(id int) {
		loop.Post(func() {
			if !ec.res.timerLive(id) {
				return
			}
			if !repeat {
				ec.res.forgetTimer(id)
			}
			fn()
			if repeat {
				ec.res.rearm(id, max(delay, time.Millisecond))
			}
		})
	})
}

// ClearTimer cancels a timer created by SetTimer.
func (ec *Context) ClearTimer(id int) {
	ec.res.ClearTimer(id)
}

// DispatchEvent delivers ev to every listener registered for ev.Type on the
// event loop. It returns the number of listeners scheduled.
func (ec *Context) DispatchEvent(ev Event) int {
	loop := ec.Loop()
	if loop == nil {
		return 0
	}
	ls := ec.res.Listeners(ev.Type)
	for _, l := range ls {
		fn := l.Fn
		loop.Post(func() { fn(ev) })
	}
	return len(ls)
}

// PressKey triggers the shortcut bound to key, then dispatches a keydown
// event. It reports whether a shortcut was bound.
func (ec *Context) PressKey(key string) bool {
	loop := ec.Loop()
	if loop == nil {
		return false
	}
	fn, ok := ec.res.shortcut(key)
	if ok {
		loop.Post(fn)
	}
	ec.DispatchEvent(Event{Type: "keydown", Key: key})
	return ok
}

// pumpFrames delivers pending animation frames at the frame interval. At most
// one frame batch is queued on the loop at a time.
func (ec *Context) pumpFrames(loop *Loop, done <-chan struct{}) {
	ticker := time.NewTicker(ec.frameInterval)
	defer ticker.Stop()

	start := time.Now()
	var queued atomic.Bool
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			if ec.res.PendingFrames() == 0 || !queued.CompareAndSwap(false, true) {
				continue
			}
			ts := Millis(now.Sub(start))
			ok := loop.Post(func() {
				defer queued.Store(false)
				ec.runFrames(ts)
			})
			if !ok {
				return
			}
		}
	}
}

func (ec *Context) runFrames(ts float64) {
	frames := ec.res.takeFrames()
	if len(frames) == 0 {
		return
	}
	ec.frames.Add(1)
	for _, f := range frames {
		f.fn(ts)
	}
}

// Release tears the attempt down. The arena is emptied first (timers, frames,
// listeners, shortcuts, then releasers, which is where executors register
// their interrupt), then the loop goroutines stop. Dimensions are unlocked,
// the surface is optionally cleared and finally unbound. Safe to call
// repeatedly and on a context that never began.
func (ec *Context) Release(clearSurface bool) error {
	ec.mu.Lock()
	loop := ec.loop
	ec.loop = nil
	ec.mu.Unlock()

	err := ec.res.ReleaseAll()
	if loop != nil {
		loop.Stop()
		// A job that was running when the arena was emptied may have
		// registered more resources before it returned.
		err = errors.Join(err, ec.res.ReleaseAll())
	}

	if ec.Surface.Owner() == ec.ID {
		if ec.Fullscreen {
			ec.Surface.Unlock()
		}
		if clearSurface {
			ec.Surface.Clear()
			if ec.Container != nil {
				ec.Container.Reset()
			}
		}
		ec.Surface.Release(ec.ID)
	}

	ec.mu.Lock()
	ec.executor = ""
	ec.mu.Unlock()
	return err
}
