package executor

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Event is a DOM-style event delivered to fragment listeners.
type Event struct {
	Type string  `js:"type" json:"type"`
	Key  string  `js:"key" json:"key,omitempty"`
	X    float64 `js:"clientX" json:"x,omitempty"`
	Y    float64 `js:"clientY" json:"y,omitempty"`
}

// PreventDefault exists so fragment handlers can call it; there is no default
// action to prevent.
func (e *Event) PreventDefault() {}

// Listener is a registered event handler. Key identifies the handler for
// removal (the JS function object) and must be comparable.
type Listener struct {
	ID  int
	Key any
	Fn  func(Event)
}

// Counts is a snapshot of what a Resources arena currently tracks.
type Counts struct {
	Frames    int
	Timers    int
	Listeners int
	Shortcuts int
	Releasers int
}

// Zero reports whether nothing is tracked.
func (c Counts) Zero() bool {
	return c == Counts{}
}

type frameRequest struct {
	id int
	fn func(ts float64)
}

// Resources is the arena owned by an ExecutionContext: animation frames,
// timers, listeners, keyboard shortcuts and arbitrary releasers. Everything
// acquired here is given back by ReleaseAll.
type Resources struct {
	mu        sync.Mutex
	nextID    int
	frames    []frameRequest
	timers    map[int]*time.Timer
	listeners map[string][]Listener
	shortcuts map[string]func()
	releasers []func() error
}

func NewResources() *Resources {
	return &Resources{
		timers:    make(map[int]*time.Timer),
		listeners: make(map[string][]Listener),
		shortcuts: make(map[string]func()),
	}
}

// newID must be called with mu held. IDs are shared by frames, timers and
// listeners and start at 1, so 0 never names a live handle.
func (r *Resources) newID() int {
	r.nextID++
	return r.nextID
}

// ---------- frames ----------

// RequestFrame registers a one-shot animation frame callback.
func (r *Resources) RequestFrame(fn func(ts float64)) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.newID()
	r.frames = append(r.frames, frameRequest{id: id, fn: fn})
	return id
}

// CancelFrame drops a pending frame callback. Unknown IDs are ignored.
func (r *Resources) CancelFrame(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, f := range r.frames {
		if f.id == id {
			r.frames = append(r.frames[:i], r.frames[i+1:]...)
			return
		}
	}
}

// PendingFrames returns the number of registered frame callbacks.
func (r *Resources) PendingFrames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// takeFrames removes and returns every pending frame callback in
// registration order.
func (r *Resources) takeFrames() []frameRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.frames
	r.frames = nil
	return out
}

// ---------- timers ----------

// startTimer arms a timer whose callback receives its own ID. Registration
// happens under the lock so the callback never observes a half-tracked timer.
func (r *Resources) startTimer(delay time.Duration, fire func(id int)) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.newID()
	r.timers[id] = time.AfterFunc(delay, func() { fire(id) })
	return id
}

// rearm resets a repeating timer if it is still tracked.
func (r *Resources) rearm(id int, delay time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[id]
	if !ok {
		return false
	}
	t.Reset(delay)
	return true
}

// timerLive reports whether id is still tracked.
func (r *Resources) timerLive(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[id]
	return ok
}

// forgetTimer untracks a fired one-shot timer.
func (r *Resources) forgetTimer(id int) {
	r.mu.Lock()
	delete(r.timers, id)
	r.mu.Unlock()
}

// ClearTimer stops and untracks a timer. Unknown IDs are ignored.
func (r *Resources) ClearTimer(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
}

// ---------- listeners ----------

// AddListener registers fn for event. Registering the same key twice for the
// same event is a no-op, matching addEventListener.
func (r *Resources) AddListener(event string, key any, fn func(Event)) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.listeners[event] {
		if l.Key == key {
			return l.ID
		}
	}
	id := r.newID()
	r.listeners[event] = append(r.listeners[event], Listener{ID: id, Key: key, Fn: fn})
	return id
}

// RemoveListener unregisters the listener registered under key.
func (r *Resources) RemoveListener(event string, key any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls := r.listeners[event]
	for i, l := range ls {
		if l.Key == key {
			r.listeners[event] = append(ls[:i], ls[i+1:]...)
			if len(r.listeners[event]) == 0 {
				delete(r.listeners, event)
			}
			return true
		}
	}
	return false
}

// Listeners returns a copy of the listeners for event.
func (r *Resources) Listeners(event string) []Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Listener(nil), r.listeners[event]...)
}

// ---------- shortcuts ----------

// BindShortcut binds a keyboard key, replacing any earlier binding.
func (r *Resources) BindShortcut(key string, fn func()) {
	r.mu.Lock()
	r.shortcuts[key] = fn
	r.mu.Unlock()
}

func (r *Resources) shortcut(key string) (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, ok := r.shortcuts[key]
	return fn, ok
}

// ---------- generic ----------

// Acquire registers a release function. Releasers run in reverse order of
// registration.
func (r *Resources) Acquire(release func() error) {
	r.mu.Lock()
	r.releasers = append(r.releasers, release)
	r.mu.Unlock()
}

// Counts reports what is currently tracked.
func (r *Resources) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ls := range r.listeners {
		n += len(ls)
	}
	return Counts{
		Frames:    len(r.frames),
		Timers:    len(r.timers),
		Listeners: n,
		Shortcuts: len(r.shortcuts),
		Releasers: len(r.releasers),
	}
}

// ReleaseAll releases everything in the arena and leaves it empty. It is
// best-effort: a failing or panicking releaser does not stop the others, and
// every failure is returned joined.
func (r *Resources) ReleaseAll() error {
	r.mu.Lock()
	releasers := r.releasers
	timers := r.timers
	r.releasers = nil
	r.frames = nil
	r.timers = make(map[int]*time.Timer)
	r.listeners = make(map[string][]Listener)
	r.shortcuts = make(map[string]func())
	r.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}

	var errs []error
	for i := len(releasers) - 1; i >= 0; i-- {
		if err := safeRelease(releasers[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func safeRelease(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("releaser panicked: %v", rec)
		}
	}()
	return fn()
}
