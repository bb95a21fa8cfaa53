package loader

import (
	"sync"
	"time"

	"github.com/rs/xid"
)

// TagState is the lifecycle state of a loader tag.
type TagState string

const (
	TagLoading TagState = "loading"
	TagLoaded  TagState = "loaded"
)

// Tag marks one source the loader inserted, the way a script element marks
// a download in a page.
type Tag struct {
	ID      string
	Source  string
	State   TagState
	AddedAt time.Time
}

// Environment is the set of tags the loader currently holds.
type Environment struct {
	mu   sync.Mutex
	tags []Tag
}

func newEnvironment() *Environment {
	return &Environment{}
}

// Tags returns a copy of the current tags in insertion order.
func (e *Environment) Tags() []Tag {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Tag(nil), e.tags...)
}

func (e *Environment) add(source string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := xid.New().String()
	e.tags = append(e.tags, Tag{ID: id, Source: source, State: TagLoading, AddedAt: time.Now()})
	return id
}

func (e *Environment) remove(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, t := range e.tags {
		if t.ID == id {
			e.tags = append(e.tags[:i], e.tags[i+1:]...)
			return
		}
	}
}

func (e *Environment) markLoaded(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.tags {
		if e.tags[i].ID == id {
			e.tags[i].State = TagLoaded
			return
		}
	}
}

// removeStale drops tags left in the loading state by an earlier load.
func (e *Environment) removeStale() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.tags[:0]
	for _, t := range e.tags {
		if t.State != TagLoading {
			kept = append(kept, t)
		}
	}
	removed := len(e.tags) - len(kept)
	e.tags = kept
	return removed
}
