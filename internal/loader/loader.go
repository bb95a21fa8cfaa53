// Package loader fetches the 3D library from a list of mirrors, once per
// process.
//
// The first successful load is kept for the life of the process as a
// compiled *goja.Program, which is safe to share: every execution evaluates
// it into its own runtime. Concurrent callers of EnsureLoaded share one
// in-flight load.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"golang.org/x/sync/singleflight"
)

// Config controls where and how the library is fetched.
type Config struct {
	// Sources are tried in order; the first is the primary.
	Sources         []string
	PrimaryTimeout  time.Duration
	FallbackTimeout time.Duration
	// Settle is waited after a download before the structural check.
	Settle  time.Duration
	Backoff time.Duration
	// Global is the object the library defines, Required its members that
	// must exist for the load to count.
	Global   string
	Required []string
	MaxBytes int64
}

// DefaultSources are mirrors of the same three.js r128 UMD build, primary
// first. Later releases no longer ship build/three.min.js.
var DefaultSources = []string{
	"https://cdn.jsdelivr.net/npm/three@0.128.0/build/three.min.js",
	"https://unpkg.com/three@0.128.0/build/three.min.js",
	"https://cdnjs.cloudflare.com/ajax/libs/three.js/r128/three.min.js",
}

// DefaultConfig returns the three.js configuration.
func DefaultConfig() Config {
	return Config{
		Sources:         DefaultSources,
		PrimaryTimeout:  10 * time.Second,
		FallbackTimeout: 5 * time.Second,
		Settle:          100 * time.Millisecond,
		Backoff:         250 * time.Millisecond,
		Global:          "THREE",
		Required:        []string{"Scene", "PerspectiveCamera", "WebGLRenderer"},
		MaxBytes:        8 << 20,
	}
}

// Library is a loaded, verified library.
type Library struct {
	Program     *goja.Program
	Global      string
	Source      string
	SourceIndex int
	Bytes       int
	LoadedAt    time.Time
}

// Attempt records one failed source.
type Attempt struct {
	Source string
	Err    error
}

// ExhaustedError is returned when every source failed.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Source, a.Err)
	}
	return "loader: every mirror failed: " + strings.Join(parts, "; ")
}

// Loader loads the library at most once per process.
type Loader struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	env    *Environment

	group   singleflight.Group
	mu      sync.RWMutex
	lib     *Library
	fetches atomic.Int64
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// New creates a loader.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Loader {
	l := &Loader{
		cfg:    cfg,
		client: &http.Client{},
		logger: logger.With(slog.String("component", "loader")),
		env:    newEnvironment(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Environment exposes the loader tags.
func (l *Loader) Environment() *Environment { return l.env }

// Loaded returns the library if it has been loaded.
func (l *Loader) Loaded() *Library {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lib
}

// Fetches returns how many downloads were started.
func (l *Loader) Fetches() int64 { return l.fetches.Load() }

// EnsureLoaded returns the library, loading it if needed.
func (l *Loader) EnsureLoaded(ctx context.Context) (*Library, error) {
	if lib := l.Loaded(); lib != nil {
		return lib, nil
	}
	ch := l.group.DoChan("load", func() (any, error) {
		if lib := l.Loaded(); lib != nil {
			return lib, nil
		}
		// The shared load must not die with the first caller's context.
		lib, err := l.load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.lib = lib
		l.mu.Unlock()
		return lib, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Library), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("loader: waiting for library: %w", ctx.Err())
	}
}

func (l *Loader) load(ctx context.Context) (*Library, error) {
	if stale := l.env.removeStale(); stale > 0 {
		l.logger.Debug("removed stale loader tags", slog.Int("count", stale))
	}

	var attempts []Attempt
	for i, src := range l.cfg.Sources {
		if i > 0 && l.cfg.Backoff > 0 {
			if err := sleep(ctx, l.cfg.Backoff); err != nil {
				return nil, err
			}
		}

		tag := l.env.add(src)
		start := time.Now()
		lib, err := l.try(ctx, i, src)
		if err != nil {
			l.env.remove(tag)
			attempts = append(attempts, Attempt{Source: src, Err: err})
			l.logger.Warn("mirror failed", slog.Int("index", i), slog.String("source", src), slog.Any("error", err))
			continue
		}
		l.env.markLoaded(tag)
		l.logger.Info("library loaded",
			slog.Int("index", i),
			slog.String("source", src),
			slog.Int("bytes", lib.Bytes),
			slog.Duration("elapsed", time.Since(start)))
		return lib, nil
	}
	return nil, &ExhaustedError{Attempts: attempts}
}

func (l *Loader) try(ctx context.Context, index int, src string) (*Library, error) {
	timeout := l.cfg.FallbackTimeout
	if index == 0 {
		timeout = l.cfg.PrimaryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := l.fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	if err := sleep(ctx, l.cfg.Settle); err != nil {
		return nil, err
	}

	prog, err := goja.Compile(src, body, false)
	if err != nil {
		return nil, fmt.Errorf("compiling: %w", err)
	}
	if err := l.verify(ctx, prog); err != nil {
		return nil, err
	}
	return &Library{
		Program:     prog,
		Global:      l.cfg.Global,
		Source:      src,
		SourceIndex: index,
		Bytes:       len(body),
		LoadedAt:    time.Now(),
	}, nil
}

func (l *Loader) fetch(ctx context.Context, src string) (string, error) {
	l.fetches.Add(1)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching: unexpected status %s", resp.Status)
	}
	limit := l.cfg.MaxBytes
	if limit <= 0 {
		limit = 8 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("library larger than %d bytes", limit)
	}
	return string(data), nil
}

var errMissingGlobal = errors.New("library did not define its global")

// verify evaluates the program in a scratch runtime and checks the global
// and its required members.
func (l *Loader) verify(ctx context.Context, prog *goja.Program) error {
	vm := goja.New()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt("library evaluation timed out") })
	defer stop()

	if _, err := vm.RunProgram(prog); err != nil {
		return fmt.Errorf("evaluating: %w", err)
	}
	global := vm.Get(l.cfg.Global)
	if global == nil || goja.IsUndefined(global) || goja.IsNull(global) {
		return fmt.Errorf("%w %s", errMissingGlobal, l.cfg.Global)
	}
	obj := global.ToObject(vm)
	for _, member := range l.cfg.Required {
		if v := obj.Get(member); v == nil || goja.IsUndefined(v) {
			return fmt.Errorf("library is missing %s.%s", l.cfg.Global, member)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
