package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sakif/fragments/internal/apperror"
	"github.com/sakif/fragments/internal/dispatch"
	"github.com/sakif/fragments/internal/executor"
	"github.com/sakif/fragments/internal/surface"
)

const (
	MaxRenderSize = 2048
	MaxSettle     = 5 * time.Second
)

// RenderRequest describes one headless rendering.
type RenderRequest struct {
	Code   string
	Width  int
	Height int
	// Settle lets an animating fragment run this long before the snapshot.
	Settle  time.Duration
	Options executor.Options
}

// Rendering is the outcome of a headless run: the execution result plus
// what the fragment left on its surface.
type Rendering struct {
	Result *executor.ExecutionResult
	PNG    []byte
	Width  int
	Height int
	Title  string
	HTML   string
}

// Renderer is what the gallery needs from the engine.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (*Rendering, error)
}

type RenderConfig struct {
	DefaultWidth  int
	DefaultHeight int
	FrameInterval time.Duration
	// MaxConcurrent bounds the renders running at once.
	MaxConcurrent int
}

// RenderService runs fragments on a fresh surface per request and snapshots
// the result. Each render owns its context from start to cleanup.
type RenderService struct {
	dispatcher *dispatch.Dispatcher
	cfg        RenderConfig
	slots      *semaphore.Weighted
	logger     *slog.Logger
}

var _ Renderer = (*RenderService)(nil)

func NewRenderService(d *dispatch.Dispatcher, cfg RenderConfig, logger *slog.Logger) *RenderService {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.DefaultWidth <= 0 || cfg.DefaultHeight <= 0 {
		cfg.DefaultWidth, cfg.DefaultHeight = surface.DefaultWidth, surface.DefaultHeight
	}
	return &RenderService{
		dispatcher: d,
		cfg:        cfg,
		slots:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:     logger.With(slog.String("component", "render")),
	}
}

// Dispatcher exposes the registry for classification and descriptors.
func (s *RenderService) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// Render waits for a free slot, runs the fragment and returns the snapshot.
// A failed execution is not an error: the result carries it and the PNG
// shows whatever was drawn, fallback art included. Errors are reserved for
// invalid requests and for a context that ends before a slot frees up.
func (s *RenderService) Render(ctx context.Context, req RenderRequest) (*Rendering, error) {
	if req.Width == 0 && req.Height == 0 {
		req.Width, req.Height = s.cfg.DefaultWidth, s.cfg.DefaultHeight
	}
	if req.Width < 1 || req.Width > MaxRenderSize || req.Height < 1 || req.Height > MaxRenderSize {
		return nil, apperror.ValidationFailed("width",
			fmt.Sprintf("width and height must be between 1 and %d", MaxRenderSize))
	}
	if req.Settle < 0 || req.Settle > MaxSettle {
		return nil, apperror.ValidationFailed("settleMs",
			fmt.Sprintf("settle must be between 0 and %s", MaxSettle))
	}
	if err := req.Options.Validate(); err != nil {
		return nil, apperror.ValidationFailed("options", err.Error())
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, apperror.Unavailable("renderer", err)
	}
	defer s.slots.Release(1)

	canvas := surface.New(req.Width, req.Height)
	container := surface.NewContainer()
	ec := executor.NewContext(canvas,
		executor.WithContainer(container),
		executor.WithLogger(s.logger),
		executor.WithFrameInterval(s.cfg.FrameInterval))
	defer s.dispatcher.Cleanup(ec)

	res := s.dispatcher.RunAttempt(ctx, req.Code, ec, req.Options)
	if res.Success && req.Settle > 0 && ec.Live() {
		s.settle(ctx, req.Settle)
	}
	if loop := ec.Loop(); loop != nil {
		// Let the last queued frame finish before reading pixels.
		_ = loop.Do(ctx, func() {})
	}

	png, err := canvas.PNG()
	if err != nil {
		return nil, fmt.Errorf("rendering snapshot: %w", err)
	}
	w, h := canvas.Size()
	s.logger.Debug("rendered fragment",
		slog.String("executor", res.Executor),
		slog.Bool("success", res.Success),
		slog.Int64("frames", ec.FramesDelivered()))

	return &Rendering{
		Result: res,
		PNG:    png,
		Width:  w,
		Height: h,
		Title:  container.Title(),
		HTML:   container.HTML(),
	}, nil
}

func (s *RenderService) settle(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
