package service

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sakif/fragments/internal/apperror"
	"github.com/sakif/fragments/internal/dispatch"
	"github.com/sakif/fragments/internal/executor"
	"github.com/sakif/fragments/internal/executor/canvas"
	"github.com/sakif/fragments/internal/executor/markup"
)

func newRenderService(maxConcurrent int) *RenderService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := dispatch.New(logger, markup.New(logger), canvas.New(logger))
	return NewRenderService(d, RenderConfig{
		DefaultWidth:  32,
		DefaultHeight: 24,
		FrameInterval: 2 * time.Millisecond,
		MaxConcurrent: maxConcurrent,
	}, logger)
}

func TestRender_Snapshot(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newRenderService(2)

	r, err := s.Render(context.Background(), RenderRequest{Code: canvasCode, Options: executor.DefaultOptions()})
	require.NoError(t, err)
	require.True(t, r.Result.Success, "%+v", r.Result.Error)
	assert.Equal(t, "canvas", r.Result.Executor)
	assert.Equal(t, 32, r.Width)
	assert.Equal(t, 24, r.Height)

	img, err := png.Decode(bytes.NewReader(r.PNG))
	require.NoError(t, err)
	red, _, _, _ := img.At(5, 5).RGBA()
	assert.Equal(t, uint32(0xffff), red)
}

func TestRender_SettleLetsAnimationRun(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newRenderService(1)

	code := `
let n = 0;
function draw() {
  n++;
  if (n === 3) { ctx.fillStyle = "blue"; ctx.fillRect(0, 0, width, height); }
  requestAnimationFrame(draw);
}
requestAnimationFrame(draw);
`
	r, err := s.Render(context.Background(), RenderRequest{
		Code: code, Width: 8, Height: 8, Settle: 150 * time.Millisecond, Options: executor.DefaultOptions(),
	})
	require.NoError(t, err)
	require.True(t, r.Result.Success, "%+v", r.Result.Error)

	img, err := png.Decode(bytes.NewReader(r.PNG))
	require.NoError(t, err)
	_, _, blue, _ := img.At(1, 1).RGBA()
	assert.Equal(t, uint32(0xffff), blue)
}

func TestRender_FailureIsAResult(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newRenderService(1)

	r, err := s.Render(context.Background(), RenderRequest{
		Code: `ctx.fillRect(0, 0, 1, 1); nope();`, Options: executor.DefaultOptions(),
	})
	require.NoError(t, err)
	assert.False(t, r.Result.Success)
	assert.Equal(t, executor.CategoryRuntime, r.Result.Error.Category)
	assert.NotEmpty(t, r.PNG, "fallback art is still captured")
}

func TestRender_MarkupKeepsContainer(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newRenderService(1)

	r, err := s.Render(context.Background(), RenderRequest{
		Code: `<title>Quiet</title><p>still water</p>`, Options: executor.DefaultOptions(),
	})
	require.NoError(t, err)
	require.True(t, r.Result.Success)
	assert.Equal(t, "Quiet", r.Title)
	assert.Contains(t, r.HTML, "still water")
}

func TestRender_Invalid(t *testing.T) {
	s := newRenderService(1)
	tests := []struct {
		name string
		req  RenderRequest
	}{
		{"too wide", RenderRequest{Width: MaxRenderSize + 1, Height: 10}},
		{"only one side", RenderRequest{Width: 10}},
		{"negative settle", RenderRequest{Settle: -time.Second}},
		{"long settle", RenderRequest{Settle: MaxSettle + time.Second}},
		{"bad sandbox", RenderRequest{Options: executor.Options{SandboxLevel: "lenient"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Render(context.Background(), tt.req)
			assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)
		})
	}
}

func TestRender_BusyRendererIsUnavailable(t *testing.T) {
	s := newRenderService(1)
	require.NoError(t, s.slots.Acquire(context.Background(), 1))
	defer s.slots.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Render(ctx, RenderRequest{Code: canvasCode})
	assert.True(t, errors.Is(err, apperror.ErrUnavailable), "got %v", err)
}
