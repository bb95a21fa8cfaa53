package surface

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
)

// GL is a minimal WebGL shim. Clearing paints the raster; every other call is
// recorded so callers can tell a 3D scene actually issued work.
type GL struct {
	COLOR_BUFFER_BIT   int `js:"COLOR_BUFFER_BIT"`
	DEPTH_BUFFER_BIT   int `js:"DEPTH_BUFFER_BIT"`
	STENCIL_BUFFER_BIT int `js:"STENCIL_BUFFER_BIT"`
	DEPTH_TEST         int `js:"DEPTH_TEST"`
	BLEND              int `js:"BLEND"`
	CULL_FACE          int `js:"CULL_FACE"`
	TRIANGLES          int `js:"TRIANGLES"`

	DrawingBufferWidth  int `js:"drawingBufferWidth"`
	DrawingBufferHeight int `js:"drawingBufferHeight"`

	canvas *Canvas
	clear  color.NRGBA

	mu  sync.Mutex
	ops []string
}

func newGL(c *Canvas) *GL {
	return &GL{
		COLOR_BUFFER_BIT:   0x4000,
		DEPTH_BUFFER_BIT:   0x0100,
		STENCIL_BUFFER_BIT: 0x0400,
		DEPTH_TEST:         0x0B71,
		BLEND:              0x0BE2,
		CULL_FACE:          0x0B44,
		TRIANGLES:          0x0004,
		canvas:             c,
	}
}

func (gl *GL) record(op string) {
	gl.mu.Lock()
	gl.ops = append(gl.ops, op)
	gl.mu.Unlock()
}

func (gl *GL) syncSize() {
	gl.DrawingBufferWidth, gl.DrawingBufferHeight = gl.canvas.Size()
}

func (gl *GL) ClearColor(r, g, b, a float64) {
	ch := func(v float64) uint8 { return uint8(math.Round(clamp(v, 0, 1) * 255)) }
	gl.clear = color.NRGBA{R: ch(r), G: ch(g), B: ch(b), A: ch(a)}
	gl.record("clearColor")
}

func (gl *GL) Clear(mask int) {
	gl.record("clear")
	if mask&gl.COLOR_BUFFER_BIT == 0 {
		return
	}
	gl.canvas.withPixels(func(img *image.RGBA) {
		draw.Draw(img, img.Bounds(), image.NewUniform(gl.clear), image.Point{}, draw.Src)
	})
}

func (gl *GL) Viewport(_, _, _, _ int) { gl.record("viewport") }
func (gl *GL) Enable(_ int) { gl.record("enable") }
func (gl *GL) Disable(_ int) { gl.record("disable") }
func (gl *GL) DrawArrays(_, _, _ int) { gl.record("drawArrays") }
func (gl *GL) DrawElements(_, _, _, _ int) { gl.record("drawElements") }
func (gl *GL) GetExtension(_ string) any { return nil }
func (gl *GL) GetParameter(_ int) any { return nil }
func (gl *GL) IsContextLost() bool { return false }

// Ops returns the recorded call names in order.
func (gl *GL) Ops() []string {
	gl.mu.Lock()
	defer gl.mu.Unlock()
	return append([]string(nil), gl.ops...)
}

func (gl *GL) resetOps() {
	gl.mu.Lock()
	gl.ops = nil
	gl.mu.Unlock()
}
