// Package surface implements the rendering surfaces that executed fragments draw on.
//
// A Canvas is a headless raster (an *image.RGBA guarded by a mutex) that exposes
// the subset of the browser canvas API fragments actually use: a 2D context,
// a recording WebGL shim, dimensions and a PNG encoder.
//
// OWNERSHIP:
// A Canvas is exclusively owned by at most one live execution context at a time.
// Acquire/Release enforce that rule: a second owner is rejected, never queued.
package surface

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"sync"
)

// ErrBound is returned by Acquire when another owner already holds the canvas.
var ErrBound = errors.New("surface: canvas is bound to another execution context")

// Default dimensions used when a caller passes a non-positive size.
const (
	DefaultWidth  = 800
	DefaultHeight = 600
	MaxDimension  = 4096
)

// Canvas is a headless raster rendering surface.
type Canvas struct {
	mu     sync.Mutex
	img    *image.RGBA
	locked bool
	webgl  bool
	owner  string

	ctx2d *Context2D
	gl    *GL
}

// Option configures a Canvas at construction time.
type Option func(*Canvas)

// WithoutWebGL creates a canvas whose getContext("webgl") returns null,
// the way a browser without GPU support behaves.
func WithoutWebGL() Option {
	return func(c *Canvas) { c.webgl = false }
}

// New creates a transparent canvas of the given size.
func New(width, height int, opts ...Option) *Canvas {
	width, height = clampSize(width, height)
	c := &Canvas{
		img:   image.NewRGBA(image.Rect(0, 0, width, height)),
		webgl: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx2d = newContext2D(c)
	c.gl = newGL(c)
	return c
}

func clampSize(width, height int) (int, int) {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return min(width, MaxDimension), min(height, MaxDimension)
}

// Size returns the current pixel dimensions.
func (c *Canvas) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

// Resize changes the backing store dimensions, clearing its content like the
// browser does on width/height assignment. It reports false when the size is
// locked (fullscreen) and the request was ignored.
func (c *Canvas) Resize(width, height int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked {
		return false
	}
	width, height = clampSize(width, height)
	c.img = image.NewRGBA(image.Rect(0, 0, width, height))
	return true
}

// Lock resizes the canvas to the given viewport and freezes its dimensions
// until Unlock. Fragment code can no longer resize it.
func (c *Canvas) Lock(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	width, height = clampSize(width, height)
	if b := c.img.Bounds(); b.Dx() != width || b.Dy() != height {
		c.img = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	c.locked = true
}

// Unlock releases a dimension lock taken by Lock.
func (c *Canvas) Unlock() {
	c.mu.Lock()
	c.locked = false
	c.mu.Unlock()
}

// Locked reports whether the dimensions are frozen.
func (c *Canvas) Locked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked
}

// WebGL reports whether the canvas can hand out a WebGL context.
func (c *Canvas) WebGL() bool {
	return c.webgl
}

// Acquire binds the canvas to owner. Re-acquiring by the same owner is a no-op.
func (c *Canvas) Acquire(owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owner != "" && c.owner != owner {
		return fmt.Errorf("%w (owner %s)", ErrBound, c.owner)
	}
	c.owner = owner
	return nil
}

// Release unbinds owner. Releasing a canvas held by someone else does nothing.
func (c *Canvas) Release(owner string) {
	c.mu.Lock()
	if c.owner == owner {
		c.owner = ""
	}
	c.mu.Unlock()
}

// Owner returns the ID of the context currently bound to the canvas, or "".
func (c *Canvas) Owner() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

// Context2D returns the canvas' 2D rendering context. Like the browser, every
// call returns the same context.
func (c *Canvas) Context2D() *Context2D {
	return c.ctx2d
}

// GL returns the WebGL shim, or nil when the canvas has no WebGL support.
func (c *Canvas) GL() *GL {
	if !c.webgl {
		return nil
	}
	c.gl.syncSize()
	return c.gl
}

// Clear erases every pixel and resets the 2D context state.
func (c *Canvas) Clear() {
	c.mu.Lock()
	draw.Draw(c.img, c.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
	c.mu.Unlock()
	c.ctx2d.reset()
	c.gl.resetOps()
}

// At returns the pixel at (x, y).
func (c *Canvas) At(x, y int) color.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.img.RGBAAt(x, y)
}

// Snapshot returns a copy of the current pixel buffer.
func (c *Canvas) Snapshot() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := image.NewRGBA(c.img.Bounds())
	copy(cp.Pix, c.img.Pix)
	return cp
}

// EncodePNG writes the current pixels as a PNG.
func (c *Canvas) EncodePNG(w io.Writer) error {
	if err := png.Encode(w, c.Snapshot()); err != nil {
		return fmt.Errorf("surface: encoding png: %w", err)
	}
	return nil
}

// PNG returns the current pixels as PNG bytes.
func (c *Canvas) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DataURL mirrors HTMLCanvasElement.toDataURL for PNG output.
func (c *Canvas) DataURL() (string, error) {
	b, err := c.PNG()
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b), nil
}

// withPixels runs fn with the backing image while holding the canvas lock.
func (c *Canvas) withPixels(fn func(img *image.RGBA)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.img)
}
