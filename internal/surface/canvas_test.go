package surface

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsAndClamp(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{name: "explicit size", w: 64, h: 32, wantW: 64, wantH: 32},
		{name: "zero falls back to defaults", w: 0, h: -5, wantW: DefaultWidth, wantH: DefaultHeight},
		{name: "oversized is clamped", w: MaxDimension + 10, h: 10, wantW: MaxDimension, wantH: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := New(tt.w, tt.h).Size()
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestCanvas_LockPreventsResize(t *testing.T) {
	c := New(10, 10)
	c.Lock(40, 30)

	assert.True(t, c.Locked())
	assert.False(t, c.Resize(100, 100), "resize must be refused while locked")
	w, h := c.Size()
	assert.Equal(t, 40, w)
	assert.Equal(t, 30, h)

	c.Unlock()
	assert.True(t, c.Resize(100, 50))
	w, h = c.Size()
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)
}

func TestCanvas_AcquireIsExclusive(t *testing.T) {
	c := New(10, 10)

	require.NoError(t, c.Acquire("a"))
	require.NoError(t, c.Acquire("a"), "re-acquire by the same owner is allowed")
	assert.ErrorIs(t, c.Acquire("b"), ErrBound)

	c.Release("b") // not the owner, ignored
	assert.Equal(t, "a", c.Owner())

	c.Release("a")
	assert.NoError(t, c.Acquire("b"))
}

func TestContext2D_FillRectCoversCanvas(t *testing.T) {
	c := New(20, 10)
	ctx := c.Context2D()
	ctx.FillStyle = "#ff8800"
	ctx.FillRect(0, 0, 20, 10)

	want := color.RGBA{R: 0xff, G: 0x88, B: 0x00, A: 0xff}
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			if got := c.At(x, y); got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestContext2D_TransformedFillRect(t *testing.T) {
	c := New(20, 20)
	ctx := c.Context2D()
	ctx.FillStyle = "blue"
	ctx.Translate(10, 10)
	ctx.Rotate(math.Pi / 4)
	ctx.FillRect(-3, -3, 6, 6)

	center := c.At(10, 10)
	assert.GreaterOrEqual(t, center.B, uint8(250), "center of the rotated square")
	assert.Equal(t, uint8(0), center.R)
	assert.Equal(t, color.RGBA{}, c.At(1, 1), "corner stays untouched")
}

func TestContext2D_ArcFill(t *testing.T) {
	c := New(40, 40)
	ctx := c.Context2D()
	ctx.FillStyle = "rgb(0, 255, 0)"
	ctx.BeginPath()
	ctx.Arc(20, 20, 10, 0, 2*math.Pi, false)
	ctx.Fill()

	assert.GreaterOrEqual(t, c.At(20, 20).G, uint8(250))
	assert.Equal(t, uint8(0), c.At(2, 2).A)
}

func TestContext2D_StrokeDrawsOnlyTheOutline(t *testing.T) {
	c := New(40, 40)
	ctx := c.Context2D()
	ctx.StrokeStyle = "red"
	ctx.LineWidth = 4
	ctx.StrokeRect(10, 10, 20, 20)

	assert.GreaterOrEqual(t, c.At(10, 20).R, uint8(250), "left edge")
	assert.Equal(t, uint8(0), c.At(20, 20).A, "interior")
}

func TestContext2D_SaveRestore(t *testing.T) {
	ctx := New(10, 10).Context2D()
	ctx.FillStyle = "red"
	ctx.Translate(5, 5)
	ctx.Save()
	ctx.FillStyle = "blue"
	ctx.Scale(2, 2)
	ctx.Restore()

	assert.Equal(t, "red", ctx.FillStyle)
	assert.Equal(t, matrix{a: 1, d: 1, e: 5, f: 5}, ctx.m)

	ctx.Restore() // empty stack is a no-op
	assert.Equal(t, "red", ctx.FillStyle)
}

func TestContext2D_GlobalAlpha(t *testing.T) {
	c := New(4, 4)
	ctx := c.Context2D()
	ctx.GlobalAlpha = 0.5
	ctx.FillStyle = "white"
	ctx.FillRect(0, 0, 4, 4)

	got := c.At(0, 0)
	assert.InDelta(t, 128, int(got.A), 1)
}

func TestContext2D_LinearGradient(t *testing.T) {
	c := New(100, 1)
	ctx := c.Context2D()
	g := ctx.CreateLinearGradient(0, 0, 100, 0)
	g.AddColorStop(0, "black")
	g.AddColorStop(1, "white")
	ctx.FillStyle = g
	ctx.FillRect(0, 0, 100, 1)

	left, right := c.At(0, 0), c.At(99, 0)
	assert.Less(t, left.R, uint8(10))
	assert.Greater(t, right.R, uint8(245))
	mid := c.At(50, 0)
	assert.InDelta(t, 128, int(mid.R), 10)
}

func TestContext2D_ImageDataRoundTrip(t *testing.T) {
	c := New(4, 4)
	ctx := c.Context2D()
	data := ctx.CreateImageData(2, 2)
	for i := 0; i < len(data.Data); i += 4 {
		data.Data[i], data.Data[i+3] = 200, 255
	}
	ctx.PutImageData(data, 1, 1)

	got := ctx.GetImageData(0, 0, 4, 4)
	assert.Equal(t, 4, got.Width)
	assert.Equal(t, uint8(0), got.Data[3], "pixel (0,0) untouched")
	o := (1*4 + 1) * 4
	assert.Equal(t, []uint8{200, 0, 0, 255}, got.Data[o:o+4])
}

func TestContext2D_ImageDataSizeIsBounded(t *testing.T) {
	ctx := New(32, 16).Context2D()

	tests := []struct {
		name         string
		data         *ImageData
		wantW, wantH int
	}{
		{"create clamps each side", ctx.CreateImageData(MaxDimension*10, 3), MaxDimension, 3},
		{"create clamps negatives", ctx.CreateImageData(-5, 2), 0, 2},
		{"get is no larger than the surface", ctx.GetImageData(0, 0, 14000, 14000), 32, 16},
		{"get with negative size is empty", ctx.GetImageData(0, 0, -1, 4), 0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantW, tt.data.Width)
			assert.Equal(t, tt.wantH, tt.data.Height)
			assert.Len(t, tt.data.Data, tt.wantW*tt.wantH*4)
		})
	}
}

func TestContext2D_PutImageDataTrustsOnlyTheBuffer(t *testing.T) {
	c := New(4, 4)
	ctx := c.Context2D()
	data := &ImageData{Width: 2, Height: math.MaxInt32, Data: []uint8{9, 0, 0, 255, 9, 0, 0, 255}}

	ctx.PutImageData(data, 0, 0)
	assert.Equal(t, color.RGBA{R: 9, A: 255}, c.At(1, 0))
	assert.Equal(t, color.RGBA{}, c.At(0, 1), "no rows beyond the buffer")
}

func TestContext2D_MeasureText(t *testing.T) {
	ctx := New(10, 10).Context2D()
	assert.Equal(t, float64(7*5), ctx.MeasureText("hello").Width)
}

func TestClearResetsPixelsAndState(t *testing.T) {
	c := New(5, 5)
	ctx := c.Context2D()
	ctx.FillStyle = "red"
	ctx.FillRect(0, 0, 5, 5)
	ctx.Translate(3, 3)

	c.Clear()

	assert.Equal(t, color.RGBA{}, c.At(2, 2))
	assert.Equal(t, "#000000", ctx.FillStyle)
	assert.Equal(t, identity(), ctx.m)
}

func TestGL_ClearPaintsRaster(t *testing.T) {
	c := New(8, 8)
	gl := c.GL()
	require.NotNil(t, gl)
	assert.Equal(t, 8, gl.DrawingBufferWidth)

	gl.ClearColor(0, 0, 1, 1)
	gl.Clear(gl.DEPTH_BUFFER_BIT)
	assert.Equal(t, color.RGBA{}, c.At(0, 0), "depth-only clear leaves color alone")

	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	assert.Equal(t, color.RGBA{B: 255, A: 255}, c.At(7, 7))
	assert.Equal(t, []string{"clearColor", "clear", "clear"}, gl.Ops())
}

func TestGL_UnavailableWithoutWebGL(t *testing.T) {
	c := New(8, 8, WithoutWebGL())
	assert.False(t, c.WebGL())
	assert.Nil(t, c.GL())
}

func TestEncodePNG(t *testing.T) {
	c := New(3, 2)
	c.Context2D().FillStyle = "lime"
	c.Context2D().FillRect(0, 0, 3, 2)

	b, err := c.PNG()
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())

	url, err := c.DataURL()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
}

func TestPaintFallback_Deterministic(t *testing.T) {
	a, b := New(64, 48), New(64, 48)
	PaintFallback(a, "fragment-1")
	PaintFallback(b, "fragment-1")

	pa, err := a.PNG()
	require.NoError(t, err)
	pb, err := b.PNG()
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
	assert.Equal(t, uint8(255), a.At(0, 0).A, "background is opaque")
}
