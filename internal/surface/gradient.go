package surface

import (
	"image"
	"image/color"
	"math"
	"sort"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Gradient is a CanvasGradient. Coordinates are in the user space that was
// current when the gradient is used to paint.
type Gradient struct {
	radial     bool
	x0, y0, r0 float64
	x1, y1, r1 float64
	stops      []colorStop
}

type colorStop struct {
	offset float64
	c      color.NRGBA
}

// AddColorStop inserts a stop. Invalid offsets or colors are ignored.
func (g *Gradient) AddColorStop(offset float64, css string) {
	if offset < 0 || offset > 1 || math.IsNaN(offset) {
		return
	}
	c, ok := ParseColor(css)
	if !ok {
		return
	}
	i := sort.Search(len(g.stops), func(i int) bool { return g.stops[i].offset > offset })
	g.stops = append(g.stops, colorStop{})
	copy(g.stops[i+1:], g.stops[i:])
	g.stops[i] = colorStop{offset: offset, c: c}
}

// param maps a user-space point to the gradient parameter t.
// Radial gradients are treated as concentric around the end circle's center.
func (g *Gradient) param(x, y float64) float64 {
	if g.radial {
		span := g.r1 - g.r0
		if span == 0 {
			return 1
		}
		return (math.Hypot(x-g.x1, y-g.y1) - g.r0) / span
	}
	dx, dy := g.x1-g.x0, g.y1-g.y0
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return 0
	}
	return ((x-g.x0)*dx + (y-g.y0)*dy) / l2
}

func (g *Gradient) colorAt(t float64) color.NRGBA {
	switch {
	case len(g.stops) == 0:
		return color.NRGBA{}
	case t <= g.stops[0].offset:
		return g.stops[0].c
	case t >= g.stops[len(g.stops)-1].offset:
		return g.stops[len(g.stops)-1].c
	}
	i := sort.Search(len(g.stops), func(i int) bool { return g.stops[i].offset >= t })
	a, b := g.stops[i-1], g.stops[i]
	span := b.offset - a.offset
	if span == 0 {
		return b.c
	}
	f := (t - a.offset) / span

	ca, _ := colorful.MakeColor(opaque(a.c))
	cb, _ := colorful.MakeColor(opaque(b.c))
	r, gg, bb := ca.BlendRgb(cb, f).Clamped().RGB255()
	alpha := float64(a.c.A) + (float64(b.c.A)-float64(a.c.A))*f
	return color.NRGBA{R: r, G: gg, B: bb, A: uint8(math.Round(alpha))}
}

func opaque(c color.NRGBA) color.NRGBA {
	c.A = 255
	return c
}

// gradientImage adapts a Gradient to image.Image for the rasterizer.
type gradientImage struct {
	g     *Gradient
	inv   matrix
	alpha float64
}

func (gi *gradientImage) ColorModel() color.Model { return color.NRGBAModel }

func (gi *gradientImage) Bounds() image.Rectangle {
	return image.Rect(-1e9, -1e9, 1e9, 1e9)
}

func (gi *gradientImage) At(x, y int) color.Color {
	ux, uy := gi.inv.apply(float64(x)+0.5, float64(y)+0.5)
	c := gi.g.colorAt(gi.g.param(ux, uy))
	c.A = uint8(math.Round(float64(c.A) * gi.alpha))
	return c
}
