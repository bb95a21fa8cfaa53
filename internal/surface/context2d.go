package surface

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// Context2D is the canvas 2D rendering context exposed to fragment code.
//
// Exported fields carry `js` tags and become the JS properties of the context
// (ctx.fillStyle, ctx.lineWidth, ...). Exported methods become JS methods with
// their first letter lowered (FillRect -> fillRect).
//
// A Context2D is confined to the goroutine running the fragment's event loop;
// only pixel access goes through the canvas lock.
type Context2D struct {
	FillStyle                any     `js:"fillStyle"`
	StrokeStyle              any     `js:"strokeStyle"`
	LineWidth                float64 `js:"lineWidth"`
	GlobalAlpha              float64 `js:"globalAlpha"`
	Font                     string  `js:"font"`
	TextAlign                string  `js:"textAlign"`
	TextBaseline             string  `js:"textBaseline"`
	LineCap                  string  `js:"lineCap"`
	LineJoin                 string  `js:"lineJoin"`
	GlobalCompositeOperation string  `js:"globalCompositeOperation"`
	ShadowBlur               float64 `js:"shadowBlur"`
	ShadowColor              string  `js:"shadowColor"`

	canvas *Canvas
	m      matrix
	stack  []drawState
	path   path
	raster *vector.Rasterizer
}

// drawState is what save() pushes and restore() pops.
type drawState struct {
	fillStyle, strokeStyle any
	lineWidth, globalAlpha float64
	font, textAlign        string
	textBaseline           string
	m                      matrix
}

func newContext2D(c *Canvas) *Context2D {
	ctx := &Context2D{canvas: c}
	ctx.reset()
	return ctx
}

func (ctx *Context2D) reset() {
	ctx.FillStyle = "#000000"
	ctx.StrokeStyle = "#000000"
	ctx.LineWidth = 1
	ctx.GlobalAlpha = 1
	ctx.Font = "10px sans-serif"
	ctx.TextAlign = "start"
	ctx.TextBaseline = "alphabetic"
	ctx.LineCap = "butt"
	ctx.LineJoin = "miter"
	ctx.GlobalCompositeOperation = "source-over"
	ctx.ShadowBlur = 0
	ctx.ShadowColor = "rgba(0, 0, 0, 0)"
	ctx.m = identity()
	ctx.stack = ctx.stack[:0]
	ctx.path = path{}
}

// ---------- state ----------

func (ctx *Context2D) Save() {
	ctx.stack = append(ctx.stack, drawState{
		fillStyle:    ctx.FillStyle,
		strokeStyle:  ctx.StrokeStyle,
		lineWidth:    ctx.LineWidth,
		globalAlpha:  ctx.GlobalAlpha,
		font:         ctx.Font,
		textAlign:    ctx.TextAlign,
		textBaseline: ctx.TextBaseline,
		m:            ctx.m,
	})
}

func (ctx *Context2D) Restore() {
	if len(ctx.stack) == 0 {
		return
	}
	s := ctx.stack[len(ctx.stack)-1]
	ctx.stack = ctx.stack[:len(ctx.stack)-1]
	ctx.FillStyle, ctx.StrokeStyle = s.fillStyle, s.strokeStyle
	ctx.LineWidth, ctx.GlobalAlpha = s.lineWidth, s.globalAlpha
	ctx.Font, ctx.TextAlign, ctx.TextBaseline = s.font, s.textAlign, s.textBaseline
	ctx.m = s.m
}

// ---------- transforms ----------

func (ctx *Context2D) Translate(x, y float64) {
	ctx.m = ctx.m.mul(matrix{a: 1, d: 1, e: x, f: y})
}

func (ctx *Context2D) Scale(x, y float64) {
	ctx.m = ctx.m.mul(matrix{a: x, d: y})
}

func (ctx *Context2D) Rotate(angle float64) {
	sin, cos := math.Sincos(angle)
	ctx.m = ctx.m.mul(matrix{a: cos, b: sin, c: -sin, d: cos})
}

func (ctx *Context2D) Transform(a, b, c, d, e, f float64) {
	ctx.m = ctx.m.mul(matrix{a, b, c, d, e, f})
}

func (ctx *Context2D) SetTransform(a, b, c, d, e, f float64) {
	ctx.m = matrix{a, b, c, d, e, f}
}

func (ctx *Context2D) ResetTransform() {
	ctx.m = identity()
}

// ---------- rectangles ----------

// FillRect paints a rectangle. Axis-aligned rectangles on whole pixels take
// the draw.Draw path; everything else is rasterized.
func (ctx *Context2D) FillRect(x, y, w, h float64) {
	src := ctx.paint(ctx.FillStyle)
	if r, ok := ctx.deviceRect(x, y, w, h); ok {
		ctx.canvas.withPixels(func(img *image.RGBA) {
			draw.Draw(img, r, src, r.Min, draw.Over)
		})
		return
	}
	var p path
	ctx.rectPath(&p, x, y, w, h)
	ctx.fillPath(&p, src)
}

func (ctx *Context2D) StrokeRect(x, y, w, h float64) {
	var p path
	ctx.rectPath(&p, x, y, w, h)
	ctx.strokePath(&p, ctx.paint(ctx.StrokeStyle))
}

func (ctx *Context2D) ClearRect(x, y, w, h float64) {
	x0, y0 := ctx.m.apply(x, y)
	x1, y1 := ctx.m.apply(x+w, y+h)
	r := image.Rect(
		int(math.Floor(math.Min(x0, x1))), int(math.Floor(math.Min(y0, y1))),
		int(math.Ceil(math.Max(x0, x1))), int(math.Ceil(math.Max(y0, y1))),
	)
	ctx.canvas.withPixels(func(img *image.RGBA) {
		draw.Draw(img, r.Intersect(img.Bounds()), image.Transparent, image.Point{}, draw.Src)
	})
}

// deviceRect reports the pixel rectangle covered by a user-space rect when the
// transform keeps it axis-aligned and on integer coordinates.
func (ctx *Context2D) deviceRect(x, y, w, h float64) (image.Rectangle, bool) {
	if ctx.m.b != 0 || ctx.m.c != 0 {
		return image.Rectangle{}, false
	}
	x0, y0 := ctx.m.apply(x, y)
	x1, y1 := ctx.m.apply(x+w, y+h)
	for _, v := range [...]float64{x0, y0, x1, y1} {
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return image.Rectangle{}, false
		}
	}
	return image.Rect(int(x0), int(y0), int(x1), int(y1)), true
}

func (ctx *Context2D) rectPath(p *path, x, y, w, h float64) {
	p.moveTo(ctx.m.apply(x, y))
	p.lineTo(ctx.m.apply(x+w, y))
	p.lineTo(ctx.m.apply(x+w, y+h))
	p.lineTo(ctx.m.apply(x, y+h))
	p.close()
}

// ---------- paths ----------

func (ctx *Context2D) BeginPath() {
	ctx.path = path{}
}

func (ctx *Context2D) ClosePath() {
	ctx.path.close()
}

func (ctx *Context2D) MoveTo(x, y float64) {
	ctx.path.moveTo(ctx.m.apply(x, y))
}

func (ctx *Context2D) LineTo(x, y float64) {
	ctx.path.lineTo(ctx.m.apply(x, y))
}

func (ctx *Context2D) Rect(x, y, w, h float64) {
	ctx.rectPath(&ctx.path, x, y, w, h)
	ctx.path.moveTo(ctx.m.apply(x, y))
}

func (ctx *Context2D) Arc(x, y, r, start, end float64, anticlockwise bool) {
	ctx.Ellipse(x, y, r, r, 0, start, end, anticlockwise)
}

func (ctx *Context2D) Ellipse(x, y, rx, ry, rotation, start, end float64, anticlockwise bool) {
	if rx < 0 || ry < 0 {
		return
	}
	sweep := arcSweep(start, end, anticlockwise)
	steps := int(math.Ceil(math.Abs(sweep) / (math.Pi / 32)))
	steps = max(steps, 1)
	sinR, cosR := math.Sincos(rotation)
	for i := 0; i <= steps; i++ {
		t := start + sweep*float64(i)/float64(steps)
		sin, cos := math.Sincos(t)
		ex, ey := rx*cos, ry*sin
		px := x + ex*cosR - ey*sinR
		py := y + ex*sinR + ey*cosR
		dx, dy := ctx.m.apply(px, py)
		if i == 0 && len(ctx.path.current()) == 0 {
			ctx.path.moveTo(dx, dy)
			continue
		}
		ctx.path.lineTo(dx, dy)
	}
}

// arcSweep follows the browser's normalization: a sweep never exceeds a full
// turn and its sign follows the requested direction.
func arcSweep(start, end float64, anticlockwise bool) float64 {
	const tau = 2 * math.Pi
	sweep := end - start
	if !anticlockwise {
		if sweep >= tau {
			return tau
		}
		for sweep < 0 {
			sweep += tau
		}
		return sweep
	}
	if -sweep >= tau {
		return -tau
	}
	for sweep > 0 {
		sweep -= tau
	}
	return sweep
}

// ArcTo approximates the rounded corner with a straight edge to (x1, y1).
func (ctx *Context2D) ArcTo(x1, y1, _, _, _ float64) {
	ctx.LineTo(x1, y1)
}

func (ctx *Context2D) QuadraticCurveTo(cpx, cpy, x, y float64) {
	x0, y0, ok := ctx.path.last()
	if !ok {
		ctx.MoveTo(cpx, cpy)
		x0, y0, _ = ctx.path.last()
	}
	cx, cy := ctx.m.apply(cpx, cpy)
	ex, ey := ctx.m.apply(x, y)
	const steps = 16
	for i := 1; i <= steps; i++ {
		t := float64(i) / steps
		u := 1 - t
		ctx.path.lineTo(
			u*u*x0+2*u*t*cx+t*t*ex,
			u*u*y0+2*u*t*cy+t*t*ey,
		)
	}
}

func (ctx *Context2D) BezierCurveTo(cp1x, cp1y, cp2x, cp2y, x, y float64) {
	x0, y0, ok := ctx.path.last()
	if !ok {
		ctx.MoveTo(cp1x, cp1y)
		x0, y0, _ = ctx.path.last()
	}
	c1x, c1y := ctx.m.apply(cp1x, cp1y)
	c2x, c2y := ctx.m.apply(cp2x, cp2y)
	ex, ey := ctx.m.apply(x, y)
	const steps = 24
	for i := 1; i <= steps; i++ {
		t := float64(i) / steps
		u := 1 - t
		ctx.path.lineTo(
			u*u*u*x0+3*u*u*t*c1x+3*u*t*t*c2x+t*t*t*ex,
			u*u*u*y0+3*u*u*t*c1y+3*u*t*t*c2y+t*t*t*ey,
		)
	}
}

func (ctx *Context2D) Fill() {
	ctx.fillPath(&ctx.path, ctx.paint(ctx.FillStyle))
}

func (ctx *Context2D) Stroke() {
	ctx.strokePath(&ctx.path, ctx.paint(ctx.StrokeStyle))
}

func (ctx *Context2D) fillPath(p *path, src image.Image) {
	ctx.canvas.withPixels(func(img *image.RGBA) {
		z := ctx.rasterizer(img.Bounds())
		drew := false
		for _, sp := range p.subpaths {
			if len(sp.pts) < 3 {
				continue
			}
			z.MoveTo(float32(sp.pts[0].x), float32(sp.pts[0].y))
			for _, pt := range sp.pts[1:] {
				z.LineTo(float32(pt.x), float32(pt.y))
			}
			z.ClosePath()
			drew = true
		}
		if drew {
			z.Draw(img, img.Bounds(), src, image.Point{})
		}
	})
}

// strokePath rasterizes one quad per segment; butt caps, no joins.
func (ctx *Context2D) strokePath(p *path, src image.Image) {
	half := ctx.LineWidth * math.Sqrt(math.Abs(ctx.m.det())) / 2
	if half <= 0 || math.IsNaN(half) {
		return
	}
	half = math.Max(half, 0.5)

	ctx.canvas.withPixels(func(img *image.RGBA) {
		z := ctx.rasterizer(img.Bounds())
		drew := false
		segment := func(a, b point) {
			dx, dy := b.x-a.x, b.y-a.y
			l := math.Hypot(dx, dy)
			if l == 0 {
				return
			}
			nx, ny := -dy/l*half, dx/l*half
			z.MoveTo(float32(a.x+nx), float32(a.y+ny))
			z.LineTo(float32(b.x+nx), float32(b.y+ny))
			z.LineTo(float32(b.x-nx), float32(b.y-ny))
			z.LineTo(float32(a.x-nx), float32(a.y-ny))
			z.ClosePath()
			drew = true
		}
		for _, sp := range p.subpaths {
			for i := 1; i < len(sp.pts); i++ {
				segment(sp.pts[i-1], sp.pts[i])
			}
			if sp.closed && len(sp.pts) > 2 {
				segment(sp.pts[len(sp.pts)-1], sp.pts[0])
			}
		}
		if drew {
			z.Draw(img, img.Bounds(), src, image.Point{})
		}
	})
}

func (ctx *Context2D) rasterizer(b image.Rectangle) *vector.Rasterizer {
	if ctx.raster == nil {
		ctx.raster = vector.NewRasterizer(b.Dx(), b.Dy())
	} else {
		ctx.raster.Reset(b.Dx(), b.Dy())
	}
	ctx.raster.DrawOp = draw.Over
	return ctx.raster
}

// ---------- text ----------

// TextMetrics is the result of measureText.
type TextMetrics struct {
	Width float64 `js:"width"`
}

func (ctx *Context2D) MeasureText(text string) *TextMetrics {
	return &TextMetrics{Width: float64(font.MeasureString(basicfont.Face7x13, text).Round())}
}

// FillText draws text with a fixed 7x13 bitmap face. The font property is
// kept for fragments that read it back but never changes the face.
func (ctx *Context2D) FillText(text string, x, y float64) {
	ctx.drawText(text, x, y, ctx.paint(ctx.FillStyle))
}

func (ctx *Context2D) StrokeText(text string, x, y float64) {
	ctx.drawText(text, x, y, ctx.paint(ctx.StrokeStyle))
}

func (ctx *Context2D) drawText(text string, x, y float64, src image.Image) {
	face := basicfont.Face7x13
	dx, dy := ctx.m.apply(x, y)
	width := float64(font.MeasureString(face, text).Round())
	switch strings.ToLower(ctx.TextAlign) {
	case "center":
		dx -= width / 2
	case "right", "end":
		dx -= width
	}
	switch strings.ToLower(ctx.TextBaseline) {
	case "top", "hanging":
		dy += float64(face.Ascent)
	case "middle":
		dy += float64(face.Ascent) / 2
	case "bottom":
		dy -= float64(face.Descent)
	}
	ctx.canvas.withPixels(func(img *image.RGBA) {
		d := font.Drawer{
			Dst:  img,
			Src:  src,
			Face: face,
			Dot:  fixed.P(int(math.Round(dx)), int(math.Round(dy))),
		}
		d.DrawString(text)
	})
}

// ---------- gradients ----------

func (ctx *Context2D) CreateLinearGradient(x0, y0, x1, y1 float64) *Gradient {
	return &Gradient{radial: false, x0: x0, y0: y0, x1: x1, y1: y1}
}

func (ctx *Context2D) CreateRadialGradient(x0, y0, r0, x1, y1, r1 float64) *Gradient {
	return &Gradient{radial: true, x0: x0, y0: y0, r0: r0, x1: x1, y1: y1, r1: r1}
}

// ---------- pixels ----------

// ImageData mirrors the browser type: non-premultiplied RGBA rows.
type ImageData struct {
	Width  int     `js:"width"`
	Height int     `js:"height"`
	Data   []uint8 `js:"data"`
}

// CreateImageData returns a blank buffer. Each side is clamped to
// [0, MaxDimension].
func (ctx *Context2D) CreateImageData(w, h int) *ImageData {
	w, h = imageDataSize(w, h, MaxDimension, MaxDimension)
	return &ImageData{Width: w, Height: h, Data: make([]uint8, w*h*4)}
}

// GetImageData copies a region of the surface. The region is no larger than
// the surface; pixels outside it read as transparent.
func (ctx *Context2D) GetImageData(x, y, w, h int) *ImageData {
	cw, ch := ctx.canvas.Size()
	w, h = imageDataSize(w, h, cw, ch)
	out := &ImageData{Width: w, Height: h, Data: make([]uint8, w*h*4)}
	ctx.canvas.withPixels(func(img *image.RGBA) {
		for j := 0; j < out.Height; j++ {
			for i := 0; i < out.Width; i++ {
				px := image.Pt(x+i, y+j)
				if !px.In(img.Bounds()) {
					continue
				}
				c := color.NRGBAModel.Convert(img.RGBAAt(px.X, px.Y)).(color.NRGBA)
				o := (j*out.Width + i) * 4
				out.Data[o], out.Data[o+1], out.Data[o+2], out.Data[o+3] = c.R, c.G, c.B, c.A
			}
		}
	})
	return out
}

// PutImageData writes data at (x, y). Rows past the end of data.Data are
// ignored.
func (ctx *Context2D) PutImageData(data *ImageData, x, y int) {
	if data == nil {
		return
	}
	w, h := imageDataSize(data.Width, data.Height, MaxDimension, MaxDimension)
	if w == 0 {
		return
	}
	h = min(h, len(data.Data)/4/w)
	ctx.canvas.withPixels(func(img *image.RGBA) {
		for j := 0; j < h; j++ {
			for i := 0; i < w; i++ {
				px := image.Pt(x+i, y+j)
				if !px.In(img.Bounds()) {
					continue
				}
				o := (j*w + i) * 4
				img.Set(px.X, px.Y, color.NRGBA{data.Data[o], data.Data[o+1], data.Data[o+2], data.Data[o+3]})
			}
		}
	})
}

// imageDataSize clamps a fragment-supplied size so buffers stay bounded.
func imageDataSize(w, h, maxW, maxH int) (int, int) {
	return min(max(w, 0), maxW), min(max(h, 0), maxH)
}

// ---------- paint ----------

// paint resolves a fillStyle/strokeStyle value into a source image with the
// global alpha applied. Unparseable styles paint black.
func (ctx *Context2D) paint(style any) image.Image {
	alpha := clamp(ctx.GlobalAlpha, 0, 1)
	switch s := style.(type) {
	case *Gradient:
		inv, ok := ctx.m.invert()
		if !ok {
			return image.Transparent
		}
		return &gradientImage{g: s, inv: inv, alpha: alpha}
	case string:
		c, ok := ParseColor(s)
		if !ok {
			c = color.NRGBA{A: 255}
		}
		c.A = uint8(math.Round(float64(c.A) * alpha))
		return image.NewUniform(c)
	}
	return image.NewUniform(color.NRGBA{A: uint8(math.Round(255 * alpha))})
}

// ---------- geometry ----------

// matrix is a 2D affine transform in canvas order:
// x' = a*x + c*y + e, y' = b*x + d*y + f.
type matrix struct{ a, b, c, d, e, f float64 }

func identity() matrix { return matrix{a: 1, d: 1} }

// mul returns m·n, so n is applied to points first.
func (m matrix) mul(n matrix) matrix {
	return matrix{
		a: m.a*n.a + m.c*n.b,
		b: m.b*n.a + m.d*n.b,
		c: m.a*n.c + m.c*n.d,
		d: m.b*n.c + m.d*n.d,
		e: m.a*n.e + m.c*n.f + m.e,
		f: m.b*n.e + m.d*n.f + m.f,
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m.a*x + m.c*y + m.e, m.b*x + m.d*y + m.f
}

func (m matrix) det() float64 { return m.a*m.d - m.b*m.c }

func (m matrix) invert() (matrix, bool) {
	det := m.det()
	if det == 0 {
		return identity(), false
	}
	return matrix{
		a: m.d / det,
		b: -m.b / det,
		c: -m.c / det,
		d: m.a / det,
		e: (m.c*m.f - m.d*m.e) / det,
		f: (m.b*m.e - m.a*m.f) / det,
	}, true
}

type point struct{ x, y float64 }

type subpath struct {
	pts    []point
	closed bool
}

// path holds flattened subpaths in device space.
type path struct {
	subpaths []subpath
}

func (p *path) current() []point {
	if len(p.subpaths) == 0 {
		return nil
	}
	return p.subpaths[len(p.subpaths)-1].pts
}

func (p *path) last() (float64, float64, bool) {
	pts := p.current()
	if len(pts) == 0 {
		return 0, 0, false
	}
	pt := pts[len(pts)-1]
	return pt.x, pt.y, true
}

func (p *path) moveTo(x, y float64) {
	p.subpaths = append(p.subpaths, subpath{pts: []point{{x, y}}})
}

func (p *path) lineTo(x, y float64) {
	if len(p.subpaths) == 0 || p.subpaths[len(p.subpaths)-1].closed {
		start := point{x, y}
		if n := len(p.subpaths); n > 0 {
			start = p.subpaths[n-1].pts[0]
		}
		p.subpaths = append(p.subpaths, subpath{pts: []point{start}})
		if start == (point{x, y}) {
			return
		}
	}
	sp := &p.subpaths[len(p.subpaths)-1]
	sp.pts = append(sp.pts, point{x, y})
}

func (p *path) close() {
	if len(p.subpaths) == 0 {
		return
	}
	p.subpaths[len(p.subpaths)-1].closed = true
}
