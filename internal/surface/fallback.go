package surface

import (
	"fmt"
	"hash/fnv"
	"math"
)

// PaintFallback replaces the canvas content with a quiet placeholder pattern so
// a failed fragment never leaves a blank surface. The pattern is derived from
// seed, so the same fragment always gets the same placeholder.
func PaintFallback(c *Canvas, seed string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	sum := h.Sum64()

	w, ht := c.Size()
	fw, fh := float64(w), float64(ht)
	hue := float64(sum % 360)

	c.Clear()
	ctx := c.Context2D()

	bg := ctx.CreateLinearGradient(0, 0, fw, fh)
	bg.AddColorStop(0, fmt.Sprintf("hsl(%.0f, 30%%, 12%%)", hue))
	bg.AddColorStop(1, fmt.Sprintf("hsl(%.0f, 30%%, 6%%)", math.Mod(hue+40, 360)))
	ctx.FillStyle = bg
	ctx.FillRect(0, 0, fw, fh)

	cx, cy := fw/2, fh/2
	rings := 3 + int((sum>>8)%4)
	base := math.Min(fw, fh) / float64(2*(rings+1))
	ctx.LineWidth = 2
	for i := 1; i <= rings; i++ {
		ctx.StrokeStyle = fmt.Sprintf("hsla(%.0f, 60%%, 60%%, %.2f)", math.Mod(hue+float64(i)*25, 360), 0.9-float64(i)*0.12)
		ctx.BeginPath()
		ctx.Arc(cx, cy, base*float64(i), 0, 2*math.Pi, false)
		ctx.Stroke()
	}

	ctx.FillStyle = fmt.Sprintf("hsl(%.0f, 70%%, 70%%)", hue)
	ctx.BeginPath()
	ctx.Arc(cx, cy, math.Max(base/3, 2), 0, 2*math.Pi, false)
	ctx.Fill()
}
