package surface

import (
	"image/color"
	"math"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// namedColors covers the CSS keywords fragments use in practice.
var namedColors = map[string]color.NRGBA{
	"transparent": {0, 0, 0, 0},
	"black":       {0, 0, 0, 255},
	"white":       {255, 255, 255, 255},
	"red":         {255, 0, 0, 255},
	"lime":        {0, 255, 0, 255},
	"green":       {0, 128, 0, 255},
	"blue":        {0, 0, 255, 255},
	"yellow":      {255, 255, 0, 255},
	"cyan":        {0, 255, 255, 255},
	"aqua":        {0, 255, 255, 255},
	"magenta":     {255, 0, 255, 255},
	"fuchsia":     {255, 0, 255, 255},
	"orange":      {255, 165, 0, 255},
	"purple":      {128, 0, 128, 255},
	"pink":        {255, 192, 203, 255},
	"gray":        {128, 128, 128, 255},
	"grey":        {128, 128, 128, 255},
	"silver":      {192, 192, 192, 255},
	"maroon":      {128, 0, 0, 255},
	"navy":        {0, 0, 128, 255},
	"teal":        {0, 128, 128, 255},
	"olive":       {128, 128, 0, 255},
	"gold":        {255, 215, 0, 255},
	"indigo":      {75, 0, 130, 255},
	"violet":      {238, 130, 238, 255},
	"coral":       {255, 127, 80, 255},
	"crimson":     {220, 20, 60, 255},
	"salmon":      {250, 128, 114, 255},
	"turquoise":   {64, 224, 208, 255},
	"skyblue":     {135, 206, 235, 255},
	"steelblue":   {70, 130, 180, 255},
	"darkblue":    {0, 0, 139, 255},
	"darkgray":    {169, 169, 169, 255},
	"darkgrey":    {169, 169, 169, 255},
	"lightgray":   {211, 211, 211, 255},
	"lightgrey":   {211, 211, 211, 255},
	"hotpink":     {255, 105, 180, 255},
}

// ParseColor parses a CSS color string: keywords, #rgb, #rgba, #rrggbb,
// #rrggbbaa, rgb()/rgba() and hsl()/hsla().
func ParseColor(s string) (color.NRGBA, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return color.NRGBA{}, false
	}
	if c, ok := namedColors[s]; ok {
		return c, true
	}

	switch {
	case strings.HasPrefix(s, "#"):
		return parseHex(s)
	case strings.HasPrefix(s, "rgb"):
		return parseRGB(s)
	case strings.HasPrefix(s, "hsl"):
		return parseHSL(s)
	}
	return color.NRGBA{}, false
}

func parseHex(s string) (color.NRGBA, bool) {
	var alpha uint8 = 255
	switch len(s) {
	case 5: // #rgba
		a, err := strconv.ParseUint(s[4:5], 16, 8)
		if err != nil {
			return color.NRGBA{}, false
		}
		alpha = uint8(a * 17)
		s = s[:4]
	case 9: // #rrggbbaa
		a, err := strconv.ParseUint(s[7:9], 16, 8)
		if err != nil {
			return color.NRGBA{}, false
		}
		alpha = uint8(a)
		s = s[:7]
	}

	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, false
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, true
}

// functionArgs splits "rgb(1, 2, 3)" or "rgb(1 2 3 / 50%)" into its arguments.
func functionArgs(s string) []string {
	open := strings.IndexByte(s, '(')
	end := strings.LastIndexByte(s, ')')
	if open < 0 || end <= open {
		return nil
	}
	inner := strings.NewReplacer(",", " ", "/", " ").Replace(s[open+1 : end])
	return strings.Fields(inner)
}

func parseChannel(arg string) (float64, bool) {
	if pct, ok := strings.CutSuffix(arg, "%"); ok {
		v, err := strconv.ParseFloat(pct, 64)
		if err != nil {
			return 0, false
		}
		return clamp(v/100*255, 0, 255), true
	}
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, false
	}
	return clamp(v, 0, 255), true
}

func parseAlpha(arg string) (uint8, bool) {
	if pct, ok := strings.CutSuffix(arg, "%"); ok {
		v, err := strconv.ParseFloat(pct, 64)
		if err != nil {
			return 0, false
		}
		return uint8(math.Round(clamp(v/100, 0, 1) * 255)), true
	}
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, false
	}
	return uint8(math.Round(clamp(v, 0, 1) * 255)), true
}

func parseRGB(s string) (color.NRGBA, bool) {
	args := functionArgs(s)
	if len(args) < 3 {
		return color.NRGBA{}, false
	}
	var ch [3]float64
	for i := range ch {
		v, ok := parseChannel(args[i])
		if !ok {
			return color.NRGBA{}, false
		}
		ch[i] = v
	}
	out := color.NRGBA{
		R: uint8(math.Round(ch[0])),
		G: uint8(math.Round(ch[1])),
		B: uint8(math.Round(ch[2])),
		A: 255,
	}
	if len(args) >= 4 {
		a, ok := parseAlpha(args[3])
		if !ok {
			return color.NRGBA{}, false
		}
		out.A = a
	}
	return out, true
}

func parseHSL(s string) (color.NRGBA, bool) {
	args := functionArgs(s)
	if len(args) < 3 {
		return color.NRGBA{}, false
	}
	h, err := strconv.ParseFloat(strings.TrimSuffix(args[0], "deg"), 64)
	if err != nil {
		return color.NRGBA{}, false
	}
	sat, err1 := strconv.ParseFloat(strings.TrimSuffix(args[1], "%"), 64)
	light, err2 := strconv.ParseFloat(strings.TrimSuffix(args[2], "%"), 64)
	if err1 != nil || err2 != nil {
		return color.NRGBA{}, false
	}

	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	c := colorful.Hsl(h, clamp(sat/100, 0, 1), clamp(light/100, 0, 1)).Clamped()
	r, g, b := c.RGB255()
	out := color.NRGBA{R: r, G: g, B: b, A: 255}
	if len(args) >= 4 {
		a, ok := parseAlpha(args[3])
		if !ok {
			return color.NRGBA{}, false
		}
		out.A = a
	}
	return out, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
