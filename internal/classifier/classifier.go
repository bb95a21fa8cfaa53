// Package classifier guesses which rendering technology a fragment targets and
// flags risky constructs in it.
//
// Classification is by priority, not by marker count: three/webgl > p5 >
// canvas > svg > css > html > unknown. A hybrid fragment (a <canvas> styled
// with @keyframes, say) gets the highest-priority technology it qualifies
// for, while every marker found is still listed in the detected features.
//
// Everything here is a pure function of the source text.
package classifier

import (
	"regexp"
	"strings"

	"github.com/sakif/fragments/internal/executor"
)

type marker struct {
	name    string
	kind    string
	tech    executor.Technology
	weight  float64
	support executor.SupportLevel
	re      *regexp.Regexp
}

// markers are matched against the lower-cased source, in this order.
var markers = []marker{
	{"three-namespace", "library", executor.Three, 0.9, executor.SupportPartial, regexp.MustCompile(`\bthree\.`)},
	{"scene", "3d-component", executor.Three, 0.6, executor.SupportPartial, regexp.MustCompile(`scene`)},
	{"camera", "3d-component", executor.Three, 0.6, executor.SupportPartial, regexp.MustCompile(`camera`)},
	{"renderer", "3d-component", executor.Three, 0.6, executor.SupportPartial, regexp.MustCompile(`renderer`)},
	{"mesh", "3d-component", executor.Three, 0.6, executor.SupportPartial, regexp.MustCompile(`mesh`)},
	{"geometry", "3d-component", executor.Three, 0.6, executor.SupportPartial, regexp.MustCompile(`geometry`)},
	{"material", "3d-component", executor.Three, 0.6, executor.SupportPartial, regexp.MustCompile(`material`)},
	{"webgl-context", "context", executor.WebGL, 0.9, executor.SupportPartial, regexp.MustCompile(`getcontext\(\s*['"](webgl2?|experimental-webgl)['"]`)},
	{"p5-create-canvas", "library", executor.P5, 0.8, executor.SupportPartial, regexp.MustCompile(`createcanvas\s*\(`)},
	{"p5-lifecycle", "library", executor.P5, 0.7, executor.SupportPartial, regexp.MustCompile(`function\s+(setup|draw)\s*\(`)},
	{"2d-context", "context", executor.Canvas, 0.9, executor.SupportFull, regexp.MustCompile(`getcontext\(\s*['"]2d['"]`)},
	{"canvas-element", "element", executor.Canvas, 0.75, executor.SupportFull, regexp.MustCompile(`<canvas\b`)},
	{"2d-drawing", "api", executor.Canvas, 0.6, executor.SupportFull, regexp.MustCompile(`\.(fillrect|strokerect|clearrect|beginpath|arc|lineto|moveto|filltext|drawimage)\s*\(`)},
	{"svg-element", "element", executor.SVG, 0.85, executor.SupportFull, regexp.MustCompile(`<svg\b`)},
	{"css-keyframes", "style", executor.CSS, 0.8, executor.SupportPartial, regexp.MustCompile(`@keyframes\b`)},
	{"style-block", "style", executor.CSS, 0.65, executor.SupportPartial, regexp.MustCompile(`<style\b`)},
	{"html-markup", "element", executor.HTML, 0.6, executor.SupportFull, regexp.MustCompile(`<(html|body|div|span|p|h[1-6]|section|article|main|button|ul|ol|li|img|a|pre|table)\b`)},
}

var threeComponents = map[string]bool{
	"scene": true, "camera": true, "renderer": true, "mesh": true, "geometry": true, "material": true,
}

// Analyze classifies code. It never panics and performs no I/O.
func Analyze(code string) (a executor.Analysis) {
	defer func() {
		if recover() != nil {
			a = executor.Analysis{Technology: executor.Unknown}
		}
	}()

	if strings.TrimSpace(code) == "" {
		return executor.Analysis{Technology: executor.Unknown}
	}

	lower := strings.ToLower(code)
	found := make(map[string]bool)
	for _, m := range markers {
		if m.re.MatchString(lower) {
			found[m.name] = true
			a.Features = append(a.Features, executor.Feature{
				Name:       m.name,
				Kind:       m.kind,
				Confidence: m.weight,
				Support:    m.support,
			})
		}
	}

	a.Technology, a.Confidence = decide(found)
	if found["three-namespace"] {
		a.Dependencies = append(a.Dependencies, "three")
	}
	if a.Technology == executor.P5 {
		a.Dependencies = append(a.Dependencies, "p5")
	}
	a.Risks = SecurityRisks(code)
	return a
}

// decide applies the priority order. Confidence grows with each corroborating
// marker; it is a ranking signal, not a probability.
func decide(found map[string]bool) (executor.Technology, float64) {
	components := 0
	for name := range threeComponents {
		if found[name] {
			components++
		}
	}

	canvasMarker := found["2d-context"] || found["canvas-element"] || found["2d-drawing"]

	switch {
	case found["three-namespace"] && components >= 2:
		return executor.Three, capAt(0.85+0.03*float64(components-2), 0.98)
	case found["webgl-context"]:
		return executor.WebGL, capAt(0.85+0.02*float64(components), 0.95)
	case found["three-namespace"]:
		return executor.Three, 0.55 + 0.1*float64(components)
	case found["p5-create-canvas"] && found["p5-lifecycle"]:
		return executor.P5, 0.9
	case canvasMarker:
		conf := 0.6
		switch {
		case found["2d-context"]:
			conf = 0.85
		case found["canvas-element"]:
			conf = 0.75
		}
		if found["2d-drawing"] {
			conf += 0.05
		}
		if found["canvas-element"] && found["2d-context"] {
			conf += 0.05
		}
		return executor.Canvas, capAt(conf, 0.95)
	case found["svg-element"]:
		return executor.SVG, 0.85
	case found["css-keyframes"]:
		conf := 0.75
		if found["style-block"] {
			conf += 0.05
		}
		return executor.CSS, conf
	case found["style-block"] && !found["html-markup"]:
		return executor.CSS, 0.6
	case found["html-markup"] || found["style-block"]:
		conf := 0.6
		if found["style-block"] {
			conf += 0.05
		}
		return executor.HTML, conf
	}
	return executor.Unknown, 0.2
}

func capAt(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	return v
}
