// Package markup runs HTML, SVG and CSS fragments, and is the fallback for
// fragments nothing else recognizes.
//
// The source is parsed as an HTML document. Style sheets, the title and the
// sanitized body go to the context's container; inline scripts run in order
// in one shared function scope, with a small document binding that knows the
// elements of the parsed page.
package markup

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/sakif/fragments/internal/executor"
	"github.com/sakif/fragments/internal/executor/harness"
	"github.com/sakif/fragments/internal/surface"
)

const (
	Name            = "markup"
	Version         = "1.0.0"
	DefaultTimeout  = 5 * time.Second
	ConfidenceFloor = 0.5
)

// Executor runs markup fragments.
type Executor struct {
	*harness.Base
}

// Option configures the executor.
type Option = harness.Option

var (
	WithTimeout         = harness.WithTimeout
	WithConfidenceFloor = harness.WithConfidenceFloor
)

// New creates a markup executor.
func New(logger *slog.Logger, opts ...Option) *Executor {
	cfg := harness.NewConfig(DefaultTimeout, ConfidenceFloor, opts...)
	desc := executor.Descriptor{
		Name:         Name,
		Version:      Version,
		Technologies: []executor.Technology{executor.HTML, executor.SVG, executor.CSS, executor.Unknown},
	}
	return &Executor{Base: harness.New(desc, variant{}, cfg, logger)}
}

type variant struct{}

var (
	scriptTag      = regexp.MustCompile(`(?i)<script\b[^>]*>`)
	externalScript = regexp.MustCompile(`(?i)<script\b[^>]*\bsrc\s*=`)
)

// Refine records how the page's scripts will be treated.
func (variant) Refine(code string, a executor.Analysis) executor.Analysis {
	external := len(externalScript.FindAllString(code, -1))
	if external > 0 {
		a.Features = append(a.Features, executor.Feature{
			Name:       "external-script",
			Kind:       "script",
			Confidence: 0.9,
			Support:    executor.SupportNone,
		})
	}
	if len(scriptTag.FindAllString(code, -1)) > external {
		a.Features = append(a.Features, executor.Feature{
			Name:       "inline-script",
			Kind:       "script",
			Confidence: 0.9,
			Support:    executor.SupportFull,
		})
	}
	return a
}

func (variant) Split(run *harness.Run) ([]string, *executor.ExecutionError) {
	return SplitPage(run)
}

func (variant) Document(run *harness.Run, canvas *goja.Object) goja.Value {
	return Document(run, canvas)
}

// SplitPage parses the page, fills the container and returns the inline
// scripts. A source without markup is a single script. Other executors use
// it to run fragments wrapped in a document.
func SplitPage(run *harness.Run) ([]string, *executor.ExecutionError) {
	if !LooksLikeMarkup(run.Source) {
		if run.Analysis.Technology == executor.CSS {
			if c := run.EC.Container; c != nil {
				c.AddStyle(run.Source)
			}
			return nil, nil
		}
		return []string{run.Source}, nil
	}
	page, err := parsePage(run.Source)
	if err != nil {
		return nil, executor.NewError(executor.CategorySyntax, "parsing markup: "+err.Error())
	}
	for _, src := range page.external {
		run.Log("warn", "external script not loaded: "+src)
	}

	if c := run.EC.Container; c != nil {
		c.SetHTML(page.body)
		for _, css := range page.styles {
			c.AddStyle(css)
		}
		if page.title != "" {
			c.SetTitle(page.title)
		}
	}
	if bg, ok := page.background(); ok {
		paintBackground(run.EC.Surface, bg)
	}
	run.Logger.Debug("parsed markup",
		slog.Int("scripts", len(page.scripts)),
		slog.Int("styles", len(page.styles)),
		slog.Int("elements", len(page.elements)))

	run.State = page
	return page.scripts, nil
}

func (variant) Bindings(*harness.Run) []string { return nil }

func (variant) Bind(*harness.Run) error { return nil }

// LooksLikeMarkup reports whether src is a document rather than a script:
// it opens with a tag. Scripts that build markup in strings do not count.
func LooksLikeMarkup(src string) bool {
	return strings.HasPrefix(strings.TrimSpace(src), "<")
}

func paintBackground(c *surface.Canvas, css string) {
	w, h := c.Size()
	ctx := c.Context2D()
	ctx.Save()
	ctx.ResetTransform()
	ctx.FillStyle = css
	ctx.FillRect(0, 0, float64(w), float64(h))
	ctx.Restore()
}

func trimScript(s string) string {
	return strings.TrimRight(s, " \t\r\n")
}
