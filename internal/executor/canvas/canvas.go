// Package canvas runs 2D canvas fragments and p5-style sketches.
package canvas

import (
	_ "embed"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/sakif/fragments/internal/executor"
	"github.com/sakif/fragments/internal/executor/harness"
	"github.com/sakif/fragments/internal/executor/markup"
)

const (
	Name           = "canvas"
	Version        = "1.0.0"
	DefaultTimeout = 5 * time.Second
	// ConfidenceFloor is the default minimum confidence for CanExecute.
	ConfidenceFloor = 0.7
)

//go:embed p5shim.js
var p5Source string

var (
	p5Prelude = oneLine(p5Source)
	p5Names   = declaredNames(p5Source)
)

const p5Epilogue = `__p5start(typeof setup === "function" ? setup : null, typeof draw === "function" ? draw : null, ` +
	`{ mousePressed: typeof mousePressed === "function" ? mousePressed : null, keyPressed: typeof keyPressed === "function" ? keyPressed : null });`

var bindings = []string{"ctx", "width", "height", "time", "frame"}

var ctxUse = regexp.MustCompile(`\bctx\s*\.\s*(fill|stroke|clear|begin|arc|move|line|rect|draw|save|restore|translate|rotate|scale)`)

// Executor runs canvas and p5 fragments against the surface's 2D context.
type Executor struct {
	*harness.Base
}

// Option configures the executor.
type Option = harness.Option

var (
	WithTimeout         = harness.WithTimeout
	WithConfidenceFloor = harness.WithConfidenceFloor
)

// New creates a canvas executor.
func New(logger *slog.Logger, opts ...Option) *Executor {
	cfg := harness.NewConfig(DefaultTimeout, ConfidenceFloor, opts...)
	desc := executor.Descriptor{
		Name:         Name,
		Version:      Version,
		Technologies: []executor.Technology{executor.Canvas, executor.P5},
	}
	return &Executor{Base: harness.New(desc, variant{}, cfg, logger)}
}

type variant struct{}

// Refine credits fragments that draw through the injected ctx binding
// without calling getContext themselves.
func (variant) Refine(code string, a executor.Analysis) executor.Analysis {
	if a.Technology != executor.Canvas && a.Technology != executor.Unknown {
		return a
	}
	if !ctxUse.MatchString(code) {
		return a
	}
	a.Features = append(a.Features, executor.Feature{
		Name:       "ctx-binding",
		Kind:       "binding",
		Confidence: 0.8,
		Support:    executor.SupportFull,
	})
	a.Technology = executor.Canvas
	a.Confidence = max(a.Confidence, 0.8)
	return a
}

func (variant) Bindings(run *harness.Run) []string {
	if run.Analysis.Technology == executor.P5 {
		return append(append([]string(nil), bindings...), p5Names...)
	}
	return bindings
}

func (variant) Bind(run *harness.Run) error {
	w, h := run.EC.Surface.Size()
	run.Set("ctx", run.Context2D())
	run.Set("width", w)
	run.Set("height", h)
	run.Set("time", func() float64 { return executor.Millis(time.Since(run.Started)) })
	run.Set("frame", func() int64 { return run.EC.FramesDelivered() })
	return nil
}

// Split runs a canvas fragment written as a page through its inline scripts.
func (variant) Split(run *harness.Run) ([]string, *executor.ExecutionError) {
	return markup.SplitPage(run)
}

func (variant) Document(run *harness.Run, canvas *goja.Object) goja.Value {
	return markup.Document(run, canvas)
}

func (variant) Prelude(run *harness.Run) string {
	if run.Analysis.Technology != executor.P5 {
		return ""
	}
	return p5Prelude
}

func (variant) Epilogue(run *harness.Run) string {
	if run.Analysis.Technology != executor.P5 {
		return ""
	}
	return p5Epilogue
}

// oneLine joins the shim into a single line so it does not shift the
// fragment's line numbers.
func oneLine(src string) string {
	var parts []string
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ") + " "
}

var topLevelDecl = regexp.MustCompile(`(?m)^(?:var|function)\s+([A-Za-z_$][\w$]*)`)

func declaredNames(src string) []string {
	var names []string
	for _, m := range topLevelDecl.FindAllStringSubmatch(src, -1) {
		names = append(names, m[1])
	}
	return names
}
