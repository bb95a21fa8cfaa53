// Package three runs three.js and raw WebGL fragments.
//
// The library is fetched once per process by a loader.Loader and evaluated
// into each attempt's runtime before the fragment runs; fragments see it as
// the THREE binding. Raw WebGL fragments skip the load entirely.
package three

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/dop251/goja"

	"github.com/sakif/fragments/internal/executor"
	"github.com/sakif/fragments/internal/executor/harness"
	"github.com/sakif/fragments/internal/executor/markup"
	"github.com/sakif/fragments/internal/loader"
)

const (
	Name            = "three"
	Version         = "1.0.0"
	DefaultTimeout  = 12 * time.Second
	ConfidenceFloor = 0.7
)

// Library is the part of loader.Loader the executor needs.
type Library interface {
	EnsureLoaded(ctx context.Context) (*loader.Library, error)
}

// Executor runs 3D fragments.
type Executor struct {
	*harness.Base
}

// Option configures the executor.
type Option = harness.Option

var (
	WithTimeout         = harness.WithTimeout
	WithConfidenceFloor = harness.WithConfidenceFloor
)

// New creates a three executor loading the library through lib.
func New(lib Library, logger *slog.Logger, opts ...Option) *Executor {
	cfg := harness.NewConfig(DefaultTimeout, ConfidenceFloor, opts...)
	desc := executor.Descriptor{
		Name:         Name,
		Version:      Version,
		Technologies: []executor.Technology{executor.Three, executor.WebGL},
	}
	return &Executor{Base: harness.New(desc, &variant{lib: lib}, cfg, logger)}
}

type variant struct {
	lib Library
}

var (
	rendererWithoutCanvas = regexp.MustCompile(`new\s+THREE\.WebGLRenderer\s*\(\s*\)`)
	animationLoop         = regexp.MustCompile(`requestAnimationFrame|setAnimationLoop`)
)

// Refine notes renderers created without the canvas binding, which cannot
// attach to the surface, and credits animated scenes.
func (v *variant) Refine(code string, a executor.Analysis) executor.Analysis {
	if a.Technology != executor.Three {
		return a
	}
	if rendererWithoutCanvas.MatchString(code) {
		a.Features = append(a.Features, executor.Feature{
			Name:       "detached-renderer",
			Kind:       "3d-component",
			Confidence: 0.9,
			Support:    executor.SupportNone,
		})
	}
	if animationLoop.MatchString(code) {
		a.Features = append(a.Features, executor.Feature{
			Name:       "animation-loop",
			Kind:       "animation",
			Confidence: 0.8,
			Support:    executor.SupportFull,
		})
	}
	return a
}

// Check rejects surfaces without WebGL before anything is bound.
func (v *variant) Check(run *harness.Run) *executor.ExecutionError {
	if !run.EC.Surface.WebGL() {
		return executor.NewError(executor.CategoryCompatibility,
			"WebGL is not available on this surface")
	}
	return nil
}

func needsLibrary(a executor.Analysis) bool {
	if a.Technology == executor.Three {
		return true
	}
	for _, d := range a.Dependencies {
		if d == "three" {
			return true
		}
	}
	return false
}

// Acquire loads the library and queues it for evaluation.
func (v *variant) Acquire(ctx context.Context, run *harness.Run) *executor.ExecutionError {
	if !needsLibrary(run.Analysis) {
		return nil
	}
	lib, err := v.lib.EnsureLoaded(ctx)
	if err != nil {
		var exhausted *loader.ExhaustedError
		if errors.As(err, &exhausted) {
			return executor.NewError(executor.CategoryResource,
				fmt.Sprintf("could not load the 3D library from any mirror (%d tried)", len(exhausted.Attempts)))
		}
		return executor.NewError(executor.CategoryResource, fmt.Sprintf("loading the 3D library: %v", err))
	}
	run.Logger.Debug("library ready", slog.String("source", lib.Source), slog.Int("index", lib.SourceIndex))
	run.Preload(lib.Program)
	run.SetLazy(lib.Global, func() goja.Value { return run.VM.Get(lib.Global) })
	return nil
}

func (v *variant) Split(run *harness.Run) ([]string, *executor.ExecutionError) {
	return markup.SplitPage(run)
}

func (v *variant) Document(run *harness.Run, canvas *goja.Object) goja.Value {
	return markup.Document(run, canvas)
}

func (v *variant) Bindings(run *harness.Run) []string {
	names := []string{"width", "height", "gl"}
	if needsLibrary(run.Analysis) {
		names = append(names, "THREE")
	}
	return names
}

func (v *variant) Bind(run *harness.Run) error {
	w, h := run.EC.Surface.Size()
	run.Set("width", w)
	run.Set("height", h)
	run.Set("gl", run.GL())
	return nil
}
