// Package dispatch maps technologies to executors and runs one attempt end to
// end. It never cleans up after an attempt: a successful fragment may keep
// animating until the caller is done with the context.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/fragments/internal/classifier"
	"github.com/sakif/fragments/internal/executor"
	"github.com/sakif/fragments/internal/executor/harness"
)

// Dispatcher is the executor registry. It is safe for concurrent use once
// built.
type Dispatcher struct {
	executors []executor.Executor
	fallback  executor.Executor
	byName    map[string]executor.Executor
	logger    *slog.Logger
}

// New registers executors in priority order. fallback runs whatever no
// registered executor supports.
func New(logger *slog.Logger, fallback executor.Executor, executors ...executor.Executor) *Dispatcher {
	d := &Dispatcher{
		executors: executors,
		fallback:  fallback,
		byName:    make(map[string]executor.Executor, len(executors)+1),
		logger:    logger.With(slog.String("component", "dispatch")),
	}
	for _, e := range executors {
		d.byName[e.Descriptor().Name] = e
	}
	if fallback != nil {
		d.byName[fallback.Descriptor().Name] = fallback
	}
	return d
}

// Classify runs the classifier.
func (d *Dispatcher) Classify(code string) executor.Analysis {
	return classifier.Analyze(code)
}

// Select returns the first executor supporting tech, or the fallback.
func (d *Dispatcher) Select(tech executor.Technology) executor.Executor {
	for _, e := range d.executors {
		if e.Supports(tech) {
			return e
		}
	}
	return d.fallback
}

// Descriptors lists the registered executors, fallback last.
func (d *Dispatcher) Descriptors() []executor.Descriptor {
	out := make([]executor.Descriptor, 0, len(d.executors)+1)
	for _, e := range d.executors {
		out = append(out, e.Descriptor())
	}
	if d.fallback != nil {
		out = append(out, d.fallback.Descriptor())
	}
	return out
}

// CanExecute asks the executor selected for code.
func (d *Dispatcher) CanExecute(code string) bool {
	e := d.Select(d.Classify(code).Technology)
	return e != nil && e.CanExecute(code)
}

// RunAttempt classifies code and runs it on the selected executor. Failures
// of any kind come back as a failed result; RunAttempt does not panic.
func (d *Dispatcher) RunAttempt(ctx context.Context, code string, ec *executor.Context, opts executor.Options) (res *executor.ExecutionResult) {
	start := time.Now()
	analysis := d.Classify(code)
	techs := []executor.Technology{analysis.Technology}

	if refusal := harness.Refusal(analysis, executor.SandboxNormal); refusal != nil {
		d.logger.Warn("refused fragment", slog.String("reason", refusal.Message))
		return executor.Failed(refusal, time.Since(start), techs...)
	}

	e := d.Select(analysis.Technology)
	if e == nil {
		return executor.Failed(executor.NewError(executor.CategoryCompatibility,
			fmt.Sprintf("no executor for %s fragments", analysis.Technology)), time.Since(start), techs...)
	}
	name := e.Descriptor().Name
	d.logger.Debug("dispatching",
		slog.String("technology", string(analysis.Technology)),
		slog.Float64("confidence", analysis.Confidence),
		slog.String("executor", name))

	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("executor panicked", slog.String("executor", name), slog.Any("panic", rec))
			res = contractViolation(name, fmt.Sprintf("executor %s panicked: %v", name, rec), start, techs)
		}
	}()
	res, err := e.Execute(ctx, executor.ExecutionRequest{Code: code, Context: ec, Options: opts})
	if err != nil {
		return contractViolation(name, fmt.Sprintf("executor %s failed: %v", name, err), start, techs)
	}
	if res == nil {
		return contractViolation(name, fmt.Sprintf("executor %s returned no result", name), start, techs)
	}
	return res
}

func contractViolation(name, msg string, start time.Time, techs []executor.Technology) *executor.ExecutionResult {
	res := executor.Failed(executor.NewError(executor.CategoryRuntime, msg), time.Since(start), techs...)
	res.Executor = name
	return res
}

// Cleanup releases ec through the executor that last ran on it. A context
// no registered executor claims is released directly.
func (d *Dispatcher) Cleanup(ec *executor.Context) {
	if ec == nil {
		return
	}
	if e, ok := d.byName[ec.Executor()]; ok {
		e.Cleanup(ec)
		return
	}
	if err := ec.Release(false); err != nil {
		d.logger.Warn("releasing context", slog.String("context", ec.ID), slog.Any("error", err))
	}
}
