// Package harness is the shared base of every fragment executor. It runs the
// five-stage pipeline:
//
//  1. re-analyze and refuse risky code
//  2. bind the execution context and build a fresh JS runtime
//  3. preprocess: strip control characters, split, rename collisions, acquire
//  4. execute inside a function scope that receives only curated bindings,
//     under a timeout that interrupts the runtime
//  5. report a categorized ExecutionResult
//
// Variants (canvas, three, markup) plug in through the Variant interface and
// the optional Checker, Splitter, Acquirer, Wrapper and Documenter hooks.
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/sakif/fragments/internal/classifier"
	"github.com/sakif/fragments/internal/executor"
	"github.com/sakif/fragments/internal/surface"
)

// ScriptName is the file name fragment code is compiled under; error
// positions refer to it.
const ScriptName = "fragment.js"

const (
	interruptGrace   = 2 * time.Second
	fallbackDeadline = 500 * time.Millisecond
	maxCallStack     = 2048
)

// Variant supplies what differs between executors.
type Variant interface {
	// Refine adds technology-specific detail to the classifier's analysis.
	Refine(code string, a executor.Analysis) executor.Analysis
	// Bindings names the values Bind injects. The names are reserved: a
	// fragment declaring one of them is renamed.
	Bindings(run *Run) []string
	// Bind sets the values of the names returned by Bindings.
	Bind(run *Run) error
}

// Checker rejects an attempt before the context is bound, e.g. when the
// surface lacks a capability.
type Checker interface {
	Check(run *Run) *executor.ExecutionError
}

// Splitter turns the source into the scripts to run (markup fragments carry
// their scripts inside HTML). Each script may be padded with leading
// newlines to its line in the source. The scripts run in order in one shared
// scope, so declarations in one are visible to the next.
type Splitter interface {
	Split(run *Run) ([]string, *executor.ExecutionError)
}

// Acquirer fetches external resources once the code is preprocessed.
type Acquirer interface {
	Acquire(ctx context.Context, run *Run) *executor.ExecutionError
}

// Wrapper adds code around every script inside the function scope. The
// prelude must be a single line so fragment line numbers are preserved.
type Wrapper interface {
	Prelude(run *Run) string
	Epilogue(run *Run) string
}

// Documenter replaces the default `document` binding. canvas is the bound
// canvas element.
type Documenter interface {
	Document(run *Run, canvas *goja.Object) goja.Value
}

// Base implements executor.Executor on top of a Variant.
type Base struct {
	desc    executor.Descriptor
	variant Variant
	cfg     Config
	logger  *slog.Logger

	mu   sync.Mutex
	runs map[string]*Run // by context ID, until cleanup
}

// New creates the base for a variant.
func New(desc executor.Descriptor, variant Variant, cfg Config, logger *slog.Logger) *Base {
	return &Base{
		desc:    desc,
		variant: variant,
		cfg:     cfg,
		logger:  logger.With(slog.String("executor", desc.Name)),
		runs:    make(map[string]*Run),
	}
}

// Descriptor returns the executor's identity.
func (b *Base) Descriptor() executor.Descriptor { return b.desc }

// Supports reports whether the descriptor lists t.
func (b *Base) Supports(t executor.Technology) bool { return b.desc.Supports(t) }

// Analyze runs the classifier and the variant's refinement. A panicking
// refinement yields the failsafe analysis.
func (b *Base) Analyze(code string) (a executor.Analysis) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Warn("analysis failed, using failsafe", slog.Any("panic", rec))
			a = executor.FailsafeAnalysis()
		}
	}()
	return b.variant.Refine(code, classifier.Analyze(code))
}

// CanExecute reports whether code is confident enough and free of critical
// risk for this executor.
func (b *Base) CanExecute(code string) bool {
	a := b.Analyze(code)
	if a.Confidence < b.cfg.ConfidenceFloor {
		return false
	}
	return len(a.RisksAtLeast(executor.RiskCritical)) == 0
}

// Run returns the attempt currently bound to ec through this executor.
func (b *Base) Run(ec *executor.Context) *Run {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runs[ec.ID]
}

// Execute runs one attempt. Every failure is reported in the result; the
// error return is always nil.
func (b *Base) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	start := time.Now()
	fail := func(err *executor.ExecutionError, techs ...executor.Technology) (*executor.ExecutionResult, error) {
		b.logger.Warn("execution failed",
			slog.String("category", string(err.Category)),
			slog.String("error", err.Message))
		res := executor.Failed(err, time.Since(start), techs...)
		res.Executor = b.desc.Name
		return res, nil
	}

	if req.Context == nil {
		return fail(executor.NewError(executor.CategoryRuntime, "no execution context supplied"))
	}
	if err := req.Options.Validate(); err != nil {
		return fail(executor.NewError(executor.CategoryUnknown, err.Error()))
	}

	// Stage 1: re-analyze.
	analysis := b.Analyze(req.Code)
	techs := detected(analysis)
	if refusal := Refusal(analysis, req.Options.Level()); refusal != nil {
		return fail(refusal, techs...)
	}
	b.logger.Debug("stage: analyzed",
		slog.String("technology", string(analysis.Technology)),
		slog.Float64("confidence", analysis.Confidence))

	run := &Run{
		Ctx:      ctx,
		EC:       req.Context,
		Options:  req.Options,
		Analysis: analysis,
		Logger:   b.logger,
		Started:  start,
		budget:   req.Options.Timeout(b.cfg.Timeout),
	}

	// Stage 2: prepare the environment.
	if c, ok := b.variant.(Checker); ok {
		if err := c.Check(run); err != nil {
			return fail(err, techs...)
		}
	}
	if err := run.EC.Begin(b.desc.Name); err != nil {
		return fail(executor.NewError(executor.CategoryRuntime,
			fmt.Sprintf("cannot start a new attempt: %v; the previous attempt on this surface must be cleaned up first", err)), techs...)
	}
	b.mu.Lock()
	b.runs[run.EC.ID] = run
	b.mu.Unlock()

	run.VM = newRuntime(req.Options.Level())
	vm := run.VM
	run.EC.Resources().Acquire(func() error {
		vm.Interrupt("execution context cleaned up")
		return nil
	})
	b.logger.Debug("stage: environment ready", slog.String("context", run.EC.ID))

	result := func(err *executor.ExecutionError, mem *float64) (*executor.ExecutionResult, error) {
		return b.report(run, err, mem, techs), nil
	}

	// Stage 3: preprocess.
	run.Source = StripControl(req.Code)
	scripts := []string{run.Source}
	if s, ok := b.variant.(Splitter); ok {
		var err *executor.ExecutionError
		if scripts, err = s.Split(run); err != nil {
			return result(err, nil)
		}
	}
	scripts = joinScripts(scripts)
	reserved := reservedSet(commonBindings, b.variant.Bindings(run))
	run.Renamed = make(map[string]string)
	for _, script := range scripts {
		out, renamed := Rename(script, reserved)
		run.Scripts = append(run.Scripts, out)
		for from, to := range renamed {
			run.Renamed[from] = to
		}
	}
	if len(run.Renamed) > 0 {
		b.logger.Debug("renamed colliding declarations", slog.Any("names", sortedKeys(run.Renamed)))
	}
	if a, ok := b.variant.(Acquirer); ok {
		if err := a.Acquire(ctx, run); err != nil {
			return result(err, nil)
		}
	}
	b.logger.Debug("stage: preprocessed", slog.Int("scripts", len(run.Scripts)))

	// Stage 4: execute.
	if err := run.bindCommon(b.variant); err != nil {
		return result(executor.NewError(executor.CategoryRuntime, err.Error()), nil)
	}
	if err := b.variant.Bind(run); err != nil {
		return result(executor.NewError(executor.CategoryRuntime, err.Error()), nil)
	}
	progs, cerr := run.compile(b.variant)
	if cerr != nil {
		return result(cerr, nil)
	}

	var before runtime.MemStats
	runtime.ReadMemStats(&before)
	execErr := run.runMain(ctx, progs)
	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	var mem *float64
	if after.HeapAlloc > before.HeapAlloc {
		delta := float64(after.HeapAlloc - before.HeapAlloc)
		mem = &delta
	}
	b.logger.Debug("stage: executed", slog.Duration("elapsed", time.Since(start)))

	// Stage 5: report.
	return result(execErr, mem)
}

// Refusal returns the security failure for an analysis under level, or nil.
// Critical risks are always refused; strict additionally refuses high risks.
func Refusal(a executor.Analysis, level executor.SandboxLevel) *executor.ExecutionError {
	threshold := executor.RiskCritical
	if level == executor.SandboxStrict {
		threshold = executor.RiskHigh
	}
	risks := a.RisksAtLeast(threshold)
	if len(risks) == 0 {
		return nil
	}
	return executor.NewError(executor.CategorySecurity,
		fmt.Sprintf("refused to run: %s risk (%s)", risks[0].Level, risks[0].Description))
}

func (b *Base) report(run *Run, execErr *executor.ExecutionError, mem *float64, techs []executor.Technology) *executor.ExecutionResult {
	res := &executor.ExecutionResult{
		Success:              execErr == nil,
		Error:                execErr,
		ExecutionTimeMs:      executor.Millis(time.Since(run.Started)),
		DetectedTechnologies: techs,
		MemoryUsageBytes:     mem,
		Executor:             b.desc.Name,
	}
	if run.Options.EnableDebugMode {
		res.Logs = run.Logs()
	}
	if execErr == nil {
		b.logger.Debug("execution succeeded", slog.Float64("ms", res.ExecutionTimeMs))
		return res
	}

	b.logger.Warn("execution failed",
		slog.String("category", string(execErr.Category)),
		slog.String("error", execErr.Message),
		slog.Int("line", execErr.Line))
	if run.Options.FallbackArt {
		b.paintFallback(run)
	}
	return res
}

// paintFallback draws the placeholder on the event loop so it never races a
// frame callback.
func (b *Base) paintFallback(run *Run) {
	loop := run.EC.Loop()
	if loop == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), fallbackDeadline)
	defer cancel()
	err := loop.Do(ctx, func() {
		surface.PaintFallback(run.EC.Surface, run.Source)
	})
	if err != nil {
		b.logger.Warn("could not paint fallback art", slog.Any("error", err))
	}
}

// Cleanup releases everything the attempt on ec acquired. It is idempotent,
// never panics and is safe on a context that never executed.
func (b *Base) Cleanup(ec *executor.Context) {
	if ec == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("cleanup panicked", slog.Any("panic", rec))
		}
	}()

	b.mu.Lock()
	run := b.runs[ec.ID]
	delete(b.runs, ec.ID)
	b.mu.Unlock()

	clear := run != nil && run.Options.ClearOnCleanup
	if err := ec.Release(clear); err != nil {
		b.logger.Warn("cleanup was partial", slog.String("context", ec.ID), slog.Any("error", err))
	}
	b.logger.Debug("cleaned up", slog.String("context", ec.ID))
}

func detected(a executor.Analysis) []executor.Technology {
	techs := []executor.Technology{a.Technology}
	for _, d := range a.Dependencies {
		t := executor.ParseTechnology(d)
		if t != executor.Unknown && t != a.Technology {
			techs = append(techs, t)
		}
	}
	return techs
}

// newRuntime builds a JS runtime with Go fields exposed through `js` tags.
// Strict sandboxes lose eval and the Function constructor.
func newRuntime(level executor.SandboxLevel) *goja.Runtime {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("js", true))
	vm.SetMaxCallStackSize(maxCallStack)
	if level == executor.SandboxStrict {
		global := vm.GlobalObject()
		if fn := global.Get("Function"); fn != nil {
			if proto := fn.ToObject(vm).Get("prototype"); proto != nil {
				_ = proto.ToObject(vm).Set("constructor", goja.Undefined())
			}
		}
		_ = global.Delete("eval")
		_ = global.Delete("Function")
	}
	return vm
}
