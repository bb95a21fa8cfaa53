package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/sakif/fragments/internal/executor"
)

const maxLogEntries = 200

// Run is the state of one execution attempt. The JS runtime is only touched
// on the context's event loop once the main job has been posted.
type Run struct {
	Ctx      context.Context
	EC       *executor.Context
	Options  executor.Options
	Analysis executor.Analysis
	Logger   *slog.Logger
	Started  time.Time
	VM       *goja.Runtime

	// Source is the control-stripped fragment; Scripts are what actually
	// runs, after splitting and renaming.
	Source  string
	Scripts []string
	Renamed map[string]string

	// State is owned by the variant, e.g. a parsed page handed from Split
	// to Document.
	State any

	params   []string
	values   []goja.Value
	lazy     map[int]func() goja.Value
	preloads []*goja.Program

	ctx2d, gl goja.Value

	budget        time.Duration
	frameRequests int // loop goroutine only
	prefixLen     int // of the script currently running

	mu          sync.Mutex
	running     bool
	interrupted bool
	logs        []string
}

// Set adds a binding. Values that are not goja values are converted.
func (r *Run) Set(name string, v any) {
	val, ok := v.(goja.Value)
	if !ok {
		val = r.VM.ToValue(v)
	}
	r.params = append(r.params, name)
	r.values = append(r.values, val)
}

// SetLazy adds a binding resolved on the event loop after the preloads ran,
// for values that only exist once a library has been evaluated.
func (r *Run) SetLazy(name string, resolve func() goja.Value) {
	if r.lazy == nil {
		r.lazy = make(map[int]func() goja.Value)
	}
	r.lazy[len(r.values)] = resolve
	r.params = append(r.params, name)
	r.values = append(r.values, goja.Undefined())
}

// Preload queues a program evaluated in the runtime before the fragment.
func (r *Run) Preload(p *goja.Program) {
	r.preloads = append(r.preloads, p)
}

// Budget is the time the main job, and each later callback, may run.
func (r *Run) Budget() time.Duration { return r.budget }

// Log records a fragment log line. Lines are kept only in debug mode.
func (r *Run) Log(level, msg string) {
	r.Logger.Debug("fragment output", slog.String("level", level), slog.String("msg", msg))
	if !r.Options.EnableDebugMode {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.logs) < maxLogEntries {
		r.logs = append(r.logs, level+": "+msg)
	}
}

// Logs returns the captured log lines.
func (r *Run) Logs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.logs...)
}

// compile wraps every script in a function taking the bindings and compiles
// it. Compilation happens off the loop; programs are runtime independent.
func (r *Run) compile(v Variant) ([]*compiled, *executor.ExecutionError) {
	var prelude, epilogue string
	if w, ok := v.(Wrapper); ok {
		prelude, epilogue = w.Prelude(r), w.Epilogue(r)
	}
	prefix := "(function(" + strings.Join(r.params, ", ") + "){" + prelude

	out := make([]*compiled, 0, len(r.Scripts))
	for _, script := range r.Scripts {
		src := prefix + script + "\n" + epilogue + "\n})"
		p, err := goja.Compile(ScriptName, src, false)
		if err != nil {
			return nil, convert(err, len(prefix))
		}
		out = append(out, &compiled{prog: p, prefixLen: len(prefix)})
	}
	return out, nil
}

type compiled struct {
	prog      *goja.Program
	prefixLen int
}

// runMain runs the preloads and scripts as one job on the event loop and
// waits for it. When the budget runs out, or ctx is done, the runtime is
// interrupted and the attempt fails with a timeout.
func (r *Run) runMain(ctx context.Context, progs []*compiled) *executor.ExecutionError {
	loop := r.EC.Loop()
	if loop == nil {
		return executor.NewError(executor.CategoryRuntime, "execution context was released before the fragment ran")
	}

	result := make(chan *executor.ExecutionError, 1)
	r.setRunning()
	posted := loop.Post(func() {
		defer r.finish()
		defer func() {
			if rec := recover(); rec != nil {
				result <- executor.NewError(executor.CategoryRuntime, fmt.Sprintf("internal error while running the fragment: %v", rec))
			}
		}()
		result <- r.callScripts(progs)
	})
	if !posted {
		r.finish()
		return executor.NewError(executor.CategoryRuntime, "event loop stopped before the fragment ran")
	}

	timer := time.NewTimer(r.budget)
	defer timer.Stop()

	var reason string
	select {
	case err := <-result:
		return err
	case <-timer.C:
		reason = fmt.Sprintf("execution exceeded %s", r.budget)
	case <-ctx.Done():
		reason = fmt.Sprintf("execution cancelled: %v", ctx.Err())
	}

	if !r.interrupt(reason) {
		// The job finished while the deadline fired.
		return <-result
	}
	select {
	case <-result:
	case <-time.After(interruptGrace):
		r.Logger.Warn("fragment did not stop after interrupt", slog.String("context", r.EC.ID))
	}
	return executor.NewError(executor.CategoryTimeout, reason)
}

// callScripts runs on the loop goroutine.
func (r *Run) callScripts(progs []*compiled) *executor.ExecutionError {
	for _, p := range r.preloads {
		if _, err := r.VM.RunProgram(p); err != nil {
			return executor.NewError(executor.CategoryResource, "evaluating library: "+err.Error())
		}
	}
	for i, resolve := range r.lazy {
		r.values[i] = resolve()
	}
	for _, p := range progs {
		r.prefixLen = p.prefixLen
		v, err := r.VM.RunProgram(p.prog)
		if err != nil {
			return convert(err, p.prefixLen)
		}
		fn, ok := goja.AssertFunction(v)
		if !ok {
			return executor.NewError(executor.CategoryUnknown, "fragment wrapper did not evaluate to a function")
		}
		if _, err := fn(goja.Undefined(), r.values...); err != nil {
			return convert(err, p.prefixLen)
		}
	}
	return nil
}

func (r *Run) setRunning() {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()
}

// finish marks JS as idle and drops an interrupt that did not land.
func (r *Run) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	if r.interrupted {
		r.VM.ClearInterrupt()
		r.interrupted = false
	}
}

// interrupt stops JS if it is running. It reports whether it did.
func (r *Run) interrupt(reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return false
	}
	r.interrupted = true
	r.VM.Interrupt(reason)
	return true
}

// Call runs a fragment callback on the loop goroutine with the same budget
// as the main job. Errors are logged and do not end the attempt.
func (r *Run) Call(fn goja.Callable, args ...goja.Value) goja.Value {
	r.setRunning()
	watchdog := time.AfterFunc(r.budget, func() {
		r.interrupt(fmt.Sprintf("callback exceeded %s", r.budget))
	})
	defer func() {
		watchdog.Stop()
		r.finish()
	}()

	v, err := fn(goja.Undefined(), args...)
	if err != nil {
		e := convert(err, r.prefixLen)
		r.Logger.Warn("fragment callback failed",
			slog.String("category", string(e.Category)),
			slog.String("error", e.Message))
		r.Log("error", e.Message)
		return goja.Undefined()
	}
	return v
}

var (
	runtimePos = regexp.MustCompile(regexp.QuoteMeta(ScriptName) + `:(\d+):(\d+)`)
	parsePos   = regexp.MustCompile(`Line (\d+):(\d+)`)
)

// convert maps a goja error to an ExecutionError. prefixLen is the length of
// the wrapper text that precedes line 1, column 1 of the fragment.
func convert(err error, prefixLen int) *executor.ExecutionError {
	var (
		interrupted *goja.InterruptedError
		overflow    *goja.StackOverflowError
		syntax      *goja.CompilerSyntaxError
		exception   *goja.Exception
	)

	var out *executor.ExecutionError
	switch {
	case errors.As(err, &interrupted):
		return executor.NewError(executor.CategoryTimeout, fmt.Sprint(interrupted.Value()))
	case errors.As(err, &overflow):
		out = executor.NewError(executor.CategoryRuntime, "RangeError: Maximum call stack size exceeded")
	case errors.As(err, &syntax):
		msg := syntax.Message
		if i := strings.Index(msg, "Line "); i >= 0 {
			// "fragment.js: Line 3:7 Unexpected token" -> "Unexpected token"
			if j := strings.Index(msg[i:], " "); j >= 0 {
				rest := msg[i+j+1:]
				if k := strings.Index(rest, " "); k >= 0 {
					msg = rest[k+1:]
				}
			}
		}
		out = executor.NewError(executor.CategorySyntax, "SyntaxError: "+msg)
	case errors.As(err, &exception):
		val := exception.Value()
		msg := err.Error()
		if val != nil {
			msg = val.String()
		}
		cat := executor.CategoryRuntime
		if strings.HasPrefix(msg, "SyntaxError") {
			cat = executor.CategorySyntax
		}
		out = executor.NewError(cat, msg)
	default:
		out = executor.NewError(executor.CategoryRuntime, err.Error())
	}

	text := err.Error()
	if exception != nil {
		// The full stack, so a throw inside a native binding still points
		// at the fragment frame that called it.
		text = exception.String()
	}
	out.Line, out.Column = position(text, prefixLen)
	return out
}

// position extracts the fragment line and column from an error text.
func position(text string, prefixLen int) (line, col int) {
	m := runtimePos.FindStringSubmatch(text)
	if m == nil {
		m = parsePos.FindStringSubmatch(text)
	}
	if m == nil {
		return 0, 0
	}
	line, _ = strconv.Atoi(m[1])
	col, _ = strconv.Atoi(m[2])
	if line == 1 {
		col -= prefixLen
		if col < 1 {
			col = 0
		}
	}
	return line, col
}
