package harness

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/sakif/fragments/internal/executor"
)

// mathNames are cached from Math and bound directly.
var mathNames = []string{
	"sin", "cos", "tan", "atan2", "sqrt", "abs", "floor", "ceil", "round", "min", "max", "random",
}

// commonBindings are injected into every fragment, whatever the executor.
var commonBindings = append([]string{
	"canvas", "window", "document", "performance", "console", "log",
	"requestAnimationFrame", "cancelAnimationFrame",
	"setTimeout", "setInterval", "clearTimeout", "clearInterval",
	"addEventListener", "removeEventListener", "shortcut",
	"PI", "TAU",
}, mathNames...)

// bindCommon sets the values of commonBindings.
func (r *Run) bindCommon(v Variant) error {
	vm := r.VM
	canvas := r.canvasObject()

	raf := r.requestFrame
	caf := func(id int) { r.EC.Resources().CancelFrame(id) }
	setTimeout := r.timer(false)
	setInterval := r.timer(true)
	clearTimer := func(id int) { r.EC.ClearTimer(id) }
	addListener, removeListener := r.ListenerFuncs()
	console := r.consoleObject()

	window := vm.NewObject()
	for name, val := range map[string]any{
		"innerWidth":            r.EC.Viewport.Width,
		"innerHeight":           r.EC.Viewport.Height,
		"devicePixelRatio":      1,
		"requestAnimationFrame": raf,
		"cancelAnimationFrame":  caf,
		"setTimeout":            setTimeout,
		"setInterval":           setInterval,
		"clearTimeout":          clearTimer,
		"clearInterval":         clearTimer,
		"addEventListener":      addListener,
		"removeEventListener":   removeListener,
		"console":               console,
	} {
		if err := window.Set(name, val); err != nil {
			return fmt.Errorf("binding window.%s: %w", name, err)
		}
	}

	var document goja.Value
	if d, ok := v.(Documenter); ok {
		document = d.Document(r, canvas)
	} else {
		document = r.DocumentStub(canvas)
	}

	performance := vm.NewObject()
	_ = performance.Set("now", func() float64 { return executor.Millis(time.Since(r.Started)) })

	r.Set("canvas", canvas)
	r.Set("window", window)
	r.Set("document", document)
	r.Set("performance", performance)
	r.Set("console", console)
	r.Set("log", console.Get("log"))
	r.Set("requestAnimationFrame", raf)
	r.Set("cancelAnimationFrame", caf)
	r.Set("setTimeout", setTimeout)
	r.Set("setInterval", setInterval)
	r.Set("clearTimeout", clearTimer)
	r.Set("clearInterval", clearTimer)
	r.Set("addEventListener", addListener)
	r.Set("removeEventListener", removeListener)
	r.Set("shortcut", r.shortcut)
	r.Set("PI", math.Pi)
	r.Set("TAU", 2*math.Pi)

	mathObj := vm.Get("Math").ToObject(vm)
	for _, name := range mathNames {
		r.Set(name, mathObj.Get(name))
	}
	return nil
}

// canvasObject exposes the surface as a DOM-like canvas element.
func (r *Run) canvasObject() *goja.Object {
	vm := r.VM
	c := r.EC.Surface
	obj := vm.NewObject()

	dimension := func(get func() int, set func(int)) (goja.Value, goja.Value) {
		getter := vm.ToValue(func() int { return get() })
		setter := vm.ToValue(func(n int) { set(n) })
		return getter, setter
	}
	wGet, wSet := dimension(
		func() int { w, _ := c.Size(); return w },
		func(n int) { _, h := c.Size(); c.Resize(n, h) },
	)
	hGet, hSet := dimension(
		func() int { _, h := c.Size(); return h },
		func(n int) { w, _ := c.Size(); c.Resize(w, n) },
	)
	_ = obj.DefineAccessorProperty("width", wGet, wSet, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = obj.DefineAccessorProperty("height", hGet, hSet, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = obj.DefineAccessorProperty("clientWidth", wGet, nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = obj.DefineAccessorProperty("clientHeight", hGet, nil, goja.FLAG_FALSE, goja.FLAG_TRUE)

	_ = obj.Set("getContext", func(kind string) goja.Value {
		switch strings.ToLower(kind) {
		case "2d":
			return r.Context2D()
		case "webgl", "webgl2", "experimental-webgl":
			return r.GL()
		}
		return goja.Null()
	})

	add, remove := r.ListenerFuncs()
	_ = obj.Set("addEventListener", add)
	_ = obj.Set("removeEventListener", remove)
	_ = obj.Set("toDataURL", func() (string, error) { return c.DataURL() })
	_ = obj.Set("getBoundingClientRect", func() map[string]int {
		w, h := c.Size()
		return map[string]int{"left": 0, "top": 0, "x": 0, "y": 0, "width": w, "height": h, "right": w, "bottom": h}
	})
	_ = obj.Set("requestFullscreen", func() {})
	_ = obj.Set("focus", func() {})
	_ = obj.Set("style", vm.NewObject())
	_ = obj.Set("tagName", "CANVAS")
	_ = obj.Set("nodeName", "CANVAS")
	return obj
}

// Context2D returns the JS value of the surface's 2D context. The same value
// is returned every time, so canvas.getContext("2d") === ctx.
func (r *Run) Context2D() goja.Value {
	if r.ctx2d == nil {
		r.ctx2d = r.VM.ToValue(r.EC.Surface.Context2D())
	}
	return r.ctx2d
}

// GL returns the JS value of the surface's WebGL context, or null when the
// surface has none.
func (r *Run) GL() goja.Value {
	if !r.EC.Surface.WebGL() {
		return goja.Null()
	}
	if r.gl == nil {
		r.gl = r.VM.ToValue(r.EC.Surface.GL())
	}
	return r.gl
}

// DocumentStub answers the few document lookups canvas fragments make with
// the bound canvas.
func (r *Run) DocumentStub(canvas *goja.Object) goja.Value {
	vm := r.VM
	doc := vm.NewObject()
	byCanvas := func(string) *goja.Object { return canvas }
	_ = doc.Set("getElementById", byCanvas)
	_ = doc.Set("querySelector", func(sel string) goja.Value {
		if strings.Contains(strings.ToLower(sel), "canvas") || strings.HasPrefix(sel, "#") {
			return canvas
		}
		return goja.Null()
	})
	_ = doc.Set("createElement", func(tag string) goja.Value {
		if strings.EqualFold(tag, "canvas") {
			return canvas
		}
		el := vm.NewObject()
		_ = el.Set("style", vm.NewObject())
		_ = el.Set("tagName", strings.ToUpper(tag))
		return el
	})
	body := vm.NewObject()
	_ = body.Set("appendChild", func(v goja.Value) goja.Value { return v })
	_ = body.Set("style", vm.NewObject())
	_ = doc.Set("body", body)
	_ = doc.Set("documentElement", body)
	add, remove := r.ListenerFuncs()
	_ = doc.Set("addEventListener", add)
	_ = doc.Set("removeEventListener", remove)
	return doc
}

// requestFrame registers an animation frame. Without animation only the
// first request is honoured, so a fragment renders a single frame.
func (r *Run) requestFrame(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.VM.NewTypeError("requestAnimationFrame: callback is not a function"))
	}
	if !r.Options.EnableAnimation && r.frameRequests > 0 {
		return r.VM.ToValue(0)
	}
	r.frameRequests++
	id := r.EC.Resources().RequestFrame(func(ts float64) {
		r.Call(fn, r.VM.ToValue(ts))
	})
	return r.VM.ToValue(id)
}

// timer builds setTimeout or setInterval. String callbacks are rejected.
func (r *Run) timer(repeat bool) func(goja.FunctionCall) goja.Value {
	name := "setTimeout"
	if repeat {
		name = "setInterval"
	}
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(r.VM.NewTypeError("%s: callback must be a function, strings are not evaluated", name))
		}
		delay := time.Duration(call.Argument(1).ToFloat() * float64(time.Millisecond))
		if math.IsNaN(call.Argument(1).ToFloat()) {
			delay = 0
		}
		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}
		id := r.EC.SetTimer(delay, repeat, func() { r.Call(fn, args...) })
		return r.VM.ToValue(id)
	}
}

// ListenerFuncs builds addEventListener and removeEventListener backed by the
// context's arena. The function object is the removal key.
func (r *Run) ListenerFuncs() (add, remove func(goja.FunctionCall) goja.Value) {
	vm := r.VM
	add = func(call goja.FunctionCall) goja.Value {
		typ := call.Argument(0).String()
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			return goja.Undefined()
		}
		key := call.Argument(1).ToObject(vm)
		r.EC.Resources().AddListener(typ, key, func(ev executor.Event) {
			r.Call(fn, vm.ToValue(&ev))
		})
		return goja.Undefined()
	}
	remove = func(call goja.FunctionCall) goja.Value {
		if obj, ok := call.Argument(1).(*goja.Object); ok {
			r.EC.Resources().RemoveListener(call.Argument(0).String(), obj)
		}
		return goja.Undefined()
	}
	return add, remove
}

// shortcut binds a key to a callback: shortcut("r", reset).
func (r *Run) shortcut(call goja.FunctionCall) goja.Value {
	key := call.Argument(0).String()
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		panic(r.VM.NewTypeError("shortcut: handler is not a function"))
	}
	r.EC.Resources().BindShortcut(key, func() { r.Call(fn) })
	return goja.Undefined()
}

func (r *Run) consoleObject() *goja.Object {
	obj := r.VM.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		_ = obj.Set(level, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			r.Log(level, strings.Join(parts, " "))
			return goja.Undefined()
		})
	}
	return obj
}
