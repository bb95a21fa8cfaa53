package markup

import (
	"strings"

	"github.com/dop251/goja"

	"github.com/sakif/fragments/internal/executor/harness"
)

// Document binds a document that knows the page parsed by SplitPage.
// Canvas elements resolve to the bound canvas; other elements are plain
// objects whose writes to innerHTML land in the container. Scripts that
// were not split from a page get the harness's canvas-only document.
func Document(run *harness.Run, canvas *goja.Object) goja.Value {
	p, ok := run.State.(*page)
	if !ok {
		return run.DocumentStub(canvas)
	}
	vm := run.VM
	objects := make(map[*element]*goja.Object)

	var wrap func(el *element) goja.Value
	wrap = func(el *element) goja.Value {
		if el == nil {
			return goja.Null()
		}
		if strings.EqualFold(el.tag, "canvas") {
			return canvas
		}
		if obj, ok := objects[el]; ok {
			return obj
		}
		obj := newElementObject(run, el.tag)
		_ = obj.Set("id", el.id)
		_ = obj.Set("className", strings.Join(el.class, " "))
		_ = obj.Set("textContent", el.text)
		_ = obj.Set("getAttribute", func(name string) goja.Value {
			if v, ok := el.attrs[strings.ToLower(name)]; ok {
				return vm.ToValue(v)
			}
			return goja.Null()
		})
		objects[el] = obj
		return obj
	}

	doc := vm.NewObject()
	_ = doc.Set("getElementById", func(id string) goja.Value { return wrap(p.byID(id)) })
	_ = doc.Set("querySelector", func(sel string) goja.Value { return wrap(p.query(sel)) })
	_ = doc.Set("querySelectorAll", func(sel string) goja.Value {
		els := p.queryAll(sel)
		out := make([]any, 0, len(els))
		for _, el := range els {
			out = append(out, wrap(el))
		}
		return vm.NewArray(out...)
	})
	_ = doc.Set("getElementsByTagName", func(tag string) goja.Value {
		els := p.queryAll(tag)
		out := make([]any, 0, len(els))
		for _, el := range els {
			out = append(out, wrap(el))
		}
		return vm.NewArray(out...)
	})
	_ = doc.Set("createElement", func(tag string) goja.Value {
		if strings.EqualFold(tag, "canvas") {
			return canvas
		}
		return newElementObject(run, tag)
	})
	_ = doc.Set("write", func(markup string) { appendMarkup(run, markup) })

	body := newElementObject(run, "body")
	_ = body.Set("insertAdjacentHTML", func(_ string, markup string) { appendMarkup(run, markup) })
	_ = doc.Set("body", body)
	_ = doc.Set("documentElement", body)

	title := vm.ToValue(func() string {
		if c := run.EC.Container; c != nil {
			return c.Title()
		}
		return p.title
	})
	setTitle := vm.ToValue(func(s string) {
		if c := run.EC.Container; c != nil {
			c.SetTitle(s)
		}
	})
	_ = doc.DefineAccessorProperty("title", title, setTitle, goja.FLAG_FALSE, goja.FLAG_TRUE)

	add, remove := run.ListenerFuncs()
	_ = doc.Set("addEventListener", add)
	_ = doc.Set("removeEventListener", remove)
	return doc
}

// newElementObject returns a detached element. Setting innerHTML replaces
// the container body for the body element and appends otherwise.
func newElementObject(run *harness.Run, tag string) *goja.Object {
	vm := run.VM
	obj := vm.NewObject()
	_ = obj.Set("tagName", strings.ToUpper(tag))
	_ = obj.Set("nodeName", strings.ToUpper(tag))
	_ = obj.Set("style", vm.NewObject())
	_ = obj.Set("dataset", vm.NewObject())
	_ = obj.Set("children", vm.NewArray())
	_ = obj.Set("appendChild", func(v goja.Value) goja.Value { return v })
	_ = obj.Set("setAttribute", func(string, string) {})

	classes := vm.NewObject()
	for _, name := range []string{"add", "remove", "toggle"} {
		_ = classes.Set(name, func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	}
	_ = classes.Set("contains", func(string) bool { return false })
	_ = obj.Set("classList", classes)

	var inner string
	get := vm.ToValue(func() string { return inner })
	set := vm.ToValue(func(markup string) {
		inner = markup
		if strings.EqualFold(tag, "body") {
			if c := run.EC.Container; c != nil {
				c.SetHTML(markup)
			}
			return
		}
		appendMarkup(run, markup)
	})
	_ = obj.DefineAccessorProperty("innerHTML", get, set, goja.FLAG_FALSE, goja.FLAG_TRUE)

	add, remove := run.ListenerFuncs()
	_ = obj.Set("addEventListener", add)
	_ = obj.Set("removeEventListener", remove)
	return obj
}

func appendMarkup(run *harness.Run, markup string) {
	if c := run.EC.Container; c != nil {
		c.AppendHTML(markup)
	}
}
