//go:build js && wasm

// Package jsdom adapts the browser's window and document, reached through
// syscall/js, to the navaccel interfaces.
package jsdom

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"syscall/js"

	"github.com/JakeFAU/storefront/internal/navaccel"
)

// Window wraps the global window object.
type Window struct {
	v js.Value
}

// Document wraps window.document.
type Document struct {
	v js.Value
}

var (
	globalOnce sync.Once
	globalWin  *Window
	globalDoc  *Document
)

// Global returns the page's window and document. Every call returns the same
// *Window, so the window has a single init guard. ok is false outside a
// browsing context (workers, node without a DOM shim).
func Global() (win *Window, doc *Document, ok bool) {
	globalOnce.Do(func() {
		w := js.Global().Get("window")
		if !w.Truthy() {
			return
		}
		d := w.Get("document")
		if !d.Truthy() {
			return
		}
		globalWin, globalDoc = &Window{v: w}, &Document{v: d}
	})
	return globalWin, globalDoc, globalWin != nil
}

// AddEventListener registers fn on the window.
func (w *Window) AddEventListener(eventType string, fn navaccel.Listener, opts navaccel.ListenerOptions) func() {
	return addListener(w.v, eventType, fn, opts)
}

// Fetch issues fetch(url, {credentials: "include"}) and waits for the response.
func (w *Window) Fetch(ctx context.Context, rawURL string) error {
	fetch := w.v.Get("fetch")
	if fetch.Type() != js.TypeFunction {
		return errors.New("fetch is not available")
	}
	init := map[string]any{
		"method":      "GET",
		"credentials": "include",
		"headers":     map[string]any{"Accept": navaccel.AcceptHTML},
	}

	type result struct {
		status int
		err    error
	}
	done := make(chan result, 1)
	onOK := js.FuncOf(func(_ js.Value, args []js.Value) any {
		resp := args[0]
		if !resp.Get("ok").Bool() {
			done <- result{status: resp.Get("status").Int(), err: fmt.Errorf("unexpected status %d", resp.Get("status").Int())}
			return nil
		}
		done <- result{status: resp.Get("status").Int()}
		return nil
	})
	onErr := js.FuncOf(func(_ js.Value, args []js.Value) any {
		msg := "fetch rejected"
		if len(args) > 0 && args[0].Truthy() {
			msg = args[0].Call("toString").String()
		}
		done <- result{err: errors.New(msg)}
		return nil
	})
	defer onOK.Release()
	defer onErr.Release()

	if err := call(func() { w.v.Call("fetch", rawURL, init).Call("then", onOK, onErr) }); err != nil {
		return fmt.Errorf("prefetch %s: %w", rawURL, err)
	}
	select {
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("prefetch %s: %w", rawURL, r.err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("prefetch %s: %w", rawURL, ctx.Err())
	}
}

// AddEventListener registers fn on the document.
func (d *Document) AddEventListener(eventType string, fn navaccel.Listener, opts navaccel.ListenerOptions) func() {
	return addListener(d.v, eventType, fn, opts)
}

// Location parses document.location.href.
func (d *Document) Location() *url.URL {
	href := d.v.Get("location").Get("href").String()
	u, err := url.Parse(href)
	if err != nil {
		return nil
	}
	return u
}

// SetRootClass toggles name on document.documentElement.
func (d *Document) SetRootClass(name string, on bool) {
	root := d.v.Get("documentElement")
	if !root.Truthy() {
		return
	}
	root.Get("classList").Call("toggle", name, on)
}

type element struct {
	v js.Value
}

func (e element) Closest(selector string) navaccel.Element {
	var found js.Value
	if err := call(func() { found = e.v.Call("closest", selector) }); err != nil {
		return nil
	}
	if !found.Truthy() {
		return nil
	}
	return element{v: found}
}

func (e element) Attribute(name string) (string, bool) {
	if !e.v.Call("hasAttribute", name).Bool() {
		return "", false
	}
	return e.v.Call("getAttribute", name).String(), true
}

type event struct {
	v js.Value
}

func (e event) Type() string { return e.v.Get("type").String() }

func (e event) Target() navaccel.Element {
	t := e.v.Get("target")
	if !t.Truthy() {
		return nil
	}
	// Text nodes have no closest(); climb to their parent element.
	if t.Get("closest").Type() != js.TypeFunction {
		t = t.Get("parentElement")
		if !t.Truthy() || t.Get("closest").Type() != js.TypeFunction {
			return nil
		}
	}
	return element{v: t}
}

func (e event) DefaultPrevented() bool { return e.v.Get("defaultPrevented").Bool() }

type mouseEvent struct {
	event
}

func (e mouseEvent) Button() int { return e.v.Get("button").Int() }

func (e mouseEvent) ModifierKey() bool {
	for _, k := range []string{"ctrlKey", "metaKey", "shiftKey", "altKey"} {
		if e.v.Get(k).Bool() {
			return true
		}
	}
	return false
}

func wrapEvent(v js.Value) navaccel.Event {
	if v.Get("button").Type() == js.TypeNumber {
		return mouseEvent{event{v: v}}
	}
	return event{v: v}
}

func addListener(target js.Value, eventType string, fn navaccel.Listener, opts navaccel.ListenerOptions) func() {
	cb := js.FuncOf(func(_ js.Value, args []js.Value) any {
		if len(args) > 0 {
			fn(wrapEvent(args[0]))
		}
		return nil
	})
	target.Call("addEventListener", eventType, cb, map[string]any{
		"capture": opts.Capture,
		"passive": opts.Passive,
	})
	released := false
	return func() {
		if released {
			return
		}
		released = true
		target.Call("removeEventListener", eventType, cb, map[string]any{"capture": opts.Capture})
		cb.Release()
	}
}

// call converts a thrown JavaScript exception into an error.
func call(fn func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if jsErr, ok := rec.(js.Error); ok {
				err = jsErr
				return
			}
			err = fmt.Errorf("javascript call panicked: %v", rec)
		}
	}()
	fn()
	return nil
}
