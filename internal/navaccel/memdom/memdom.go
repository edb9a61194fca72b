// Package memdom is an in-memory Document/Window pair backed by goquery.
// It dispatches events with capture and bubble phases on the window and the
// document, which is all the navaccel manager listens on.
package memdom

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/storefront/internal/navaccel"
)

// Options configures a Window.
type Options struct {
	// Client performs the window's default fetch. Its cookie jar carries the
	// credentials. Defaults to http.DefaultClient.
	Client *http.Client
	// Fetch overrides the default fetch entirely.
	Fetch navaccel.FetchFunc
}

// Window is the runtime handle for one loaded page.
type Window struct {
	target
	doc   *Document
	fetch navaccel.FetchFunc
}

// Document is the loaded page.
type Document struct {
	target
	win *Window

	mu       sync.Mutex
	dom      *goquery.Document
	location *url.URL
}

// New parses the HTML in r as the page at location.
func New(r io.Reader, location string, opts Options) (*Window, error) {
	loc, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse location: %w", err)
	}
	if !loc.IsAbs() {
		return nil, fmt.Errorf("location %q is not absolute", location)
	}
	dom, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	w := &Window{fetch: opts.Fetch}
	if w.fetch == nil {
		w.fetch = navaccel.HTTPFetch(opts.Client)
	}
	w.doc = &Document{win: w, dom: dom, location: loc}
	return w, nil
}

// Document returns the window's document.
func (w *Window) Document() *Document {
	return w.doc
}

// Fetch performs the default prefetch request.
func (w *Window) Fetch(ctx context.Context, rawURL string) error {
	return w.fetch(ctx, rawURL)
}

// PageShow dispatches a pageshow event on the window.
func (w *Window) PageShow() {
	w.dispatchAtTarget(&Event{typ: navaccel.EventPageShow})
}

// PageHide dispatches a pagehide event on the window.
func (w *Window) PageHide() {
	w.dispatchAtTarget(&Event{typ: navaccel.EventPageHide})
}

func (w *Window) dispatchAtTarget(ev *Event) {
	for _, fn := range w.listenersFor(ev.typ, phaseAny) {
		fn(ev)
	}
}

// Location returns a copy of the current URL.
func (d *Document) Location() *url.URL {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := *d.location
	return &u
}

// Navigate moves the location without reloading the DOM, like a history
// push or a fragment change.
func (d *Document) Navigate(rawURL string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ref, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	d.location = d.location.ResolveReference(ref)
	return nil
}

// SetRootClass toggles a class on the <html> element.
func (d *Document) SetRootClass(name string, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	root := d.dom.Find("html").First()
	if on {
		root.AddClass(name)
		return
	}
	root.RemoveClass(name)
}

// RootHasClass reports whether the <html> element carries name.
func (d *Document) RootHasClass(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dom.Find("html").First().HasClass(name)
}

// QuerySelector returns the first element matching selector, or nil.
func (d *Document) QuerySelector(selector string) *Element {
	all := d.QuerySelectorAll(selector)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// QuerySelectorAll returns every element matching selector in document order.
func (d *Document) QuerySelectorAll(selector string) []*Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*Element
	d.dom.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{doc: d, sel: s})
	})
	return out
}

// Dispatch runs ev through the capture phase (window, document) and, for
// bubbling events, the bubble phase (document, window). It returns false
// when a listener prevented the default action.
func (d *Document) Dispatch(ev *Event) bool {
	for _, fn := range d.win.listenersFor(ev.typ, phaseCapture) {
		fn(ev)
	}
	for _, fn := range d.listenersFor(ev.typ, phaseCapture) {
		fn(ev)
	}
	if ev.bubbles {
		for _, fn := range d.listenersFor(ev.typ, phaseBubble) {
			fn(ev)
		}
		for _, fn := range d.win.listenersFor(ev.typ, phaseBubble) {
			fn(ev)
		}
	}
	return !ev.prevented
}

// Hover dispatches pointerenter on el.
func (d *Document) Hover(el *Element) {
	d.Dispatch(NewEvent(navaccel.EventPointerEnter, el))
}

// Focus dispatches focusin on el.
func (d *Document) Focus(el *Element) {
	d.Dispatch(NewEvent(navaccel.EventFocusIn, el))
}

// Touch dispatches touchstart on el.
func (d *Document) Touch(el *Element) {
	d.Dispatch(NewEvent(navaccel.EventTouchStart, el))
}

// Click dispatches a primary-button click on el.
func (d *Document) Click(el *Element) bool {
	return d.Dispatch(NewEvent(navaccel.EventClick, el))
}

// Element wraps a single matched node.
type Element struct {
	doc *Document
	sel *goquery.Selection
}

// Closest returns the nearest inclusive ancestor matching selector.
func (e *Element) Closest(selector string) navaccel.Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	s := e.sel.Closest(selector)
	if s.Length() == 0 {
		return nil
	}
	return &Element{doc: e.doc, sel: s.First()}
}

// Attribute returns the attribute value and whether it exists.
func (e *Element) Attribute(name string) (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.sel.Attr(name)
}

// Text returns the element's text content.
func (e *Element) Text() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.sel.Text()
}
