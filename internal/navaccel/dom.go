package navaccel

import (
	"context"
	"net/url"
)

// Event types the lifecycle manager listens for.
const (
	EventPointerEnter = "pointerenter"
	EventFocusIn      = "focusin"
	EventTouchStart   = "touchstart"
	EventClick        = "click"
	EventPageShow     = "pageshow"
	EventPageHide     = "pagehide"
)

// ListenerOptions mirrors the addEventListener options the manager uses.
type ListenerOptions struct {
	Capture bool
	Passive bool
}

// Listener handles one dispatched event.
type Listener func(Event)

// EventTarget registers listeners. The returned function removes the listener
// and must be safe to call more than once.
type EventTarget interface {
	AddEventListener(eventType string, listener Listener, opts ListenerOptions) (remove func())
}

// Element is the read-only view of a DOM element the subsystem needs.
type Element interface {
	// Closest returns the nearest inclusive ancestor matching selector, or nil.
	Closest(selector string) Element
	// Attribute returns the attribute value and whether it is present.
	Attribute(name string) (string, bool)
}

// Event is a dispatched DOM event.
type Event interface {
	Type() string
	// Target returns the element the event was dispatched to, or nil when the
	// target is not an element (document, window, text node without parent).
	Target() Element
	DefaultPrevented() bool
}

// PointerDetails is implemented by mouse events that carry button and
// modifier state.
type PointerDetails interface {
	Button() int
	ModifierKey() bool
}

// Document is the page the manager is attached to.
type Document interface {
	EventTarget
	// Location returns the current absolute URL. Callers must not cache it.
	Location() *url.URL
	// SetRootClass adds or removes a class on the root element.
	SetRootClass(name string, on bool)
}

// Window is the runtime handle owning the document. Implementations must be
// comparable (pointer types) since the init guard is keyed by window.
type Window interface {
	EventTarget
	// Fetch issues a credentialed GET asking for an HTML response.
	Fetch(ctx context.Context, rawURL string) error
}
