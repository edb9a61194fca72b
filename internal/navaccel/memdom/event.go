package memdom

import (
	"sync"

	"github.com/JakeFAU/storefront/internal/navaccel"
)

// Event is a synthetic DOM event.
type Event struct {
	typ       string
	target    *Element
	bubbles   bool
	prevented bool
	button    int
	modifier  bool
}

// NewEvent builds an event of type typ targeted at el. Bubbling follows the
// DOM: pointerenter does not bubble, the other intent and click events do.
func NewEvent(typ string, el *Element) *Event {
	return &Event{
		typ:     typ,
		target:  el,
		bubbles: typ != navaccel.EventPointerEnter,
	}
}

// WithButton sets the mouse button (0 is primary).
func (e *Event) WithButton(button int) *Event {
	e.button = button
	return e
}

// WithModifier marks the event as carrying a ctrl/meta/shift/alt key.
func (e *Event) WithModifier() *Event {
	e.modifier = true
	return e
}

// Type returns the event type.
func (e *Event) Type() string { return e.typ }

// Target returns the target element or nil.
func (e *Event) Target() navaccel.Element {
	if e.target == nil {
		return nil
	}
	return e.target
}

// PreventDefault cancels the event's default action.
func (e *Event) PreventDefault() { e.prevented = true }

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool { return e.prevented }

// Button returns the mouse button.
func (e *Event) Button() int { return e.button }

// ModifierKey reports whether a modifier key was held.
func (e *Event) ModifierKey() bool { return e.modifier }

type phase int

const (
	phaseCapture phase = iota
	phaseBubble
	phaseAny
)

type registration struct {
	eventType string
	fn        navaccel.Listener
	capture   bool
}

// target is the listener registry shared by Window and Document.
type target struct {
	lmu       sync.Mutex
	listeners []*registration
}

// AddEventListener registers fn and returns its remover.
func (t *target) AddEventListener(eventType string, fn navaccel.Listener, opts navaccel.ListenerOptions) func() {
	reg := &registration{eventType: eventType, fn: fn, capture: opts.Capture}
	t.lmu.Lock()
	t.listeners = append(t.listeners, reg)
	t.lmu.Unlock()
	return func() {
		t.lmu.Lock()
		defer t.lmu.Unlock()
		for i, r := range t.listeners {
			if r == reg {
				t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount returns how many listeners are registered for eventType.
func (t *target) ListenerCount(eventType string) int {
	t.lmu.Lock()
	defer t.lmu.Unlock()
	n := 0
	for _, r := range t.listeners {
		if r.eventType == eventType {
			n++
		}
	}
	return n
}

func (t *target) listenersFor(eventType string, p phase) []navaccel.Listener {
	t.lmu.Lock()
	defer t.lmu.Unlock()
	var out []navaccel.Listener
	for _, r := range t.listeners {
		if r.eventType != eventType {
			continue
		}
		if p == phaseCapture && !r.capture || p == phaseBubble && r.capture {
			continue
		}
		out = append(out, r.fn)
	}
	return out
}
