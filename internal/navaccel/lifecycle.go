package navaccel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
)

// DefaultSelector covers opted-in anchors plus header, footer and brand links.
const DefaultSelector = "a[data-prefetch], header a, footer a, .brand a, a.brand"

// DefaultMarkerClass is set on the root element while a navigation is underway.
const DefaultMarkerClass = "is-navigating"

// Options configures Init.
type Options struct {
	// Selector restricts which anchors participate.
	Selector string
	// Fetch replaces the window's default fetch.
	Fetch FetchFunc
	// Document and Window are the environment to attach to. Init is a no-op
	// when either is nil.
	Document Document
	Window   Window
	// Force re-registers even when the window already has an active manager.
	Force bool
	// MarkerClass is the root class toggled around real navigations.
	MarkerClass string
	// Context carries values into prefetch fetches. Defaults to Background.
	Context context.Context
	Logger  *zap.Logger
}

// guards holds the active manager per window.
var guards sync.Map // Window -> *Manager

// Manager wires intent and navigation events for one document.
type Manager struct {
	doc        Document
	win        Window
	selector   string
	marker     string
	ctx        context.Context
	controller *Controller
	logger     *zap.Logger

	mu            sync.Mutex
	removers      []func()
	transitioning atomic.Bool
	torn          bool
}

func inert(logger *zap.Logger) *Manager {
	return &Manager{controller: NewController(nil, logger), logger: logger, torn: true}
}

// Init attaches a Manager to the configured document and window. It returns
// an inert manager, whose Teardown does nothing, when the environment is
// missing or the window already has an active manager and Force is unset.
func Init(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("navaccel")
	if opts.Document == nil || opts.Window == nil {
		logger.Debug("no document or window; navigation acceleration disabled")
		return inert(logger)
	}

	m := &Manager{
		doc:      opts.Document,
		win:      opts.Window,
		selector: selectorOrDefault(opts.Selector, logger),
		marker:   opts.MarkerClass,
		ctx:      opts.Context,
		logger:   logger,
	}
	if m.marker == "" {
		m.marker = DefaultMarkerClass
	}
	if m.ctx == nil {
		m.ctx = context.Background()
	}
	fetch := opts.Fetch
	if fetch == nil {
		fetch = opts.Window.Fetch
	}
	m.controller = NewController(fetch, logger)

	if prev, loaded := guards.LoadOrStore(opts.Window, m); loaded {
		if !opts.Force {
			return inert(logger)
		}
		prev.(*Manager).Teardown()
		guards.Store(opts.Window, m)
	}

	m.register()
	return m
}

// Selector returns the effective anchor selector.
func (m *Manager) Selector() string {
	if m.selector == "" {
		return DefaultSelector
	}
	return m.selector
}

// Controller returns the prefetch controller backing the manager.
func (m *Manager) Controller() *Controller {
	return m.controller
}

// Transitioning reports whether the navigation marker is currently set.
func (m *Manager) Transitioning() bool {
	return m.transitioning.Load()
}

// Teardown removes every listener, clears the marker and releases the
// window guard. It is idempotent.
func (m *Manager) Teardown() {
	m.mu.Lock()
	if m.torn {
		m.mu.Unlock()
		return
	}
	m.torn = true
	removers := m.removers
	m.removers = nil
	m.mu.Unlock()

	for _, remove := range removers {
		m.safely("remove listener", remove)
	}
	m.setTransitioning(false)
	guards.CompareAndDelete(m.win, m)
}

func (m *Manager) register() {
	intent := ListenerOptions{Capture: true, Passive: true}
	m.listen(m.doc, EventPointerEnter, m.onIntent, intent)
	m.listen(m.doc, EventFocusIn, m.onIntent, intent)
	m.listen(m.doc, EventTouchStart, m.onIntent, intent)
	m.listen(m.doc, EventClick, m.onClick, ListenerOptions{Capture: true})
	m.listen(m.win, EventPageShow, m.onPageRestore, ListenerOptions{})
	m.listen(m.win, EventPageHide, m.onPageRestore, ListenerOptions{})
}

func (m *Manager) listen(target EventTarget, eventType string, fn Listener, opts ListenerOptions) {
	m.safely("add listener", func() {
		remove := target.AddEventListener(eventType, fn, opts)
		if remove == nil {
			return
		}
		m.mu.Lock()
		m.removers = append(m.removers, remove)
		m.mu.Unlock()
	})
}

func (m *Manager) onIntent(ev Event) {
	m.safely("intent", func() {
		dest, ok := m.eligible(ev)
		if !ok {
			return
		}
		m.controller.Prefetch(m.ctx, dest)
	})
}

func (m *Manager) onClick(ev Event) {
	m.safely("click", func() {
		if ev.DefaultPrevented() {
			return
		}
		if pd, ok := ev.(PointerDetails); ok && (pd.Button() != 0 || pd.ModifierKey()) {
			return
		}
		if _, ok := m.eligible(ev); !ok {
			return
		}
		m.setTransitioning(true)
	})
}

func (m *Manager) onPageRestore(_ Event) {
	m.setTransitioning(false)
}

func (m *Manager) eligible(ev Event) (string, bool) {
	target := ev.Target()
	if target == nil {
		return "", false
	}
	anchor := target.Closest(m.selector)
	if anchor == nil {
		return "", false
	}
	dest, ok := Evaluate(AnchorFromElement(anchor), m.doc.Location())
	if !ok {
		return "", false
	}
	return dest.String(), true
}

func (m *Manager) setTransitioning(on bool) {
	m.transitioning.Store(on)
	m.safely("toggle marker", func() {
		m.doc.SetRootClass(m.marker, on)
	})
}

// safely runs fn and drops any panic so the host page keeps working.
func (m *Manager) safely(op string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Debug("navaccel handler panicked", zap.String("op", op), zap.Any("panic", rec))
		}
	}()
	fn()
}

func selectorOrDefault(sel string, logger *zap.Logger) string {
	if sel == "" {
		return DefaultSelector
	}
	if _, err := cascadia.ParseGroup(sel); err != nil {
		logger.Warn("invalid anchor selector; using default", zap.String("selector", sel), zap.Error(err))
		return DefaultSelector
	}
	return sel
}
