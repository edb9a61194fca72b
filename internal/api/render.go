package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront/internal/config"
	"github.com/JakeFAU/storefront/internal/navaccel"
	"github.com/JakeFAU/storefront/internal/shop"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pageNames = []string{"catalog", "product", "cart", "checkout", "account", "admin", "error"}

type navSettings struct {
	Selector      string
	MarkerClass   string
	ScriptEnabled bool
}

type pageRenderer struct {
	nav   navSettings
	pages map[string]*template.Template
}

// pageData is the view model shared by every template.
type pageData struct {
	Title     string
	Nav       navSettings
	CartCount int
	Message   string
	Currency  string

	Products []shop.Product
	Product  shop.Product
	Cart     shop.Cart
	Orders   []shop.Order
	Placed   string
	Form     shop.CheckoutRequest
	Errors   map[string]string
}

func newPageRenderer(cfg config.NavigationConfig) (*pageRenderer, error) {
	nav := navSettings{
		Selector:      cfg.Selector,
		MarkerClass:   cfg.MarkerClass,
		ScriptEnabled: cfg.ScriptEnabled,
	}
	if nav.Selector == "" {
		nav.Selector = navaccel.DefaultSelector
	}
	if nav.MarkerClass == "" {
		nav.MarkerClass = navaccel.DefaultMarkerClass
	}
	funcs := template.FuncMap{
		"money":    formatMoney,
		"imageSrc": imageSrc,
		"safeHTML": func(s string) template.HTML { return template.HTML(s) }, //nolint:gosec // descriptions are sanitized on write
	}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &pageRenderer{nav: nav, pages: pages}, nil
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	tmpl, ok := s.pages.pages[page]
	if !ok {
		s.logger.Error("unknown page", zap.String("page", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	data.Nav = s.pages.nav
	if data.Currency == "" {
		data.Currency = s.currency()
	}
	if sid := sessionID(r.Context()); sid != "" && data.CartCount == 0 {
		if cart, err := s.deps.Shop.Cart(r.Context(), sid); err == nil {
			data.CartCount = cart.ItemCount()
		}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		s.logger.Error("render page", zap.String("page", page), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Debug("write page", zap.Error(err))
	}
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.render(w, r, status, "error", pageData{Title: http.StatusText(status), Message: msg})
}

func (s *Server) currency() string {
	if s.cfg.Shop.Currency != "" {
		return s.cfg.Shop.Currency
	}
	return "USD"
}

func formatMoney(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%s %d.%02d", sign, currency, cents/100, cents%100)
}

// imageSrc returns a browser-loadable URL for a stored object, or "" when the
// URI points somewhere a browser cannot read.
func imageSrc(uri string) string {
	switch {
	case strings.HasPrefix(uri, "https://"), strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "/"):
		return uri
	default:
		return ""
	}
}

// navAssets are the browser build of the navigation accelerator. They are
// produced by go generate or dropped into server.static_dir at deploy time.
var navAssets = []string{"wasm_exec.js", "navaccel.wasm"}

// staticFiles serves files from dir when present, falling back to the
// embedded assets.
func staticFiles(dir string) fs.FS {
	embedded, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	if dir == "" {
		return embedded
	}
	return overlayFS{primary: os.DirFS(dir), fallback: embedded}
}

func hasNavAssets(files fs.FS) bool {
	for _, name := range navAssets {
		if _, err := fs.Stat(files, name); err != nil {
			return false
		}
	}
	return true
}

type overlayFS struct {
	primary  fs.FS
	fallback fs.FS
}

func (o overlayFS) Open(name string) (fs.File, error) {
	f, err := o.primary.Open(name)
	if err == nil {
		return f, nil
	}
	return o.fallback.Open(name)
}
