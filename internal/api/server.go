// Package api exposes the storefront over HTTP.
package api

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront/internal/admission"
	"github.com/JakeFAU/storefront/internal/config"
	"github.com/JakeFAU/storefront/internal/metrics"
)

// Deps are the collaborators the server needs.
type Deps struct {
	Shop     Shop
	Sessions SessionIDs
	// Ready reports downstream readiness. Nil means always ready.
	Ready func(context.Context) error
	// Clock drives the admission windows. Nil uses wall time.
	Clock admission.Clock
	// MediaDir, when set, is served under /media/.
	MediaDir string
}

// Server wires HTTP handlers to the shop service.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	pages  *pageRenderer
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if deps.Shop == nil || deps.Sessions == nil {
		return nil, errors.New("shop and sessions are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pages, err := newPageRenderer(cfg.Navigation)
	if err != nil {
		return nil, err
	}
	assets := staticFiles(cfg.Server.StaticDir)
	if pages.nav.ScriptEnabled && !hasNavAssets(assets) {
		logger.Warn("navigation script disabled: browser build not found",
			zap.String("static_dir", cfg.Server.StaticDir),
			zap.Strings("missing_any_of", navAssets),
		)
		pages.nav.ScriptEnabled = false
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		pages:  pages,
		logger: logger.Named("api"),
	}

	limiter := func(scope string) *admission.Limiter {
		lc := cfg.RateLimit
		if lc.KeyPrefix == "" {
			lc.KeyPrefix = admission.DefaultKeyPrefix
		}
		lc.KeyPrefix += ":" + scope
		return admission.New(lc, deps.Clock, s.logger)
	}
	cartLimit := limiter("cart")
	checkoutLimit := limiter("checkout")
	adminLimit := limiter("admin")

	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(securityHeadersMiddleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(assets)))
	if deps.MediaDir != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(deps.MediaDir))))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.sessionMiddleware)
		r.Get("/", s.catalogPage)
		r.Get("/products/{slug}", s.productPage)
		r.Get("/cart", s.cartPage)
		r.With(cartLimit.Middleware).Post("/cart/items", s.addToCart)
		r.Post("/cart/items/{product_id}/remove", s.removeFromCart)
		r.Get("/checkout", s.checkoutPage)
		r.With(checkoutLimit.Middleware).Post("/checkout", s.checkout)
		r.Get("/account", s.accountPage)
	})

	r.Route("/admin", func(r chi.Router) {
		r.With(apiKeyMiddleware(cfg.Auth.APIKey)).Get("/", s.adminPage)
		r.Route("/api", func(r chi.Router) {
			r.Use(adminLimit.Middleware)
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
			r.Get("/products", s.adminListProducts)
			r.Post("/products", s.adminCreateProduct)
			r.Put("/products/{slug}/image", s.adminUploadImage)
			r.Get("/orders", s.adminListOrders)
			r.Post("/orders/{order_id}/status", s.adminUpdateOrderStatus)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, r, http.StatusNotFound, "Page not found.")
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" || len(reqID) > 64 {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.String("request_id", requestID(r.Context())),
					zap.Any("error", rec),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// apiKeyMiddleware requires X-API-Key (or ?api_key=) to match expected. An
// empty expected key locks the route entirely.
func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if expected == "" || subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
