// Package admission implements a fixed-window request admission filter keyed
// by client address.
package admission

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront/internal/metrics"
)

// Defaults applied to zero-valued Config fields.
const (
	DefaultWindowMs  = 60000
	DefaultMax       = 10
	DefaultKeyPrefix = "rl"
)

// RejectionMessage is the human readable message of a 429 body.
const RejectionMessage = "Too many requests, please try again later."

// Config holds fixed-window limits.
type Config struct {
	WindowMs  int64  `mapstructure:"window_ms"`
	Max       int    `mapstructure:"max"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

func (c Config) withDefaults() Config {
	if c.WindowMs <= 0 {
		c.WindowMs = DefaultWindowMs
	}
	if c.Max <= 0 {
		c.Max = DefaultMax
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	return c
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type window struct {
	count   int
	resetAt time.Time
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Count      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter counts requests per key in fixed windows. A key's window resets on
// the first request observed after it expired; there is no background timer.
// Expired windows of idle keys are swept at most once per window span.
type Limiter struct {
	cfg    Config
	clock  Clock
	logger *zap.Logger

	mu        sync.Mutex
	windows   map[string]*window
	nextSweep time.Time
}

// New creates a Limiter. A nil clock uses wall time.
func New(cfg Config, clock Clock, logger *zap.Logger) *Limiter {
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		cfg:     cfg.withDefaults(),
		clock:   clock,
		logger:  logger.Named("admission"),
		windows: make(map[string]*window),
	}
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Allow counts one request for key and reports whether it is admitted.
func (l *Limiter) Allow(key string) Decision {
	now := l.clock.Now()
	span := time.Duration(l.cfg.WindowMs) * time.Millisecond

	l.mu.Lock()
	if !now.Before(l.nextSweep) {
		l.sweepLocked(now)
		l.nextSweep = now.Add(span)
	}
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(span)}
		l.windows[key] = w
	}
	w.count++
	count, resetAt := w.count, w.resetAt
	l.mu.Unlock()

	d := Decision{
		Allowed:   count <= l.cfg.Max,
		Count:     count,
		Remaining: max(l.cfg.Max-count, 0),
		ResetAt:   resetAt,
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(now)
	}
	return d
}

// sweepLocked drops every window that has expired at now. l.mu must be held.
func (l *Limiter) sweepLocked(now time.Time) {
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

// Key builds the limiter key for r.
func (l *Limiter) Key(r *http.Request) string {
	return l.cfg.KeyPrefix + ":" + ClientKey(r)
}

// Middleware admits or rejects each request.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.Key(r)
		d := l.Allow(key)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}
		l.logger.Warn("request rejected",
			zap.String("key", key),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("count", d.Count),
		)
		metrics.ObserveAdmissionRejected(l.cfg.KeyPrefix)
		WriteRejection(w, d.RetryAfter)
	})
}

// RejectionBody is the JSON payload of a 429 response.
type RejectionBody struct {
	Data    any              `json:"data"`
	Message string           `json:"message"`
	Errors  []RejectionError `json:"errors"`
}

// RejectionError is one entry of RejectionBody.Errors.
type RejectionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteRejection writes the 429 response with Retry-After in whole seconds.
func WriteRejection(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(retryAfter)))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	body := RejectionBody{
		Data:    nil,
		Message: RejectionMessage,
		Errors: []RejectionError{{
			Code:    "rate_limited",
			Message: "request limit for the current window exceeded",
		}},
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("write rejection failed", zap.Error(err))
	}
}

func retrySeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// ClientKey picks the best available client address: the first
// X-Forwarded-For hop, then X-Real-IP, then the RemoteAddr host.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if r.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err == nil && host != "" {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}
