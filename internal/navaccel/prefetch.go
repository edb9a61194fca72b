package navaccel

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// FetchFunc performs the network request behind a prefetch.
type FetchFunc func(ctx context.Context, rawURL string) error

// Pending is the handle shared by every caller prefetching the same key.
type Pending struct {
	done chan struct{}
}

// Done is closed once the underlying fetch has finished, whatever its outcome.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the fetch finishes or ctx ends.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for prefetch: %w", ctx.Err())
	}
}

var settled = func() *Pending {
	p := &Pending{done: make(chan struct{})}
	close(p.done)
	return p
}()

// Controller deduplicates prefetches by key. A key is fetched at most once
// for the controller's lifetime: failures count as completed and are never
// retried.
type Controller struct {
	fetch  FetchFunc
	logger *zap.Logger

	mu        sync.Mutex
	inFlight  map[string]*Pending
	completed map[string]struct{}
}

// NewController builds a Controller around fetch.
func NewController(fetch FetchFunc, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		fetch:     fetch,
		logger:    logger.Named("prefetch"),
		inFlight:  make(map[string]*Pending),
		completed: make(map[string]struct{}),
	}
}

// Prefetch starts a background fetch of rawURL unless its key is already in
// flight or completed. Callers of an in-flight key get the same handle. The
// fetch is detached from ctx cancellation; only ctx values are carried over.
func (c *Controller) Prefetch(ctx context.Context, rawURL string) *Pending {
	key := Key(rawURL)

	c.mu.Lock()
	if _, ok := c.completed[key]; ok {
		c.mu.Unlock()
		return settled
	}
	if p, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		return p
	}
	p := &Pending{done: make(chan struct{})}
	c.inFlight[key] = p
	c.mu.Unlock()

	go c.run(context.WithoutCancel(ctx), key, p)
	return p
}

// HasPrefetched reports whether a prefetch for rawURL's key has finished.
func (c *Controller) HasPrefetched(rawURL string) bool {
	key := Key(rawURL)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.completed[key]
	return ok
}

func (c *Controller) run(ctx context.Context, key string, p *Pending) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Debug("prefetch panicked", zap.String("url", key), zap.Any("panic", rec))
		}
		c.mu.Lock()
		delete(c.inFlight, key)
		c.completed[key] = struct{}{}
		c.mu.Unlock()
		close(p.done)
	}()

	if c.fetch == nil {
		return
	}
	if err := c.fetch(ctx, key); err != nil {
		c.logger.Debug("prefetch failed", zap.String("url", key), zap.Error(err))
	}
}
