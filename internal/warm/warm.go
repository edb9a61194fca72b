// Package warm replays navigation intent against a rendered storefront page
// so that every eligible link is fetched once, priming caches ahead of users.
package warm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/storefront/internal/fetcher/colly"
	"github.com/JakeFAU/storefront/internal/metrics"
	"github.com/JakeFAU/storefront/internal/navaccel"
	"github.com/JakeFAU/storefront/internal/navaccel/memdom"
)

// PageFetcher loads the start page.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (collyfetcher.Page, error)
}

// Pacer delays outbound requests per host.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// Options configures one warm run.
type Options struct {
	StartURL string
	Selector string
	// MaxLinks caps how many anchors receive intent.
	MaxLinks int
	// FetchTimeout bounds each prefetch.
	FetchTimeout time.Duration
}

// Report summarizes a run.
type Report struct {
	StartURL  string        `json:"start_url"`
	Selector  string        `json:"selector"`
	Anchors   int           `json:"anchors"`
	Eligible  int           `json:"eligible"`
	Fetched   int           `json:"fetched"`
	Failed    int           `json:"failed"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"duration"`
	Failures  []string      `json:"failures,omitempty"`
	// RobotsNote explains an assumed robots.txt policy for the start page.
	RobotsNote string `json:"robots_note,omitempty"`
}

// Warmer drives navaccel over an in-memory copy of a page.
type Warmer struct {
	pages  PageFetcher
	pacer  Pacer
	fetch  navaccel.FetchFunc
	logger *zap.Logger
}

// New constructs a Warmer. fetch performs each link prefetch.
func New(pages PageFetcher, pacer Pacer, fetch navaccel.FetchFunc, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{pages: pages, pacer: pacer, fetch: fetch, logger: logger.Named("warm")}
}

// Run fetches the start page, focuses each matching anchor and waits for the
// resulting prefetches.
func (w *Warmer) Run(ctx context.Context, opts Options) (Report, error) {
	if opts.StartURL == "" {
		return Report{}, errors.New("start url is required")
	}
	if w.fetch == nil {
		return Report{}, errors.New("fetch func is required")
	}
	began := time.Now()

	page, err := w.pages.Fetch(ctx, opts.StartURL)
	if err != nil {
		return Report{}, fmt.Errorf("fetch start page: %w", err)
	}
	if page.RobotsNote != "" {
		w.logger.Warn("robots policy assumed", zap.String("note", page.RobotsNote))
	}

	tally := &tally{}
	win, err := memdom.New(bytes.NewReader(page.Body), page.URL, memdom.Options{
		Fetch: w.instrument(opts.FetchTimeout, tally),
	})
	if err != nil {
		return Report{}, fmt.Errorf("load start page: %w", err)
	}
	doc := win.Document()

	mgr := navaccel.Init(navaccel.Options{
		Document: doc,
		Window:   win,
		Selector: opts.Selector,
		Force:    true,
		Context:  ctx,
		Logger:   w.logger,
	})
	defer mgr.Teardown()

	report := Report{StartURL: page.URL, Selector: mgr.Selector(), RobotsNote: page.RobotsNote}
	anchors := doc.QuerySelectorAll(mgr.Selector())
	report.Anchors = len(anchors)
	if opts.MaxLinks > 0 && len(anchors) > opts.MaxLinks {
		anchors = anchors[:opts.MaxLinks]
		report.Truncated = true
	}

	seen := make(map[string]struct{})
	var pending []*navaccel.Pending
	for _, a := range anchors {
		if ctx.Err() != nil {
			break
		}
		doc.Focus(a)
		target, ok := navaccel.Evaluate(navaccel.AnchorFromElement(a), doc.Location())
		if !ok {
			continue
		}
		key := navaccel.Key(target.String())
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		// Joins the fetch the focus event started.
		pending = append(pending, mgr.Controller().Prefetch(ctx, key))
	}
	report.Eligible = len(seen)

	for _, p := range pending {
		if err := p.Wait(ctx); err != nil {
			report.Duration = time.Since(began)
			tally.fill(&report)
			return report, fmt.Errorf("wait for prefetches: %w", err)
		}
	}
	report.Duration = time.Since(began)
	tally.fill(&report)
	w.logger.Info("warm complete",
		zap.String("start_url", report.StartURL),
		zap.Int("anchors", report.Anchors),
		zap.Int("eligible", report.Eligible),
		zap.Int("fetched", report.Fetched),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (w *Warmer) instrument(timeout time.Duration, t *tally) navaccel.FetchFunc {
	return func(ctx context.Context, rawURL string) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if w.pacer != nil {
			if err := w.pacer.Wait(ctx, rawURL); err != nil {
				t.record(rawURL, err)
				return err
			}
		}
		start := time.Now()
		err := w.fetch(ctx, rawURL)
		metrics.ObservePrefetch(rawURL, err, time.Since(start))
		t.record(rawURL, err)
		if err != nil {
			w.logger.Debug("prefetch failed", zap.String("url", rawURL), zap.Error(err))
		}
		return err
	}
}

type tally struct {
	mu       sync.Mutex
	fetched  int
	failures []string
}

func (t *tally) record(rawURL string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.failures = append(t.failures, fmt.Sprintf("%s: %v", rawURL, err))
		return
	}
	t.fetched++
}

func (t *tally) fill(r *Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r.Fetched = t.fetched
	r.Failed = len(t.failures)
	r.Failures = append([]string(nil), t.failures...)
}
