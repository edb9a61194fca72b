package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	robotsFallbackNote = "robots.txt unreachable; assumed allow-all"
	allowAllRobots     = "User-agent: *\nAllow: /"
	robotsRetryDelay   = 250 * time.Millisecond
)

// robotsTransport answers robots.txt with an allow-all policy when the origin
// times out or fails with a 5xx, so an unhealthy edge never blocks warming.
// Every other request passes straight to base.
type robotsTransport struct {
	base       http.RoundTripper
	retryDelay time.Duration

	mu   sync.Mutex
	note string
}

func newRobotsTransport(base http.RoundTripper) *robotsTransport {
	return &robotsTransport{base: base, retryDelay: robotsRetryDelay}
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil || !strings.EqualFold(req.URL.Path, "/robots.txt") {
		return t.base.RoundTrip(req)
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil && isTimeout(err) {
		// One retry; a second timeout falls back.
		if werr := wait(req.Context(), t.retryDelay); werr != nil {
			return nil, werr
		}
		resp, err = t.base.RoundTrip(req.Clone(req.Context()))
	}
	switch {
	case err != nil && !isTimeout(err):
		return nil, err
	case err == nil && resp.StatusCode < http.StatusInternalServerError:
		return resp, nil
	case err == nil:
		_ = resp.Body.Close()
	}

	t.mu.Lock()
	t.note = robotsFallbackNote
	t.mu.Unlock()
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        make(http.Header),
		Request:       req,
	}, nil
}

// Note reports why the allow-all policy was assumed, or "".
func (t *robotsTransport) Note() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.note
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
