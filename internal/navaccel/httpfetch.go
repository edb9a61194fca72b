package navaccel

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// AcceptHTML is the Accept header sent with every prefetch.
const AcceptHTML = "text/html, application/xhtml+xml"

// HTTPFetch returns a FetchFunc issuing GET requests through client. Cookies
// stored in the client's jar are sent along, which is how credentials reach
// the server outside a browser.
func HTTPFetch(client *http.Client) FetchFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, rawURL string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("build prefetch request: %w", err)
		}
		req.Header.Set("Accept", AcceptHTML)
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("prefetch %s: %w", rawURL, err)
		}
		defer resp.Body.Close() //nolint:errcheck // body fully drained below
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			return fmt.Errorf("drain prefetch body: %w", err)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("prefetch %s: unexpected status %d", rawURL, resp.StatusCode)
		}
		return nil
	}
}
