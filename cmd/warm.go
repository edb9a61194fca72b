package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"github.com/spf13/cobra"

	collyfetcher "github.com/JakeFAU/storefront/internal/fetcher/colly"
	"github.com/JakeFAU/storefront/internal/navaccel"
	"github.com/JakeFAU/storefront/internal/policy/ratelimit"
	"github.com/JakeFAU/storefront/internal/warm"
)

type warmFlags struct {
	url         string
	selector    string
	maxLinks    int
	failOnError bool
}

func newWarmCmd() *cobra.Command {
	var flags warmFlags
	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Prefetches every eligible link on a storefront page",
		Long: `Loads a page, replays navigation intent on each anchor matching the
prefetch selector and waits for the resulting fetches. The summary is
written to stdout as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			cfg := rt.cfg
			start := flags.url
			if start == "" {
				start = strings.TrimRight(cfg.Server.BaseURL, "/") + "/"
			}
			selector := flags.selector
			if selector == "" {
				selector = cfg.Navigation.Selector
			}
			maxLinks := flags.maxLinks
			if maxLinks <= 0 {
				maxLinks = cfg.Warm.MaxPages
			}

			jar, err := cookiejar.New(nil)
			if err != nil {
				return fmt.Errorf("create cookie jar: %w", err)
			}
			client := &http.Client{
				Jar:       jar,
				Timeout:   cfg.WarmTimeout(),
				Transport: userAgentTransport{base: http.DefaultTransport, agent: cfg.Warm.UserAgent},
			}
			pages := collyfetcher.New(collyfetcher.Config{
				UserAgent:     cfg.Warm.UserAgent,
				RespectRobots: cfg.Warm.RespectRobots,
				Timeout:       cfg.WarmTimeout(),
			}, nil, rt.logger)
			pacer := ratelimit.New(ratelimit.Config{RPS: cfg.Warm.RPS, Burst: cfg.Warm.Burst})

			w := warm.New(pages, pacer, navaccel.HTTPFetch(client), rt.logger)
			report, err := w.Run(cmd.Context(), warm.Options{
				StartURL:     start,
				Selector:     selector,
				MaxLinks:     maxLinks,
				FetchTimeout: cfg.WarmTimeout(),
			})
			if err != nil {
				return fmt.Errorf("warm %s: %w", start, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			if flags.failOnError && report.Failed > 0 {
				return fmt.Errorf("%d of %d prefetches failed", report.Failed, report.Eligible)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.url, "url", "", "page to warm (defaults to server.base_url)")
	cmd.Flags().StringVar(&flags.selector, "selector", "", "anchor selector (defaults to navigation.selector)")
	cmd.Flags().IntVar(&flags.maxLinks, "max-links", 0, "cap on anchors to visit (defaults to warm.max_pages)")
	cmd.Flags().BoolVar(&flags.failOnError, "fail-on-error", false, "exit non-zero when any prefetch fails")
	return cmd
}

type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.agent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	return t.base.RoundTrip(req)
}
