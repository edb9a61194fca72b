package navaccel

import (
	"net/url"
	"strings"
)

// Anchor is the read-only view of an anchor element's navigation attributes.
type Anchor struct {
	Href     string
	Target   string
	Rel      string
	Download bool
	// Resolved is the absolute URL the runtime resolved Href to. When empty
	// Href is resolved against the current location.
	Resolved string
}

// AnchorFromElement reads the attributes Evaluate needs from el.
func AnchorFromElement(el Element) Anchor {
	var a Anchor
	a.Href, _ = el.Attribute("href")
	a.Target, _ = el.Attribute("target")
	a.Rel, _ = el.Attribute("rel")
	_, a.Download = el.Attribute("download")
	return a
}

// Evaluate decides whether anchor points to a same-origin page other than
// current and returns its absolute destination, fragment included.
func Evaluate(anchor Anchor, current *url.URL) (*url.URL, bool) {
	href := strings.TrimSpace(anchor.Href)
	switch {
	case href == "":
		return nil, false
	case strings.HasPrefix(href, "#"):
		return nil, false
	case anchor.Download:
		return nil, false
	case !sameContextTarget(anchor.Target):
		return nil, false
	case hasRelToken(anchor.Rel, "external"):
		return nil, false
	case current == nil:
		return nil, false
	}

	dest, err := resolve(anchor, current)
	if err != nil {
		return nil, false
	}
	if origin(dest) != origin(current) {
		return nil, false
	}
	if pathOf(dest) == pathOf(current) && dest.RawQuery == current.RawQuery {
		return nil, false
	}
	return dest, true
}

// Key returns the dedup key for rawURL: the URL with its fragment removed.
func Key(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		if i := strings.IndexByte(rawURL, '#'); i >= 0 {
			return rawURL[:i]
		}
		return rawURL
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

func resolve(anchor Anchor, current *url.URL) (*url.URL, error) {
	if anchor.Resolved != "" {
		return url.Parse(anchor.Resolved)
	}
	ref, err := url.Parse(strings.TrimSpace(anchor.Href))
	if err != nil {
		return nil, err
	}
	return current.ResolveReference(ref), nil
}

func sameContextTarget(target string) bool {
	t := strings.TrimSpace(target)
	return t == "" || strings.EqualFold(t, "_self")
}

func hasRelToken(rel, token string) bool {
	for _, f := range strings.Fields(rel) {
		if strings.EqualFold(f, token) {
			return true
		}
	}
	return false
}

// origin is the scheme://host[:port] triple with default ports elided. URLs
// without a host get an opaque origin that never matches.
func origin(u *url.URL) string {
	if u.Host == "" {
		return "null:" + u.String()
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		return scheme + "://" + host + ":" + port
	}
	return scheme + "://" + host
}

func pathOf(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		return "/"
	}
	return p
}
