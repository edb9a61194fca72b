package navaccel

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestEvaluate_Rules(t *testing.T) {
	t.Parallel()

	current := "https://x.test/products?page=2#top"
	cases := []struct {
		name   string
		anchor Anchor
		want   string
	}{
		{name: "same origin distinct path", anchor: Anchor{Href: "https://x.test/cart"}, want: "https://x.test/cart"},
		{name: "relative path", anchor: Anchor{Href: "cart"}, want: "https://x.test/cart"},
		{name: "keeps fragment", anchor: Anchor{Href: "/cart#reviews"}, want: "https://x.test/cart#reviews"},
		{name: "different query", anchor: Anchor{Href: "/products?page=3"}, want: "https://x.test/products?page=3"},
		{name: "self target", anchor: Anchor{Href: "/cart", Target: "_self"}, want: "https://x.test/cart"},
		{name: "rel without external", anchor: Anchor{Href: "/cart", Rel: "nofollow noopener"}, want: "https://x.test/cart"},
		{name: "default port elided", anchor: Anchor{Href: "https://x.test:443/cart"}, want: "https://x.test:443/cart"},
		{name: "resolved wins", anchor: Anchor{Href: "ignored", Resolved: "https://x.test/orders"}, want: "https://x.test/orders"},
		{name: "empty href", anchor: Anchor{}},
		{name: "blank href", anchor: Anchor{Href: "   "}},
		{name: "fragment only", anchor: Anchor{Href: "#reviews"}},
		{name: "download", anchor: Anchor{Href: "/cart", Download: true}},
		{name: "blank target", anchor: Anchor{Href: "/cart", Target: "_blank"}},
		{name: "named target", anchor: Anchor{Href: "/cart", Target: "preview"}},
		{name: "rel external", anchor: Anchor{Href: "/cart", Rel: "noopener External"}},
		{name: "malformed", anchor: Anchor{Href: "http://[::1"}},
		{name: "cross origin", anchor: Anchor{Href: "https://example.com/cart"}},
		{name: "other scheme", anchor: Anchor{Href: "http://x.test/cart"}},
		{name: "other port", anchor: Anchor{Href: "https://x.test:8443/cart"}},
		{name: "mailto", anchor: Anchor{Href: "mailto:help@x.test"}},
		{name: "same page other fragment", anchor: Anchor{Href: "/products?page=2#reviews"}},
		{name: "same page", anchor: Anchor{Href: "https://x.test/products?page=2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dest, ok := Evaluate(tc.anchor, mustURL(t, current))
			if tc.want == "" {
				require.False(t, ok)
				require.Nil(t, dest)
				return
			}
			require.True(t, ok)
			require.Equal(t, tc.want, dest.String())
		})
	}
}

func TestEvaluate_Examples(t *testing.T) {
	t.Parallel()

	current := mustURL(t, "https://x.test/products")

	dest, ok := Evaluate(Anchor{Href: "https://x.test/cart"}, current)
	require.True(t, ok)
	require.Equal(t, "/cart", dest.Path)

	_, ok = Evaluate(Anchor{Href: "https://example.com/cart"}, current)
	require.False(t, ok)

	_, ok = Evaluate(Anchor{Href: "https://x.test/products#reviews"}, current)
	require.False(t, ok)

	_, ok = Evaluate(Anchor{Href: "https://x.test/cart", Download: true}, current)
	require.False(t, ok)
}

func TestEvaluate_AnyForeignTargetIsIneligible(t *testing.T) {
	t.Parallel()

	current := mustURL(t, "https://x.test/")
	for _, target := range []string{"_blank", "_parent", "_top", "frame1", "x"} {
		_, ok := Evaluate(Anchor{Href: "/cart", Target: target}, current)
		require.False(t, ok, "target %q", target)
	}
}

func TestEvaluate_RootPathEquivalence(t *testing.T) {
	t.Parallel()

	_, ok := Evaluate(Anchor{Href: "https://x.test/"}, mustURL(t, "https://x.test"))
	require.False(t, ok)
}

func TestEvaluate_NilLocation(t *testing.T) {
	t.Parallel()

	_, ok := Evaluate(Anchor{Href: "/cart"}, nil)
	require.False(t, ok)
}

func TestKey_StripsFragment(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://x.test/cart", Key("https://x.test/cart#reviews"))
	require.Equal(t, "https://x.test/cart", Key("https://x.test/cart"))
	require.Equal(t, "https://x.test/cart?a=1", Key("https://x.test/cart?a=1#b"))
	require.Equal(t, "http://[::1", Key("http://[::1#frag"))
}
