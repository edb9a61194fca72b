package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitPacesSameHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://shop.example/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://shop.example/b"))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitSeparatesHosts(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/"))
	require.NoError(t, l.Wait(ctx, "https://b.example/"))
	require.Equal(t, 2, l.Hosts())
}

func TestWaitHonoursContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://shop.example/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://shop.example/again"))
}

func TestZeroRPSDisablesPacing(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://shop.example/"))
	}
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "shop.example", hostOf("https://shop.example:8443/x"))
	require.Equal(t, "unknown", hostOf("/relative"))
	require.Equal(t, "unknown", hostOf("://bad"))
}
