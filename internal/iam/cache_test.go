package iam

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	current time.Time
}

func (f *fakeClock) now() time.Time { return f.current }

func newCountingServer(t *testing.T, body func(call int32) string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		call := calls.Add(1)
		_, _ = w.Write([]byte(body(call)))
	}))
	t.Cleanup(server.Close)

	return server, &calls
}

func TestCache_ReusesTokenUntilRefreshMargin(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{current: time.Unix(1_700_000_000, 0)}
	server, calls := newCountingServer(t, func(call int32) string {
		expiration := clock.current.Add(10 * time.Minute).Unix()

		return fmt.Sprintf(`{"access_token":"token-%d","expiration":%d}`, call, expiration)
	})

	cache := newCacheWithClock(NewExchanger(server.URL, time.Second), time.Minute, clock.now)
	ctx := context.Background()

	first, err := cache.Exchange(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "Bearer token-1", first)

	clock.current = clock.current.Add(5 * time.Minute)

	second, err := cache.Exchange(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "Bearer token-1", second)
	assert.Equal(t, int32(1), calls.Load())

	// Inside the refresh margin the token must be replaced.
	clock.current = clock.current.Add(4*time.Minute + 30*time.Second)

	third, err := cache.Exchange(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "Bearer token-2", third)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_KeyedByAPIKey(t *testing.T) {
	t.Parallel()

	server, calls := newCountingServer(t, func(call int32) string {
		return fmt.Sprintf(`{"access_token":"token-%d","expires_in":3600}`, call)
	})

	cache := NewCache(NewExchanger(server.URL, time.Second), 0)
	ctx := context.Background()

	first, err := cache.Exchange(ctx, "key-a")
	require.NoError(t, err)

	second, err := cache.Exchange(ctx, "key-b")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, int32(2), calls.Load())

	cache.Invalidate("key-a")

	_, err = cache.Exchange(ctx, "key-a")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCache_UnknownExpiryIsNotCached(t *testing.T) {
	t.Parallel()

	server, calls := newCountingServer(t, func(call int32) string {
		return fmt.Sprintf(`{"access_token":"opaque-%d"}`, call)
	})

	cache := NewCache(NewExchanger(server.URL, time.Second), 0)

	for range 3 {
		_, err := cache.Exchange(context.Background(), "key")
		require.NoError(t, err)
	}

	assert.Equal(t, int32(3), calls.Load())
}

func TestCache_SlowKeyDoesNotBlockOtherKeys(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})

	var slowCalls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.FormValue("apikey")
		if apiKey == "slow" {
			slowCalls.Add(1)
			<-release
		}

		_, _ = fmt.Fprintf(w, `{"access_token":"%s-token","expires_in":3600}`, apiKey)
	}))
	t.Cleanup(server.Close)

	cache := NewCache(NewExchanger(server.URL, 5*time.Second), time.Minute)
	slowDone := make(chan error, 1)

	go func() {
		_, err := cache.Exchange(context.Background(), "slow")
		slowDone <- err
	}()

	require.Eventually(t, func() bool { return slowCalls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	fast, err := cache.Exchange(ctx, "fast")
	close(release)
	require.NoError(t, err)
	assert.Equal(t, "Bearer fast-token", fast)
	require.NoError(t, <-slowDone)
}

func TestCache_SameKeySharesOneExchange(t *testing.T) {
	t.Parallel()

	server, calls := newCountingServer(t, func(call int32) string {
		time.Sleep(50 * time.Millisecond)

		return fmt.Sprintf(`{"access_token":"token-%d","expires_in":3600}`, call)
	})

	cache := NewCache(NewExchanger(server.URL, 5*time.Second), time.Minute)

	var waitGroup sync.WaitGroup

	for range 5 {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			bearer, err := cache.Exchange(context.Background(), "shared")
			assert.NoError(t, err)
			assert.Equal(t, "Bearer token-1", bearer)
		}()
	}

	waitGroup.Wait()
	assert.Equal(t, int32(1), calls.Load())
}
