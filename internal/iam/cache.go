package iam

import (
	"context"
	"sync"
	"time"
)

// DefaultRefreshMargin is how long before expiry a cached token is replaced.
const DefaultRefreshMargin = 60 * time.Second

// Cache reuses exchanged tokens per API key until they are about to expire.
// Tokens without a known expiry are never cached, so every call still returns
// a token that is valid at the time it is handed out.
type Cache struct {
	exchanger *Exchanger
	margin    time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// cacheEntry serializes exchanges for one API key.
type cacheEntry struct {
	mu    sync.Mutex
	token Token
}

// NewCache wraps exchanger. A non-positive margin uses DefaultRefreshMargin.
func NewCache(exchanger *Exchanger, margin time.Duration) *Cache {
	return newCacheWithClock(exchanger, margin, time.Now)
}

func newCacheWithClock(exchanger *Exchanger, margin time.Duration, now func() time.Time) *Cache {
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}

	return &Cache{
		exchanger: exchanger,
		margin:    margin,
		now:       now,
		mu:        sync.Mutex{},
		entries:   make(map[string]*cacheEntry),
	}
}

// Exchange returns "Bearer <token>" for apiKey, exchanging only when no fresh
// token is cached. Concurrent callers for the same key share one round trip;
// other keys are not held up.
func (c *Cache) Exchange(ctx context.Context, apiKey string) (string, error) {
	entry := c.entry(apiKey)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if c.fresh(entry.token) {
		return entry.token.Header(), nil
	}

	token, err := c.exchanger.ExchangeToken(ctx, apiKey)
	if err != nil {
		entry.token = Token{}

		return "", err
	}

	entry.token = Token{}
	if c.fresh(token) {
		entry.token = token
	}

	return token.Header(), nil
}

// Invalidate drops the cached token for apiKey.
func (c *Cache) Invalidate(apiKey string) {
	c.mu.Lock()
	entry, ok := c.entries[apiKey]
	c.mu.Unlock()

	if !ok {
		return
	}

	entry.mu.Lock()
	entry.token = Token{}
	entry.mu.Unlock()
}

func (c *Cache) entry(apiKey string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[apiKey]
	if !ok {
		entry = &cacheEntry{mu: sync.Mutex{}, token: Token{}}
		c.entries[apiKey] = entry
	}

	return entry
}

func (c *Cache) fresh(token Token) bool {
	if token.Expiry.IsZero() {
		return false
	}

	return c.now().Add(c.margin).Before(token.Expiry)
}
