package attach

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/showroom/internal/bus"
	"github.com/matheus3301/showroom/internal/kv"
	"github.com/matheus3301/showroom/internal/logging"
	"go.uber.org/zap"
)

// Resolver turns storage keys into signed URLs. A positive ttl bypasses any
// server-side cache.
type Resolver interface {
	Resolve(ctx context.Context, keys []string, ttl time.Duration) (map[string]string, error)
}

const urlKeyPrefix = "url:"

// URLCache resolves attachment URLs in batches, caches them for less than
// their signed lifetime, and re-signs visible keys before they expire.
type URLCache struct {
	resolver Resolver
	cache    kv.Cache
	ttl      time.Duration
	refresh  time.Duration
	bus      *bus.Bus
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	visible map[string]time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewURLCache creates a cache. ttl is the signed URL lifetime and refresh the
// re-sign interval; refresh must be shorter than ttl.
func NewURLCache(resolver Resolver, cache kv.Cache, ttl, refresh time.Duration, b *bus.Bus, logger *zap.Logger) *URLCache {
	return &URLCache{
		resolver: resolver,
		cache:    cache,
		ttl:      ttl,
		refresh:  refresh,
		bus:      b,
		logger:   logging.OrNop(logger),
		now:      time.Now,
		visible:  make(map[string]time.Time),
	}
}

// Resolve returns URLs for keys, fetching only cache misses in one batch.
// Keys the server cannot resolve are absent from the result.
func (c *URLCache) Resolve(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	var misses []string
	c.mu.Lock()
	now := c.now()
	for _, k := range keys {
		c.visible[k] = now
	}
	c.mu.Unlock()

	for _, k := range keys {
		v, err := c.cache.Get(ctx, urlKeyPrefix+k)
		switch {
		case err == nil:
			out[k] = v
		case errors.Is(err, kv.ErrMiss):
			misses = append(misses, k)
		default:
			c.logger.Warn("url cache read failed", zap.String("key", k), zap.Error(err))
			misses = append(misses, k)
		}
	}
	if len(misses) == 0 {
		return out, nil
	}
	fresh, err := c.fetch(ctx, misses, 0)
	if err != nil {
		return out, err
	}
	for k, v := range fresh {
		out[k] = v
	}
	return out, nil
}

// Invalidate drops key and fetches a freshly signed URL. Use it when a URL
// failed to load.
func (c *URLCache) Invalidate(ctx context.Context, key string) (string, error) {
	if _, err := c.cache.Del(ctx, urlKeyPrefix+key); err != nil {
		c.logger.Warn("url cache delete failed", zap.String("key", key), zap.Error(err))
	}
	fresh, err := c.fetch(ctx, []string{key}, c.ttl)
	if err != nil {
		return "", err
	}
	u, ok := fresh[key]
	if !ok {
		return "", fmt.Errorf("resolve %s: not found", key)
	}
	c.bus.Emit(bus.AttachChanged, map[string]string{key: u})
	return u, nil
}

// Refresh re-signs every recently visible key. Keys not requested for two
// refresh intervals stop being refreshed.
func (c *URLCache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	cutoff := c.now().Add(-2 * c.refresh)
	keys := make([]string, 0, len(c.visible))
	for k, seen := range c.visible {
		if seen.Before(cutoff) {
			delete(c.visible, k)
			continue
		}
		keys = append(keys, k)
	}
	c.mu.Unlock()
	if len(keys) == 0 {
		return nil
	}
	fresh, err := c.fetch(ctx, keys, c.ttl)
	if err != nil {
		return err
	}
	c.logger.Debug("attachment urls refreshed", zap.Int("count", len(fresh)))
	c.bus.Emit(bus.AttachChanged, fresh)
	return nil
}

// Forget stops refreshing keys, e.g. when their conversation is closed.
func (c *URLCache) Forget(keys ...string) {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.visible, k)
	}
	c.mu.Unlock()
}

func (c *URLCache) fetch(ctx context.Context, keys []string, ttl time.Duration) (map[string]string, error) {
	fresh, err := c.resolver.Resolve(ctx, keys, ttl)
	if err != nil {
		return nil, fmt.Errorf("resolve urls: %w", err)
	}
	for k, v := range fresh {
		// Cached copies expire at the refresh interval, before the signature does.
		if err := c.cache.Set(ctx, urlKeyPrefix+k, v, c.refresh); err != nil {
			c.logger.Warn("url cache write failed", zap.String("key", k), zap.Error(err))
		}
	}
	return fresh, nil
}

// Start runs the refresh loop until Stop or ctx cancellation.
func (c *URLCache) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
					c.logger.Warn("attachment url refresh failed", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the refresh loop and waits for it to exit.
func (c *URLCache) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}
