package attach

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/showroom/internal/kv"
)

type fakeResolver struct {
	mu      sync.Mutex
	batches [][]string
	ttls    []time.Duration
	version int
}

func (f *fakeResolver) Resolve(_ context.Context, keys []string, ttl time.Duration) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, slices.Clone(keys))
	f.ttls = append(f.ttls, ttl)
	f.version++
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if k == "missing" {
			continue
		}
		out[k] = "https://cdn.test/" + k + "?v=" + string(rune('0'+f.version))
	}
	return out, nil
}

func TestURLCacheBatchesMisses(t *testing.T) {
	ctx := context.Background()
	r := &fakeResolver{}
	c := NewURLCache(r, kv.NewMemory(0), 9*time.Minute, 8*time.Minute, nil, nil)

	got, err := c.Resolve(ctx, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || len(r.batches) != 1 || len(r.batches[0]) != 3 {
		t.Fatalf("got %v batches %v", got, r.batches)
	}

	again, err := c.Resolve(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.batches) != 1 {
		t.Errorf("cached keys re-fetched: %v", r.batches)
	}
	if again["a"] != got["a"] {
		t.Errorf("a = %q, want cached %q", again["a"], got["a"])
	}
}

func TestURLCacheInvalidateBypassesCache(t *testing.T) {
	ctx := context.Background()
	r := &fakeResolver{}
	c := NewURLCache(r, kv.NewMemory(0), 9*time.Minute, 8*time.Minute, nil, nil)

	first, _ := c.Resolve(ctx, []string{"a"})
	fresh, err := c.Invalidate(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if fresh == first["a"] {
		t.Error("Invalidate() returned the stale URL")
	}
	if r.ttls[len(r.ttls)-1] != 9*time.Minute {
		t.Errorf("invalidate ttl = %s, want bypass with 9m", r.ttls[len(r.ttls)-1])
	}
	cached, _ := c.Resolve(ctx, []string{"a"})
	if cached["a"] != fresh {
		t.Errorf("cache holds %q, want refreshed %q", cached["a"], fresh)
	}

	if _, err := c.Invalidate(ctx, "missing"); err == nil {
		t.Error("Invalidate(missing) should fail")
	}
}

func TestURLCacheRefreshVisible(t *testing.T) {
	ctx := context.Background()
	r := &fakeResolver{}
	clock := time.Unix(1700000000, 0)
	c := NewURLCache(r, kv.NewMemory(0), 9*time.Minute, 8*time.Minute, nil, nil)
	c.now = func() time.Time { return clock }

	_, _ = c.Resolve(ctx, []string{"a"})
	clock = clock.Add(10 * time.Minute)
	_, _ = c.Resolve(ctx, []string{"b"})

	if err := c.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	last := r.batches[len(r.batches)-1]
	slices.Sort(last)
	if !slices.Equal(last, []string{"a", "b"}) {
		t.Errorf("refresh batch = %v, want [a b]", last)
	}

	clock = clock.Add(10 * time.Minute)
	if err := c.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	last = r.batches[len(r.batches)-1]
	if !slices.Equal(last, []string{"b"}) {
		t.Errorf("refresh batch = %v, want only recently visible [b]", last)
	}
}

func TestURLCacheStartStop(t *testing.T) {
	r := &fakeResolver{}
	c := NewURLCache(r, kv.NewMemory(0), 30*time.Millisecond, 10*time.Millisecond, nil, nil)
	_, _ = c.Resolve(context.Background(), []string{"a"})

	c.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	c.Stop()

	r.mu.Lock()
	n := len(r.batches)
	r.mu.Unlock()
	if n < 2 {
		t.Errorf("batches = %d, want the loop to refresh at least once", n)
	}
}
