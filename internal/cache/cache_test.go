package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ahmad-alkadri/depot-dataservice/internal/metrics"
)

// fakeRedis keeps values in a map and can be told to fail every call.
type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	failErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return redis.NewStringResult("", f.failErr)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return redis.NewStatusResult("", f.failErr)
	}
	f.values[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return redis.NewIntResult(0, f.failErr)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	m := metrics.NewNop()
	c := newCache(fake, Config{TTL: time.Minute, MaxObjectBytes: 1024}, zerolog.Nop(), m)

	if _, ok := c.Get(ctx, "c", "k"); ok {
		t.Fatal("Expected miss on empty cache")
	}

	c.Set(ctx, "c", "k", []byte("hello"))
	if fake.ttls[cacheKey("c", "k")] != time.Minute {
		t.Errorf("Expected TTL of one minute, got %v", fake.ttls[cacheKey("c", "k")])
	}

	data, ok := c.Get(ctx, "c", "k")
	if !ok || string(data) != "hello" {
		t.Fatalf("Expected hit with 'hello', got %q (%v)", data, ok)
	}

	c.Invalidate(ctx, "c", "k")
	if _, ok := c.Get(ctx, "c", "k"); ok {
		t.Fatal("Expected miss after invalidate")
	}

	if got := testutil.ToFloat64(m.CacheRequests.WithLabelValues("hit")); got != 1 {
		t.Errorf("Expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheRequests.WithLabelValues("miss")); got != 2 {
		t.Errorf("Expected 2 misses, got %v", got)
	}
}

func TestCacheSkipsLargeObjects(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	c := newCache(fake, Config{TTL: time.Minute, MaxObjectBytes: 4}, zerolog.Nop(), nil)

	c.Set(ctx, "c", "big", []byte("too large"))
	if _, ok := fake.values[cacheKey("c", "big")]; ok {
		t.Error("Expected object above the size limit not to be cached")
	}
}

func TestCacheErrorsAreMisses(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	fake.failErr = errors.New("connection refused")
	m := metrics.NewNop()
	c := newCache(fake, Config{TTL: time.Minute}, zerolog.Nop(), m)

	c.Set(ctx, "c", "k", []byte("x"))
	c.Invalidate(ctx, "c", "k")
	if _, ok := c.Get(ctx, "c", "k"); ok {
		t.Fatal("Expected miss when redis fails")
	}
	if got := testutil.ToFloat64(m.CacheRequests.WithLabelValues("error")); got != 1 {
		t.Errorf("Expected 1 error, got %v", got)
	}
}

func TestNewWithoutAddressIsNop(t *testing.T) {
	c := New(Config{}, zerolog.Nop(), nil)
	if _, ok := c.(Nop); !ok {
		t.Fatalf("Expected Nop cache, got %T", c)
	}
	c.Set(context.Background(), "c", "k", []byte("x"))
	if _, ok := c.Get(context.Background(), "c", "k"); ok {
		t.Error("Nop cache must never hit")
	}
}
