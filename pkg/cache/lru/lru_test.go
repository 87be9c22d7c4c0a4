package lru

import (
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestCache(t *testing.T, maxSize int, opts ...Option[string, int]) (*LRU[string, int], *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	opts = append([]Option[string, int]{WithClock[string, int](clock)}, opts...)
	cache := New[string, int](&Config{
		MaxSize:    maxSize,
		DefaultTTL: time.Minute,
	}, opts...)
	t.Cleanup(func() { cache.Close() })
	return cache, clock
}

func TestLRU_Basic(t *testing.T) {
	cache, _ := newTestCache(t, 100)

	cache.Set("key1", 100)
	val, ok := cache.Get("key1")
	if !ok || val != 100 {
		t.Errorf("expected 100, got %d (ok=%v)", val, ok)
	}

	if _, ok = cache.Get("nonexistent"); ok {
		t.Error("expected nonexistent key to not exist")
	}

	cache.Delete("key1")
	if _, ok = cache.Get("key1"); ok {
		t.Error("expected key1 to be deleted")
	}

	cache.Set("a", 1)
	cache.Set("b", 2)
	if cache.Len() != 2 {
		t.Errorf("expected len 2, got %d", cache.Len())
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("expected len 0 after clear, got %d", cache.Len())
	}
}

func TestLRU_MaxSize(t *testing.T) {
	var evicted []string
	cache, _ := newTestCache(t, 3, WithOnEvict(func(key string, _ int) {
		evicted = append(evicted, key)
	}))

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("c", 3)
	cache.Get("a")
	cache.Set("d", 4)

	if _, ok := cache.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := cache.Get("a"); !ok {
		t.Error("expected a to survive after recent access")
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Errorf("unexpected evictions: %v", evicted)
	}
}

// TestLRU_TTLBoundary 到达 ttl 的瞬间即过期
func TestLRU_TTLBoundary(t *testing.T) {
	cache, clock := newTestCache(t, 10)

	cache.SetWithTTL("k", 1, 10*time.Second)

	clock.Advance(10*time.Second - time.Millisecond)
	if _, ok := cache.Get("k"); !ok {
		t.Fatal("expected hit just before ttl")
	}

	clock.Advance(time.Millisecond)
	if _, ok := cache.Get("k"); ok {
		t.Fatal("expected miss at ttl")
	}
	if cache.Len() != 0 {
		t.Errorf("expired entry should be removed on read, len=%d", cache.Len())
	}
}

func TestLRU_RemoveExpired(t *testing.T) {
	cache, clock := newTestCache(t, 10)

	cache.SetWithTTL("short", 1, time.Second)
	cache.SetWithTTL("long", 2, time.Hour)
	clock.Advance(2 * time.Second)

	if n := cache.RemoveExpired(); n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}
	if cache.Len() != 1 {
		t.Errorf("expected len 1, got %d", cache.Len())
	}
}

func TestLRU_CleanupLoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := New[string, int](&Config{
		MaxSize:         10,
		DefaultTTL:      time.Second,
		CleanupInterval: time.Minute,
	}, WithClock[string, int](clock))
	defer cache.Close()

	cache.Set("a", 1)
	clock.BlockUntil(1)
	clock.Advance(time.Minute)

	deadline := time.Now().Add(time.Second)
	for cache.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("cleanup loop did not remove expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLRU_DeleteFunc(t *testing.T) {
	cache, _ := newTestCache(t, 10)

	cache.Set("user:1", 1)
	cache.Set("user:2", 2)
	cache.Set("alert:1", 3)

	n := cache.DeleteFunc(func(key string) bool { return strings.HasPrefix(key, "user:") })
	if n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}
	if _, ok := cache.Get("alert:1"); !ok {
		t.Error("alert:1 should remain")
	}
}

func TestLRU_CloseIdempotent(t *testing.T) {
	cache := New[string, int](&Config{MaxSize: 1, DefaultTTL: time.Second, CleanupInterval: time.Second})
	if err := cache.Close(); err != nil {
		t.Fatal(err)
	}
	if err := cache.Close(); err != nil {
		t.Fatal(err)
	}
}
