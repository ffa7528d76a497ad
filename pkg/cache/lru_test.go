package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLRUCache(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"SetAndGet", testSetAndGet},
		{"GetMiss", testGetMiss},
		{"GetExpired", testGetExpired},
		{"SetOverMaxSizeEvictsOldest", testSetOverMaxSizeEvictsOldest},
		{"InvalidateRemovesEntry", testInvalidateRemovesEntry},
		{"InvalidatePrefix", testInvalidatePrefix},
		{"InvalidateAllClearsCache", testInvalidateAllClearsCache},
		{"SetUpdatesExisting", testSetUpdatesExisting},
		{"ConcurrentAccess", testConcurrentAccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func testSetAndGet(t *testing.T) {
	c := NewLRUCache(10, 5*time.Second)
	c.Set("key1", []byte("value1"))

	got, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected cache hit, got miss")
	}
	if string(got) != "value1" {
		t.Fatalf("expected %q, got %q", "value1", string(got))
	}
}

func testGetMiss(t *testing.T) {
	c := NewLRUCache(10, 5*time.Second)

	got, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss, got hit")
	}
	if got != nil {
		t.Fatalf("expected nil value on miss, got %q", string(got))
	}
}

func testGetExpired(t *testing.T) {
	c := NewLRUCache(10, 50*time.Millisecond)
	c.Set("key1", []byte("value1"))

	if _, ok := c.Get("key1"); !ok {
		t.Fatal("expected cache hit before expiry")
	}

	time.Sleep(100 * time.Millisecond)

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected cache miss after expiry, got hit")
	}
	if c.Size() != 0 {
		t.Fatalf("expected size 0 after expired get, got %d", c.Size())
	}
}

func testSetOverMaxSizeEvictsOldest(t *testing.T) {
	c := NewLRUCache(3, 5*time.Second)

	c.Set("a", []byte("1"))
	time.Sleep(time.Millisecond)
	c.Set("b", []byte("2"))
	time.Sleep(time.Millisecond)
	c.Set("c", []byte("3"))
	time.Sleep(time.Millisecond)
	c.Set("d", []byte("4"))

	if c.Size() != 3 {
		t.Fatalf("expected size 3, got %d", c.Size())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected oldest entry to be evicted")
	}
	if _, ok := c.Get("d"); !ok {
		t.Fatal("expected newest entry to be present")
	}
}

func testInvalidateRemovesEntry(t *testing.T) {
	c := NewLRUCache(10, 5*time.Second)
	c.Set("key1", []byte("value1"))
	c.Set("key2", []byte("value2"))

	c.Invalidate("key1")

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected invalidated key to be gone")
	}
	if _, ok := c.Get("key2"); !ok {
		t.Fatal("expected untouched key to remain")
	}
}

func testInvalidatePrefix(t *testing.T) {
	c := NewLRUCache(10, 5*time.Second)
	c.Set("/assets/abc", []byte("1"))
	c.Set("/assets/abc/revisions", []byte("2"))
	c.Set("/assets/xyz", []byte("3"))

	c.InvalidatePrefix("/assets/abc")

	if _, ok := c.Get("/assets/abc"); ok {
		t.Fatal("expected prefixed key to be gone")
	}
	if _, ok := c.Get("/assets/abc/revisions"); ok {
		t.Fatal("expected prefixed sub-route key to be gone")
	}
	if _, ok := c.Get("/assets/xyz"); !ok {
		t.Fatal("expected unrelated key to remain")
	}
}

func testInvalidateAllClearsCache(t *testing.T) {
	c := NewLRUCache(10, 5*time.Second)
	c.Set("key1", []byte("value1"))
	c.Set("key2", []byte("value2"))

	c.InvalidateAll()

	if c.Size() != 0 {
		t.Fatalf("expected empty cache, got size %d", c.Size())
	}
}

func testSetUpdatesExisting(t *testing.T) {
	c := NewLRUCache(10, 5*time.Second)
	c.Set("key1", []byte("old"))
	c.Set("key1", []byte("new"))

	got, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got) != "new" {
		t.Fatalf("expected updated value, got %q", string(got))
	}
	if c.Size() != 1 {
		t.Fatalf("expected size 1, got %d", c.Size())
	}
}

func testConcurrentAccess(t *testing.T) {
	c := NewLRUCache(100, 5*time.Second)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", n, j)
				c.Set(key, []byte("v"))
				c.Get(key)
				if j%10 == 0 {
					c.Invalidate(key)
				}
			}
		}(i)
	}
	wg.Wait()
}
