package linkcheck

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache_MissReturnsNilNil(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	entry, err := c.Get(context.Background(), "https://example.com/")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry != nil {
		t.Errorf("expected nil on miss, got %+v", entry)
	}
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	ctx := context.Background()

	if err := c.Set(ctx, &CacheEntry{URL: "https://example.com/", Status: 200, IsValid: true}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	entry, err := c.Get(ctx, "https://example.com/")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry == nil || !entry.IsValid || entry.Status != 200 {
		t.Errorf("entry = %+v", entry)
	}
	if !c.Valid(entry) {
		t.Error("fresh entry should be valid")
	}
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := NewMemoryCache(time.Millisecond)
	entry := &CacheEntry{URL: "https://example.com/", IsValid: true, LastChecked: time.Now().Add(-time.Second)}
	if c.Valid(entry) {
		t.Error("stale entry should not be valid")
	}
	if c.Valid(nil) {
		t.Error("nil entry should not be valid")
	}
}

func TestMemoryCache_GetReturnsCopy(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	ctx := context.Background()
	_ = c.Set(ctx, &CacheEntry{URL: "u", Status: 200, IsValid: true})

	first, _ := c.Get(ctx, "u")
	first.IsValid = false

	second, _ := c.Get(ctx, "u")
	if !second.IsValid {
		t.Error("mutating a returned entry leaked into the cache")
	}
}
