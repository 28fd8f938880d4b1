package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestRecommendationsRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer mr.Close()

	c := NewRecommendations(mr.Addr(), time.Minute)
	defer c.Close()
	ctx := context.Background()

	if _, ok := c.Get(ctx, "aa", 5); ok {
		t.Fatalf("expected miss on empty cache")
	}
	c.Set(ctx, "aa", 5, []string{"1", "2", "3"})
	recs, ok := c.Get(ctx, "aa", 5)
	if !ok || len(recs) != 3 || recs[0] != "1" {
		t.Fatalf("cached recs %v %v", recs, ok)
	}
	// A different size is a different slot.
	if _, ok := c.Get(ctx, "aa", 3); ok {
		t.Fatalf("expected miss for other size")
	}

	c.Invalidate(ctx, "aa")
	if _, ok := c.Get(ctx, "aa", 5); ok {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestRecommendationsTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer mr.Close()

	c := NewRecommendations(mr.Addr(), time.Second)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "aa", 5, []string{"1"})
	mr.FastForward(2 * time.Second)
	if _, ok := c.Get(ctx, "aa", 5); ok {
		t.Fatalf("expected miss after TTL")
	}
}

func TestRecommendationsNoop(t *testing.T) {
	c := NewRecommendations("", time.Minute)
	ctx := context.Background()
	c.Set(ctx, "aa", 5, []string{"1"})
	if _, ok := c.Get(ctx, "aa", 5); ok {
		t.Fatalf("noop cache should always miss")
	}
	c.Invalidate(ctx, "aa")
	if err := c.Close(); err != nil {
		t.Fatalf("noop close: %v", err)
	}
}
