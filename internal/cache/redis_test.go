package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCache(client), mr
}

func TestCacheSetGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	type record struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	if err := c.Set(ctx, "template:1", record{ID: 1, Name: "Agent"}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got record
	if err := c.Get(ctx, "template:1", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != 1 || got.Name != "Agent" {
		t.Fatalf("got %+v", got)
	}
}

func TestCacheGetMiss(t *testing.T) {
	c, _ := newTestCache(t)

	var dest map[string]string
	if err := c.Get(context.Background(), "absent", &dest); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestCacheDelete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "template:1", "x", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Delete(ctx, "template:1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var dest string
	if err := c.Get(ctx, "template:1", &dest); err == nil {
		t.Fatal("key should be gone after delete")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "template:1", "x", 10*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(11 * time.Minute)

	var dest string
	if err := c.Get(ctx, "template:1", &dest); err == nil {
		t.Fatal("expected miss after TTL expiry")
	}
}
