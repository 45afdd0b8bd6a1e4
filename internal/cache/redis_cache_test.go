package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"bizbook/core/internal/domain"
)

func newRedisPageCache(t *testing.T) (*RedisPageCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	c := NewRedisPageCache(srv.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return c, srv
}

func TestRedisPageCacheRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	c, srv := newRedisPageCache(t)
	key := PageKey(domain.KindProduct, Scope("tok"), "milk", 1, 20)

	if _, ok, err := c.Get(ctx, key); err != nil || ok {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, key, []byte(`[{"id":"p1"}]`), 30*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil || !ok || string(got) != `[{"id":"p1"}]` {
		t.Fatalf("get = %q ok=%v err=%v", got, ok, err)
	}

	srv.FastForward(31 * time.Second)
	if _, ok, _ := c.Get(ctx, key); ok {
		t.Fatalf("entry outlived its ttl")
	}

	if err := c.Set(ctx, key, nil, time.Minute); err != nil {
		t.Fatalf("set nil: %v", err)
	}
	if srv.Exists(key) {
		t.Fatalf("nil value was stored")
	}
}

func TestRedisPageCacheInvalidateKind(t *testing.T) {
	ctx := context.Background()
	c, srv := newRedisPageCache(t)

	var clientKeys []string
	for page := 1; page <= 450; page++ {
		scope := Scope("alice")
		if page%2 == 0 {
			scope = Scope("bob")
		}
		key := PageKey(domain.KindClient, scope, "a", page, 20)
		clientKeys = append(clientKeys, key)
		if err := c.Set(ctx, key, []byte(`[]`), time.Minute); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	productKey := PageKey(domain.KindProduct, Scope("alice"), "a", 1, 20)
	if err := c.Set(ctx, productKey, []byte(`[]`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := srv.Set("unrelated", "x"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := c.InvalidateKind(ctx, domain.KindClient); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	for _, key := range clientKeys {
		if srv.Exists(key) {
			t.Fatalf("client page %s survived invalidation", key)
		}
	}
	if !srv.Exists(productKey) || !srv.Exists("unrelated") {
		t.Fatalf("invalidation reached keys of another kind: %v", srv.Keys())
	}

	if err := c.InvalidateKind(ctx, domain.KindSale); err != nil {
		t.Fatalf("invalidate empty kind: %v", err)
	}
}

func TestRedisPageCacheReportsConnectionErrors(t *testing.T) {
	c, srv := newRedisPageCache(t)
	srv.Close()

	if _, _, err := c.Get(context.Background(), "k"); err == nil {
		t.Fatalf("get against a stopped server returned no error")
	}
}
