package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"bizbook/core/internal/domain"
)

// PageCache stores encoded picker pages for a short time. Entity cache loads
// never go through it.
type PageCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	InvalidateKind(ctx context.Context, kind domain.Kind) error
}

const keyPrefix = "bizbook:pages:"

func kindPrefix(kind domain.Kind) string {
	return keyPrefix + string(kind) + ":"
}

// PageKey identifies one page of one search over one kind, as seen by one
// session. scope keeps users sharing a Redis from reading each other's pages;
// an empty scope is the unauthenticated view.
func PageKey(kind domain.Kind, scope string, query string, page int, limit int) string {
	if scope == "" {
		scope = "anon"
	}
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return fmt.Sprintf("%s%s:%s:%d:%d", kindPrefix(kind), scope, hex.EncodeToString(sum[:8]), page, limit)
}

// Scope derives a page-cache scope from a bearer token without storing it.
func Scope(token string) string {
	if token == "" {
		return ""
	}
	sum := sha1.Sum([]byte(token))
	return hex.EncodeToString(sum[:8])
}

type NoopPageCache struct{}

func (NoopPageCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopPageCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}

func (NoopPageCache) InvalidateKind(_ context.Context, _ domain.Kind) error {
	return nil
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryPageCache is a process-local PageCache used when Redis is not configured.
type MemoryPageCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryPageCache() *MemoryPageCache {
	return &MemoryPageCache{now: time.Now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryPageCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *MemoryPageCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryPageCache) InvalidateKind(_ context.Context, kind domain.Kind) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := kindPrefix(kind)
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}
