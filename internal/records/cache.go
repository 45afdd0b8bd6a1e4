// Package records keeps one screen's in-memory copy of a remote collection.
package records

import (
	"context"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"bizbook/core/internal/domain"
	"bizbook/core/internal/logging"
	"bizbook/core/internal/metrics"
)

// Source is the remote side of one entity kind.
type Source[T domain.Entity, D any] interface {
	Kind() domain.Kind
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, draft D) (T, error)
	Update(ctx context.Context, id string, draft D) (T, error)
	Delete(ctx context.Context, id string) error
}

type Snapshot[T domain.Entity] struct {
	Items   []T
	Loading bool
	LastErr error
}

// Cache is an ordered, newest-first list of records mirroring the server.
// Mutations are applied only after the server accepts them, using the record
// the server returned. Loads are token-guarded: only the newest Load may
// replace the list, and Clear discards everything in flight.
type Cache[T domain.Entity, D any] struct {
	source  Source[T, D]
	logger  *logrus.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	items      []T
	loading    bool
	lastErr    error
	token      uint64
	epoch      uint64
	cancelLoad context.CancelFunc
	onChange   func(Snapshot[T])
}

func New[T domain.Entity, D any](source Source[T, D], logger *logrus.Logger, m *metrics.Metrics) *Cache[T, D] {
	return &Cache[T, D]{
		source:  source,
		logger:  logging.OrDiscard(logger),
		metrics: m,
	}
}

// OnChange registers a callback invoked after every state change. It runs
// outside the cache lock.
func (c *Cache[T, D]) OnChange(fn func(Snapshot[T])) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Cache[T, D]) Kind() domain.Kind {
	return c.source.Kind()
}

// Load replaces the list with the full remote collection. A Load that is
// superseded by a newer Load or by Clear returns nil without touching state.
func (c *Cache[T, D]) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.cancelLoad != nil {
		c.cancelLoad()
	}
	c.token++
	token := c.token
	loadCtx, cancel := context.WithCancel(ctx)
	c.cancelLoad = cancel
	c.loading = true
	c.mu.Unlock()
	c.notify()

	items, err := c.source.List(loadCtx)

	c.mu.Lock()
	if token != c.token {
		c.mu.Unlock()
		cancel()
		c.metrics.Discarded("records")
		c.logger.WithField("kind", c.source.Kind()).Debug("discarded superseded load")
		return nil
	}
	cancel()
	c.cancelLoad = nil
	c.loading = false
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		logging.LogError(c.logger, "records", "Load", string(c.source.Kind()), nil, err)
		c.notify()
		return err
	}
	c.items = dedupe(items)
	c.lastErr = nil
	c.mu.Unlock()
	c.notify()
	return nil
}

// Create sends the draft and prepends the record the server returned. If a
// racing load already brought that id in, it is replaced where it stands.
func (c *Cache[T, D]) Create(ctx context.Context, draft D) (T, error) {
	epoch := c.currentEpoch()
	created, err := c.source.Create(ctx, draft)
	if err != nil {
		var zero T
		c.fail("Create", nil, err)
		return zero, err
	}

	c.mu.Lock()
	if epoch == c.epoch {
		if i := c.indexOf(created.EntityID()); i >= 0 {
			c.items[i] = created
		} else {
			c.items = append([]T{created}, c.items...)
		}
	}
	c.mu.Unlock()
	c.notify()
	return created, nil
}

// Update sends the draft and replaces the record with the matching id in place.
func (c *Cache[T, D]) Update(ctx context.Context, id string, draft D) (T, error) {
	epoch := c.currentEpoch()
	updated, err := c.source.Update(ctx, id, draft)
	if err != nil {
		var zero T
		c.fail("Update", map[string]string{"id": id}, err)
		return zero, err
	}

	c.mu.Lock()
	if epoch == c.epoch {
		if i := c.indexOf(id); i >= 0 {
			c.items[i] = updated
			c.items = dedupe(c.items)
		}
	}
	c.mu.Unlock()
	c.notify()
	return updated, nil
}

// Delete removes the record once the server confirms. On failure the list is
// left exactly as it was.
func (c *Cache[T, D]) Delete(ctx context.Context, id string) error {
	epoch := c.currentEpoch()
	if err := c.source.Delete(ctx, id); err != nil {
		c.fail("Delete", map[string]string{"id": id}, err)
		return err
	}

	c.mu.Lock()
	if epoch == c.epoch {
		c.items = slices.DeleteFunc(c.items, func(item T) bool {
			return item.EntityID() == id
		})
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// Clear empties the cache when its screen loses focus. In-flight loads are
// cancelled and mutations started before the clear are not applied locally;
// the next Load picks them up from the server.
func (c *Cache[T, D]) Clear() {
	c.mu.Lock()
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	c.token++
	c.epoch++
	c.items = nil
	c.loading = false
	c.lastErr = nil
	c.mu.Unlock()
	c.notify()
}

func (c *Cache[T, D]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Cache[T, D]) Get(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

func (c *Cache[T, D]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[T, D]) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

func (c *Cache[T, D]) fail(funcName string, data any, err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	logging.LogError(c.logger, "records", funcName, string(c.source.Kind()), data, err)
	c.notify()
}

func (c *Cache[T, D]) snapshotLocked() Snapshot[T] {
	return Snapshot[T]{
		Items:   slices.Clone(c.items),
		Loading: c.loading,
		LastErr: c.lastErr,
	}
}

func (c *Cache[T, D]) notify() {
	c.mu.Lock()
	fn := c.onChange
	snap := c.snapshotLocked()
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

func (c *Cache[T, D]) indexOf(id string) int {
	return slices.IndexFunc(c.items, func(item T) bool {
		return item.EntityID() == id
	})
}

// dedupe keeps the first occurrence of every id.
func dedupe[T domain.Entity](items []T) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		id := item.EntityID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, item)
	}
	return out
}
