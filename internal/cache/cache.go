package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Backend is one opaque blob, loaded once at startup and overwritten
// whole on every flush.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

type entry[T any] struct {
	Value        T         `json:"value"`
	LastModified time.Time `json:"last_modified"`
}

// Cache is an in-memory string-keyed table with a dirty flag and a
// periodic asynchronous flush. Persistence failures are logged and
// retried, never surfaced to callers.
type Cache[T any] struct {
	mu      sync.Mutex
	flushMu sync.Mutex
	items   map[string]entry[T]
	dirty   bool
	gen     uint64
	backend Backend
	logger  *slog.Logger

	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	started  bool
	closed   bool

	now func() time.Time
}

// New loads the backend's current contents; a load failure means
// starting empty. A nil backend gives a memory-only cache.
func New[T any](backend Backend, interval time.Duration, logger *slog.Logger) *Cache[T] {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	c := &Cache[T]{
		items:    make(map[string]entry[T]),
		backend:  backend,
		logger:   logger,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
	c.load()
	return c
}

func (c *Cache[T]) load() {
	if c.backend == nil {
		return
	}
	data, err := c.backend.Load(context.Background())
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("cache load failed, starting empty", "err", err)
		}
		return
	}
	if len(data) == 0 {
		return
	}
	items := make(map[string]entry[T])
	if err := json.Unmarshal(data, &items); err != nil {
		if c.logger != nil {
			c.logger.Warn("cache decode failed, starting empty", "err", err)
		}
		return
	}
	c.items = items
}

// Start launches the flush loop.
func (c *Cache[T]) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.flushIfDirty(ctx)
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			}
		}
	}()
}

// Close stops the flush loop and forces one final flush.
func (c *Cache[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	c.mu.Unlock()

	close(c.stop)
	if started {
		<-c.done
	}
	return c.Flush(context.Background())
}

func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	return e.Value, ok
}

func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry[T]{Value: value, LastModified: c.now()}
	c.dirty = true
	c.gen++
}

func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; !ok {
		return
	}
	delete(c.items, key)
	c.dirty = true
	c.gen++
}

func (c *Cache[T]) GetAll() map[string]T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]T, len(c.items))
	for k, e := range c.items {
		out[k] = e.Value
	}
	return out
}

func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear empties the table and flushes synchronously.
func (c *Cache[T]) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.items = make(map[string]entry[T])
	c.dirty = true
	c.gen++
	c.mu.Unlock()
	return c.Flush(ctx)
}

// Flush overwrites the backend with the whole table. The dirty flag
// clears only on success. flushMu is held across snapshot and save: a
// later flush must never land before an earlier one, or a stale
// snapshot would durably overwrite a newer state.
func (c *Cache[T]) Flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	if c.backend == nil {
		c.mu.Lock()
		c.dirty = false
		c.mu.Unlock()
		return nil
	}
	c.mu.Lock()
	gen := c.gen
	snapshot := make(map[string]entry[T], len(c.items))
	for k, e := range c.items {
		snapshot[k] = e
	}
	c.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err := c.backend.Save(ctx, data); err != nil {
		return err
	}
	c.mu.Lock()
	// A mutation may have landed while the write was in flight; only the
	// state we actually wrote is clean.
	if c.gen == gen {
		c.dirty = false
	}
	c.mu.Unlock()
	return nil
}

func (c *Cache[T]) flushIfDirty(ctx context.Context) {
	c.mu.Lock()
	dirty := c.dirty
	c.mu.Unlock()
	if !dirty {
		return
	}
	if err := c.Flush(ctx); err != nil {
		if c.logger != nil {
			c.logger.Warn("cache flush failed, will retry", "err", err)
		}
	}
}
