package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"docbrief/internal/model"
)

// Fingerprint content-addresses normalized input.
func Fingerprint(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

type call struct {
	done   chan struct{}
	result model.SummaryResult
	err    error
}

type resolved struct {
	result     model.SummaryResult
	resolvedAt time.Time
}

// Cache coalesces concurrent identical computations and serves
// resolved results for the TTL. At most one computation is in flight
// per fingerprint: registration is an insert-if-absent under the
// mutex, never a separate check followed by a write.
type Cache struct {
	mu       sync.Mutex
	inflight map[string]*call
	items    map[string]resolved

	ttl           time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger

	now func() time.Time
}

func NewCache(ttl, sweepInterval time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	return &Cache{
		inflight:      make(map[string]*call),
		items:         make(map[string]resolved),
		ttl:           ttl,
		sweepInterval: sweepInterval,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Do computes the result for fp via fn at most once across all
// concurrent callers; the second return reports a cache hit. fn errors
// propagate to every waiter and clear the registration, so a failed
// fingerprint is immediately retryable.
func (c *Cache) Do(ctx context.Context, fp string, fn func(ctx context.Context) (model.SummaryResult, error)) (model.SummaryResult, bool, error) {
	c.mu.Lock()
	if r, ok := c.items[fp]; ok {
		if c.now().Sub(r.resolvedAt) <= c.ttl {
			c.mu.Unlock()
			return r.result, true, nil
		}
		delete(c.items, fp)
	}
	if cl, ok := c.inflight[fp]; ok {
		c.mu.Unlock()
		select {
		case <-cl.done:
			return cl.result, true, cl.err
		case <-ctx.Done():
			return model.SummaryResult{}, false, ctx.Err()
		}
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[fp] = cl
	c.mu.Unlock()

	res, err := fn(ctx)

	c.mu.Lock()
	delete(c.inflight, fp)
	if err == nil {
		c.items[fp] = resolved{result: res, resolvedAt: c.now()}
	}
	c.mu.Unlock()

	cl.result, cl.err = res, err
	close(cl.done)
	return res, false, err
}

// LookupResolved returns a cached result no older than the TTL.
func (c *Cache) LookupResolved(fp string) (model.SummaryResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.items[fp]
	if !ok {
		return model.SummaryResult{}, false
	}
	if c.now().Sub(r.resolvedAt) > c.ttl {
		delete(c.items, fp)
		return model.SummaryResult{}, false
	}
	return r.result, true
}

func (c *Cache) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for fp, r := range c.items {
		if now.Sub(r.resolvedAt) > c.ttl {
			delete(c.items, fp)
			removed++
		}
	}
	return removed
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]resolved)
}

// Start runs the periodic sweep until ctx is cancelled.
func (c *Cache) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := c.SweepExpired(); n > 0 && c.logger != nil {
					c.logger.Debug("dedup sweep", "removed", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
