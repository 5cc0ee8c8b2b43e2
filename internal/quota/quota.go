package quota

import (
	"sync"
	"time"

	"docbrief/internal/cache"
	"docbrief/internal/model"
)

// Tracker enforces a per-user limit over a rolling window starting at
// each user's first request. The mutex covers the whole
// read-rollover-increment-write step, so concurrent checks cannot
// double-spend within a process.
type Tracker struct {
	mu     sync.Mutex
	cache  *cache.Cache[model.QuotaRecord]
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewTracker(c *cache.Cache[model.QuotaRecord], limit int, window time.Duration) *Tracker {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Tracker{
		cache:  c,
		limit:  limit,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (t *Tracker) CheckAndConsume(userID string) model.QuotaStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	rec := t.current(userID, now)
	remaining := t.limit - rec.Count
	if remaining <= 0 {
		return model.QuotaStatus{
			Allowed:   false,
			Used:      rec.Count,
			Remaining: 0,
			ResetAt:   rec.ResetAt,
		}
	}
	rec.Count++
	t.cache.Set(userID, rec)
	return model.QuotaStatus{
		Allowed:   true,
		Used:      rec.Count,
		Remaining: t.limit - rec.Count,
		ResetAt:   rec.ResetAt,
	}
}

func (t *Tracker) Peek(userID string) model.QuotaStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.current(userID, t.now())
	remaining := t.limit - rec.Count
	if remaining < 0 {
		remaining = 0
	}
	return model.QuotaStatus{
		Allowed:   remaining > 0,
		Used:      rec.Count,
		Remaining: remaining,
		ResetAt:   rec.ResetAt,
	}
}

// current applies window rollover without writing anything back.
func (t *Tracker) current(userID string, now time.Time) model.QuotaRecord {
	rec, ok := t.cache.Get(userID)
	if !ok || !now.Before(rec.ResetAt) {
		return model.QuotaRecord{
			UserID:  userID,
			Count:   0,
			ResetAt: now.Add(t.window),
		}
	}
	return rec
}

func (t *Tracker) Reset(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Delete(userID)
}

// SweepExpired removes records whose window has closed. Rollover is
// lazy, so this only bounds storage growth.
func (t *Tracker) SweepExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for userID, rec := range t.cache.GetAll() {
		if !now.Before(rec.ResetAt) {
			t.cache.Delete(userID)
			removed++
		}
	}
	return removed
}

func (t *Tracker) Limit() int {
	return t.limit
}
