package history

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"docbrief/internal/cache"
	"docbrief/internal/model"
)

// Store keeps each user's recent summaries newest-first, capped at max,
// in a durable cache keyed by user ID.
type Store struct {
	mu    sync.Mutex
	cache *cache.Cache[[]model.HistoryRecord]
	max   int
	now   func() time.Time
}

func NewStore(c *cache.Cache[[]model.HistoryRecord], max int) *Store {
	if max <= 0 {
		max = 10
	}
	return &Store{
		cache: c,
		max:   max,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Append(userID string, res model.SummaryResult) model.HistoryRecord {
	rec := model.HistoryRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		Summary:     res.Summary,
		Model:       res.Model,
		Fingerprint: res.Fingerprint,
		CreatedAt:   s.now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list, _ := s.cache.Get(userID)
	list = append([]model.HistoryRecord{rec}, list...)
	if len(list) > s.max {
		list = list[:s.max]
	}
	s.cache.Set(userID, list)
	return rec
}

func (s *Store) List(userID string, limit int) []model.HistoryRecord {
	list, ok := s.cache.Get(userID)
	if !ok {
		return nil
	}
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]model.HistoryRecord, limit)
	copy(out, list[:limit])
	return out
}

func (s *Store) Clear(userID string) {
	s.cache.Delete(userID)
}
