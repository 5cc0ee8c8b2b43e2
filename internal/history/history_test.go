package history

import (
	"testing"

	"docbrief/internal/cache"
	"docbrief/internal/model"
)

func newStoreForTest(max int) *Store {
	return NewStore(cache.New[[]model.HistoryRecord](nil, 0, nil), max)
}

func TestAppendNewestFirst(t *testing.T) {
	s := newStoreForTest(10)
	s.Append("u1", model.SummaryResult{Summary: "first"})
	s.Append("u1", model.SummaryResult{Summary: "second"})

	list := s.List("u1", 0)
	if len(list) != 2 {
		t.Fatalf("len = %d", len(list))
	}
	if list[0].Summary != "second" || list[1].Summary != "first" {
		t.Fatalf("not newest-first: %v", list)
	}
	if list[0].ID == "" || list[0].ID == list[1].ID {
		t.Fatalf("records missing distinct ids")
	}
}

func TestCapEvictsOldest(t *testing.T) {
	s := newStoreForTest(3)
	for _, v := range []string{"a", "b", "c", "d"} {
		s.Append("u1", model.SummaryResult{Summary: v})
	}
	list := s.List("u1", 0)
	if len(list) != 3 {
		t.Fatalf("len = %d, want cap 3", len(list))
	}
	if list[0].Summary != "d" || list[2].Summary != "b" {
		t.Fatalf("wrong retention order: %v", list)
	}
}

func TestListLimit(t *testing.T) {
	s := newStoreForTest(10)
	for _, v := range []string{"a", "b", "c"} {
		s.Append("u1", model.SummaryResult{Summary: v})
	}
	list := s.List("u1", 2)
	if len(list) != 2 || list[0].Summary != "c" {
		t.Fatalf("limit not applied: %v", list)
	}
}

func TestUsersIsolated(t *testing.T) {
	s := newStoreForTest(10)
	s.Append("u1", model.SummaryResult{Summary: "mine"})
	if list := s.List("u2", 0); list != nil {
		t.Fatalf("u2 sees u1 history: %v", list)
	}
	s.Clear("u1")
	if list := s.List("u1", 0); list != nil {
		t.Fatalf("history survived clear: %v", list)
	}
}
