package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type memBackend struct {
	mu       sync.Mutex
	data     []byte
	saves    int
	failSave bool
	failLoad bool
}

func (b *memBackend) Load(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failLoad {
		return nil, errors.New("load failed")
	}
	return b.data, nil
}

func (b *memBackend) Save(ctx context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSave {
		return errors.New("save failed")
	}
	b.data = append([]byte(nil), data...)
	b.saves++
	return nil
}

func (b *memBackend) snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}

func TestSetGetBeforeFlush(t *testing.T) {
	c := New[string](&memBackend{}, 0, nil)
	c.Set("k1", "v1")
	got, ok := c.Get("k1")
	if !ok || got != "v1" {
		t.Fatalf("expected v1, got %q ok=%v", got, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("unexpected hit for missing key")
	}
}

func TestFlushReloadRoundTrip(t *testing.T) {
	backend := &memBackend{}
	c := New[map[string]int](backend, 0, nil)
	c.Set("counts", map[string]int{"a": 1, "b": 2})
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	reloaded := New[map[string]int](backend, 0, nil)
	got, ok := reloaded.Get("counts")
	if !ok {
		t.Fatalf("expected counts after reload")
	}
	if got["a"] != 1 || got["b"] != 2 {
		t.Fatalf("round trip mismatch: %v", got)
	}
}

func TestFlushIdempotent(t *testing.T) {
	backend := &memBackend{}
	c := New[string](backend, 0, nil)
	c.Set("k", "v")
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	first := backend.snapshot()
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if !bytes.Equal(first, backend.snapshot()) {
		t.Fatalf("flush without mutation changed backing store")
	}
}

func TestFailedFlushStaysDirty(t *testing.T) {
	backend := &memBackend{failSave: true}
	c := New[string](backend, 0, nil)
	c.Set("k", "v")
	if err := c.Flush(context.Background()); err == nil {
		t.Fatalf("expected flush error")
	}
	c.mu.Lock()
	dirty := c.dirty
	c.mu.Unlock()
	if !dirty {
		t.Fatalf("dirty flag cleared after failed flush")
	}

	backend.mu.Lock()
	backend.failSave = false
	backend.mu.Unlock()
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	c.mu.Lock()
	dirty = c.dirty
	c.mu.Unlock()
	if dirty {
		t.Fatalf("dirty flag still set after successful flush")
	}
}

func TestFailedLoadStartsEmpty(t *testing.T) {
	backend := &memBackend{failLoad: true}
	c := New[string](backend, 0, nil)
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after failed load")
	}
	c.Set("k", "v")
	if _, ok := c.Get("k"); !ok {
		t.Fatalf("cache unusable after failed load")
	}
}

func TestClearFlushesImmediately(t *testing.T) {
	backend := &memBackend{}
	c := New[string](backend, 0, nil)
	c.Set("k", "v")
	if err := c.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after clear")
	}
	backend.mu.Lock()
	saves := backend.saves
	backend.mu.Unlock()
	if saves == 0 {
		t.Fatalf("clear did not flush")
	}
}

func TestDeleteMarksDirty(t *testing.T) {
	backend := &memBackend{}
	c := New[string](backend, 0, nil)
	c.Set("k", "v")
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	c.Delete("k")
	c.mu.Lock()
	dirty := c.dirty
	c.mu.Unlock()
	if !dirty {
		t.Fatalf("delete did not mark cache dirty")
	}
	if _, ok := c.Get("k"); ok {
		t.Fatalf("key survived delete")
	}
}

func TestCloseForcesFinalFlush(t *testing.T) {
	backend := &memBackend{}
	c := New[string](backend, 0, nil)
	c.Set("k", "v")
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	backend.mu.Lock()
	saves := backend.saves
	backend.mu.Unlock()
	if saves == 0 {
		t.Fatalf("close did not flush")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

type gatedBackend struct {
	mu      sync.Mutex
	data    []byte
	entered chan struct{}
	gate    chan struct{}
}

func (b *gatedBackend) Load(ctx context.Context) ([]byte, error) {
	return nil, nil
}

func (b *gatedBackend) Save(ctx context.Context, data []byte) error {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.gate
	b.mu.Lock()
	b.data = append([]byte(nil), data...)
	b.mu.Unlock()
	return nil
}

func TestClearRacingFlushWinsDurably(t *testing.T) {
	backend := &gatedBackend{
		entered: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	c := New[string](backend, 0, nil)
	c.Set("k", "v")

	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		_ = c.Flush(context.Background())
	}()
	select {
	case <-backend.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("flush never reached the backend")
	}

	clearDone := make(chan struct{})
	go func() {
		defer close(clearDone)
		_ = c.Clear(context.Background())
	}()
	time.Sleep(10 * time.Millisecond)
	close(backend.gate)
	<-flushDone
	<-clearDone

	backend.mu.Lock()
	data := append([]byte(nil), backend.data...)
	backend.mu.Unlock()
	var items map[string]entry[string]
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("decode backing store: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("pre-clear snapshot overwrote the clear: %v", items)
	}
	if c.Len() != 0 {
		t.Fatalf("memory not empty after clear")
	}
}

func TestGetAllSnapshot(t *testing.T) {
	c := New[int](nil, 0, nil)
	c.Set("a", 1)
	c.Set("b", 2)
	all := c.GetAll()
	if len(all) != 2 || all["a"] != 1 || all["b"] != 2 {
		t.Fatalf("unexpected snapshot: %v", all)
	}
	all["c"] = 3
	if c.Len() != 2 {
		t.Fatalf("snapshot mutation leaked into cache")
	}
}
