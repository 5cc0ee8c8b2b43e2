package storage

import (
	"bytes"
	"context"
	"testing"

	"docbrief/internal/config"
)

func TestFileStoreRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	got, err := s.LoadBlob(ctx, "quota")
	if err != nil {
		t.Fatalf("load absent: %v", err)
	}
	if got != nil {
		t.Fatalf("absent blob returned data: %q", got)
	}

	want := []byte(`{"u1":{"count":3}}`)
	if err := s.SaveBlob(ctx, "quota", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = s.LoadBlob(ctx, "quota")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch: %q", got)
	}

	want = []byte(`{}`)
	if err := s.SaveBlob(ctx, "quota", want); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = s.LoadBlob(ctx, "quota")
	if !bytes.Equal(got, want) {
		t.Fatalf("overwrite not whole-blob: %q", got)
	}
}

func TestNewStoreDisabled(t *testing.T) {
	s, err := NewStore(config.StorageConfig{Enabled: false})
	if err != nil || s != nil {
		t.Fatalf("disabled storage should yield nil store, got %v %v", s, err)
	}
}

func TestNamedBlobNilStore(t *testing.T) {
	b := NamedBlob(nil, "quota")
	ctx := context.Background()
	if data, err := b.Load(ctx); err != nil || data != nil {
		t.Fatalf("nil store load: %v %v", data, err)
	}
	if err := b.Save(ctx, []byte("x")); err != nil {
		t.Fatalf("nil store save: %v", err)
	}
}
