package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"docbrief/internal/config"
)

// Store persists named blobs, one row per name, overwritten whole on
// every save.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	LoadBlob(ctx context.Context, name string) ([]byte, error)
	SaveBlob(ctx context.Context, name string, data []byte) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	case "file":
		return NewFileStore(cfg.Dir)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// Blob binds a Store to a single name. A nil Store makes Load report
// absent and Save a no-op.
type Blob struct {
	store Store
	name  string
}

func NamedBlob(s Store, name string) *Blob {
	return &Blob{store: s, name: name}
}

func (b *Blob) Load(ctx context.Context) ([]byte, error) {
	if b == nil || b.store == nil {
		return nil, nil
	}
	return b.store.LoadBlob(ctx, b.name)
}

func (b *Blob) Save(ctx context.Context, data []byte) error {
	if b == nil || b.store == nil {
		return nil
	}
	return b.store.SaveBlob(ctx, b.name, data)
}
