package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

type fileStore struct {
	dir string
}

func NewFileStore(dir string) (Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("file storage requires a directory")
	}
	return &fileStore{dir: dir}, nil
}

func (s *fileStore) Init(ctx context.Context) error {
	return os.MkdirAll(s.dir, 0o755)
}

func (s *fileStore) Close() error {
	return nil
}

func (s *fileStore) LoadBlob(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// SaveBlob writes to a temp file and renames so readers never observe a
// partial blob.
func (s *fileStore) SaveBlob(ctx context.Context, name string, data []byte) error {
	if name == "" {
		return nil
	}
	path := s.path(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *fileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}
