// Package blob stores problem-order photo uploads.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/m3rciful/crewbot/core/logger"
	"log/slog"
)

// Store persists binary blobs under string keys.
type Store interface {
	Save(ctx context.Context, key string, r io.Reader) (string, error)
}

// FileStore keeps blobs on the local filesystem under a root directory.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Save writes the blob to root/key and returns the key. Keys may contain a
// single directory level (e.g. "ORD-1/0.jpg").
func (s *FileStore) Save(ctx context.Context, key string, r io.Reader) (string, error) {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("blob dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("blob create: %w", err)
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("blob write: %w", err)
	}

	logger.Debug(ctx, "blob", "save.ok",
		slog.String("key", key),
		slog.Int64("bytes", n),
	)
	return key, nil
}
