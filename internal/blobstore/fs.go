package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FSStore is a Store backed by a local directory. Signed URLs are file://
// URLs, which Fetch understands; the TTL is accepted for interface parity
// but not enforced.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem store rooted at root.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FSStore{root: root}, nil
}

// SignedURL returns a file:// URL for the object at path.
func (s *FSStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	if _, err := os.Stat(full); err != nil {
		return "", fmt.Errorf("stat object %s: %w", path, err)
	}
	return "file://" + full, nil
}

// Upload writes data under the storage root at path.
func (s *FSStore) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write object %s: %w", path, err)
	}
	return path, nil
}

var _ Store = (*FSStore)(nil)
