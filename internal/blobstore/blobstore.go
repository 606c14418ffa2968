// Package blobstore abstracts object storage for source PDFs and rendered
// audio artifacts. Production runs against Google Cloud Storage; the
// filesystem store backs development and tests.
package blobstore

import (
	"context"
	"time"
)

// Store is the object storage surface the pipeline needs: short-lived read
// URLs for sources and uploads for artifacts.
type Store interface {
	// SignedURL returns a time-limited URL for reading the object at path.
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	// Upload writes data to path with the given content type and returns
	// the stored object path.
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
}
