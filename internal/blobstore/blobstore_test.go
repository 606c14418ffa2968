package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputPath(t *testing.T) {
	owner := uuid.New()

	path := OutputPath(owner, "My Textbook.pdf")

	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(owner.String()) +
		`/My_Textbook_\d{8}_\d{6}_[0-9a-f]{8}\.mp3$`)
	assert.Regexp(t, pattern, path)
}

func TestOutputPathUnique(t *testing.T) {
	owner := uuid.New()
	assert.NotEqual(t, OutputPath(owner, "book.pdf"), OutputPath(owner, "book.pdf"))
}

func TestOutputPathAwkwardNames(t *testing.T) {
	owner := uuid.New()

	path := OutputPath(owner, "../..//weird$name!.pdf")
	assert.NotContains(t, path, "$")
	assert.NotContains(t, path, "!")

	path = OutputPath(owner, "")
	assert.Contains(t, path, owner.String()+"/audio_")
}

func TestFSStoreRoundTrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	content := []byte("hello artifact")

	stored, err := store.Upload(ctx, "owner/book.mp3", content, "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "owner/book.mp3", stored)

	url, err := store.SignedURL(ctx, stored, time.Hour)
	require.NoError(t, err)
	assert.Contains(t, url, "file://")

	dest := filepath.Join(t.TempDir(), "fetched.mp3")
	require.NoError(t, Fetch(ctx, url, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestFSStoreSignedURLMissingObject(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.SignedURL(context.Background(), "nope/missing.pdf", time.Hour)
	assert.Error(t, err)
}
