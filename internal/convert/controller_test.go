package convert

import (
	"context"
	"errors"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmoscardi/textbook-tts/internal/engine"
	"github.com/cmoscardi/textbook-tts/internal/observability"
	"github.com/cmoscardi/textbook-tts/internal/storage"
)

type fakeDocs struct {
	docs map[uuid.UUID]*storage.Document
}

func (f *fakeDocs) GetByID(ctx context.Context, id uuid.UUID) (*storage.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return doc, nil
}

type progressWrite struct {
	progress int
	status   storage.JobStatus
}

type fakeJobs struct {
	writes     []progressWrite
	completed  []string
	failed     []string
	sawRunning bool
}

func (f *fakeJobs) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, status storage.JobStatus) error {
	if status == storage.JobStatusRunning {
		f.sawRunning = true
	}
	f.writes = append(f.writes, progressWrite{progress: progress, status: status})
	return nil
}

func (f *fakeJobs) MarkCompleted(ctx context.Context, id uuid.UUID, outputPath string) error {
	f.completed = append(f.completed, outputPath)
	return nil
}

func (f *fakeJobs) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	f.failed = append(f.failed, message)
	return nil
}

type fakeBlobs struct {
	uploads map[string][]byte
	err     error
}

func (f *fakeBlobs) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeBlobs) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[path] = data
	return path, nil
}

type fakeSynthesizer struct {
	calls      int
	sampleRate func(call int) int
	err        error
}

func (f *fakeSynthesizer) Health(ctx context.Context) error              { return nil }
func (f *fakeSynthesizer) ReleaseDeviceMemory(ctx context.Context) error { return nil }

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string) (*engine.Waveform, error) {
	call := f.calls
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	rate := 22050
	if f.sampleRate != nil {
		rate = f.sampleRate(call)
	}
	return &engine.Waveform{PCM: []byte{byte(call), 0x00}, SampleRate: rate}, nil
}

// copyEncoder stands in for ffmpeg: the "mp3" is the wav bytes verbatim.
type copyEncoder struct{}

func (copyEncoder) Encode(ctx context.Context, wavPath, mp3Path string) error {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return err
	}
	return os.WriteFile(mp3Path, data, 0o644)
}

type fixture struct {
	controller  *Controller
	docs        *fakeDocs
	jobs        *fakeJobs
	blobs       *fakeBlobs
	synthesizer *fakeSynthesizer
	documentID  uuid.UUID
}

func newFixture(t *testing.T, parsedText *string) *fixture {
	t.Helper()

	documentID := uuid.New()
	docs := &fakeDocs{docs: map[uuid.UUID]*storage.Document{
		documentID: {
			ID:          documentID,
			OwnerID:     uuid.New(),
			Name:        "book.pdf",
			StoragePath: "owner/book.pdf",
			ParsedText:  parsedText,
		},
	}}

	jobs := &fakeJobs{}
	blobs := &fakeBlobs{}
	synthesizer := &fakeSynthesizer{}

	registry := engine.NewRegistry(observability.NopLogger(), engine.RoleConverter,
		func() (engine.Recognizer, error) { return nil, errors.New("not a parser") },
		func() (engine.Synthesizer, error) { return synthesizer, nil },
	)

	controller := NewController(Deps{
		Logger:   observability.NopLogger(),
		Docs:     docs,
		Jobs:     jobs,
		Blobs:    blobs,
		Registry: registry,
		Encoder:  copyEncoder{},
		WorkDir:  t.TempDir(),
	})

	return &fixture{
		controller:  controller,
		docs:        docs,
		jobs:        jobs,
		blobs:       blobs,
		synthesizer: synthesizer,
		documentID:  documentID,
	}
}

func strPtr(s string) *string { return &s }

func TestConvertRunSuccess(t *testing.T) {
	f := newFixture(t, strPtr("Hello world. It continues."))

	err := f.controller.Run(context.Background(), uuid.New(), f.documentID)
	require.NoError(t, err)

	assert.Equal(t, 2, f.synthesizer.calls)

	require.Len(t, f.jobs.completed, 1)
	owner := f.docs.docs[f.documentID].OwnerID
	assert.Regexp(t,
		regexp.MustCompile(`^`+regexp.QuoteMeta(owner.String())+`/book_\d{8}_\d{6}_[0-9a-f]{8}\.mp3$`),
		f.jobs.completed[0])

	require.Len(t, f.blobs.uploads, 1)
	for _, data := range f.blobs.uploads {
		// WAV header plus two 2-byte sentences.
		assert.Len(t, data, 44+4)
	}

	assert.Empty(t, f.jobs.failed)
}

func TestConvertRunProgress(t *testing.T) {
	f := newFixture(t, strPtr("Hello world. It continues."))

	err := f.controller.Run(context.Background(), uuid.New(), f.documentID)
	require.NoError(t, err)

	var got []int
	for _, w := range f.jobs.writes {
		got = append(got, w.progress)
	}
	assert.Equal(t, []int{10, 47, 85, 90, 95}, got)
	assert.Equal(t, storage.JobStatusRunning, f.jobs.writes[0].status)
}

func TestConvertRunRejectsUnparsedDocument(t *testing.T) {
	f := newFixture(t, nil)

	err := f.controller.Run(context.Background(), uuid.New(), f.documentID)
	require.ErrorIs(t, err, ErrMissingParsedText)

	assert.False(t, f.jobs.sawRunning, "unparsed document must never reach running")
	assert.Empty(t, f.jobs.writes)
	require.Len(t, f.jobs.failed, 1)
	assert.Equal(t, 0, f.synthesizer.calls)
	assert.Empty(t, f.blobs.uploads)
}

func TestConvertRunRejectsBlankParsedText(t *testing.T) {
	f := newFixture(t, strPtr("   \n  "))

	err := f.controller.Run(context.Background(), uuid.New(), f.documentID)
	require.ErrorIs(t, err, ErrMissingParsedText)
}

func TestConvertRunArtifactTooLarge(t *testing.T) {
	f := newFixture(t, strPtr("Hello world. It continues."))
	f.controller.deps.MaxArtifactBytes = 10

	err := f.controller.Run(context.Background(), uuid.New(), f.documentID)
	require.ErrorIs(t, err, ErrArtifactTooLarge)

	require.Len(t, f.jobs.failed, 1)
	assert.Empty(t, f.jobs.completed)
	assert.Empty(t, f.blobs.uploads, "oversized artifacts must not upload")
}

func TestConvertRunSampleRateChange(t *testing.T) {
	f := newFixture(t, strPtr("Hello world. It continues."))
	f.synthesizer.sampleRate = func(call int) int {
		if call == 0 {
			return 22050
		}
		return 44100
	}

	err := f.controller.Run(context.Background(), uuid.New(), f.documentID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample rate")
	require.Len(t, f.jobs.failed, 1)
}

func TestConvertRunSynthesisFailure(t *testing.T) {
	f := newFixture(t, strPtr("Hello world."))
	f.synthesizer.err = errors.New("device out of memory")

	err := f.controller.Run(context.Background(), uuid.New(), f.documentID)
	require.Error(t, err)
	require.Len(t, f.jobs.failed, 1)
	assert.Contains(t, f.jobs.failed[0], "device out of memory")
	assert.Empty(t, f.jobs.completed)
}

func TestConvertRunUploadFailure(t *testing.T) {
	f := newFixture(t, strPtr("Hello world."))
	f.blobs.err = errors.New("bucket gone")

	err := f.controller.Run(context.Background(), uuid.New(), f.documentID)
	require.Error(t, err)
	require.Len(t, f.jobs.failed, 1)
	assert.Empty(t, f.jobs.completed)
}

func TestConvertRunDocumentMissing(t *testing.T) {
	f := newFixture(t, strPtr("Hello world."))

	err := f.controller.Run(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	require.Len(t, f.jobs.failed, 1)
	assert.Contains(t, f.jobs.failed[0], "not found")
}

func TestNarrationText(t *testing.T) {
	assert.Equal(t, "One line. Two line.", narrationText("One line\nTwo line."))
	assert.Equal(t, "Already done.", narrationText("Already done."))
	assert.Equal(t, "No terminator.", narrationText("No terminator"))
	assert.Equal(t, "", narrationText(""))
}
