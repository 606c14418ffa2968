package parse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmoscardi/textbook-tts/internal/engine"
	"github.com/cmoscardi/textbook-tts/internal/observability"
	"github.com/cmoscardi/textbook-tts/internal/sentence"
	"github.com/cmoscardi/textbook-tts/internal/storage"
)

type fakeDocs struct {
	docs        map[uuid.UUID]*storage.Document
	parsedText  string
	rawMarkdown string
	setCalls    int
}

func (f *fakeDocs) GetByID(ctx context.Context, id uuid.UUID) (*storage.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return doc, nil
}

func (f *fakeDocs) SetParsedText(ctx context.Context, id uuid.UUID, parsedText, rawMarkdown string) error {
	f.parsedText = parsedText
	f.rawMarkdown = rawMarkdown
	f.setCalls++
	return nil
}

type progressWrite struct {
	progress int
	status   storage.JobStatus
}

type fakeJobs struct {
	writes    []progressWrite
	completed int
	failed    []string
}

func (f *fakeJobs) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, status storage.JobStatus) error {
	f.writes = append(f.writes, progressWrite{progress: progress, status: status})
	return nil
}

func (f *fakeJobs) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	f.writes = append(f.writes, progressWrite{progress: 100, status: storage.JobStatusCompleted})
	f.completed++
	return nil
}

func (f *fakeJobs) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	f.failed = append(f.failed, message)
	return nil
}

func (f *fakeJobs) assertMonotonic(t *testing.T) {
	t.Helper()
	last := 0
	for _, w := range f.writes {
		assert.GreaterOrEqual(t, w.progress, last, "progress went backwards")
		last = w.progress
	}
}

type fakePages struct {
	pages   []*storage.Page
	deletes int
}

func (f *fakePages) Create(ctx context.Context, page *storage.Page) error {
	f.pages = append(f.pages, page)
	return nil
}

func (f *fakePages) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	f.pages = nil
	f.deletes++
	return nil
}

type fakeSentences struct {
	rows    []*storage.Sentence
	deletes int
}

func (f *fakeSentences) BulkInsert(ctx context.Context, sentences []*storage.Sentence) error {
	f.rows = append(f.rows, sentences...)
	return nil
}

func (f *fakeSentences) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	f.rows = nil
	f.deletes++
	return nil
}

type fakeBlobs struct {
	srcFile string
}

func (f *fakeBlobs) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return "file://" + f.srcFile, nil
}

func (f *fakeBlobs) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	return path, nil
}

type fakePDF struct {
	pageCount     int
	optimizeCalls int
	optimizeErr   error
	optimizedSrc  string
}

func (f *fakePDF) PageCount(path string) (int, error) {
	f.optimizedSrc = path
	return f.pageCount, nil
}

func (f *fakePDF) Optimize(src, dst string) error {
	f.optimizeCalls++
	if f.optimizeErr != nil {
		return f.optimizeErr
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func (f *fakePDF) ExtractPage(src string, pageIndex int, destDir string) (string, error) {
	out := filepath.Join(destDir, fmt.Sprintf("fake_page_%d.pdf", pageIndex))
	if err := os.WriteFile(out, []byte("page"), 0o644); err != nil {
		return "", err
	}
	return out, nil
}

func (f *fakePDF) RenderPage(path string, pageIndex int) ([]byte, error) {
	return []byte("image"), nil
}

type fakeRecognizer struct {
	calls   int
	failOn  map[int]bool
	layouts map[int]*engine.PageLayout
}

func (f *fakeRecognizer) Health(ctx context.Context) error              { return nil }
func (f *fakeRecognizer) ReleaseDeviceMemory(ctx context.Context) error { return nil }

func (f *fakeRecognizer) RecognizePage(ctx context.Context, image []byte) (*engine.PageLayout, error) {
	call := f.calls
	f.calls++
	if f.failOn[call] {
		return nil, errors.New("recognition blew up")
	}
	if layout, ok := f.layouts[call]; ok {
		return layout, nil
	}
	return pageLayout(fmt.Sprintf("Recognized page %d text.", call)), nil
}

func pageLayout(text string) *engine.PageLayout {
	return &engine.PageLayout{
		Width:    612,
		Height:   792,
		Markdown: text,
		Regions: []sentence.Region{{Lines: []sentence.Line{
			{Text: text, Polygon: sentence.Polygon{{0, 0}, {1, 0}, {1, 1}, {0, 1}}},
		}}},
	}
}

type fixture struct {
	controller *Controller
	docs       *fakeDocs
	jobs       *fakeJobs
	pages      *fakePages
	sentences  *fakeSentences
	pdf        *fakePDF
	recognizer *fakeRecognizer
	documentID uuid.UUID
}

func newFixture(t *testing.T, pageCount int) *fixture {
	t.Helper()

	workDir := t.TempDir()
	srcFile := filepath.Join(workDir, "source.pdf")
	require.NoError(t, os.WriteFile(srcFile, []byte("%PDF-fake"), 0o644))

	documentID := uuid.New()
	docs := &fakeDocs{docs: map[uuid.UUID]*storage.Document{
		documentID: {
			ID:          documentID,
			OwnerID:     uuid.New(),
			Name:        "book.pdf",
			StoragePath: "owner/book.pdf",
		},
	}}

	jobs := &fakeJobs{}
	pages := &fakePages{}
	sentences := &fakeSentences{}
	pdf := &fakePDF{pageCount: pageCount}
	recognizer := &fakeRecognizer{failOn: map[int]bool{}, layouts: map[int]*engine.PageLayout{}}

	registry := engine.NewRegistry(observability.NopLogger(), engine.RoleParser,
		func() (engine.Recognizer, error) { return recognizer, nil },
		func() (engine.Synthesizer, error) { return nil, errors.New("not a converter") },
	)

	controller := NewController(Deps{
		Logger:    observability.NopLogger(),
		Docs:      docs,
		Jobs:      jobs,
		Pages:     pages,
		Sentences: sentences,
		Blobs:     &fakeBlobs{srcFile: srcFile},
		Registry:  registry,
		PDF:       pdf,
		WorkDir:   workDir,
	})

	return &fixture{
		controller: controller,
		docs:       docs,
		jobs:       jobs,
		pages:      pages,
		sentences:  sentences,
		pdf:        pdf,
		recognizer: recognizer,
		documentID: documentID,
	}
}

func TestParseRunSuccess(t *testing.T) {
	f := newFixture(t, 2)

	err := f.controller.Run(context.Background(), uuid.New(), f.documentID)
	require.NoError(t, err)

	require.Len(t, f.pages.pages, 2)
	assert.Equal(t, 0, f.pages.pages[0].PageNumber)
	assert.Equal(t, 1, f.pages.pages[1].PageNumber)

	require.Len(t, f.sentences.rows, 2)
	assert.Equal(t, 0, f.sentences.rows[0].SequenceNumber)
	assert.Equal(t, 1, f.sentences.rows[1].SequenceNumber)
	assert.NotEmpty(t, f.sentences.rows[0].Regions)

	assert.Equal(t, 1, f.docs.setCalls)
	assert.Contains(t, f.docs.parsedText, "Recognized page 0 text.")
	assert.Contains(t, f.docs.parsedText, "Recognized page 1 text.")

	f.jobs.assertMonotonic(t)
	last := f.jobs.writes[len(f.jobs.writes)-1]
	assert.Equal(t, 100, last.progress)
	assert.Equal(t, storage.JobStatusCompleted, last.status)
	assert.Empty(t, f.jobs.failed)
}

func TestParseRunProgressLadder(t *testing.T) {
	f := newFixture(t, 2)

	err := f.controller.Run(context.Background(), uuid.New(), f.documentID)
	require.NoError(t, err)

	var got []int
	for _, w := range f.jobs.writes {
		got = append(got, w.progress)
	}
	assert.Equal(t, []int{5, 10, 15, 50, 85, 90, 95, 100}, got)
	assert.Equal(t, storage.JobStatusRunning, f.jobs.writes[0].status)
}

func TestParseRunOptimizesBeforeSplitting(t *testing.T) {
	f := newFixture(t, 2)

	err := f.controller.Run(context.Background(), uuid.New(), f.documentID)
	require.NoError(t, err)

	assert.Equal(t, 1, f.pdf.optimizeCalls)
	assert.Contains(t, f.pdf.optimizedSrc, "_opt.pdf",
		"page operations must run against the optimized file")
}

func TestParseRunOptimizeFailureFallsBack(t *testing.T) {
	f := newFixture(t, 1)
	f.pdf.optimizeErr = errors.New("corrupt xref")

	err := f.controller.Run(context.Background(), uuid.New(), f.documentID)
	require.NoError(t, err)

	assert.Equal(t, 1, f.pdf.optimizeCalls)
	assert.NotContains(t, f.pdf.optimizedSrc, "_opt.pdf")
	assert.Equal(t, 1, f.jobs.completed)
	require.Len(t, f.pages.pages, 1)
}

func TestParseRunPageFailureContinues(t *testing.T) {
	f := newFixture(t, 3)
	f.recognizer.failOn[1] = true

	err := f.controller.Run(context.Background(), uuid.New(), f.documentID)
	require.NoError(t, err)

	require.Len(t, f.pages.pages, 2)
	assert.Equal(t, 0, f.pages.pages[0].PageNumber)
	assert.Equal(t, 2, f.pages.pages[1].PageNumber)

	assert.NotContains(t, f.docs.parsedText, "Recognized page 1 text.")
	assert.Contains(t, f.docs.parsedText, "Recognized page 2 text.")

	f.jobs.assertMonotonic(t)
	assert.Equal(t, 1, f.jobs.completed)
}

func TestParseRunAllPagesFailed(t *testing.T) {
	f := newFixture(t, 2)
	f.recognizer.failOn[0] = true
	f.recognizer.failOn[1] = true

	err := f.controller.Run(context.Background(), uuid.New(), f.documentID)
	require.Error(t, err)

	assert.Equal(t, 0, f.docs.setCalls)
	assert.Equal(t, 0, f.jobs.completed)
	require.Len(t, f.jobs.failed, 1)
	assert.Contains(t, f.jobs.failed[0], "pages failed")
}

func TestParseRunDocumentMissing(t *testing.T) {
	f := newFixture(t, 1)

	err := f.controller.Run(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)

	require.Len(t, f.jobs.failed, 1)
	assert.Contains(t, f.jobs.failed[0], "not found")
	assert.Equal(t, 0, f.jobs.completed)
}

func TestParseRunIsIdempotent(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	require.NoError(t, f.controller.Run(ctx, uuid.New(), f.documentID))
	require.NoError(t, f.controller.Run(ctx, uuid.New(), f.documentID))

	// The rerun wipes prior output, so counts and sequence numbers are
	// identical to a first run.
	require.Len(t, f.pages.pages, 2)
	require.Len(t, f.sentences.rows, 2)
	assert.Equal(t, 0, f.sentences.rows[0].SequenceNumber)
	assert.Equal(t, 2, f.pages.deletes)
	assert.Equal(t, 2, f.sentences.deletes)
	assert.Equal(t, 2, f.docs.setCalls)
}
