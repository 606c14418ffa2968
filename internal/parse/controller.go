// Package parse implements the parse stage: download a document's PDF,
// recognize each page's text and layout, aggregate sentences with their
// bounding polygons, and store the normalized full text.
package parse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cmoscardi/textbook-tts/internal/blobstore"
	"github.com/cmoscardi/textbook-tts/internal/engine"
	"github.com/cmoscardi/textbook-tts/internal/observability"
	"github.com/cmoscardi/textbook-tts/internal/sentence"
	"github.com/cmoscardi/textbook-tts/internal/speechtext"
	"github.com/cmoscardi/textbook-tts/internal/storage"
)

// Progress checkpoints. Page work advances linearly between
// progressPagesStart and progressPagesEnd.
const (
	progressStarted    = 5
	progressDownloaded = 10
	progressCounted    = 15
	progressPagesStart = 15
	progressPagesEnd   = 85
	progressNormalized = 90
	progressStored     = 95
)

// DocumentStore is the document persistence surface the controller needs.
type DocumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*storage.Document, error)
	SetParsedText(ctx context.Context, id uuid.UUID, parsedText, rawMarkdown string) error
}

// JobStore is the parse job persistence surface the controller needs.
type JobStore interface {
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int, status storage.JobStatus) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
}

// PageStore is the page persistence surface the controller needs.
type PageStore interface {
	Create(ctx context.Context, page *storage.Page) error
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
}

// SentenceStore is the sentence persistence surface the controller needs.
type SentenceStore interface {
	BulkInsert(ctx context.Context, sentences []*storage.Sentence) error
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
}

// PageSource performs the PDF file operations for a parse run.
type PageSource interface {
	PageCount(path string) (int, error)
	Optimize(src, dst string) error
	ExtractPage(src string, pageIndex int, destDir string) (string, error)
	RenderPage(path string, pageIndex int) ([]byte, error)
}

// Deps bundles the controller's collaborators.
type Deps struct {
	Logger    *observability.Logger
	Docs      DocumentStore
	Jobs      JobStore
	Pages     PageStore
	Sentences SentenceStore
	Blobs     blobstore.Store
	Registry  *engine.Registry
	PDF       PageSource
	WorkDir   string
	URLTTL    time.Duration
}

// Controller runs parse jobs.
type Controller struct {
	deps Deps
}

// NewController creates a parse controller.
func NewController(deps Deps) *Controller {
	if deps.WorkDir == "" {
		deps.WorkDir = os.TempDir()
	}
	if deps.URLTTL == 0 {
		deps.URLTTL = time.Hour
	}
	return &Controller{deps: deps}
}

// Run executes one parse job to a terminal state. On error the job is
// marked failed with the error message; cleanup writes use a detached
// context so a soft time limit cancelling ctx cannot orphan the job row.
func (c *Controller) Run(ctx context.Context, jobID, documentID uuid.UUID) error {
	log := c.deps.Logger.With().
		Str("job_id", jobID.String()).
		Str("document_id", documentID.String()).
		Logger()

	start := time.Now()
	err := c.run(ctx, log, jobID, documentID)
	if err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		if ferr := c.deps.Jobs.MarkFailed(cleanupCtx, jobID, err.Error()); ferr != nil {
			log.Error().Err(ferr).Msg("Failed to mark parse job failed")
		}
		engine.Reclaim(cleanupCtx, c.deps.Logger, c.deps.Registry.Loaded()...)

		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("Parse job failed")
		return err
	}

	log.Info().Dur("duration", time.Since(start)).Msg("Parse job completed")
	return nil
}

func (c *Controller) run(ctx context.Context, log *observability.Logger, jobID, documentID uuid.UUID) error {
	if err := c.deps.Jobs.UpdateProgress(ctx, jobID, progressStarted, storage.JobStatusRunning); err != nil {
		return fmt.Errorf("start parse job: %w", err)
	}

	doc, err := c.deps.Docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("document %s not found", documentID)
		}
		return fmt.Errorf("load document: %w", err)
	}

	url, err := c.deps.Blobs.SignedURL(ctx, doc.StoragePath, c.deps.URLTTL)
	if err != nil {
		return fmt.Errorf("sign source url: %w", err)
	}

	srcPath := filepath.Join(c.deps.WorkDir, fmt.Sprintf("parse_%s.pdf", jobID))
	defer os.Remove(srcPath)

	if err := blobstore.Fetch(ctx, url, srcPath); err != nil {
		return fmt.Errorf("download source pdf: %w", err)
	}

	// Optimizing before the split keeps per-page files small on bloated
	// scans. A document that fails to optimize still parses.
	optPath := filepath.Join(c.deps.WorkDir, fmt.Sprintf("parse_%s_opt.pdf", jobID))
	defer os.Remove(optPath)
	if err := c.deps.PDF.Optimize(srcPath, optPath); err != nil {
		log.Warn().Err(err).Msg("PDF optimize failed, using original file")
	} else {
		srcPath = optPath
	}

	if err := c.deps.Jobs.UpdateProgress(ctx, jobID, progressDownloaded, ""); err != nil {
		return err
	}

	recognizer, err := c.deps.Registry.Recognizer(ctx)
	if err != nil {
		return fmt.Errorf("acquire recognizer: %w", err)
	}

	total, err := c.deps.PDF.PageCount(srcPath)
	if err != nil {
		return err
	}
	if err := c.deps.Jobs.UpdateProgress(ctx, jobID, progressCounted, ""); err != nil {
		return err
	}

	// Reparses replace prior output wholesale. Sentences go first so no
	// window exists where a sentence references a deleted page.
	if err := c.deps.Sentences.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("clear previous sentences: %w", err)
	}
	if err := c.deps.Pages.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("clear previous pages: %w", err)
	}

	var pageTexts []string
	sequence := 0
	failedPages := 0

	for i := 0; i < total; i++ {
		text, n, perr := c.processPage(ctx, recognizer, doc, srcPath, i, sequence)
		if perr != nil {
			// One bad page does not sink the document.
			failedPages++
			log.Error().Err(perr).Int("page", i).Msg("Page processing failed, continuing")
		} else {
			pageTexts = append(pageTexts, text)
			sequence += n
		}

		progress := progressPagesStart + (progressPagesEnd-progressPagesStart)*(i+1)/total
		if err := c.deps.Jobs.UpdateProgress(ctx, jobID, progress, ""); err != nil {
			return err
		}
	}

	if failedPages == total {
		return fmt.Errorf("all %d pages failed to process", total)
	}

	rawMarkdown := strings.Join(pageTexts, "\n\n")
	cleaned := speechtext.Normalize(rawMarkdown)
	if err := c.deps.Jobs.UpdateProgress(ctx, jobID, progressNormalized, ""); err != nil {
		return err
	}

	if err := c.deps.Docs.SetParsedText(ctx, documentID, cleaned, rawMarkdown); err != nil {
		return fmt.Errorf("store parsed text: %w", err)
	}
	if err := c.deps.Jobs.UpdateProgress(ctx, jobID, progressStored, ""); err != nil {
		return err
	}

	if err := c.deps.Jobs.MarkCompleted(ctx, jobID); err != nil {
		return fmt.Errorf("complete parse job: %w", err)
	}

	log.Info().
		Int("pages", total).
		Int("failed_pages", failedPages).
		Int("sentences", sequence).
		Msg("Document parsed")
	return nil
}

// processPage extracts, renders and recognizes one page, then persists the
// page row and its aggregated sentences. Returns the page markdown and the
// number of sentences written.
func (c *Controller) processPage(ctx context.Context, recognizer engine.Recognizer,
	doc *storage.Document, srcPath string, pageIndex, sequenceStart int) (string, int, error) {

	pagePath, err := c.deps.PDF.ExtractPage(srcPath, pageIndex, c.deps.WorkDir)
	if err != nil {
		return "", 0, err
	}
	defer os.Remove(pagePath)

	var layout *engine.PageLayout
	err = engine.WithReclaim(ctx, c.deps.Logger, recognizer, func() error {
		image, err := c.deps.PDF.RenderPage(pagePath, 0)
		if err != nil {
			return err
		}
		layout, err = recognizer.RecognizePage(ctx, image)
		return err
	})
	if err != nil {
		return "", 0, err
	}

	page := &storage.Page{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		PageNumber: pageIndex,
		Width:      layout.Width,
		Height:     layout.Height,
		Text:       layout.Markdown,
	}
	if err := c.deps.Pages.Create(ctx, page); err != nil {
		return "", 0, fmt.Errorf("store page %d: %w", pageIndex, err)
	}

	candidates := sentence.Aggregate(layout.Regions)
	rows := make([]*storage.Sentence, 0, len(candidates))
	for i, cand := range candidates {
		rows = append(rows, &storage.Sentence{
			ID:             uuid.New(),
			PageID:         page.ID,
			DocumentID:     doc.ID,
			Text:           cand.Text,
			SequenceNumber: sequenceStart + i,
			Regions:        cand.Regions,
		})
	}
	if err := c.deps.Sentences.BulkInsert(ctx, rows); err != nil {
		return "", 0, fmt.Errorf("store sentences for page %d: %w", pageIndex, err)
	}

	return layout.Markdown, len(rows), nil
}
