// Package convert implements the convert stage: synthesize a parsed
// document's text sentence by sentence, assemble the audio, encode it as
// MP3 and upload the artifact.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cmoscardi/textbook-tts/internal/audio"
	"github.com/cmoscardi/textbook-tts/internal/blobstore"
	"github.com/cmoscardi/textbook-tts/internal/engine"
	"github.com/cmoscardi/textbook-tts/internal/observability"
	"github.com/cmoscardi/textbook-tts/internal/sentence"
	"github.com/cmoscardi/textbook-tts/internal/storage"
)

// Progress checkpoints. Synthesis advances linearly between
// progressSynthStart and progressSynthEnd as sentences complete.
const (
	progressStarted    = 10
	progressSynthStart = 10
	progressSynthEnd   = 85
	progressEncoded    = 90
	progressUploading  = 95
)

// ErrMissingParsedText is returned when a convert job targets a document
// that has not completed a parse.
var ErrMissingParsedText = errors.New("document has no parsed text, run parse first")

// ErrArtifactTooLarge is returned when the encoded MP3 exceeds the
// configured size ceiling.
var ErrArtifactTooLarge = errors.New("encoded audio exceeds size limit")

// DocumentStore is the document persistence surface the controller needs.
type DocumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*storage.Document, error)
}

// JobStore is the convert job persistence surface the controller needs.
type JobStore interface {
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int, status storage.JobStatus) error
	MarkCompleted(ctx context.Context, id uuid.UUID, outputPath string) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
}

// Deps bundles the controller's collaborators.
type Deps struct {
	Logger           *observability.Logger
	Docs             DocumentStore
	Jobs             JobStore
	Blobs            blobstore.Store
	Registry         *engine.Registry
	Encoder          audio.Encoder
	WorkDir          string
	MaxArtifactBytes int64
	OutputMIMEType   string
}

// Controller runs convert jobs.
type Controller struct {
	deps Deps
}

// NewController creates a convert controller.
func NewController(deps Deps) *Controller {
	if deps.WorkDir == "" {
		deps.WorkDir = os.TempDir()
	}
	if deps.MaxArtifactBytes == 0 {
		deps.MaxArtifactBytes = 50 << 20
	}
	if deps.OutputMIMEType == "" {
		deps.OutputMIMEType = "audio/mpeg"
	}
	return &Controller{deps: deps}
}

// Run executes one convert job to a terminal state. On error the job is
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
			log.Error().Err(ferr).Msg("Failed to mark convert job failed")
		}
		engine.Reclaim(cleanupCtx, c.deps.Logger, c.deps.Registry.Loaded()...)

		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("Convert job failed")
		return err
	}

	log.Info().Dur("duration", time.Since(start)).Msg("Convert job completed")
	return nil
}

func (c *Controller) run(ctx context.Context, log *observability.Logger, jobID, documentID uuid.UUID) error {
	doc, err := c.deps.Docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("document %s not found", documentID)
		}
		return fmt.Errorf("load document: %w", err)
	}

	// The submission API rejects unparsed documents, but a stale queued
	// message can still arrive here after a reparse was wiped.
	if doc.ParsedText == nil || strings.TrimSpace(*doc.ParsedText) == "" {
		return ErrMissingParsedText
	}

	if err := c.deps.Jobs.UpdateProgress(ctx, jobID, progressStarted, storage.JobStatusRunning); err != nil {
		return fmt.Errorf("start convert job: %w", err)
	}

	sentences := sentence.Split(narrationText(*doc.ParsedText))
	if len(sentences) == 0 {
		return fmt.Errorf("document has no narratable sentences")
	}

	synthesizer, err := c.deps.Registry.Synthesizer(ctx)
	if err != nil {
		return fmt.Errorf("acquire synthesizer: %w", err)
	}

	var pcm []byte
	sampleRate := 0

	err = engine.WithReclaim(ctx, c.deps.Logger, synthesizer, func() error {
		for i, s := range sentences {
			wf, err := synthesizer.Synthesize(ctx, s)
			if err != nil {
				return fmt.Errorf("synthesize sentence %d: %w", i, err)
			}
			if sampleRate == 0 {
				sampleRate = wf.SampleRate
			} else if wf.SampleRate != sampleRate {
				return fmt.Errorf("sample rate changed mid-document: %d then %d", sampleRate, wf.SampleRate)
			}
			pcm = append(pcm, wf.PCM...)

			progress := progressSynthStart + (progressSynthEnd-progressSynthStart)*(i+1)/len(sentences)
			if err := c.deps.Jobs.UpdateProgress(ctx, jobID, progress, ""); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	wavPath := filepath.Join(c.deps.WorkDir, fmt.Sprintf("convert_%s.wav", jobID))
	mp3Path := filepath.Join(c.deps.WorkDir, fmt.Sprintf("convert_%s.mp3", jobID))
	defer os.Remove(wavPath)
	defer os.Remove(mp3Path)

	if err := audio.WriteWAVFile(wavPath, pcm, sampleRate, 1); err != nil {
		return err
	}
	if err := c.deps.Encoder.Encode(ctx, wavPath, mp3Path); err != nil {
		return err
	}

	info, err := os.Stat(mp3Path)
	if err != nil {
		return fmt.Errorf("stat encoded artifact: %w", err)
	}
	if info.Size() > c.deps.MaxArtifactBytes {
		return fmt.Errorf("%w: %d bytes over %d byte limit",
			ErrArtifactTooLarge, info.Size(), c.deps.MaxArtifactBytes)
	}
	if err := c.deps.Jobs.UpdateProgress(ctx, jobID, progressEncoded, ""); err != nil {
		return err
	}

	data, err := os.ReadFile(mp3Path)
	if err != nil {
		return fmt.Errorf("read encoded artifact: %w", err)
	}
	if err := c.deps.Jobs.UpdateProgress(ctx, jobID, progressUploading, ""); err != nil {
		return err
	}

	outputPath := blobstore.OutputPath(doc.OwnerID, doc.Name)
	stored, err := c.deps.Blobs.Upload(ctx, outputPath, data, c.deps.OutputMIMEType)
	if err != nil {
		return fmt.Errorf("upload artifact: %w", err)
	}

	if err := c.deps.Jobs.MarkCompleted(ctx, jobID, stored); err != nil {
		return fmt.Errorf("complete convert job: %w", err)
	}

	log.Info().
		Int("sentences", len(sentences)).
		Int64("artifact_bytes", info.Size()).
		Str("output_path", stored).
		Msg("Document converted")
	return nil
}

// narrationText flattens parsed text for synthesis. Newlines become
// sentence breaks and the document always ends with terminal punctuation so
// the splitter never drops a trailing fragment.
func narrationText(text string) string {
	out := strings.ReplaceAll(text, "\n", ". ")
	out = strings.TrimSpace(out)
	if out != "" && !strings.ContainsAny(out[len(out)-1:], ".!?") {
		out += "."
	}
	return out
}
