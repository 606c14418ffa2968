// Package engine manages the heavyweight inference resources behind the
// pipeline: the layout recognizer used by the parse stage and the speech
// synthesizer used by the convert stage. Both sit behind HTTP clients
// talking to an accelerator-backed sidecar, and a role-bound registry
// enforces their singleton lifecycle.
package engine

import (
	"context"

	"github.com/cmoscardi/textbook-tts/internal/sentence"
)

// PageLayout is the recognizer's output for a single page: the page
// dimensions, the page text as markdown, and the layout regions with
// per-line bounding polygons.
type PageLayout struct {
	Width    float64           `json:"width"`
	Height   float64           `json:"height"`
	Markdown string            `json:"markdown"`
	Regions  []sentence.Region `json:"regions"`
}

// Waveform is raw synthesized audio: 16-bit little-endian mono PCM.
type Waveform struct {
	PCM        []byte `json:"pcm"`
	SampleRate int    `json:"sample_rate"`
}

// Capability is the lifecycle surface every inference resource exposes.
// Health verifies the underlying accelerator is usable; ReleaseDeviceMemory
// asks the resource to return device memory between jobs.
type Capability interface {
	Health(ctx context.Context) error
	ReleaseDeviceMemory(ctx context.Context) error
}

// Recognizer extracts text and layout from a rendered page image.
type Recognizer interface {
	Capability
	RecognizePage(ctx context.Context, image []byte) (*PageLayout, error)
}

// Synthesizer renders a sentence of text into audio.
type Synthesizer interface {
	Capability
	Synthesize(ctx context.Context, text string) (*Waveform, error)
}
