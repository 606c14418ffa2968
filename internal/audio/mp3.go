package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// Encoder converts a WAV file into the final artifact format.
type Encoder interface {
	Encode(ctx context.Context, wavPath, mp3Path string) error
}

// FFmpegEncoder encodes MP3s by shelling out to ffmpeg with VBR quality
// settings matched to the narration use case.
type FFmpegEncoder struct {
	Path    string
	Quality int
}

// NewFFmpegEncoder creates an encoder using the ffmpeg binary at path.
func NewFFmpegEncoder(path string, quality int) *FFmpegEncoder {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegEncoder{Path: path, Quality: quality}
}

// Encode transcodes wavPath to mp3Path.
func (e *FFmpegEncoder) Encode(ctx context.Context, wavPath, mp3Path string) error {
	cmd := exec.CommandContext(ctx, e.Path,
		"-y",
		"-i", wavPath,
		"-q:a", strconv.Itoa(e.Quality),
		mp3Path,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg encode failed: %w: %s", err, truncate(output, 2048))
	}
	return nil
}

var _ Encoder = (*FFmpegEncoder)(nil)

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
