package ffmpeg

import (
	"context"
	"io"
	"time"

	"github.com/tphakala/go-remix/internal/errors"
)

// DownconvertType is the file type produced by Downconvert.
const DownconvertType = "mp3"

// Transcoder re-encodes audio the analysis provider refused to read.
type Transcoder struct {
	config Config
}

// NewTranscoder returns a transcoder using cfg.
func NewTranscoder(cfg Config) *Transcoder {
	return &Transcoder{config: cfg.withDefaults()}
}

// Downconvert re-encodes data as a stereo MP3 and returns the new bytes and
// their file type.
func (t *Transcoder) Downconvert(ctx context.Context, data []byte, filetype string) ([]byte, string, error) {
	cfg := t.config
	out := []string{
		"-f", DownconvertType,
		"-codec:a", "libmp3lame",
		"-q:a", "2",
		"-ac", "2",
	}
	src, stdin := inputSource(data, "")
	p := newProcess(cfg, buildArgs(src, out, cfg.ExtraArgs), stdin)

	start := time.Now()
	if err := p.Start(ctx); err != nil {
		return nil, "", err
	}
	encoded, readErr := io.ReadAll(p)
	if err := p.Wait(); err != nil {
		return nil, "", errors.New(err).
			Component(componentFFmpeg).
			Category(errors.CategoryProcess).
			Context("operation", "downconvert").
			Context("filetype", filetype).
			Build()
	}
	if readErr != nil {
		return nil, "", errors.New(readErr).
			Component(componentFFmpeg).
			Category(errors.CategoryProcess).
			Context("operation", "downconvert").
			Build()
	}
	if len(encoded) == 0 {
		return nil, "", errors.Newf("ffmpeg produced no output converting %s", filetype).
			Component(componentFFmpeg).
			Category(errors.CategoryProcess).
			Context("operation", "downconvert").
			Build()
	}

	logger().Info("downconverted input for analysis",
		"from", filetype,
		"to", DownconvertType,
		"input_bytes", len(data),
		"output_bytes", len(encoded),
		"duration_ms", time.Since(start).Milliseconds())
	return encoded, DownconvertType, nil
}
