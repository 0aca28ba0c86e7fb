package audiocore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/go-remix/internal/conf"
	"github.com/tphakala/go-remix/internal/errors"
)

// Format describes the layout of interleaved PCM samples.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// CanonicalFormat is the layout every decoded buffer is normalized to.
func CanonicalFormat() Format {
	return Format{
		SampleRate: conf.SampleRate,
		Channels:   conf.NumChannels,
		BitDepth:   conf.BitDepth,
	}
}

// IsCanonical reports whether f matches CanonicalFormat.
func (f Format) IsCanonical() bool {
	return f == CanonicalFormat()
}

// BytesPerFrame returns the size of one frame in bytes.
func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitDepth / 8
}

// Validate checks that the format can describe a buffer.
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return formatError("invalid format: sample rate %d, channels %d", f.SampleRate, f.Channels)
	}
	return nil
}

// Input is undecoded audio, held either in memory or on disk.
type Input struct {
	Data     []byte // raw bytes, takes precedence over Path
	Path     string // file reference
	FileType string // container hint such as "mp3" or "wav"; derived from Path when empty
}

// Type returns the lower-case file type of the input.
func (in Input) Type() string {
	if in.FileType != "" {
		return strings.ToLower(strings.TrimPrefix(in.FileType, "."))
	}
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(in.Path), "."))
}

// Bytes returns the raw input, reading Path when no data is held.
func (in Input) Bytes() ([]byte, error) {
	if in.Data != nil {
		return in.Data, nil
	}
	if in.Path == "" {
		return nil, errors.Newf("input has neither data nor path").
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return nil, errors.FileError(err, in.Path, 0)
	}
	return data, nil
}

// Open returns a reader over the raw input.
func (in Input) Open() (io.ReadCloser, error) {
	if in.Data != nil {
		return io.NopCloser(bytes.NewReader(in.Data)), nil
	}
	f, err := os.Open(in.Path)
	if err != nil {
		return nil, errors.FileError(err, in.Path, 0)
	}
	return f, nil
}

// Decoder turns raw input into interleaved samples in the target format.
type Decoder interface {
	Decode(ctx context.Context, in Input, target Format) ([]int16, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, in Input, target Format) ([]int16, error)

// Decode calls f.
func (f DecoderFunc) Decode(ctx context.Context, in Input, target Format) ([]int16, error) {
	return f(ctx, in, target)
}

// PCMPipe is a forward-only source of PCM frames.
//
// Skip discards up to frames frames and reports how many were discarded.
// Read returns up to frames frames; it returns fewer only when the pipe is
// exhausted, and io.EOF only when nothing at all could be read.
type PCMPipe interface {
	Format() Format
	Skip(frames int64) (int64, error)
	Read(frames int64) ([]int16, error)
	Close() error
}

// PcmSource is anything quanta can be cut from.
type PcmSource interface {
	Format() Format
	Slice(start, end Position) (*Buffer, error)
	Extract(span Span) (*Buffer, error)
}

// Renderable writes itself into an accumulator buffer starting at start
// seconds. When selected is non-nil only material from that source is written.
// A nil target asks the implementation to allocate one.
type Renderable interface {
	Render(start float64, target *Buffer, selected PcmSource) (*Buffer, error)
}
