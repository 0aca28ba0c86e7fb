// Package decode turns compressed and container audio into canonical PCM
// inside the process, without an external decoder.
package decode

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/errors"
	"github.com/tphakala/go-remix/internal/logging"
)

const componentDecode = "decode"

func logger() *slog.Logger {
	return logging.ServiceOrDefault("audiocore-decode")
}

// ErrUnsupported is returned for file types no native decoder handles.
var ErrUnsupported = errors.New(nil).
	Component(componentDecode).
	Category(errors.CategoryDecode).
	Build()

// formatDecoder reads a whole stream and returns interleaved 16-bit samples
// with the layout they were decoded at.
type formatDecoder func(r io.Reader) ([]int16, audiocore.Format, error)

// Native decodes WAV, FLAC, MP3 and Ogg Vorbis in-process.
type Native struct {
	decoders map[string]formatDecoder
}

// NewNative returns a decoder for every supported container.
func NewNative() *Native {
	return &Native{decoders: map[string]formatDecoder{
		"wav":  decodeWAV,
		"wave": decodeWAV,
		"flac": decodeFLAC,
		"mp3":  decodeMP3,
		"ogg":  decodeOgg,
		"oga":  decodeOgg,
	}}
}

// Supports reports whether filetype has a native decoder.
func (n *Native) Supports(filetype string) bool {
	_, ok := n.decoders[audiocore.Input{FileType: filetype}.Type()]
	return ok
}

// Decode decodes in and conforms it to target. Mono is widened to stereo;
// a sample rate other than the target's is a decode error so that a
// resampling decoder can take over.
func (n *Native) Decode(ctx context.Context, in audiocore.Input, target audiocore.Format) ([]int16, error) {
	ft := in.Type()
	dec, ok := n.decoders[ft]
	if !ok {
		return nil, errors.New(ErrUnsupported).
			Component(componentDecode).
			Category(errors.CategoryDecode).
			Context("filetype", ft).
			Build()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := in.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	start := time.Now()
	samples, got, err := dec(r)
	if err != nil {
		return nil, audiocore.DecodeError(err, in)
	}

	samples, err = conform(samples, got, target)
	if err != nil {
		return nil, err
	}

	logger().Debug("native decode finished",
		"filetype", ft,
		"source_rate", got.SampleRate,
		"source_channels", got.Channels,
		"frames", len(samples)/max(target.Channels, 1),
		"duration_ms", time.Since(start).Milliseconds())
	return samples, nil
}

// conform adapts decoded samples to the target layout without resampling.
func conform(samples []int16, got, target audiocore.Format) ([]int16, error) {
	if got.SampleRate != target.SampleRate {
		return nil, errors.Newf("decoded %d Hz audio needs resampling to %d Hz", got.SampleRate, target.SampleRate).
			Component(componentDecode).
			Category(errors.CategoryDecode).
			Context("source_rate", got.SampleRate).
			Build()
	}

	switch {
	case got.Channels == target.Channels:
		return samples, nil
	case got.Channels == 1 && target.Channels == 2:
		return Widen(samples), nil
	default:
		return nil, errors.Newf("cannot map %d channels to %d", got.Channels, target.Channels).
			Component(componentDecode).
			Category(errors.CategoryDecode).
			Context("source_channels", got.Channels).
			Build()
	}
}

// Widen duplicates each mono sample into a stereo frame.
func Widen(mono []int16) []int16 {
	out := make([]int16, 2*len(mono))
	for i, v := range mono {
		out[2*i] = v
		out[2*i+1] = v
	}
	return out
}
