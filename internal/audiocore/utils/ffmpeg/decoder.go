package ffmpeg

import (
	"context"
	"encoding/binary"
	"io"
	"time"

	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/errors"
)

// Decoder converts any input ffmpeg understands into canonical PCM.
type Decoder struct {
	config Config
}

// NewDecoder returns a one-shot decoder.
func NewDecoder(cfg Config) *Decoder {
	return &Decoder{config: cfg.withDefaults()}
}

// Decode runs ffmpeg once over the whole input and returns interleaved
// samples in target.
func (d *Decoder) Decode(ctx context.Context, in audiocore.Input, target audiocore.Format) ([]int16, error) {
	if target.BitDepth != 0 && target.BitDepth != 16 {
		return nil, errors.Newf("ffmpeg decoder produces 16-bit samples, %d-bit requested", target.BitDepth).
			Component(componentFFmpeg).
			Category(errors.CategoryFormat).
			Build()
	}

	cfg := d.config
	cfg.SampleRate = target.SampleRate
	cfg.Channels = target.Channels
	cfg = cfg.withDefaults()

	src, stdin := inputSource(in.Data, in.Path)
	p := newProcess(cfg, buildArgs(src, pcmOutputArgs(cfg), cfg.ExtraArgs), stdin)

	start := time.Now()
	if err := p.Start(ctx); err != nil {
		return nil, audiocore.DecodeError(err, in)
	}

	raw, readErr := io.ReadAll(p)
	waitErr := p.Wait()
	if waitErr != nil {
		return nil, audiocore.DecodeError(waitErr, in)
	}
	if readErr != nil {
		return nil, audiocore.DecodeError(readErr, in)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	samples := bytesToSamples(raw)
	logger().Debug("ffmpeg decode finished",
		"process_id", cfg.ID,
		"filetype", in.Type(),
		"samples", len(samples),
		"duration_ms", time.Since(start).Milliseconds())
	return samples, nil
}

// bytesToSamples converts little-endian 16-bit PCM, dropping a trailing odd byte.
func bytesToSamples(raw []byte) []int16 {
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return samples
}
