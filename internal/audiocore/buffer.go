package audiocore

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/tphakala/go-remix/internal/conf"
	"github.com/tphakala/go-remix/internal/errors"
	"github.com/tphakala/go-remix/internal/logging"
)

func logger() *slog.Logger {
	return logging.ServiceOrDefault("audiocore")
}

// Buffer is an owned block of interleaved 16-bit PCM.
//
// Frame positions are logical: they count from the buffer's original time
// origin. Frames released by destructive reads are counted by Offset, and a
// logical frame i lives at physical frame i - Offset.
type Buffer struct {
	format  Format
	samples []int16
	offset  int64

	deferred    bool
	loaded      bool
	destructive bool

	input   Input
	decoder Decoder
	loadErr error

	// frames released since the backing array was last compacted
	released int64
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithDestructiveReads makes slicing release every frame before the end of
// the returned slice.
func WithDestructiveReads(on bool) Option {
	return func(b *Buffer) { b.destructive = on }
}

// NewBuffer wraps samples in a buffer. A zero BitDepth means 16. Trailing
// samples that do not make up a whole frame are dropped.
func NewBuffer(format Format, samples []int16, opts ...Option) *Buffer {
	if format.BitDepth == 0 {
		format.BitDepth = conf.BitDepth
	}
	if format.Channels > 0 {
		samples = samples[:len(samples)-len(samples)%format.Channels]
	}
	b := &Buffer{format: format, samples: samples}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewDeferred returns a canonical buffer that decodes in on first access.
func NewDeferred(in Input, decoder Decoder, opts ...Option) *Buffer {
	b := &Buffer{
		format:   CanonicalFormat(),
		deferred: true,
		input:    in,
		decoder:  decoder,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Zeros allocates a silent buffer of the given frame count.
func Zeros(frames int64, sampleRate, channels int) *Buffer {
	if frames < 0 {
		frames = 0
	}
	return NewBuffer(Format{SampleRate: sampleRate, Channels: channels, BitDepth: conf.BitDepth},
		make([]int16, frames*int64(channels)))
}

// Load decodes a deferred buffer. It is a no-op once the buffer is loaded and
// for buffers that were never deferred. A failed load is not retried: later
// calls return the same error.
func (b *Buffer) Load(ctx context.Context) error {
	if !b.deferred || b.loaded {
		return nil
	}
	if b.loadErr != nil {
		return b.loadErr
	}

	start := time.Now()
	samples, format, err := b.decode(ctx)
	if err != nil {
		b.loadErr = DecodeError(err, b.input)
		logger().Debug("buffer load failed",
			"filetype", b.input.Type(),
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return b.loadErr
	}

	b.format = format
	b.samples = samples
	b.loaded = true
	b.input = Input{}

	logger().Debug("buffer loaded",
		"frames", b.Frames(),
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// decode prefers a WAV container that is already canonical, then the decoder.
func (b *Buffer) decode(ctx context.Context) ([]int16, Format, error) {
	target := CanonicalFormat()

	if b.input.Type() == "wav" {
		data, err := b.input.Bytes()
		if err != nil {
			return nil, Format{}, err
		}
		if wav, err := DecodeContainer(data); err == nil && wav.format == target {
			return wav.samples, target, nil
		}
	}

	if b.decoder == nil {
		return nil, Format{}, errors.Newf("no decoder available for %q input", b.input.Type()).
			Component(ComponentAudioCore).
			Category(errors.CategoryDecode).
			Build()
	}

	samples, err := b.decoder.Decode(ctx, b.input, target)
	if err != nil {
		return nil, Format{}, err
	}
	samples = samples[:len(samples)-len(samples)%target.Channels]
	return samples, target, nil
}

func (b *Buffer) ensureLoaded() error {
	return b.Load(context.Background())
}

// Format returns the sample layout. For an unloaded deferred buffer this is
// the canonical format it will be decoded to.
func (b *Buffer) Format() Format { return b.format }

// SampleRate returns frames per second.
func (b *Buffer) SampleRate() int { return b.format.SampleRate }

// Channels returns the number of interleaved channels.
func (b *Buffer) Channels() int { return b.format.Channels }

// Deferred reports whether the buffer was created for lazy decoding.
func (b *Buffer) Deferred() bool { return b.deferred }

// Loaded reports whether a deferred buffer has been decoded.
func (b *Buffer) Loaded() bool { return !b.deferred || b.loaded }

// DestructiveReads reports whether slicing releases consumed frames.
func (b *Buffer) DestructiveReads() bool { return b.destructive }

// SetDestructiveReads switches destructive reads on or off.
func (b *Buffer) SetDestructiveReads(on bool) { b.destructive = on }

// Offset returns the number of frames released from the logical start.
func (b *Buffer) Offset() int64 { return b.offset }

// Frames returns the number of frames still held.
func (b *Buffer) Frames() int64 {
	if b.format.Channels == 0 {
		return 0
	}
	return int64(len(b.samples) / b.format.Channels)
}

// End returns the logical index one past the last held frame.
func (b *Buffer) End() int64 { return b.offset + b.Frames() }

// Duration returns the logical length of the buffer in seconds, released
// frames included.
func (b *Buffer) Duration() float64 {
	if b.format.SampleRate == 0 {
		return 0
	}
	return float64(b.End()) / float64(b.format.SampleRate)
}

// Samples returns the held interleaved samples without copying.
func (b *Buffer) Samples() []int16 { return b.samples }

// Get returns a copy of the frame at pos, one sample per channel.
func (b *Buffer) Get(pos Position) ([]int16, error) {
	if err := b.ensureLoaded(); err != nil {
		return nil, err
	}

	i := pos.Frames(b.format.SampleRate)
	if i < b.offset {
		return nil, outOfRange("frame %d was released, buffer starts at %d", i, b.offset)
	}
	if i >= b.End() {
		return nil, outOfRange("frame %d is beyond buffer end %d", i, b.End())
	}

	ch := int64(b.format.Channels)
	p := (i - b.offset) * ch
	frame := make([]int16, ch)
	copy(frame, b.samples[p:p+ch])
	return frame, nil
}

// Extract slices the interval covered by span.
func (b *Buffer) Extract(span Span) (*Buffer, error) {
	iv := span.Interval()
	return b.Slice(Seconds(iv.Start), Seconds(iv.End))
}

// Slice returns a new buffer holding frames [start, end). An end past the
// last frame is clamped. With destructive reads every frame before start is
// released from b afterwards.
func (b *Buffer) Slice(start, end Position) (*Buffer, error) {
	if err := b.ensureLoaded(); err != nil {
		return nil, err
	}

	s := start.Frames(b.format.SampleRate)
	e := end.Frames(b.format.SampleRate)

	switch {
	case s < b.offset:
		return nil, outOfRange("slice start %d was released, buffer starts at %d", s, b.offset)
	case e < s:
		return nil, outOfRange("slice end %d precedes start %d", e, s)
	case s > b.End():
		return nil, outOfRange("slice start %d is beyond buffer end %d", s, b.End())
	}
	e = min(e, b.End())

	ch := int64(b.format.Channels)
	from, to := (s-b.offset)*ch, (e-b.offset)*ch
	out := make([]int16, to-from)
	copy(out, b.samples[from:to])

	if b.destructive {
		b.release(s)
	}

	return NewBuffer(b.format, out, WithDestructiveReads(b.destructive)), nil
}

// release drops every frame before logical index upTo.
func (b *Buffer) release(upTo int64) {
	n := upTo - b.offset
	if n <= 0 {
		return
	}
	ch := int64(b.format.Channels)
	b.samples = b.samples[n*ch:]
	b.offset = upTo
	b.released += n

	// Reslicing keeps the backing array alive; copy once the released
	// prefix outweighs what is left.
	if b.released > b.Frames() {
		b.samples = append(make([]int16, 0, len(b.samples)), b.samples...)
		b.released = 0
	}
}

// mixAt adds src into b starting at logical frame at, saturating at the int16
// limits. Frames falling past the end of b are dropped. It returns the number
// of frames written.
func (b *Buffer) mixAt(at int64, src []int16) (int64, error) {
	if at < b.offset {
		return 0, outOfRange("render position %d was released, buffer starts at %d", at, b.offset)
	}
	ch := int64(b.format.Channels)
	p := (at - b.offset) * ch
	if p >= int64(len(b.samples)) {
		return 0, nil
	}
	n := min(int64(len(src)), int64(len(b.samples))-p)
	dst := b.samples[p : p+n]
	for i, v := range src[:n] {
		dst[i] = saturate(int32(dst[i]) + int32(v))
	}
	return n / ch, nil
}

func saturate(v int32) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
