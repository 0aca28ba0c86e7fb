package audiocore

import (
	"io"
	"sync"

	"github.com/tphakala/go-remix/internal/errors"
)

// Stream is a forward-only PcmSource over a decode pipe. Positions must be
// requested in non-decreasing order; material before the cursor cannot be
// read again.
//
// A Stream is not safe for concurrent use.
type Stream struct {
	pipe   PCMPipe
	format Format
	cursor int64

	finishOnce sync.Once
	finishErr  error
	finished   bool
}

// NewStream binds pipe, which must produce canonical PCM.
func NewStream(pipe PCMPipe) (*Stream, error) {
	if pipe == nil {
		return nil, errors.Newf("stream requires a decode pipe").
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}
	f := pipe.Format()
	if !f.IsCanonical() {
		return nil, formatError("stream pipe produces %d Hz/%d ch/%d-bit, want canonical %d Hz/%d ch/%d-bit",
			f.SampleRate, f.Channels, f.BitDepth,
			CanonicalFormat().SampleRate, CanonicalFormat().Channels, CanonicalFormat().BitDepth)
	}
	return &Stream{pipe: pipe, format: f}, nil
}

// Format returns the canonical format.
func (s *Stream) Format() Format { return s.format }

// Cursor returns the number of frames consumed from the pipe.
func (s *Stream) Cursor() int64 { return s.cursor }

// Finished reports whether Finish has been called.
func (s *Stream) Finished() bool { return s.finished }

// Slice returns frames [start, end) read from the pipe. A start before the
// cursor fails with a backward seek error. Frames between the cursor and
// start are skipped. When the pipe runs dry the slice is shorter than
// requested and the cursor stops where the pipe ended.
func (s *Stream) Slice(start, end Position) (*Buffer, error) {
	if s.finished {
		return nil, outOfRange("stream is finished")
	}

	from := start.Frames(s.format.SampleRate)
	to := end.Frames(s.format.SampleRate)

	if from < s.cursor {
		return nil, errors.Newf("position %d precedes stream cursor %d", from, s.cursor).
			Component(ComponentAudioCore).
			Category(errors.CategoryBackwardSeek).
			Context("cursor", s.cursor).
			Build()
	}
	if to < from {
		return nil, outOfRange("slice end %d precedes start %d", to, from)
	}

	if gap := from - s.cursor; gap > 0 {
		skipped, err := s.pipe.Skip(gap)
		s.cursor += skipped
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, s.pipeError(err, "skip")
		}
		if skipped < gap {
			return nil, outOfRange("slice start %d is beyond stream end %d", from, s.cursor)
		}
	}

	samples, err := s.readFrames(to - from)
	if err != nil {
		return nil, err
	}
	return NewBuffer(s.format, samples), nil
}

func (s *Stream) readFrames(n int64) ([]int16, error) {
	if n == 0 {
		return []int16{}, nil
	}
	samples, err := s.pipe.Read(n)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, s.pipeError(err, "read")
	}
	s.cursor += int64(len(samples) / s.format.Channels)
	return samples, nil
}

// Get returns the frame at pos and advances the cursor past it.
func (s *Stream) Get(pos Position) ([]int16, error) {
	i := pos.Frames(s.format.SampleRate)
	b, err := s.Slice(Frame(i), Frame(i+1))
	if err != nil {
		return nil, err
	}
	if b.Frames() == 0 {
		return nil, outOfRange("frame %d is beyond stream end %d", i, s.cursor)
	}
	return b.Samples(), nil
}

// Extract slices the interval covered by span.
func (s *Stream) Extract(span Span) (*Buffer, error) {
	iv := span.Interval()
	return s.Slice(Seconds(iv.Start), Seconds(iv.End))
}

// Remaining reads everything left in the pipe into a buffer and finishes the
// stream. The returned buffer's first frame is the frame at Cursor.
func (s *Stream) Remaining() (*Buffer, error) {
	if s.finished {
		return nil, outOfRange("stream is finished")
	}

	const chunk = 1 << 16
	var all []int16
	for {
		samples, err := s.pipe.Read(chunk)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, s.pipeError(err, "read")
		}
		s.cursor += int64(len(samples) / s.format.Channels)
		all = append(all, samples...)
		if int64(len(samples)) < chunk*int64(s.format.Channels) {
			break
		}
	}

	if err := s.Finish(); err != nil {
		return nil, err
	}
	return NewBuffer(s.format, all), nil
}

// Finish closes the pipe. It is safe to call more than once and always
// returns the result of the first close.
func (s *Stream) Finish() error {
	s.finishOnce.Do(func() {
		s.finished = true
		if err := s.pipe.Close(); err != nil {
			s.finishErr = s.pipeError(err, "close")
		}
		logger().Debug("stream finished", "frames", s.cursor)
	})
	return s.finishErr
}

func (s *Stream) pipeError(err error, op string) error {
	return errors.New(err).
		Component(ComponentAudioCore).
		Category(errors.CategoryAudio).
		Context("operation", "stream_"+op).
		Context("cursor", s.cursor).
		Build()
}
