package ffmpeg

import (
	"context"
	"io"

	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/errors"
)

// StreamPipe is a forward-only PCM pipe over a running ffmpeg process.
type StreamPipe struct {
	proc   *process
	format audiocore.Format
	eof    bool
}

// NewStreamPipe starts ffmpeg over in and returns a pipe reading its output
// in the canonical format.
func NewStreamPipe(ctx context.Context, cfg Config, in audiocore.Input) (*StreamPipe, error) {
	cfg = cfg.withDefaults()
	src, stdin := inputSource(in.Data, in.Path)
	p := newProcess(cfg, buildArgs(src, pcmOutputArgs(cfg), cfg.ExtraArgs), stdin)
	if err := p.Start(ctx); err != nil {
		return nil, audiocore.DecodeError(err, in)
	}
	return &StreamPipe{proc: p, format: cfg.outputFormat()}, nil
}

// Format returns the output layout.
func (s *StreamPipe) Format() audiocore.Format { return s.format }

// Skip discards up to frames frames.
func (s *StreamPipe) Skip(frames int64) (int64, error) {
	if frames <= 0 || s.eof {
		return 0, nil
	}
	bpf := int64(s.format.BytesPerFrame())
	n, err := io.CopyN(io.Discard, s.proc, frames*bpf)
	if errors.Is(err, io.EOF) {
		s.eof = true
		return n / bpf, s.finishError()
	}
	return n / bpf, err
}

// Read returns up to frames frames, fewer only at the end of the output.
func (s *StreamPipe) Read(frames int64) ([]int16, error) {
	if frames <= 0 {
		return nil, nil
	}
	if s.eof {
		return nil, io.EOF
	}
	bpf := int64(s.format.BytesPerFrame())
	buf := make([]byte, frames*bpf)
	n, err := io.ReadFull(s.proc, buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.eof = true
		if werr := s.finishError(); werr != nil {
			return nil, werr
		}
		if n == 0 {
			return nil, io.EOF
		}
	case err != nil:
		return nil, err
	}
	n -= n % int(bpf)
	return bytesToSamples(buf[:n]), nil
}

// finishError reaps the process after stdout hit EOF and reports a failed exit.
func (s *StreamPipe) finishError() error {
	return s.proc.Wait()
}

// Close stops ffmpeg if it is still running.
func (s *StreamPipe) Close() error {
	return s.proc.Stop()
}

// Metrics returns process metrics.
func (s *StreamPipe) Metrics() ProcessMetrics { return s.proc.Metrics() }
