package audiocore

import "io"

// SamplePipe is a PCMPipe over samples already in memory.
type SamplePipe struct {
	format  Format
	samples []int16
	pos     int
	closed  bool
}

// NewSamplePipe returns a pipe that yields samples in order.
func NewSamplePipe(format Format, samples []int16) *SamplePipe {
	return &SamplePipe{format: format, samples: samples}
}

// Format returns the sample layout.
func (p *SamplePipe) Format() Format { return p.format }

// Skip discards up to frames frames.
func (p *SamplePipe) Skip(frames int64) (int64, error) {
	got := p.take(frames)
	return int64(len(got) / p.format.Channels), nil
}

// Read returns up to frames frames.
func (p *SamplePipe) Read(frames int64) ([]int16, error) {
	got := p.take(frames)
	if len(got) == 0 && frames > 0 {
		return nil, io.EOF
	}
	out := make([]int16, len(got))
	copy(out, got)
	return out, nil
}

func (p *SamplePipe) take(frames int64) []int16 {
	if p.closed || frames <= 0 {
		return nil
	}
	n := min(int(frames)*p.format.Channels, len(p.samples)-p.pos)
	got := p.samples[p.pos : p.pos+n]
	p.pos += n
	return got
}

// Close releases the samples.
func (p *SamplePipe) Close() error {
	p.closed = true
	p.samples = nil
	p.pos = 0
	return nil
}
