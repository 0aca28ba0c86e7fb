package decode

import (
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/errors"
)

// WAVPipe streams a 16-bit PCM WAV file without loading it whole.
type WAVPipe struct {
	src    io.ReadSeeker
	closer io.Closer
	dec    *wav.Decoder
	format audiocore.Format
	buf    *audio.IntBuffer
	eof    bool
}

// NewWAVPipe opens a forward-only pipe over r. Only 16-bit linear PCM is
// accepted. If r is also an io.Closer it is closed with the pipe.
func NewWAVPipe(r io.ReadSeeker) (*WAVPipe, error) {
	dec := wav.NewDecoder(r)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, audiocore.DecodeError(err, audiocore.Input{FileType: "wav"})
	}
	if dec.NumChans < 1 || dec.SampleRate == 0 {
		return nil, audiocore.DecodeError(errors.NewStd("not a valid WAV file"), audiocore.Input{FileType: "wav"})
	}
	if dec.WavAudioFormat != 1 || dec.BitDepth != 16 {
		return nil, errors.Newf("streaming WAV needs 16-bit PCM, got format %d at %d bits", dec.WavAudioFormat, dec.BitDepth).
			Component(componentDecode).
			Category(errors.CategoryFormat).
			Build()
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, audiocore.DecodeError(err, audiocore.Input{FileType: "wav"})
	}

	p := &WAVPipe{
		src: r,
		dec: dec,
		format: audiocore.Format{
			SampleRate: int(dec.SampleRate),
			Channels:   int(dec.NumChans),
			BitDepth:   16,
		},
	}
	if c, ok := r.(io.Closer); ok {
		p.closer = c
	}
	return p, nil
}

// Format returns the file's layout.
func (p *WAVPipe) Format() audiocore.Format { return p.format }

// read fills out with up to len(out) samples, looping over short reads.
func (p *WAVPipe) read(out []int16) (int, error) {
	total := 0
	for total < len(out) && !p.eof {
		want := len(out) - total
		if p.buf == nil || len(p.buf.Data) < want {
			p.buf = intBufferFor(want, &audio.Format{SampleRate: p.format.SampleRate, NumChannels: p.format.Channels})
		}
		p.buf.Data = p.buf.Data[:want]

		n, err := p.dec.PCMBuffer(p.buf)
		for i := range n {
			out[total+i] = int16(p.buf.Data[i])
		}
		total += n
		if err != nil {
			return total, audiocore.DecodeError(err, audiocore.Input{FileType: "wav"})
		}
		if n == 0 {
			p.eof = true
		}
	}
	return total, nil
}

// Skip discards up to frames frames.
func (p *WAVPipe) Skip(frames int64) (int64, error) {
	const chunk = 1 << 14
	var skipped int64
	scratch := make([]int16, chunk*p.format.Channels)
	for skipped < frames && !p.eof {
		want := min(frames-skipped, chunk)
		n, err := p.read(scratch[:want*int64(p.format.Channels)])
		skipped += int64(n / p.format.Channels)
		if err != nil {
			return skipped, err
		}
	}
	return skipped, nil
}

// Read returns up to frames frames.
func (p *WAVPipe) Read(frames int64) ([]int16, error) {
	if frames <= 0 {
		return nil, nil
	}
	out := make([]int16, frames*int64(p.format.Channels))
	n, err := p.read(out)
	if err != nil {
		return nil, err
	}
	n -= n % p.format.Channels
	if n == 0 {
		return nil, io.EOF
	}
	return out[:n], nil
}

// Close releases the underlying reader.
func (p *WAVPipe) Close() error {
	p.eof = true
	if p.closer != nil {
		c := p.closer
		p.closer = nil
		return c.Close()
	}
	return nil
}
