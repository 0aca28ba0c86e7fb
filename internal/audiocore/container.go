package audiocore

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/go-remix/internal/errors"
)

// wavFormatPCM is the WAVE format tag for linear PCM.
const wavFormatPCM = 1

// seekableBuffer is an in-memory io.WriteSeeker for the WAV encoder, which
// seeks back to patch chunk sizes on Close.
type seekableBuffer struct {
	buf []byte
	pos int
}

func (s *seekableBuffer) Write(p []byte) (int, error) {
	if end := s.pos + len(p); end > len(s.buf) {
		s.buf = append(s.buf, make([]byte, end-len(s.buf))...)
	}
	n := copy(s.buf[s.pos:], p)
	s.pos += n
	return n, nil
}

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(s.pos) + offset
	case io.SeekEnd:
		abs = int64(len(s.buf)) + offset
	default:
		return 0, errors.NewStd("seekableBuffer: invalid whence")
	}
	if abs < 0 {
		return 0, errors.NewStd("seekableBuffer: negative position")
	}
	s.pos = int(abs)
	return abs, nil
}

func (s *seekableBuffer) Bytes() []byte { return s.buf }

// Encode serializes the held frames as a canonical WAV container: a RIFF
// header carrying sample rate, channel count and bit depth followed by
// little-endian PCM.
func (b *Buffer) Encode() ([]byte, error) {
	w := &seekableBuffer{}
	if err := b.EncodeTo(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// EncodeTo writes the container to w.
func (b *Buffer) EncodeTo(w io.WriteSeeker) error {
	if err := b.ensureLoaded(); err != nil {
		return err
	}
	if b.format.BitDepth != 16 {
		return formatError("cannot encode %d-bit samples, only 16-bit is supported", b.format.BitDepth)
	}
	if err := b.format.Validate(); err != nil {
		return err
	}

	enc := wav.NewEncoder(w, b.format.SampleRate, b.format.BitDepth, b.format.Channels, wavFormatPCM)

	data := make([]int, len(b.samples))
	for i, v := range b.samples {
		data[i] = int(v)
	}

	if err := enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: b.format.SampleRate, NumChannels: b.format.Channels},
		SourceBitDepth: b.format.BitDepth,
	}); err != nil {
		return errors.New(err).
			Component(ComponentAudioCore).
			Category(errors.CategoryAudio).
			Context("operation", "wav_encode").
			Build()
	}

	if err := enc.Close(); err != nil {
		return errors.New(err).
			Component(ComponentAudioCore).
			Category(errors.CategoryAudio).
			Context("operation", "wav_finalize").
			Build()
	}
	return nil
}

// WriteFile encodes the buffer into a container file at path.
func (b *Buffer) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.FileError(err, path, 0)
	}
	data, err := b.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.FileError(err, path, int64(len(data)))
	}
	return nil
}

// DecodeContainer parses a 16-bit PCM WAV container produced by Encode.
func DecodeContainer(data []byte) (*Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	// IsValidFile rejects zero-length payloads, which Encode can produce.
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, DecodeError(err, Input{FileType: "wav", Data: data})
	}
	if dec.NumChans < 1 || dec.SampleRate == 0 {
		return nil, DecodeError(errors.NewStd("not a valid WAV container"), Input{FileType: "wav", Data: data})
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, formatError("unsupported WAV format tag %d", dec.WavAudioFormat)
	}
	if dec.BitDepth != 16 {
		return nil, formatError("unsupported WAV bit depth %d", dec.BitDepth)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, DecodeError(err, Input{FileType: "wav", Data: data})
	}

	samples := make([]int16, len(pcm.Data))
	for i, v := range pcm.Data {
		samples[i] = int16(v)
	}

	return NewBuffer(Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}, samples), nil
}

// ReadFile decodes a container file from disk.
func ReadFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.FileError(err, path, 0)
	}
	return DecodeContainer(data)
}
