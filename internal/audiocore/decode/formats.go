package decode

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/tphakala/flac"

	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/errors"
)

// scaleTo16 converts an integer sample of the given depth to 16 bits.
func scaleTo16(v, bitDepth int) int16 {
	switch {
	case bitDepth == 8:
		// 8-bit WAV is unsigned
		return int16((v - 128) << 8)
	case bitDepth <= 16:
		return int16(v << (16 - bitDepth))
	default:
		return int16(v >> (bitDepth - 16))
	}
}

func unsupportedDepth(kind string, depth int) error {
	return errors.Newf("unsupported %s bit depth %d", kind, depth).
		Component(componentDecode).
		Category(errors.CategoryDecode).
		Build()
}

func decodeWAV(r io.Reader) ([]int16, audiocore.Format, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, audiocore.Format{}, err
		}
		rs = bytes.NewReader(data)
	}

	dec := wav.NewDecoder(rs)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, audiocore.Format{}, err
	}
	if dec.NumChans < 1 || dec.SampleRate == 0 {
		return nil, audiocore.Format{}, errors.NewStd("not a valid WAV file")
	}
	if dec.WavAudioFormat != 1 {
		return nil, audiocore.Format{}, errors.Newf("unsupported WAV format tag %d", dec.WavAudioFormat).
			Component(componentDecode).
			Category(errors.CategoryDecode).
			Build()
	}
	depth := int(dec.BitDepth)
	switch depth {
	case 8, 16, 24, 32:
	default:
		return nil, audiocore.Format{}, unsupportedDepth("WAV", depth)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, audiocore.Format{}, err
	}
	samples := make([]int16, len(pcm.Data))
	for i, v := range pcm.Data {
		samples[i] = scaleTo16(v, depth)
	}

	return samples, audiocore.Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   16,
	}, nil
}

func decodeFLAC(r io.Reader) ([]int16, audiocore.Format, error) {
	dec, err := flac.NewDecoder(r)
	if err != nil {
		return nil, audiocore.Format{}, err
	}

	depth := dec.BitsPerSample
	width := depth / 8
	switch depth {
	case 16, 24, 32:
	default:
		return nil, audiocore.Format{}, unsupportedDepth("FLAC", depth)
	}

	var samples []int16
	if dec.TotalSamples > 0 {
		samples = make([]int16, 0, int(dec.TotalSamples)*dec.NChannels)
	}
	for {
		frame, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, audiocore.Format{}, err
		}
		for i := 0; i+width <= len(frame); i += width {
			var v int
			switch depth {
			case 16:
				v = int(int16(binary.LittleEndian.Uint16(frame[i:])))
			case 24:
				v = int(int32(uint32(frame[i])|uint32(frame[i+1])<<8|uint32(frame[i+2])<<16) << 8 >> 8)
			case 32:
				v = int(int32(binary.LittleEndian.Uint32(frame[i:])))
			}
			samples = append(samples, scaleTo16(v, depth))
		}
	}

	return samples, audiocore.Format{
		SampleRate: dec.SampleRate,
		Channels:   dec.NChannels,
		BitDepth:   16,
	}, nil
}

func decodeMP3(r io.Reader) ([]int16, audiocore.Format, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, audiocore.Format{}, err
	}
	// go-mp3 always produces 16-bit little-endian stereo
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, audiocore.Format{}, err
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return samples, audiocore.Format{SampleRate: dec.SampleRate(), Channels: 2, BitDepth: 16}, nil
}

func decodeOgg(r io.Reader) ([]int16, audiocore.Format, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, audiocore.Format{}, err
	}
	samples := make([]int16, len(data))
	for i, v := range data {
		samples[i] = floatTo16(v)
	}
	return samples, audiocore.Format{SampleRate: format.SampleRate, Channels: format.Channels, BitDepth: 16}, nil
}

func floatTo16(v float32) int16 {
	s := math.Round(float64(v) * 32767)
	switch {
	case s > math.MaxInt16:
		return math.MaxInt16
	case s < math.MinInt16:
		return math.MinInt16
	}
	return int16(s)
}

// intBufferFor returns a go-audio buffer for streaming reads.
func intBufferFor(samples int, format *audio.Format) *audio.IntBuffer {
	return &audio.IntBuffer{Data: make([]int, samples), Format: format}
}
