package audiocore

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format Format
		frames int
	}{
		{"canonical", CanonicalFormat(), 2048},
		{"mono 8k", Format{SampleRate: 8000, Channels: 1, BitDepth: 16}, 333},
		{"empty", CanonicalFormat(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			samples := make([]int16, tt.frames*tt.format.Channels)
			for i := range samples {
				samples[i] = int16(i*37 - 20000)
			}
			orig := NewBuffer(tt.format, samples)

			data, err := orig.Encode()
			require.NoError(t, err)

			got, err := DecodeContainer(data)
			require.NoError(t, err)
			assert.Equal(t, tt.format, got.Format())
			assert.Equal(t, orig.Frames(), got.Frames())
			if tt.frames > 0 {
				assert.Equal(t, samples, got.Samples())
			}
		})
	}
}

func TestContainerHeader(t *testing.T) {
	t.Parallel()

	data, err := canonical(10).Encode()
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(data), 44)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(data[22:24]))
	assert.Equal(t, uint32(44100), binary.LittleEndian.Uint32(data[24:28]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(data[34:36]))
	assert.Equal(t, uint32(40), binary.LittleEndian.Uint32(data[40:44]))
}

func TestEncodeRejectsNon16Bit(t *testing.T) {
	t.Parallel()

	b := NewBuffer(Format{SampleRate: 44100, Channels: 2, BitDepth: 24}, make([]int16, 4))
	_, err := b.Encode()
	require.ErrorIs(t, err, ErrFormat)
}

func TestDecodeContainerRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := DecodeContainer([]byte("definitely not a RIFF file"))
	require.ErrorIs(t, err, ErrDecode)
}

func TestWriteAndReadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "slice.wav")
	orig := canonical(500)
	require.NoError(t, orig.WriteFile(path))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, orig.Samples(), got.Samples())

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
}
