package decode

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/errors"
)

// memFile is an in-memory io.WriteSeeker for building fixtures.
type memFile struct {
	buf []byte
	pos int64
}

func (m *memFile) Write(p []byte) (int, error) {
	if end := m.pos + int64(len(p)); end > int64(len(m.buf)) {
		m.buf = append(m.buf, make([]byte, end-int64(len(m.buf)))...)
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += int64(n)
	return n, nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.pos = offset
	case io.SeekCurrent:
		m.pos += offset
	case io.SeekEnd:
		m.pos = int64(len(m.buf)) + offset
	}
	return m.pos, nil
}

func wavFixture(t *testing.T, rate, channels, depth int, data []int) []byte {
	t.Helper()
	f := &memFile{}
	enc := wav.NewEncoder(f, rate, depth, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: rate, NumChannels: channels},
		SourceBitDepth: depth,
	}))
	require.NoError(t, enc.Close())
	return f.buf
}

func TestNativeWAVCanonical(t *testing.T) {
	t.Parallel()

	data := wavFixture(t, 44100, 2, 16, []int{1, -1, 1000, -1000, 32767, -32768})
	got, err := NewNative().Decode(context.Background(), audiocore.Input{Data: data, FileType: "wav"}, audiocore.CanonicalFormat())
	require.NoError(t, err)
	assert.Equal(t, []int16{1, -1, 1000, -1000, 32767, -32768}, got)
}

func TestNativeWidensMono(t *testing.T) {
	t.Parallel()

	data := wavFixture(t, 44100, 1, 16, []int{5, -7, 9})
	got, err := NewNative().Decode(context.Background(), audiocore.Input{Data: data, FileType: "WAV"}, audiocore.CanonicalFormat())
	require.NoError(t, err)
	assert.Equal(t, []int16{5, 5, -7, -7, 9, 9}, got)
}

func TestNativeScales24Bit(t *testing.T) {
	t.Parallel()

	data := wavFixture(t, 44100, 2, 24, []int{256, -256, 8388607, -8388608})
	got, err := NewNative().Decode(context.Background(), audiocore.Input{Data: data, FileType: "wav"}, audiocore.CanonicalFormat())
	require.NoError(t, err)
	assert.Equal(t, []int16{1, -1, 32767, -32768}, got)
}

func TestNativeFromPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, wavFixture(t, 44100, 2, 16, []int{3, 4}), 0o600))

	buf := audiocore.NewDeferred(audiocore.Input{Path: path}, NewNative())
	require.NoError(t, buf.Load(context.Background()))
	assert.Equal(t, []int16{3, 4}, buf.Samples())
}

func TestNativeRejects(t *testing.T) {
	t.Parallel()

	native := NewNative()
	ctx := context.Background()
	target := audiocore.CanonicalFormat()

	t.Run("sample rate mismatch", func(t *testing.T) {
		t.Parallel()
		data := wavFixture(t, 8000, 2, 16, []int{1, 2})
		_, err := native.Decode(ctx, audiocore.Input{Data: data, FileType: "wav"}, target)
		require.ErrorIs(t, err, audiocore.ErrDecode)
		rate, ok := errors.ContextValue(err, "source_rate")
		require.True(t, ok)
		assert.Equal(t, 8000, rate)
	})

	t.Run("too many channels", func(t *testing.T) {
		t.Parallel()
		data := wavFixture(t, 44100, 4, 16, []int{1, 2, 3, 4})
		_, err := native.Decode(ctx, audiocore.Input{Data: data, FileType: "wav"}, target)
		require.ErrorIs(t, err, audiocore.ErrDecode)
	})

	t.Run("unsupported type", func(t *testing.T) {
		t.Parallel()
		assert.False(t, native.Supports("m4a"))
		_, err := native.Decode(ctx, audiocore.Input{Data: []byte{0}, FileType: "m4a"}, target)
		require.ErrorIs(t, err, ErrUnsupported)
	})

	for _, ft := range []string{"mp3", "flac", "ogg", "wav"} {
		t.Run("garbage "+ft, func(t *testing.T) {
			t.Parallel()
			assert.True(t, native.Supports(ft))
			_, err := native.Decode(ctx, audiocore.Input{Data: []byte("this is not audio at all"), FileType: ft}, target)
			require.ErrorIs(t, err, audiocore.ErrDecode)
		})
	}
}

func TestNativeHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewNative().Decode(ctx, audiocore.Input{Data: []byte{0}, FileType: "wav"}, audiocore.CanonicalFormat())
	require.ErrorIs(t, err, context.Canceled)
}

func TestChain(t *testing.T) {
	t.Parallel()

	failing := audiocore.DecoderFunc(func(context.Context, audiocore.Input, audiocore.Format) ([]int16, error) {
		return nil, errors.NewStd("nope")
	})
	working := audiocore.DecoderFunc(func(context.Context, audiocore.Input, audiocore.Format) ([]int16, error) {
		return []int16{1, 2}, nil
	})

	got, err := NewChain(failing, nil, working).Decode(context.Background(), audiocore.Input{Data: []byte{0}}, audiocore.CanonicalFormat())
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2}, got)

	_, err = NewChain(failing, failing).Decode(context.Background(), audiocore.Input{Data: []byte{0}}, audiocore.CanonicalFormat())
	require.ErrorIs(t, err, audiocore.ErrDecode)
	assert.Contains(t, err.Error(), "nope")

	_, err = NewChain().Decode(context.Background(), audiocore.Input{}, audiocore.CanonicalFormat())
	require.ErrorIs(t, err, audiocore.ErrDecode)
}

func TestDefaultChain(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, Default(true, nil).Len())
	assert.Equal(t, 0, Default(false, nil).Len())
}

func TestWAVPipeWithStream(t *testing.T) {
	t.Parallel()

	data := make([]int, 2*5000)
	for i := range data {
		data[i] = i % 1000
	}
	pipe, err := NewWAVPipe(bytes.NewReader(wavFixture(t, 44100, 2, 16, data)))
	require.NoError(t, err)

	stream, err := audiocore.NewStream(pipe)
	require.NoError(t, err)

	got, err := stream.Slice(audiocore.Frame(1000), audiocore.Frame(1002))
	require.NoError(t, err)
	assert.Equal(t, []int16{0, 1, 2, 3}, got.Samples())

	rest, err := stream.Remaining()
	require.NoError(t, err)
	assert.Equal(t, int64(3998), rest.Frames())
	assert.Equal(t, int64(5000), stream.Cursor())
}

func TestWAVPipeRejectsNon16Bit(t *testing.T) {
	t.Parallel()

	_, err := NewWAVPipe(bytes.NewReader(wavFixture(t, 44100, 2, 24, []int{1, 2})))
	require.ErrorIs(t, err, audiocore.ErrFormat)

	_, err = NewWAVPipe(bytes.NewReader([]byte("garbage!garbage!")))
	require.ErrorIs(t, err, audiocore.ErrDecode)
}

func TestSampleConversions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int16(0), scaleTo16(128, 8))
	assert.Equal(t, int16(-32768), scaleTo16(0, 8))
	assert.Equal(t, int16(-2), scaleTo16(-2, 16))
	assert.Equal(t, int16(1), scaleTo16(65536, 32))

	assert.Equal(t, int16(32767), floatTo16(1.5))
	assert.Equal(t, int16(-32768), floatTo16(-2))
	assert.Equal(t, int16(0), floatTo16(0))

	assert.Equal(t, []int16{1, 1, 2, 2}, Widen([]int16{1, 2}))
}
