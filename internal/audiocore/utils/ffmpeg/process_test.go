package ffmpeg

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeFFmpeg writes a shell script standing in for ffmpeg and returns its path.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg is a shell script")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755)) //nolint:gosec // script must be executable
	return path
}

func pcmBytes(samples ...int16) []byte {
	b := make([]byte, 2*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(v))
	}
	return b
}

func TestBuildArgs(t *testing.T) {
	t.Parallel()

	cfg := Config{ExtraArgs: []string{"-analyzeduration", "1000000"}}.withDefaults()
	args := buildArgs("pipe:0", pcmOutputArgs(cfg), cfg.ExtraArgs)

	assert.Equal(t, []string{"-hide_banner", "-loglevel", "error"}, args[:3])
	assert.Equal(t, "pipe:1", args[len(args)-1])

	i := slices.Index(args, "-i")
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, "pipe:0", args[i+1])

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-f s16le")
	assert.Contains(t, joined, "-ar 44100")
	assert.Contains(t, joined, "-ac 2")
	assert.Contains(t, joined, "-analyzeduration 1000000")
}

func TestInputSource(t *testing.T) {
	t.Parallel()

	src, r := inputSource(nil, "/music/a.flac")
	assert.Equal(t, "/music/a.flac", src)
	assert.Nil(t, r)

	src, r = inputSource([]byte{1}, "/music/a.flac")
	assert.Equal(t, "pipe:0", src)
	assert.NotNil(t, r)
}

func TestStderrTailKeepsLastBytes(t *testing.T) {
	t.Parallel()

	tail := newStderrTail(8)
	_, _ = tail.Write([]byte("abcdef"))
	_, _ = tail.Write([]byte("ghij"))
	assert.Equal(t, "cdefghij", tail.String())
	// reading the tail is not destructive
	assert.Equal(t, "cdefghij", tail.String())

	n, err := tail.Write([]byte("0123456789xyz"))
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	assert.Equal(t, "56789xyz", tail.String())
}

func TestProcessStartInvalidCommand(t *testing.T) {
	t.Parallel()

	p := newProcess(Config{FFmpegPath: "/nonexistent/ffmpeg"}.withDefaults(), []string{"-version"}, nil)
	err := p.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryProcess))

	// Start is sticky and Stop is safe on a process that never ran
	require.Error(t, p.Start(context.Background()))
	require.NoError(t, p.Stop())
	require.NoError(t, p.Wait())
}

func TestProcessRequiresPath(t *testing.T) {
	t.Parallel()

	p := newProcess(Config{}.withDefaults(), nil, nil)
	err := p.Start(context.Background())
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestDecoderDecode(t *testing.T) {
	t.Parallel()

	ff := fakeFFmpeg(t, "cat")
	dec := NewDecoder(Config{FFmpegPath: ff})

	input := append(pcmBytes(1, -1, 300, -300), 0x7f) // trailing odd byte is dropped
	got, err := dec.Decode(context.Background(), audiocore.Input{Data: input, FileType: "mp3"}, audiocore.CanonicalFormat())
	require.NoError(t, err)
	assert.Equal(t, []int16{1, -1, 300, -300}, got)
}

func TestDecoderReportsStderr(t *testing.T) {
	t.Parallel()

	ff := fakeFFmpeg(t, "cat >/dev/null\necho 'pipe:0: Invalid data found when processing input' >&2\nexit 1")
	dec := NewDecoder(Config{FFmpegPath: ff})

	_, err := dec.Decode(context.Background(), audiocore.Input{Data: []byte("junk"), FileType: "mp3"}, audiocore.CanonicalFormat())
	require.ErrorIs(t, err, audiocore.ErrDecode)
	assert.Contains(t, err.Error(), "Invalid data found")

	stderr, ok := errors.ContextValue(err, "stderr")
	require.True(t, ok)
	assert.Contains(t, stderr, "Invalid data")
	code, ok := errors.ContextValue(err, "exit_code")
	require.True(t, ok)
	assert.Equal(t, 1, code)
}

func TestDecoderRejectsNon16BitTarget(t *testing.T) {
	t.Parallel()

	dec := NewDecoder(Config{FFmpegPath: "/nonexistent/ffmpeg"})
	_, err := dec.Decode(context.Background(), audiocore.Input{Data: []byte{0}}, audiocore.Format{SampleRate: 44100, Channels: 2, BitDepth: 24})
	require.ErrorIs(t, err, audiocore.ErrFormat)
}

func TestDecoderWithBuffer(t *testing.T) {
	t.Parallel()

	ff := fakeFFmpeg(t, "cat")
	input := pcmBytes(10, 20, 30, 40, 50, 60)
	buf := audiocore.NewDeferred(audiocore.Input{Data: input, FileType: "ogg"}, NewDecoder(Config{FFmpegPath: ff}))

	require.NoError(t, buf.Load(context.Background()))
	assert.Equal(t, int64(3), buf.Frames())
}

func TestStreamPipe(t *testing.T) {
	t.Parallel()

	ff := fakeFFmpeg(t, "cat")
	samples := make([]int16, 2*100)
	for i := range samples {
		samples[i] = int16(i)
	}

	pipe, err := NewStreamPipe(context.Background(), Config{FFmpegPath: ff}, audiocore.Input{Data: pcmBytes(samples...)})
	require.NoError(t, err)

	stream, err := audiocore.NewStream(pipe)
	require.NoError(t, err)

	got, err := stream.Slice(audiocore.Frame(10), audiocore.Frame(12))
	require.NoError(t, err)
	assert.Equal(t, []int16{20, 21, 22, 23}, got.Samples())

	_, err = stream.Slice(audiocore.Frame(0), audiocore.Frame(1))
	require.ErrorIs(t, err, audiocore.ErrBackwardSeek)

	rest, err := stream.Remaining()
	require.NoError(t, err)
	assert.Equal(t, int64(88), rest.Frames())
	assert.Equal(t, int64(100), stream.Cursor())
	assert.Equal(t, int64(400), pipe.Metrics().BytesRead)

	require.NoError(t, stream.Finish())
}

func TestStreamPipeReadAfterEOF(t *testing.T) {
	t.Parallel()

	ff := fakeFFmpeg(t, "cat")
	pipe, err := NewStreamPipe(context.Background(), Config{FFmpegPath: ff}, audiocore.Input{Data: pcmBytes(1, 2, 3, 4)})
	require.NoError(t, err)
	defer func() { require.NoError(t, pipe.Close()) }()

	got, err := pipe.Read(10)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3, 4}, got)

	_, err = pipe.Read(1)
	require.ErrorIs(t, err, io.EOF)

	n, err := pipe.Skip(5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestStreamPipeCloseStopsEndlessProcess(t *testing.T) {
	t.Parallel()

	ff := fakeFFmpeg(t, "while :; do printf 'abcdabcdabcdabcd'; done")
	pipe, err := NewStreamPipe(context.Background(),
		Config{FFmpegPath: ff, StopTimeout: 2 * time.Second},
		audiocore.Input{Path: "/dev/null"})
	require.NoError(t, err)

	got, err := pipe.Read(4)
	require.NoError(t, err)
	assert.Len(t, got, 8)

	done := make(chan error, 1)
	go func() { done <- pipe.Close() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Close did not stop the process")
	}
	require.NoError(t, pipe.Close())
}

func TestDownconvert(t *testing.T) {
	t.Parallel()

	ff := fakeFFmpeg(t, `cat >/dev/null
case "$*" in
  *libmp3lame*) printf 'ID3mp3data' ;;
  *) exit 2 ;;
esac`)
	tc := NewTranscoder(Config{FFmpegPath: ff})

	out, ft, err := tc.Downconvert(context.Background(), []byte("RIFF...."), "wav")
	require.NoError(t, err)
	assert.Equal(t, "mp3", ft)
	assert.Equal(t, []byte("ID3mp3data"), out)
}

func TestDownconvertEmptyOutput(t *testing.T) {
	t.Parallel()

	tc := NewTranscoder(Config{FFmpegPath: fakeFFmpeg(t, "cat >/dev/null")})
	_, _, err := tc.Downconvert(context.Background(), []byte("x"), "wav")
	require.Error(t, err)
}

func TestValidatePath(t *testing.T) {
	t.Parallel()

	ff := fakeFFmpeg(t, "exit 0")
	got, err := ValidatePath(ff)
	require.NoError(t, err)
	assert.Equal(t, ff, got)

	_, err = ValidatePath("/nonexistent/ffmpeg")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
