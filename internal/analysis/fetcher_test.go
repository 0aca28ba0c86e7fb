package analysis

import (
	"context"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/errors"
)

type call struct {
	op       string
	data     []byte
	filetype string
	query    Query
}

// scriptedProvider replays queued errors before succeeding.
type scriptedProvider struct {
	mu       sync.Mutex
	uploads  []error
	profiles []error
	calls    []call
	record   *Record
}

func (p *scriptedProvider) next(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (p *scriptedProvider) Upload(_ context.Context, data []byte, filetype string) (*Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call{op: "upload", data: append([]byte(nil), data...), filetype: filetype})
	if err := p.next(&p.uploads); err != nil {
		return nil, err
	}
	return p.record, nil
}

func (p *scriptedProvider) Profile(_ context.Context, q Query) (*Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call{op: "profile", query: q})
	if err := p.next(&p.profiles); err != nil {
		return nil, err
	}
	return p.record, nil
}

type fakeTranscoder struct {
	calls int
	err   error
}

func (f *fakeTranscoder) Downconvert(_ context.Context, data []byte, _ string) ([]byte, string, error) {
	f.calls++
	if f.err != nil {
		return nil, "", f.err
	}
	return append([]byte("mp3:"), data...), "mp3", nil
}

var (
	errRateLimit = &ProviderError{Code: CodeRateLimit, Message: "rate limit exceeded"}
	errFormat    = &ProviderError{Code: CodeBadFormat, Message: "unsupported format"}
	errNotReady  = &ProviderError{TrackStatus: StatusPending}
	errMissing   = &ProviderError{NoTrack: true}
)

func noSleep(sleeps *int) FetcherOption {
	return WithSleep(func(ctx context.Context, _ time.Duration) error {
		*sleeps++
		return ctx.Err()
	})
}

func TestFetchRateLimitRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	want := &Record{ID: "TR1", Status: StatusComplete}
	p := &scriptedProvider{uploads: []error{errRateLimit, errRateLimit, errRateLimit}, record: want}
	var sleeps int
	var classes []Class
	f := NewFetcher(p, nil, noSleep(&sleeps), WithObserver(func(c Class) { classes = append(classes, c) }))

	got, err := f.Fetch(context.Background(), Input{Data: []byte("audio"), FileType: "mp3"})
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, 3, sleeps)
	assert.Len(t, p.calls, 4)
	assert.Equal(t, []Class{ClassRateLimit, ClassRateLimit, ClassRateLimit}, classes)
}

func TestFetchTranscodeTwiceFails(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{uploads: []error{errFormat, errFormat}, record: &Record{}}
	tc := &fakeTranscoder{}
	f := NewFetcher(p, tc)

	_, err := f.Fetch(context.Background(), Input{Data: []byte("audio"), FileType: "m4a"})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrAnalysisFetch)
	assert.Equal(t, 1, tc.calls)
	require.Len(t, p.calls, 2)
	assert.Equal(t, "m4a", p.calls[0].filetype)
	assert.Equal(t, "mp3", p.calls[1].filetype)
	assert.Equal(t, []byte("mp3:audio"), p.calls[1].data)

	class, ok := errors.ContextValue(err, "class")
	require.True(t, ok)
	assert.Equal(t, "transcode", class)
	attempts, _ := errors.ContextValue(err, "attempts")
	assert.Equal(t, 2, attempts)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeBadFormat, pe.Code)
}

func TestFetchTranscodeOnConnectionReset(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{uploads: []error{syscall.ECONNRESET}, record: &Record{ID: "ok"}}
	tc := &fakeTranscoder{}
	got, err := NewFetcher(p, tc).Fetch(context.Background(), Input{Data: []byte("a"), FileType: "wav"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got.ID)
	assert.Equal(t, 1, tc.calls)
}

func TestFetchTranscodeWithoutTranscoderIsFatal(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{uploads: []error{errFormat}, record: &Record{}}
	_, err := NewFetcher(p, nil).Fetch(context.Background(), Input{Data: []byte("a"), FileType: "wav"})
	require.ErrorIs(t, err, ErrAnalysisFetch)
	assert.Len(t, p.calls, 1)
}

func TestFetchTranscoderFailure(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{uploads: []error{errFormat}, record: &Record{}}
	tc := &fakeTranscoder{err: errors.NewStd("ffmpeg missing")}
	_, err := NewFetcher(p, tc).Fetch(context.Background(), Input{Data: []byte("a"), FileType: "wav"})
	require.ErrorIs(t, err, ErrAnalysisFetch)
	assert.Contains(t, err.Error(), "ffmpeg missing")
}

func TestFetchNotReadyTruncatesOnce(t *testing.T) {
	t.Parallel()

	t.Run("recovers", func(t *testing.T) {
		t.Parallel()
		p := &scriptedProvider{uploads: []error{errNotReady}, record: &Record{ID: "ok"}}
		_, err := NewFetcher(p, nil).Fetch(context.Background(), Input{Data: []byte("abcd"), FileType: "mp3"})
		require.NoError(t, err)
		require.Len(t, p.calls, 2)
		assert.Equal(t, []byte("abc"), p.calls[1].data)
	})

	t.Run("second occurrence is fatal", func(t *testing.T) {
		t.Parallel()
		p := &scriptedProvider{uploads: []error{errNotReady, errNotReady}, record: &Record{}}
		_, err := NewFetcher(p, nil).Fetch(context.Background(), Input{Data: []byte("abcd"), FileType: "mp3"})
		require.ErrorIs(t, err, ErrAnalysisFetch)
		assert.Len(t, p.calls, 2)
	})

	t.Run("transcode after truncation is fatal", func(t *testing.T) {
		t.Parallel()
		p := &scriptedProvider{uploads: []error{errNotReady, errFormat}, record: &Record{}}
		tc := &fakeTranscoder{}
		_, err := NewFetcher(p, tc).Fetch(context.Background(), Input{Data: []byte("abcd"), FileType: "mp3"})
		require.ErrorIs(t, err, ErrAnalysisFetch)
		assert.Equal(t, 0, tc.calls)
	})

	t.Run("not applicable to identifiers", func(t *testing.T) {
		t.Parallel()
		p := &scriptedProvider{profiles: []error{errNotReady}, record: &Record{}}
		_, err := NewFetcher(p, nil).Fetch(context.Background(), Input{ID: "TR1"})
		require.ErrorIs(t, err, ErrAnalysisFetch)
		require.Len(t, p.calls, 1)
		assert.Equal(t, Query{ID: "TR1"}, p.calls[0].query)
	})
}

func TestFetchRateLimitAfterLastTryStillRetries(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{uploads: []error{errFormat, errRateLimit, errRateLimit}, record: &Record{ID: "ok"}}
	var sleeps int
	got, err := NewFetcher(p, &fakeTranscoder{}, noSleep(&sleeps)).
		Fetch(context.Background(), Input{Data: []byte("a"), FileType: "wav"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got.ID)
	assert.Equal(t, 2, sleeps)
}

func TestFetchCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := &scriptedProvider{uploads: []error{errRateLimit, errRateLimit, errRateLimit}, record: &Record{}}
	f := NewFetcher(p, nil, WithSleep(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))

	_, err := f.Fetch(ctx, Input{Data: []byte("a"), FileType: "wav"})
	require.ErrorIs(t, err, ErrAnalysisFetch)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, p.calls, 1)
}

func TestFetchBackoffHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	p := &scriptedProvider{uploads: []error{errRateLimit}, record: &Record{}}
	_, err := NewFetcher(p, nil, WithBackoff(time.Hour)).Fetch(ctx, Input{Data: []byte("a"), FileType: "wav"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchLookupByDigest(t *testing.T) {
	t.Parallel()

	data := []byte("known audio")
	digest := Sum(data).String()

	t.Run("hit skips upload", func(t *testing.T) {
		t.Parallel()
		p := &scriptedProvider{record: &Record{ID: "TR1", Status: StatusComplete}}
		got, err := NewFetcher(p, nil, WithLookupByDigest(true)).Fetch(context.Background(), Input{Data: data, FileType: "mp3"})
		require.NoError(t, err)
		assert.Equal(t, "TR1", got.ID)
		require.Len(t, p.calls, 1)
		assert.Equal(t, Query{MD5: digest}, p.calls[0].query)
	})

	t.Run("miss falls through to upload", func(t *testing.T) {
		t.Parallel()
		p := &scriptedProvider{profiles: []error{errMissing}, record: &Record{ID: "TR2"}}
		got, err := NewFetcher(p, nil, WithLookupByDigest(true)).Fetch(context.Background(), Input{Data: data, FileType: "mp3"})
		require.NoError(t, err)
		assert.Equal(t, "TR2", got.ID)
		require.Len(t, p.calls, 2)
		assert.Equal(t, "upload", p.calls[1].op)
	})

	t.Run("other errors fall through too", func(t *testing.T) {
		t.Parallel()
		p := &scriptedProvider{profiles: []error{errRateLimit}, record: &Record{ID: "TR3"}}
		got, err := NewFetcher(p, nil, WithLookupByDigest(true)).Fetch(context.Background(), Input{Data: data, FileType: "mp3"})
		require.NoError(t, err)
		assert.Equal(t, "TR3", got.ID)
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		p := &scriptedProvider{record: &Record{}}
		_, err := NewFetcher(p, nil).Fetch(context.Background(), Input{Data: data, FileType: "mp3"})
		require.NoError(t, err)
		require.Len(t, p.calls, 1)
		assert.Equal(t, "upload", p.calls[0].op)
	})
}

func TestFetchWithoutProvider(t *testing.T) {
	t.Parallel()

	_, err := NewFetcher(nil, nil).Fetch(context.Background(), Input{})
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestDigest(t *testing.T) {
	t.Parallel()

	d := Sum([]byte("hello"))
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", d.String())
	assert.False(t, d.IsZero())
	assert.True(t, Digest{}.IsZero())

	parsed, err := ParseDigest(d.String())
	require.NoError(t, err)
	assert.Equal(t, d, parsed)

	_, err = ParseDigest("abc")
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	_, err = ParseDigest("zz41402abc4b2a76b9719d911017c592")
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestRecordQuanta(t *testing.T) {
	t.Parallel()

	rec := &Record{Analysis: Detail{
		Beats: []Unit{{Start: 0, Duration: 0.5, Confidence: 1}, {Start: 0.5, Duration: 0.5, Confidence: 0.2}},
		Sections: []Section{{Unit: Unit{Start: 0, Duration: 1}, Tempo: 100}},
	}}
	buf := audiocore.Zeros(44100, 44100, 2)

	beats, err := rec.Quanta(KindBeats, buf)
	require.NoError(t, err)
	assert.Equal(t, KindBeats, beats.Kind)
	require.Equal(t, 2, beats.Len())
	assert.InDelta(t, 0.2, beats.Quanta[1].Confidence, 1e-9)
	assert.Equal(t, int64(44100), beats.Frames(44100))

	out, err := beats.Render(0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(44100), out.Frames())

	sections, err := rec.Quanta(KindSections, buf)
	require.NoError(t, err)
	assert.Equal(t, 1, sections.Len())

	tatums, err := rec.Quanta(KindTatums, buf)
	require.NoError(t, err)
	assert.Equal(t, 0, tatums.Len())

	_, err = rec.Quanta("measures", buf)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}
