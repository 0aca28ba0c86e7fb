package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-remix/internal/acquire"
	"github.com/tphakala/go-remix/internal/analysis"
	"github.com/tphakala/go-remix/internal/analysis/store"
	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/conf"
	"github.com/tphakala/go-remix/internal/errors"
	"github.com/tphakala/go-remix/internal/observability"
)

type fetchFunc func(ctx context.Context, in analysis.Input) (*analysis.Record, error)

func (f fetchFunc) Fetch(ctx context.Context, in analysis.Input) (*analysis.Record, error) {
	return f(ctx, in)
}

// quarterBeats is a one second analysis with four beats.
func quarterBeats() *analysis.Record {
	rec := &analysis.Record{ID: "TRHTTP", Status: analysis.StatusComplete}
	rec.Summary.Tempo = 240
	rec.Summary.TimeSignature = 4
	for i := range 4 {
		rec.Analysis.Beats = append(rec.Analysis.Beats, analysis.Unit{Start: float64(i) * 0.25, Duration: 0.25})
	}
	rec.Analysis.Bars = []analysis.Unit{{Start: 0, Duration: 1}}
	return rec
}

type testEnv struct {
	server  *Server
	store   *store.Memory
	metrics *observability.Metrics
}

func newTestEnv(t *testing.T, decodeErr, fetchErr error, mutate ...func(*Config)) *testEnv {
	t.Helper()

	decoder := audiocore.DecoderFunc(func(context.Context, audiocore.Input, audiocore.Format) ([]int16, error) {
		if decodeErr != nil {
			return nil, decodeErr
		}
		return make([]int16, conf.SampleRate*conf.NumChannels), nil
	})
	fetcher := fetchFunc(func(context.Context, analysis.Input) (*analysis.Record, error) {
		if fetchErr != nil {
			return nil, fetchErr
		}
		return quarterBeats(), nil
	})

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	mem := store.NewMemory(0)
	pipeline, err := acquire.New(acquire.Config{}, decoder, fetcher, mem, acquire.WithRecorder(m.Acquisition))
	require.NoError(t, err)

	cfg := DefaultConfig()
	for _, fn := range mutate {
		fn(cfg)
	}
	s, err := New(cfg, pipeline,
		WithRecordLookup(mem),
		WithMetrics(m),
		WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	return &testEnv{server: s, store: mem, metrics: m}
}

func (e *testEnv) do(method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/octet-stream")
	rec := httptest.NewRecorder()
	e.server.Echo().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(&Config{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = New(DefaultConfig(), nil)
	require.Error(t, err)
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultListen, ConfigFromSettings(nil).Listen)

	s := &conf.Settings{}
	s.Server.Listen = ":9000"
	s.Server.MaxUploadMB = 5
	cfg := ConfigFromSettings(s)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "5M", cfg.BodyLimit())
	require.NoError(t, cfg.Validate())

	cfg.Log.Enabled = true
	assert.Error(t, cfg.Validate())
}

func TestHealth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, nil)
	rec := env.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["cache"])
	assert.Equal(t, "unknown", body["version"])
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, nil)
	data := []byte("posted audio")
	rec := env.do(http.MethodPost, "/api/v1/analyze?filetype=raw", data)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out AnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, analysis.Sum(data).String(), out.Digest)
	assert.Equal(t, "raw", out.FileType)
	assert.Equal(t, "TRHTTP", out.TrackID)
	assert.Equal(t, int64(conf.SampleRate), out.Frames)
	assert.InDelta(t, 1.0, out.Duration, 1e-9)
	assert.InDelta(t, 240.0, out.Tempo, 0)
	assert.Equal(t, 4, out.Units[analysis.KindBeats])
	assert.Equal(t, 1, out.Units[analysis.KindBars])
	assert.Equal(t, 0, out.Units[analysis.KindSegments])
	assert.False(t, out.CacheHit)
	assert.NotEmpty(t, out.ID)

	rec = env.do(http.MethodPost, "/api/v1/analyze?filetype=raw", data)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.CacheHit)
}

func TestAnalyzeErrors(t *testing.T) {
	t.Parallel()

	providerDown := errors.New(errors.NewStd("gave up")).
		Category(errors.CategoryAnalysisFetch).
		Build()

	tests := []struct {
		name      string
		decodeErr error
		fetchErr  error
		target    string
		body      []byte
		status    int
		stage     string
	}{
		{"missing filetype", nil, nil, "/api/v1/analyze", []byte("x"), http.StatusBadRequest, ""},
		{"empty body", nil, nil, "/api/v1/analyze?filetype=mp3", nil, http.StatusBadRequest, acquire.StageInput},
		{"decode failure", errors.NewStd("bad frame"), nil, "/api/v1/analyze?filetype=mp3", []byte("x"), http.StatusUnprocessableEntity, acquire.StageDecode},
		{"provider failure", nil, providerDown, "/api/v1/analyze?filetype=mp3", []byte("x"), http.StatusBadGateway, acquire.StageAnalysis},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, tt.decodeErr, tt.fetchErr)
			rec := env.do(http.MethodPost, tt.target, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			out := decodeError(t, rec)
			assert.NotEmpty(t, out.Error)
			assert.Equal(t, tt.stage, out.Stage)
		})
	}
}

func TestAnalyzeBodyLimit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, nil, func(c *Config) { c.MaxUploadMB = 1 })
	rec := env.do(http.MethodPost, "/api/v1/analyze?filetype=raw", make([]byte, 2<<20))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRemix(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, nil)
	rec := env.do(http.MethodPost, "/api/v1/remix?filetype=raw&unit=beats&every=2&offset=1", []byte("remix me"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.Equal(t, analysis.Sum([]byte("remix me")).String(), rec.Header().Get("X-Remix-Digest"))

	out, err := audiocore.DecodeContainer(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 2*audiocore.FramesFor(0.25, conf.SampleRate), out.Frames())
	assert.True(t, out.Format().IsCanonical())

	assert.InDelta(t, float64(out.Frames()),
		testutil.ToFloat64(env.metrics.Acquisition.RenderedFrames.WithLabelValues(analysis.KindBeats)), 0)
}

func TestRemixErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, nil)
	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"every not a number", "filetype=raw&every=two", http.StatusBadRequest},
		{"every zero", "filetype=raw&every=0", http.StatusBadRequest},
		{"negative offset", "filetype=raw&offset=-1", http.StatusBadRequest},
		{"unknown unit", "filetype=raw&unit=phrases", http.StatusBadRequest},
		{"nothing selected", "filetype=raw&unit=bars&every=1&offset=3", http.StatusUnprocessableEntity},
		{"no segments", "filetype=raw&unit=segments", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/v1/remix?"+tt.query, []byte("remix me"))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestLookupAnalysis(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, nil)
	data := []byte("cache me")
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/v1/analyze?filetype=raw", data).Code)

	rec := env.do(http.MethodGet, "/api/v1/analysis/"+analysis.Sum(data).String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got analysis.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "TRHTTP", got.ID)
	assert.Len(t, got.Analysis.Beats, 4)

	rec = env.do(http.MethodGet, "/api/v1/analysis/"+analysis.Sum([]byte("other")).String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/analysis/not-a-digest", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, nil)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/v1/analyze?filetype=raw", []byte("count me")).Code)
	require.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/analyze", []byte("x")).Code)

	rec := env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `http_requests_total{method="POST",path="/api/v1/analyze",status_code="200"} 1`)
	assert.Contains(t, text, `http_requests_total{method="POST",path="/api/v1/analyze",status_code="400"} 1`)
	assert.True(t, strings.Contains(text, "remix_acquisitions_total"), "acquisition metrics are exposed")
}
