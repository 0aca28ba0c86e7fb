package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-remix/internal/errors"
)

func TestRecordAcquisition(t *testing.T) {
	t.Parallel()

	m, err := NewAcquisitionMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordAcquisition("", 0.5)
	m.RecordAcquisition("", 0.25)
	m.RecordAcquisition("decode", 0.1)

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.Acquisitions.WithLabelValues(ResultSuccess, "")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Acquisitions.WithLabelValues(ResultError, "decode")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.AcquisitionDuration))
}

func TestRecordCacheAndFetch(t *testing.T) {
	t.Parallel()

	m, err := NewAcquisitionMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)
	m.RecordCacheError("put")
	m.RecordFetchFailure("rate_limit")
	m.RecordFetchFailure("rate_limit")

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.CacheHits), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.CacheMisses), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.CacheErrors.WithLabelValues("put")), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.FetchRetries.WithLabelValues("rate_limit")), 0)
}

func TestRecordDecodeAndRender(t *testing.T) {
	t.Parallel()

	m, err := NewAcquisitionMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordDecode(nil, 44100, 0.02)
	m.RecordDecode(errors.NewStd("bad"), 0, 0.01)
	m.RecordRender("beats", 1000)
	m.AcquisitionStarted()
	m.AcquisitionStarted()
	m.AcquisitionDone()

	assert.InDelta(t, 44100.0, testutil.ToFloat64(m.DecodedFrames), 0)
	assert.InDelta(t, 1000.0, testutil.ToFloat64(m.RenderedFrames.WithLabelValues("beats")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.InFlight), 0)

	expected := `
# HELP remix_decoded_frames_total Total number of PCM frames decoded.
# TYPE remix_decoded_frames_total counter
remix_decoded_frames_total 44100
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected), "remix_decoded_frames_total"))
}

func TestDoubleRegistrationFails(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewAcquisitionMetrics(registry)
	require.NoError(t, err)
	_, err = NewAcquisitionMetrics(registry)
	assert.Error(t, err)
}

func TestHTTPMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordRequest("POST", "/api/v1/analyze", 200, 0.2, 512)
	m.RecordRequest("POST", "/api/v1/analyze", 200, 0.1, 0)
	m.RecordUpload(4096)

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "/api/v1/analyze", "200")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.responseSize))
	assert.Equal(t, 1, testutil.CollectAndCount(m.uploadSize))
}
