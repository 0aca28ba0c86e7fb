// Package metrics provides Prometheus metrics for the remix acquisition
// pipeline and its collaborators.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Acquisition results.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// AcquisitionMetrics contains all Prometheus metrics related to acquiring
// analysed audio.
type AcquisitionMetrics struct {
	Acquisitions        *prometheus.CounterVec
	AcquisitionDuration prometheus.Histogram
	CacheHits           prometheus.Counter
	CacheMisses         prometheus.Counter
	CacheErrors         *prometheus.CounterVec
	FetchRetries        *prometheus.CounterVec
	DecodeDuration      *prometheus.HistogramVec
	DecodedFrames       prometheus.Counter
	RenderedFrames      *prometheus.CounterVec
	InFlight            prometheus.Gauge
}

// NewAcquisitionMetrics creates the acquisition metrics and registers them
// with registry.
func NewAcquisitionMetrics(registry prometheus.Registerer) (*AcquisitionMetrics, error) {
	m := &AcquisitionMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register acquisition metrics: %w", err)
	}
	return m, nil
}

func (m *AcquisitionMetrics) initMetrics() {
	m.Acquisitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remix_acquisitions_total",
		Help: "Total number of acquisitions by result and failed stage.",
	}, []string{"result", "stage"})

	m.AcquisitionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "remix_acquisition_duration_seconds",
		Help:    "Duration of complete acquisitions in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	m.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "remix_analysis_cache_hits_total",
		Help: "Total number of analysis cache hits.",
	})

	m.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "remix_analysis_cache_misses_total",
		Help: "Total number of analysis cache misses.",
	})

	m.CacheErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remix_analysis_cache_errors_total",
		Help: "Total number of analysis cache failures by operation.",
	}, []string{"operation"})

	m.FetchRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remix_analysis_fetch_failures_total",
		Help: "Total number of failed provider attempts by retry class.",
	}, []string{"class"})

	m.DecodeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "remix_decode_duration_seconds",
		Help:    "Duration of audio decoding in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"result"})

	m.DecodedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "remix_decoded_frames_total",
		Help: "Total number of PCM frames decoded.",
	})

	m.RenderedFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remix_rendered_frames_total",
		Help: "Total number of PCM frames rendered by unit kind.",
	}, []string{"kind"})

	m.InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "remix_acquisitions_in_flight",
		Help: "Number of acquisitions currently running.",
	})
}

// RecordAcquisition counts a finished acquisition. stage is empty on success.
func (m *AcquisitionMetrics) RecordAcquisition(stage string, durationSeconds float64) {
	result := ResultSuccess
	if stage != "" {
		result = ResultError
	}
	m.Acquisitions.WithLabelValues(result, stage).Inc()
	m.AcquisitionDuration.Observe(durationSeconds)
}

// RecordCacheLookup counts a cache hit or miss.
func (m *AcquisitionMetrics) RecordCacheLookup(hit bool) {
	if hit {
		m.CacheHits.Inc()
		return
	}
	m.CacheMisses.Inc()
}

// RecordCacheError counts a failed cache get or put.
func (m *AcquisitionMetrics) RecordCacheError(operation string) {
	m.CacheErrors.WithLabelValues(operation).Inc()
}

// RecordFetchFailure counts a failed provider attempt.
func (m *AcquisitionMetrics) RecordFetchFailure(class string) {
	m.FetchRetries.WithLabelValues(class).Inc()
}

// RecordDecode records a decode run and the frames it produced.
func (m *AcquisitionMetrics) RecordDecode(err error, frames int64, durationSeconds float64) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.DecodeDuration.WithLabelValues(result).Observe(durationSeconds)
	if frames > 0 {
		m.DecodedFrames.Add(float64(frames))
	}
}

// RecordRender counts frames rendered from quanta of kind.
func (m *AcquisitionMetrics) RecordRender(kind string, frames int64) {
	m.RenderedFrames.WithLabelValues(kind).Add(float64(frames))
}

// AcquisitionStarted and AcquisitionDone track in-flight acquisitions.
func (m *AcquisitionMetrics) AcquisitionStarted() { m.InFlight.Inc() }

func (m *AcquisitionMetrics) AcquisitionDone() { m.InFlight.Dec() }

func (m *AcquisitionMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Acquisitions,
		m.AcquisitionDuration,
		m.CacheHits,
		m.CacheMisses,
		m.CacheErrors,
		m.FetchRetries,
		m.DecodeDuration,
		m.DecodedFrames,
		m.RenderedFrames,
		m.InFlight,
	}
}

// Collect implements the prometheus.Collector interface.
func (m *AcquisitionMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *AcquisitionMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}
