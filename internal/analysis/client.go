package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tphakala/go-remix/internal/buildinfo"
	"github.com/tphakala/go-remix/internal/conf"
	"github.com/tphakala/go-remix/internal/errors"
	"github.com/tphakala/go-remix/internal/privacy"
)

const bucketAudioSummary = "audio_summary"

// Config configures the HTTP provider client.
type Config struct {
	BaseURL           string
	APIKey            string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64       // 0 disables client side limiting
	PendingPolls      int           // profile polls while an upload is still pending
	PendingInterval   time.Duration // wait between pending polls
	HTTPClient        *http.Client  // optional, built from Timeout when nil
}

// DefaultConfig returns the client defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://developer.echonest.com/api/v4",
		UserAgent:         buildinfo.Current().UserAgent(),
		Timeout:           60 * time.Second,
		RequestsPerSecond: 2,
		PendingPolls:      5,
		PendingInterval:   2 * time.Second,
	}
}

// ConfigFromSettings maps the provider settings onto a client config.
func ConfigFromSettings(s *conf.Settings) Config {
	cfg := DefaultConfig()
	if s == nil {
		return cfg
	}
	p := s.Provider
	cfg.APIKey = p.APIKey
	if p.BaseURL != "" {
		cfg.BaseURL = p.BaseURL
	}
	if p.UserAgent != "" {
		cfg.UserAgent = p.UserAgent
	}
	if p.Timeout > 0 {
		cfg.Timeout = p.Timeout
	}
	cfg.RequestsPerSecond = p.RequestsPerSecond
	return cfg
}

// ClientMetrics counts provider traffic.
type ClientMetrics struct {
	Requests      int64
	Errors        int64
	RateLimited   int64
	Uploads       int64
	Profiles      int64
	TotalDuration time.Duration
}

// Client talks to the provider HTTP API.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter

	metrics struct {
		ClientMetrics
		mu sync.Mutex
	}
}

// NewClient validates cfg and returns a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.Newf("analysis provider API key is required").
			Component(componentAnalysis).
			Category(errors.CategoryConfiguration).
			Build()
	}

	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.PendingInterval <= 0 {
		cfg.PendingInterval = def.PendingInterval
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	logger().Info("analysis provider client initialized",
		"base_url", cfg.BaseURL,
		"timeout", cfg.Timeout,
		"requests_per_second", cfg.RequestsPerSecond)

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
	}, nil
}

// Upload sends raw audio to the provider and returns the analysis. A track
// that is still pending is polled by identifier before giving up.
func (c *Client) Upload(ctx context.Context, data []byte, filetype string) (*Record, error) {
	c.count(func(m *ClientMetrics) { m.Uploads++ })

	params := c.params()
	params.Set("filetype", strings.ToLower(filetype))
	endpoint := c.config.BaseURL + "/track/upload?" + params.Encode()

	body, err := c.doRequest(ctx, http.MethodPost, endpoint, "upload", data)
	if err != nil {
		return nil, err
	}
	rec, err := c.decodeTrack(ctx, body)

	for i := 0; i < c.config.PendingPolls && pendingTrack(err) != ""; i++ {
		id := pendingTrack(err)
		logger().Debug("track still pending, polling profile",
			"track_id", id,
			"poll", i+1)
		if err := sleepCtx(ctx, c.config.PendingInterval); err != nil {
			return nil, err
		}
		rec, err = c.Profile(ctx, Query{ID: id})
	}
	return rec, err
}

// Profile returns the analysis of a known track.
func (c *Client) Profile(ctx context.Context, q Query) (*Record, error) {
	c.count(func(m *ClientMetrics) { m.Profiles++ })

	params := c.params()
	switch {
	case q.ID != "":
		params.Set("id", q.ID)
	case q.MD5 != "":
		params.Set("md5", q.MD5)
	default:
		return nil, errors.Newf("profile query needs an id or md5").
			Component(componentAnalysis).
			Category(errors.CategoryValidation).
			Build()
	}
	endpoint := c.config.BaseURL + "/track/profile?" + params.Encode()

	body, err := c.doRequest(ctx, http.MethodGet, endpoint, "profile", nil)
	if err != nil {
		return nil, err
	}
	return c.decodeTrack(ctx, body)
}

// Metrics returns a snapshot of the client counters.
func (c *Client) Metrics() ClientMetrics {
	c.metrics.mu.Lock()
	defer c.metrics.mu.Unlock()
	return c.metrics.ClientMetrics
}

func (c *Client) params() url.Values {
	v := url.Values{}
	v.Set("api_key", c.config.APIKey)
	v.Set("bucket", bucketAudioSummary)
	return v
}

func (c *Client) count(fn func(*ClientMetrics)) {
	c.metrics.mu.Lock()
	fn(&c.metrics.ClientMetrics)
	c.metrics.mu.Unlock()
}

// doRequest performs one rate limited request and returns the body of a
// response whose envelope reports success.
func (c *Client) doRequest(ctx context.Context, method, endpoint, operation string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqID := uuid.New().String()[:8]
	start := time.Now()
	c.count(func(m *ClientMetrics) { m.Requests++ })

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, c.fail(errors.New(err).
			Category(errors.CategoryHTTP), operation, reqID)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("X-Request-ID", reqID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	logger().Debug("provider request",
		"request_id", reqID,
		"operation", operation,
		"method", method,
		"bytes", len(payload))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger().Warn("provider request failed",
			"request_id", reqID,
			"operation", operation,
			"error", privacy.WrapError(err))
		return nil, c.fail(errors.New(&ProviderError{Err: privacy.WrapError(err)}).
			Category(errors.CategoryNetwork), operation, reqID)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	c.count(func(m *ClientMetrics) { m.TotalDuration += time.Since(start) })
	if err != nil {
		return nil, c.fail(errors.New(&ProviderError{Err: err, HTTPStatus: resp.StatusCode}).
			Category(errors.CategoryNetwork), operation, reqID)
	}

	code, message, envErr := parseStatus(respBody)
	if resp.StatusCode >= http.StatusBadRequest || (envErr == nil && code != CodeSuccess) {
		pe := &ProviderError{HTTPStatus: resp.StatusCode}
		if envErr == nil {
			pe.Code, pe.Message = int(code), message
		}
		if resp.StatusCode == http.StatusTooManyRequests || pe.Code == CodeRateLimit {
			c.count(func(m *ClientMetrics) { m.RateLimited++ })
		}
		logger().Debug("provider returned an error",
			"request_id", reqID,
			"operation", operation,
			"status_code", resp.StatusCode,
			"code", pe.Code,
			"message", pe.Message)
		return nil, c.fail(errors.New(pe).
			Category(errorCategory(pe)), operation, reqID)
	}
	if envErr != nil {
		return nil, c.fail(errors.New(envErr).
			Category(errors.CategoryProvider).
			Context("status_code", resp.StatusCode), operation, reqID)
	}

	logger().Debug("provider request completed",
		"request_id", reqID,
		"operation", operation,
		"duration_ms", time.Since(start).Milliseconds())
	return respBody, nil
}

func (c *Client) fail(b *errors.ErrorBuilder, operation, reqID string) error {
	c.count(func(m *ClientMetrics) { m.Errors++ })
	return b.Component(componentAnalysis).
		Context("operation", operation).
		Context("request_id", reqID).
		Build()
}

// errorCategory maps a provider failure to an error category.
func errorCategory(pe *ProviderError) errors.ErrorCategory {
	switch {
	case pe.HTTPStatus == http.StatusTooManyRequests || pe.Code == CodeRateLimit:
		return errors.CategoryLimit
	case pe.HTTPStatus == http.StatusUnauthorized || pe.HTTPStatus == http.StatusForbidden:
		return errors.CategoryConfiguration
	case pe.HTTPStatus == http.StatusNotFound:
		return errors.CategoryNotFound
	}
	return errors.CategoryProvider
}

// parseStatus reads response.status from a provider envelope.
func parseStatus(body []byte) (int64, string, error) {
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return 0, "", err
	}
	status, err := obj.GetObject("response", "status")
	if err != nil {
		return 0, "", err
	}
	code, err := status.GetInt64("code")
	if err != nil {
		return 0, "", err
	}
	message, _ := status.GetString("message")
	return code, message, nil
}

// decodeTrack extracts response.track and resolves a detached analysis
// document when the provider only returned its URL.
func (c *Client) decodeTrack(ctx context.Context, body []byte) (*Record, error) {
	var env struct {
		Response struct {
			Track json.RawMessage `json:"track"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.New(err).
			Component(componentAnalysis).
			Category(errors.CategoryProvider).
			Context("operation", "decode_track").
			Build()
	}
	raw := env.Response.Track
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errors.New(&ProviderError{NoTrack: true}).
			Component(componentAnalysis).
			Category(errors.CategoryNotFound).
			Build()
	}

	rec := &Record{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, errors.New(err).
			Component(componentAnalysis).
			Category(errors.CategoryProvider).
			Context("operation", "decode_track").
			Build()
	}
	if rec.Status == StatusPending || rec.Status == StatusError {
		return nil, errors.New(&ProviderError{TrackStatus: rec.Status, TrackID: rec.ID}).
			Component(componentAnalysis).
			Category(errors.CategoryProvider).
			Context("track_id", rec.ID).
			Build()
	}

	if rec.Analysis.Empty() && rec.Summary.AnalysisURL != "" {
		detail, err := c.fetchDetail(ctx, rec.Summary.AnalysisURL)
		if err != nil {
			return nil, err
		}
		rec.Analysis = *detail
	}
	rec.FetchedAt = time.Now().UTC()
	return rec, nil
}

// fetchDetail downloads a detached analysis document.
func (c *Client) fetchDetail(ctx context.Context, detailURL string) (*Detail, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	c.count(func(m *ClientMetrics) { m.Requests++ })

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, detailURL, http.NoBody)
	if err != nil {
		return nil, c.fail(errors.New(err).Category(errors.CategoryHTTP), "analysis_detail", "")
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, c.fail(errors.New(&ProviderError{Err: privacy.WrapError(err)}).Category(errors.CategoryNetwork), "analysis_detail", "")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		pe := &ProviderError{HTTPStatus: resp.StatusCode}
		return nil, c.fail(errors.New(pe).Category(errorCategory(pe)), "analysis_detail", "")
	}

	detail := &Detail{}
	if err := json.NewDecoder(resp.Body).Decode(detail); err != nil {
		return nil, c.fail(errors.New(err).Category(errors.CategoryProvider), "analysis_detail", "")
	}
	return detail, nil
}

// pendingTrack returns the identifier of a track the provider is still
// analysing, or "" when err is anything else.
func pendingTrack(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.TrackStatus == StatusPending {
		return pe.TrackID
	}
	return ""
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
