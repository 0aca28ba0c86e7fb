package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"syscall"

	"github.com/tphakala/go-remix/internal/errors"
	"github.com/tphakala/go-remix/internal/logging"
)

const componentAnalysis = "analysis"

func logger() *slog.Logger { return logging.ServiceOrDefault("analysis") }

// Provider is a remote analysis service.
type Provider interface {
	// Upload sends raw audio and returns its analysis.
	Upload(ctx context.Context, data []byte, filetype string) (*Record, error)
	// Profile returns the analysis of a track the provider already knows.
	Profile(ctx context.Context, q Query) (*Record, error)
}

// Query selects a known track by provider identifier or content digest.
// ID takes precedence when both are set.
type Query struct {
	ID  string
	MD5 string
}

// Input is one fetch request.
type Input struct {
	Data     []byte // raw audio bytes, nil when only an identifier is known
	FileType string // declared container type of Data
	ID       string // opaque provider track identifier
	MD5      string // hex digest of Data, computed when empty
}

// Provider status codes.
const (
	CodeSuccess     = 0
	CodeUnknown     = -1
	CodeRateLimit   = 3
	CodeInvalidArgs = 5
	CodeBadFormat   = 6
)

// Messages the provider uses for tracks that are not usable yet.
const (
	msgStillAnalyzing = "the track is still being analyzed"
	msgAnalysisFailed = "there was an error analyzing the track"
)

// ProviderError is a failure reported by the provider or its transport.
type ProviderError struct {
	Code        int    // provider status code
	Message     string // provider status message
	HTTPStatus  int    // transport status, 0 when no response was received
	TrackStatus string // status of the returned track, if any
	TrackID     string // identifier of the returned track, if any
	NoTrack     bool   // the response carried no track
	Err         error  // underlying transport error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("analysis provider: %v", e.Err)
	case e.TrackStatus != "":
		return fmt.Sprintf("analysis provider: track status %q", e.TrackStatus)
	case e.NoTrack:
		return "analysis provider: no track in response"
	case e.HTTPStatus != 0 && e.Message == "":
		return fmt.Sprintf("analysis provider: HTTP %d", e.HTTPStatus)
	}
	return fmt.Sprintf("analysis provider: code %d: %s", e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Class groups provider failures by how the fetcher reacts to them.
type Class int

const (
	// ClassFatal failures are not retried.
	ClassFatal Class = iota
	// ClassTranscode failures are retried once with a transcoded input.
	ClassTranscode
	// ClassRateLimit failures are retried after a backoff without limit.
	ClassRateLimit
	// ClassNotReady failures are retried once with the last byte removed.
	ClassNotReady
	// ClassNotFound means the provider has no such track.
	ClassNotFound
)

func (c Class) String() string {
	switch c {
	case ClassTranscode:
		return "transcode"
	case ClassRateLimit:
		return "rate_limit"
	case ClassNotReady:
		return "not_ready"
	case ClassNotFound:
		return "not_found"
	}
	return "fatal"
}

// Classify maps err to a retry class.
func Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return ClassTranscode
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		return ClassFatal
	}
	switch {
	case pe.HTTPStatus == http.StatusTooManyRequests || pe.Code == CodeRateLimit:
		return ClassRateLimit
	case pe.Code == CodeUnknown || pe.Code == CodeInvalidArgs || pe.Code == CodeBadFormat:
		return ClassTranscode
	case pe.TrackStatus == StatusPending || pe.TrackStatus == StatusError:
		return ClassNotReady
	}
	msg := strings.ToLower(pe.Message)
	if strings.Contains(msg, msgStillAnalyzing) || strings.Contains(msg, msgAnalysisFailed) {
		return ClassNotReady
	}
	if pe.NoTrack || pe.HTTPStatus == http.StatusNotFound {
		return ClassNotFound
	}
	return ClassFatal
}

// ErrAnalysisFetch matches any fetch that exhausted its retries.
var ErrAnalysisFetch = errors.Newf("analysis fetch failed").
	Component(componentAnalysis).
	Category(errors.CategoryAnalysisFetch).
	Build()

// fetchError wraps the terminal cause of a failed fetch.
func fetchError(cause error, class Class, attempts int, digest string) error {
	return errors.New(cause).
		Component(componentAnalysis).
		Category(errors.CategoryAnalysisFetch).
		Context("class", class.String()).
		Context("attempts", attempts).
		Context("digest", digest).
		Build()
}
