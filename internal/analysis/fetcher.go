package analysis

import (
	"context"
	"time"

	"github.com/tphakala/go-remix/internal/conf"
	"github.com/tphakala/go-remix/internal/errors"
)

// Transcoder converts audio into a format the provider always accepts.
type Transcoder interface {
	Downconvert(ctx context.Context, data []byte, filetype string) ([]byte, string, error)
}

// Observer is notified of each failed attempt and its class.
type Observer func(class Class)

// Fetcher runs the provider retry state machine.
type Fetcher struct {
	provider       Provider
	transcoder     Transcoder
	backoff        time.Duration
	sleep          func(context.Context, time.Duration) error
	lookupByDigest bool
	observer       Observer
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithBackoff sets the wait after a rate limit response.
func WithBackoff(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.backoff = d }
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn func(context.Context, time.Duration) error) FetcherOption {
	return func(f *Fetcher) { f.sleep = fn }
}

// WithLookupByDigest asks the provider for an existing profile by md5
// before uploading.
func WithLookupByDigest(enabled bool) FetcherOption {
	return func(f *Fetcher) { f.lookupByDigest = enabled }
}

// WithObserver registers a callback for failed attempts.
func WithObserver(o Observer) FetcherOption {
	return func(f *Fetcher) { f.observer = o }
}

// NewFetcher returns a fetcher over provider. transcoder may be nil, in
// which case transcode-class failures are fatal.
func NewFetcher(provider Provider, transcoder Transcoder, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		provider:   provider,
		transcoder: transcoder,
		backoff:    conf.DefaultRateLimitBackoff,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the analysis for in.
//
// Rate limit failures wait and retry indefinitely. A transcode failure
// retries once with a downconverted copy and a not-ready failure retries
// once with the final byte dropped; either retry is the last one. Anything
// else ends the fetch with an error matching ErrAnalysisFetch.
func (f *Fetcher) Fetch(ctx context.Context, in Input) (*Record, error) {
	if f.provider == nil {
		return nil, errors.Newf("no analysis provider configured").
			Component(componentAnalysis).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if in.MD5 == "" && len(in.Data) > 0 {
		in.MD5 = Sum(in.Data).String()
	}

	if in.ID == "" && f.lookupByDigest && in.MD5 != "" {
		rec, err := f.provider.Profile(ctx, Query{MD5: in.MD5})
		switch {
		case err == nil && rec.Complete():
			logger().Debug("analysis found by digest", "digest", in.MD5)
			return rec, nil
		case ctx.Err() != nil:
			return nil, fetchError(ctx.Err(), ClassFatal, 1, in.MD5)
		case err != nil:
			logger().Debug("digest lookup missed, uploading",
				"digest", in.MD5,
				"class", Classify(err).String())
		}
	}

	data, filetype := in.Data, in.FileType
	lastTry := false
	for attempt := 1; ; attempt++ {
		rec, err := f.attempt(ctx, in, data, filetype)
		if err == nil {
			if attempt > 1 {
				logger().Info("analysis fetch recovered",
					"digest", in.MD5,
					"attempts", attempt)
			}
			return rec, nil
		}
		if ctx.Err() != nil {
			return nil, fetchError(ctx.Err(), ClassFatal, attempt, in.MD5)
		}

		class := Classify(err)
		if f.observer != nil {
			f.observer(class)
		}
		logger().Debug("analysis fetch attempt failed",
			"digest", in.MD5,
			"attempt", attempt,
			"class", class.String(),
			"last_try", lastTry,
			"error", err)

		switch {
		case class == ClassRateLimit:
			if err := f.sleep(ctx, f.backoff); err != nil {
				return nil, fetchError(err, class, attempt, in.MD5)
			}

		case class == ClassTranscode && !lastTry && f.transcoder != nil && len(data) > 0:
			converted, convertedType, terr := f.transcoder.Downconvert(ctx, data, filetype)
			if terr != nil {
				return nil, fetchError(errors.Join(err, terr), class, attempt, in.MD5)
			}
			logger().Info("retrying analysis with transcoded input",
				"digest", in.MD5,
				"filetype", convertedType,
				"bytes", len(converted))
			data, filetype = converted, convertedType
			lastTry = true

		case class == ClassNotReady && !lastTry && in.ID == "" && len(data) > 1:
			data = data[:len(data)-1]
			lastTry = true

		default:
			logger().Warn("analysis fetch failed",
				"digest", in.MD5,
				"attempts", attempt,
				"class", class.String(),
				"error", err)
			return nil, fetchError(err, class, attempt, in.MD5)
		}
	}
}

func (f *Fetcher) attempt(ctx context.Context, in Input, data []byte, filetype string) (*Record, error) {
	if in.ID != "" {
		return f.provider.Profile(ctx, Query{ID: in.ID})
	}
	return f.provider.Upload(ctx, data, filetype)
}
