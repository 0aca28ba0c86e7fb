package acquire

import (
	"github.com/tphakala/go-remix/internal/analysis"
	"github.com/tphakala/go-remix/internal/analysis/store"
	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/audiocore/decode"
	"github.com/tphakala/go-remix/internal/audiocore/utils/ffmpeg"
	"github.com/tphakala/go-remix/internal/conf"
	"github.com/tphakala/go-remix/internal/observability/metrics"
)

// Assembly is a pipeline built from settings together with the resources it
// owns.
type Assembly struct {
	Pipeline *Pipeline
	Store    store.Store
	Client   *analysis.Client
}

// Close releases the cache store.
func (a *Assembly) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// FromSettings wires the provider client, retry fetcher, cache store and
// decoder chain described by s into a pipeline.
func FromSettings(s *conf.Settings, recorder metrics.Recorder) (*Assembly, error) {
	if s == nil {
		s = conf.DefaultSettings()
	}
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}

	client, err := analysis.NewClient(analysis.ConfigFromSettings(s))
	if err != nil {
		return nil, err
	}

	ff := FFmpegConfig(s)
	var transcoder analysis.Transcoder
	if ff.FFmpegPath != "" {
		transcoder = ffmpeg.NewTranscoder(ff)
	} else {
		logger().Warn("ffmpeg not found, only native decoding is available and provider transcoding is disabled")
	}

	fetcher := analysis.NewFetcher(client, transcoder,
		analysis.WithBackoff(s.Provider.RateLimitBackoff),
		analysis.WithLookupByDigest(s.Provider.LookupByDigest),
		analysis.WithObserver(func(c analysis.Class) { recorder.RecordFetchFailure(c.String()) }),
	)

	st, err := store.Open(s)
	if err != nil {
		return nil, err
	}

	p, err := New(ConfigFromSettings(s), DecoderFromSettings(s), fetcher, st,
		WithRecorder(recorder),
		WithStreamOpener(DefaultStreamOpener(ff)),
	)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	logger().Info("acquisition pipeline ready",
		"cache", s.Cache.Type,
		"native_decode", s.Audio.NativeDecode,
		"ffmpeg", ff.FFmpegPath,
		"lookup_by_digest", s.Provider.LookupByDigest)
	return &Assembly{Pipeline: p, Store: st, Client: client}, nil
}

// DecoderFromSettings returns the decoder chain for s: native decoders when
// enabled, then ffmpeg when it can be found.
func DecoderFromSettings(s *conf.Settings) audiocore.Decoder {
	if s == nil {
		s = conf.DefaultSettings()
	}
	var external audiocore.Decoder
	if ff := FFmpegConfig(s); ff.FFmpegPath != "" {
		external = ffmpeg.NewDecoder(ff)
	}
	return decode.Default(s.Audio.NativeDecode, external)
}
