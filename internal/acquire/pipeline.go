// Package acquire turns raw audio into analysed audio: a decoded buffer
// paired with the provider's analysis of the same bytes.
//
// Each acquisition hashes its input, consults the analysis store, fetches
// from the provider on a miss and decodes the audio concurrently. The decode
// task is joined twice: briefly before the fetch so that a fast local
// failure wins over a slow remote call, and fully before returning.
package acquire

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/tphakala/go-remix/internal/analysis"
	"github.com/tphakala/go-remix/internal/analysis/store"
	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/audiocore/utils/ffmpeg"
	"github.com/tphakala/go-remix/internal/conf"
	"github.com/tphakala/go-remix/internal/errors"
	"github.com/tphakala/go-remix/internal/logging"
	"github.com/tphakala/go-remix/internal/observability/metrics"
)

const componentAcquire = "acquire"

func logger() *slog.Logger { return logging.ServiceOrDefault(componentAcquire) }

// Stages reported by FailedStage.
const (
	StageDecode   = "decode"
	StageAnalysis = "analysis"
	StageInput    = "input"
)

// Fetcher returns the provider analysis for one input.
type Fetcher interface {
	Fetch(ctx context.Context, in analysis.Input) (*analysis.Record, error)
}

// Config controls acquisition behaviour.
type Config struct {
	DestructiveReads bool          // acquired buffers release frames once sliced
	DecodeGrace      time.Duration // bounded wait for the decode task before fetching
	MaxInputSize     int64         // reject larger inputs, 0 disables
}

// ConfigFromSettings maps audio settings onto a pipeline config.
func ConfigFromSettings(s *conf.Settings) Config {
	if s == nil {
		return Config{DestructiveReads: true, DecodeGrace: conf.DefaultDecodeGrace}
	}
	return Config{
		DestructiveReads: s.Audio.DestructiveReads,
		DecodeGrace:      s.Audio.DecodeGrace,
		MaxInputSize:     s.Audio.MaxInputSize,
	}
}

// Pipeline acquires analysed audio.
type Pipeline struct {
	cfg        Config
	decoder    audiocore.Decoder
	fetcher    Fetcher
	store      store.Store
	recorder   metrics.Recorder
	openStream StreamOpener
	flights    singleflight.Group

	mu         sync.Mutex
	fetches    map[string]*sharedFetch
	generation uint64
}

// sharedFetch is the context of one in-flight fetch. It is cancelled once
// every caller waiting on the fetch has gone.
type sharedFetch struct {
	ctx     context.Context
	cancel  context.CancelFunc
	flight  string
	waiters int
}

// joinFetch registers a caller waiting on the fetch for key and returns the
// context the fetch runs on and its singleflight key. A fetch abandoned by
// every caller gets a new flight key so later callers never join it.
// leave must be called exactly once.
func (p *Pipeline) joinFetch(ctx context.Context, key string) (fetchCtx context.Context, flight string, leave func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.fetches[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		p.generation++
		f = &sharedFetch{
			ctx:    fctx,
			cancel: cancel,
			flight: key + "#" + strconv.FormatUint(p.generation, 10),
		}
		if p.fetches == nil {
			p.fetches = make(map[string]*sharedFetch)
		}
		p.fetches[key] = f
	}
	f.waiters++

	return f.ctx, f.flight, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		f.waiters--
		if f.waiters == 0 {
			f.cancel()
			if p.fetches[key] == f {
				delete(p.fetches, key)
			}
		}
	}
}


// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithStreamOpener replaces how AcquireStream opens its decode pipe. The
// default only streams canonical WAV.
func WithStreamOpener(open StreamOpener) Option {
	return func(p *Pipeline) { p.openStream = open }
}

// New returns a pipeline. st may be nil to disable caching.
func New(cfg Config, decoder audiocore.Decoder, fetcher Fetcher, st store.Store, opts ...Option) (*Pipeline, error) {
	if decoder == nil || fetcher == nil {
		return nil, errors.Newf("acquisition needs a decoder and an analysis fetcher").
			Component(componentAcquire).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.DecodeGrace < 0 {
		cfg.DecodeGrace = 0
	}
	p := &Pipeline{
		cfg:      cfg,
		decoder:  decoder,
		fetcher:  fetcher,
		store:    st,
		recorder: metrics.NopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.openStream == nil {
		p.openStream = DefaultStreamOpener(ffmpeg.Config{})
	}
	return p, nil
}

// AnalyzedAudio is a decoded buffer with its analysis. The record holds no
// reference to the buffer; Quanta binds the two on demand.
type AnalyzedAudio struct {
	ID       uuid.UUID
	Digest   analysis.Digest
	FileType string
	Buffer   *audiocore.Buffer
	Analysis *analysis.Record
	CacheHit bool
}

// Quanta returns the analysis units of kind bound to the buffer.
func (a *AnalyzedAudio) Quanta(kind string) (*audiocore.QuantumList, error) {
	return a.Analysis.Quanta(kind, a.Buffer)
}

// Acquire decodes data and fetches its analysis.
func (p *Pipeline) Acquire(ctx context.Context, data []byte, filetype string) (*AnalyzedAudio, error) {
	start := time.Now()
	p.recorder.AcquisitionStarted()
	defer p.recorder.AcquisitionDone()

	audio, err := p.acquire(ctx, data, filetype)
	p.recorder.RecordAcquisition(FailedStage(err), time.Since(start).Seconds())
	if err != nil {
		logger().Warn("acquisition failed",
			"filetype", filetype,
			"stage", FailedStage(err),
			"error", err)
		return nil, err
	}

	logger().Info("acquisition completed",
		"id", audio.ID.String(),
		"digest", audio.Digest.String(),
		"frames", audio.Buffer.Frames(),
		"cache_hit", audio.CacheHit,
		"duration_ms", time.Since(start).Milliseconds())
	return audio, nil
}

func (p *Pipeline) acquire(ctx context.Context, data []byte, filetype string) (*AnalyzedAudio, error) {
	if err := p.checkInput(data); err != nil {
		return nil, err
	}
	digest := analysis.Sum(data)

	buf := audiocore.NewDeferred(
		audiocore.Input{Data: data, FileType: filetype},
		p.decoder,
		audiocore.WithDestructiveReads(p.cfg.DestructiveReads),
	)
	decoded := make(chan error, 1)
	go func() {
		t := time.Now()
		err := buf.Load(ctx)
		frames := int64(0)
		if err == nil {
			frames = buf.Frames()
		}
		p.recorder.RecordDecode(err, frames, time.Since(t).Seconds())
		decoded <- err
	}()

	joined, decodeErr := joinWithin(decoded, p.cfg.DecodeGrace)
	if joined && decodeErr != nil {
		return nil, stageError(decodeErr, StageDecode, digest)
	}

	rec, hit, fetchErr := p.resolve(ctx, digest, data, filetype)

	if !joined {
		decodeErr = <-decoded
	}
	if decodeErr != nil {
		return nil, stageError(decodeErr, StageDecode, digest)
	}
	if fetchErr != nil {
		return nil, stageError(fetchErr, StageAnalysis, digest)
	}

	return &AnalyzedAudio{
		ID:       uuid.New(),
		Digest:   digest,
		FileType: filetype,
		Buffer:   buf,
		Analysis: rec,
		CacheHit: hit,
	}, nil
}

// joinWithin waits up to d for the decode task and reports whether it
// finished.
func joinWithin(decoded <-chan error, d time.Duration) (bool, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case err := <-decoded:
		return true, err
	case <-timer.C:
		return false, nil
	}
}

// AcquireFile reads path and acquires it, taking the file type from the
// extension.
func (p *Pipeline) AcquireFile(ctx context.Context, path string) (*AnalyzedAudio, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, inputError(err, path)
	}
	if p.cfg.MaxInputSize > 0 && info.Size() > p.cfg.MaxInputSize {
		return nil, tooLarge(info.Size(), p.cfg.MaxInputSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, inputError(err, path)
	}
	return p.Acquire(ctx, data, FileType(path))
}

// FileType returns the lower-case extension of path without the dot.
func FileType(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// resolve returns the cached record for digest or fetches it. Concurrent
// misses for the same digest share one provider fetch.
func (p *Pipeline) resolve(ctx context.Context, digest analysis.Digest, data []byte, filetype string) (*analysis.Record, bool, error) {
	if p.store != nil {
		rec, found, err := p.store.Get(ctx, digest)
		switch {
		case err != nil:
			p.recorder.RecordCacheError("get")
			logger().Warn("analysis cache lookup failed, fetching",
				"digest", digest.String(),
				"error", err)
		case found:
			p.recorder.RecordCacheLookup(true)
			logger().Debug("analysis cache hit", "digest", digest.String())
			return rec, true, nil
		default:
			p.recorder.RecordCacheLookup(false)
		}
	}

	// A caller that gives up stops waiting; the fetch itself runs until the
	// last waiting caller has gone.
	key := digest.String()
	fetchCtx, flight, leave := p.joinFetch(ctx, key)
	defer leave()

	ch := p.flights.DoChan(flight, func() (any, error) {
		rec, err := p.fetcher.Fetch(fetchCtx, analysis.Input{
			Data:     data,
			FileType: filetype,
			MD5:      key,
		})
		if err != nil {
			return nil, err
		}
		if p.store != nil {
			if err := p.store.Put(fetchCtx, digest, rec); err != nil {
				p.recorder.RecordCacheError("put")
				logger().Warn("failed to cache analysis",
					"digest", key,
					"error", err)
			}
		}
		return rec, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		if res.Shared {
			logger().Debug("shared in-flight analysis fetch", "digest", key)
		}
		return res.Val.(*analysis.Record), false, nil
	}
}

func (p *Pipeline) checkInput(data []byte) error {
	if len(data) == 0 {
		return errors.Newf("no audio data").
			Component(componentAcquire).
			Category(errors.CategoryValidation).
			Context("stage", StageInput).
			Build()
	}
	if p.cfg.MaxInputSize > 0 && int64(len(data)) > p.cfg.MaxInputSize {
		return tooLarge(int64(len(data)), p.cfg.MaxInputSize)
	}
	return nil
}

// FailedStage reports which stage an acquisition error came from: "decode",
// "analysis", "input", or "" when err is nil or unrelated.
func FailedStage(err error) string {
	if err == nil {
		return ""
	}
	if v, ok := errors.ContextValue(err, "stage"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// stageError tags err with the failed stage, keeping the category of the
// underlying error so errors.Is and errors.IsCategory still match it.
func stageError(err error, stage string, digest analysis.Digest) error {
	category := errors.CategoryGeneric
	var ee *errors.EnhancedError
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		category = errors.CategoryCancellation
	case errors.As(err, &ee):
		category = ee.Category
	case stage == StageDecode:
		category = errors.CategoryDecode
	case stage == StageAnalysis:
		category = errors.CategoryAnalysisFetch
	}
	return errors.New(err).
		Component(componentAcquire).
		Category(category).
		Context("stage", stage).
		Context("digest", digest.String()).
		Build()
}

func tooLarge(size, limit int64) error {
	return errors.Newf("input of %d bytes exceeds the %d byte limit", size, limit).
		Component(componentAcquire).
		Category(errors.CategoryLimit).
		Context("stage", StageInput).
		Build()
}

func inputError(err error, path string) error {
	return errors.New(err).
		Component(componentAcquire).
		Category(errors.CategoryFileIO).
		FileContext(path, 0).
		Context("stage", StageInput).
		Build()
}
