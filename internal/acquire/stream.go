package acquire

import (
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/go-remix/internal/analysis"
	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/audiocore/decode"
	"github.com/tphakala/go-remix/internal/audiocore/utils/ffmpeg"
	"github.com/tphakala/go-remix/internal/conf"
	"github.com/tphakala/go-remix/internal/errors"
)

// StreamOpener starts a forward-only decode pipe over in.
type StreamOpener func(ctx context.Context, in audiocore.Input) (audiocore.PCMPipe, error)

// DefaultStreamOpener streams canonical WAV in process and everything else
// through ffmpeg.
func DefaultStreamOpener(cfg ffmpeg.Config) StreamOpener {
	return func(ctx context.Context, in audiocore.Input) (audiocore.PCMPipe, error) {
		if in.Type() == "wav" {
			if pipe := openCanonicalWAV(in); pipe != nil {
				return pipe, nil
			}
		}
		if cfg.FFmpegPath == "" {
			return nil, errors.Newf("streaming %q input needs ffmpeg", in.Type()).
				Component(componentAcquire).
				Category(errors.CategoryConfiguration).
				Build()
		}
		return ffmpeg.NewStreamPipe(ctx, cfg, in)
	}
}

// openCanonicalWAV returns a WAV pipe over in, or nil when in is not a
// canonical 16-bit WAV.
func openCanonicalWAV(in audiocore.Input) audiocore.PCMPipe {
	var src io.ReadSeeker
	switch {
	case in.Data != nil:
		src = bytes.NewReader(in.Data)
	case in.Path != "":
		f, err := os.Open(in.Path)
		if err != nil {
			return nil
		}
		src = f
	default:
		return nil
	}

	pipe, err := decode.NewWAVPipe(src)
	if err != nil {
		if c, ok := src.(io.Closer); ok {
			_ = c.Close()
		}
		return nil
	}
	if !pipe.Format().IsCanonical() {
		_ = pipe.Close()
		return nil
	}
	return pipe
}

// FFmpegConfig returns the ffmpeg settings used for streaming decodes.
func FFmpegConfig(s *conf.Settings) ffmpeg.Config {
	cfg := ffmpeg.Config{ID: "stream"}
	if s != nil {
		cfg.FFmpegPath = conf.ResolveFFmpegPath(s.Audio.FfmpegPath)
	}
	return cfg
}

// AnalyzedStream is an analysis paired with a forward-only stream of the
// decoded audio, for inputs too large to hold as one buffer.
type AnalyzedStream struct {
	ID       uuid.UUID
	Digest   analysis.Digest
	FileType string
	Stream   *audiocore.Stream
	Analysis *analysis.Record
	CacheHit bool
}

// Quanta returns the analysis units of kind bound to the stream. Rendering
// them must move forward through the audio.
func (a *AnalyzedStream) Quanta(kind string) (*audiocore.QuantumList, error) {
	return a.Analysis.Quanta(kind, a.Stream)
}

// Close finishes the stream and releases the decode pipe.
func (a *AnalyzedStream) Close() error { return a.Stream.Finish() }

// AcquireStream fetches the analysis of data while starting a decode pipe
// over it. The caller must Close the result.
func (p *Pipeline) AcquireStream(ctx context.Context, data []byte, filetype string) (*AnalyzedStream, error) {
	start := time.Now()
	p.recorder.AcquisitionStarted()
	defer p.recorder.AcquisitionDone()

	out, err := p.acquireStream(ctx, data, filetype)
	p.recorder.RecordAcquisition(FailedStage(err), time.Since(start).Seconds())
	if err != nil {
		logger().Warn("stream acquisition failed",
			"filetype", filetype,
			"stage", FailedStage(err),
			"error", err)
		return nil, err
	}
	logger().Info("stream acquisition completed",
		"id", out.ID.String(),
		"digest", out.Digest.String(),
		"cache_hit", out.CacheHit,
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

func (p *Pipeline) acquireStream(ctx context.Context, data []byte, filetype string) (*AnalyzedStream, error) {
	if err := p.checkInput(data); err != nil {
		return nil, err
	}
	digest := analysis.Sum(data)

	var (
		rec                   *analysis.Record
		hit                   bool
		stream                *audiocore.Stream
		decodeErr, analyzeErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rec, hit, err = p.resolve(gctx, digest, data, filetype)
		if err != nil {
			analyzeErr = stageError(err, StageAnalysis, digest)
		}
		return analyzeErr
	})
	g.Go(func() error {
		// the pipe outlives this call, so it is bound to ctx rather than gctx
		pipe, err := p.openStream(ctx, audiocore.Input{Data: data, FileType: filetype})
		if err != nil {
			decodeErr = stageError(audiocore.DecodeError(err, audiocore.Input{FileType: filetype}), StageDecode, digest)
			return decodeErr
		}
		s, err := audiocore.NewStream(pipe)
		if err != nil {
			_ = pipe.Close()
			decodeErr = stageError(err, StageDecode, digest)
			return decodeErr
		}
		stream = s
		return nil
	})

	// Wait reports whichever failure came first; a decode failure wins
	if err := g.Wait(); err != nil {
		if stream != nil {
			_ = stream.Finish()
		}
		if decodeErr != nil {
			return nil, decodeErr
		}
		return nil, analyzeErr
	}

	return &AnalyzedStream{
		ID:       uuid.New(),
		Digest:   digest,
		FileType: filetype,
		Stream:   stream,
		Analysis: rec,
		CacheHit: hit,
	}, nil
}
