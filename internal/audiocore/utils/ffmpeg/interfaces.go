package ffmpeg

import (
	"time"

	"github.com/tphakala/go-remix/internal/audiocore"
)

// Default values for Config fields left empty
const (
	DefaultStopTimeout = 5 * time.Second
	DefaultOutputCodec = "pcm_s16le"
	stderrTailSize     = 4096
)

// Config describes how ffmpeg is invoked
type Config struct {
	ID          string        // label used in logs and error context
	FFmpegPath  string        // resolved binary path
	SampleRate  int           // output sample rate, defaults to the canonical rate
	Channels    int           // output channel count, defaults to the canonical count
	ExtraArgs   []string      // appended before the output target
	StopTimeout time.Duration // grace period before a stopped process is killed
}

// withDefaults fills zero fields from the canonical format
func (c Config) withDefaults() Config {
	canon := audiocore.CanonicalFormat()
	if c.SampleRate == 0 {
		c.SampleRate = canon.SampleRate
	}
	if c.Channels == 0 {
		c.Channels = canon.Channels
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.ID == "" {
		c.ID = "ffmpeg"
	}
	return c
}

// outputFormat is the PCM layout ffmpeg writes to stdout
func (c Config) outputFormat() audiocore.Format {
	return audiocore.Format{SampleRate: c.SampleRate, Channels: c.Channels, BitDepth: 16}
}

// ProcessMetrics contains runtime metrics for a finished or running process
type ProcessMetrics struct {
	StartTime time.Time
	Runtime   time.Duration
	BytesRead int64
	ExitCode  int
}
