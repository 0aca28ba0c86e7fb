package analyze

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/go-remix/internal/acquire"
	"github.com/tphakala/go-remix/internal/analysis"
	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/conf"
)

func TestDumpConfig(t *testing.T) {
	t.Parallel()

	settings := conf.DefaultSettings()
	cmd := Command(settings)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--dump-config"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "provider:")
	assert.Contains(t, out.String(), "cache:")
}

func TestRequiresFile(t *testing.T) {
	t.Parallel()

	cmd := Command(conf.DefaultSettings())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	require.Error(t, cmd.Execute())
}

func TestSummaryYAML(t *testing.T) {
	t.Parallel()

	data := []byte("track")
	audio := &acquire.AnalyzedAudio{
		ID:       uuid.New(),
		Digest:   analysis.Sum(data),
		FileType: "mp3",
		Buffer:   audiocore.Zeros(44100, 44100, 2),
		Analysis: &analysis.Record{
			ID:      "TRSUMMARY",
			Title:   "Loop",
			Summary: analysis.Summary{Tempo: 120, TimeSignature: 4},
			Analysis: analysis.Detail{
				Beats: []analysis.Unit{{Start: 0, Duration: 0.5}, {Start: 0.5, Duration: 0.5}},
				Bars:  []analysis.Unit{{Start: 0, Duration: 1}},
			},
		},
		CacheHit: true,
	}

	var out bytes.Buffer
	require.NoError(t, writeYAML(&out, NewSummary("loop.mp3", audio)))

	var got Summary
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "loop.mp3", got.File)
	assert.Equal(t, analysis.Sum(data).String(), got.Digest)
	assert.True(t, got.CacheHit)
	assert.Equal(t, int64(44100), got.Frames)
	assert.InDelta(t, 1.0, got.Duration, 1e-9)
	assert.InDelta(t, 120.0, got.Tempo, 1e-9)
	assert.Equal(t, 2, got.Units[analysis.KindBeats])
	assert.Equal(t, 1, got.Units[analysis.KindBars])
}
