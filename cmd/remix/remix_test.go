package remix

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-remix/internal/acquire"
	"github.com/tphakala/go-remix/internal/analysis"
	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/errors"
)

func quarterBeats() *acquire.AnalyzedAudio {
	samples := make([]int16, 44100*2)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}
	beats := make([]analysis.Unit, 4)
	for i := range beats {
		beats[i] = analysis.Unit{Start: float64(i) * 0.25, Duration: 0.25, Confidence: 1}
	}
	return &acquire.AnalyzedAudio{
		Buffer:   audiocore.NewBuffer(audiocore.CanonicalFormat(), samples),
		Analysis: &analysis.Record{ID: "TRQUARTER", Analysis: analysis.Detail{Beats: beats}},
	}
}

func TestRenderEveryOtherBeat(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "out.wav")
	frames, err := Render(quarterBeats(), Options{Unit: analysis.KindBeats, Every: 2, Offset: 1, Out: out})
	require.NoError(t, err)
	assert.Equal(t, int64(2*11025), frames)

	written, err := audiocore.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, frames, written.Frames())
}

func TestRenderRejectsBadSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts Options
	}{
		{"zero every", Options{Unit: analysis.KindBeats, Every: 0}},
		{"negative offset", Options{Unit: analysis.KindBeats, Every: 1, Offset: -1}},
		{"offset past end", Options{Unit: analysis.KindBeats, Every: 1, Offset: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.opts.Out = filepath.Join(t.TempDir(), "out.wav")
			_, err := Render(quarterBeats(), tt.opts)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
			assert.NoFileExists(t, tt.opts.Out)
		})
	}
}

func TestRenderUnknownUnit(t *testing.T) {
	t.Parallel()

	_, err := Render(quarterBeats(), Options{Unit: "phrases", Every: 1, Out: filepath.Join(t.TempDir(), "x.wav")})
	require.Error(t, err)
}
