// Package httpserver exposes acquisition and rendering over HTTP.
//
// Audio is posted as the raw request body with its container named by the
// filetype query parameter. Analysis results are served as JSON and renders
// as audio/wav.
package httpserver

import (
	"context"

	"github.com/tphakala/go-remix/internal/acquire"
	"github.com/tphakala/go-remix/internal/analysis"
)

// Acquirer turns posted audio into analysed audio.
// *acquire.Pipeline implements it.
type Acquirer interface {
	Acquire(ctx context.Context, data []byte, filetype string) (*acquire.AnalyzedAudio, error)
}

// RecordLookup reads cached analysis records.
// Every store.Store implements it.
type RecordLookup interface {
	Get(ctx context.Context, digest analysis.Digest) (*analysis.Record, bool, error)
}

var _ Acquirer = (*acquire.Pipeline)(nil)
