// Package analysis fetches structural analysis of audio from a remote
// provider and binds it to decoded buffers.
//
// A Record holds the provider's view of a track: summary values such as
// tempo and key, plus time-aligned units (bars, beats, tatums, sections and
// segments). Records are keyed by the MD5 digest of the raw input bytes and
// are persisted by the store package.
package analysis

import "time"

// Unit kinds understood by Record.Units.
const (
	KindBars     = "bars"
	KindBeats    = "beats"
	KindTatums   = "tatums"
	KindSections = "sections"
	KindSegments = "segments"
)

// Kinds lists every unit kind in coarse to fine order.
var Kinds = []string{KindSections, KindBars, KindBeats, KindTatums, KindSegments}

// Track status values reported by the provider.
const (
	StatusComplete = "complete"
	StatusPending  = "pending"
	StatusError    = "error"
)

// Record is the provider's analysis of one track.
type Record struct {
	ID        string    `json:"id"`
	MD5       string    `json:"md5"`
	Status    string    `json:"status"`
	Artist    string    `json:"artist,omitempty"`
	Title     string    `json:"title,omitempty"`
	Release   string    `json:"release,omitempty"`
	Summary   Summary   `json:"audio_summary"`
	Analysis  Detail    `json:"analysis"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Summary holds the track-level values of an analysis.
type Summary struct {
	Duration      float64 `json:"duration"`
	Tempo         float64 `json:"tempo"`
	Key           int     `json:"key"`
	Mode          int     `json:"mode"`
	TimeSignature int     `json:"time_signature"`
	Loudness      float64 `json:"loudness"`
	AnalysisURL   string  `json:"analysis_url,omitempty"`
}

// Detail is the time-aligned part of an analysis.
type Detail struct {
	Track    TrackInfo `json:"track"`
	Bars     []Unit    `json:"bars"`
	Beats    []Unit    `json:"beats"`
	Tatums   []Unit    `json:"tatums"`
	Sections []Section `json:"sections"`
	Segments []Segment `json:"segments"`
}

// TrackInfo carries confidences and fade points for the whole track.
type TrackInfo struct {
	Duration                float64 `json:"duration"`
	EndOfFadeIn             float64 `json:"end_of_fade_in"`
	StartOfFadeOut          float64 `json:"start_of_fade_out"`
	Loudness                float64 `json:"loudness"`
	Tempo                   float64 `json:"tempo"`
	TempoConfidence         float64 `json:"tempo_confidence"`
	Key                     int     `json:"key"`
	KeyConfidence           float64 `json:"key_confidence"`
	Mode                    int     `json:"mode"`
	ModeConfidence          float64 `json:"mode_confidence"`
	TimeSignature           int     `json:"time_signature"`
	TimeSignatureConfidence float64 `json:"time_signature_confidence"`
}

// Unit is a time interval reported by the provider.
type Unit struct {
	Start      float64 `json:"start"`
	Duration   float64 `json:"duration"`
	Confidence float64 `json:"confidence"`
}

// Section is a large structural unit such as a verse or chorus.
type Section struct {
	Unit
	Loudness      float64 `json:"loudness"`
	Tempo         float64 `json:"tempo"`
	Key           int     `json:"key"`
	Mode          int     `json:"mode"`
	TimeSignature int     `json:"time_signature"`
}

// Segment is a short unit of roughly constant timbre.
type Segment struct {
	Unit
	LoudnessStart   float64   `json:"loudness_start"`
	LoudnessMax     float64   `json:"loudness_max"`
	LoudnessMaxTime float64   `json:"loudness_max_time"`
	Pitches         []float64 `json:"pitches"`
	Timbre          []float64 `json:"timbre"`
}

// Complete reports whether the provider finished analysing the track.
func (r *Record) Complete() bool {
	return r.Status == "" || r.Status == StatusComplete
}

// Units returns the intervals of the given kind. Unknown kinds return false.
func (r *Record) Units(kind string) ([]Unit, bool) {
	switch kind {
	case KindBars:
		return r.Analysis.Bars, true
	case KindBeats:
		return r.Analysis.Beats, true
	case KindTatums:
		return r.Analysis.Tatums, true
	case KindSections:
		units := make([]Unit, len(r.Analysis.Sections))
		for i, s := range r.Analysis.Sections {
			units[i] = s.Unit
		}
		return units, true
	case KindSegments:
		units := make([]Unit, len(r.Analysis.Segments))
		for i, s := range r.Analysis.Segments {
			units[i] = s.Unit
		}
		return units, true
	}
	return nil, false
}

// Empty reports whether the record carries no time-aligned units.
func (d *Detail) Empty() bool {
	return len(d.Bars) == 0 && len(d.Beats) == 0 && len(d.Tatums) == 0 &&
		len(d.Sections) == 0 && len(d.Segments) == 0
}

// Duration returns the analysed length in seconds.
func (r *Record) Duration() float64 {
	if r.Summary.Duration > 0 {
		return r.Summary.Duration
	}
	return r.Analysis.Track.Duration
}
