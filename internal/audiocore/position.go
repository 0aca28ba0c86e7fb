package audiocore

import "math"

// Position addresses a frame either by time or by index.
type Position interface {
	Frames(sampleRate int) int64
}

// Seconds is a time offset from a buffer's origin.
type Seconds float64

// Frames converts s to a frame index, rounding to the nearest frame.
func (s Seconds) Frames(sampleRate int) int64 {
	return FramesFor(float64(s), sampleRate)
}

// Frame is a frame index from a buffer's origin.
type Frame int64

// Frames returns f unchanged.
func (f Frame) Frames(int) int64 {
	return int64(f)
}

// FramesFor converts seconds to a frame count with round-half-away-from-zero.
func FramesFor(seconds float64, sampleRate int) int64 {
	return int64(math.Round(seconds * float64(sampleRate)))
}

// Span is anything with a start and an end in seconds.
type Span interface {
	Interval() Interval
}

// Interval is the half-open time range [Start, End) in seconds.
type Interval struct {
	Start float64
	End   float64
}

// Interval returns i.
func (i Interval) Interval() Interval { return i }

// Duration returns End - Start.
func (i Interval) Duration() float64 { return i.End - i.Start }

// Envelope normalizes a pair of spans to the range from the start of first to
// the end of last. Nested spans normalize transitively because every Span
// reduces to its own Interval first.
func Envelope(first, last Span) Interval {
	return Interval{
		Start: first.Interval().Start,
		End:   last.Interval().End,
	}
}
