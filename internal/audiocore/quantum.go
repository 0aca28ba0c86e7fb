package audiocore

import (
	"github.com/tphakala/go-remix/internal/errors"
)

// Quantum is the time interval [Start, Start+Duration) over a source.
// The source is not owned and must outlive the quantum.
type Quantum struct {
	Start      float64   // seconds
	Duration   float64   // seconds, never negative
	Confidence float64   // provider confidence in [0, 1], zero when unknown
	Source     PcmSource // nil means the enclosing list's default source
}

// Interval returns the time range covered by q.
func (q Quantum) Interval() Interval {
	return Interval{Start: q.Start, End: q.Start + q.Duration}
}

// End returns Start + Duration.
func (q Quantum) End() float64 { return q.Start + q.Duration }

// Render writes q's source material into target at start seconds. A nil
// target is allocated large enough to hold it.
func (q Quantum) Render(start float64, target *Buffer, selected PcmSource) (*Buffer, error) {
	if q.Source == nil {
		return target, errors.Newf("quantum at %.3fs has no source", q.Start).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}
	if selected != nil && selected != q.Source {
		return target, nil
	}

	f := q.Source.Format()
	if target == nil {
		target = Zeros(FramesFor(start, f.SampleRate)+FramesFor(q.Duration, f.SampleRate), f.SampleRate, f.Channels)
	}
	at := FramesFor(start, target.SampleRate())
	if err := renderInto(target, at, q, q.Source); err != nil {
		return target, err
	}
	return target, nil
}

// renderInto mixes q's material from src into target at frame at, writing no
// more than q's rounded duration.
func renderInto(target *Buffer, at int64, q Quantum, src PcmSource) error {
	if q.Duration < 0 {
		return errors.Newf("quantum at %.3fs has negative duration %.3f", q.Start, q.Duration).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}

	sf := src.Format()
	if sf.SampleRate != target.SampleRate() || sf.Channels != target.Channels() {
		return formatError("cannot render %d Hz/%d ch source into %d Hz/%d ch buffer",
			sf.SampleRate, sf.Channels, target.SampleRate(), target.Channels())
	}

	seg, err := src.Extract(q)
	if err != nil {
		return err
	}

	limit := FramesFor(q.Duration, target.SampleRate()) * int64(target.Channels())
	samples := seg.Samples()
	if int64(len(samples)) > limit {
		samples = samples[:limit]
	}
	_, err = target.mixAt(at, samples)
	return err
}

// QuantumList is an ordered sequence of quanta with an optional default source.
type QuantumList struct {
	Kind   string // unit name such as "beats", informational
	Quanta []Quantum
	Source PcmSource
}

// NewQuantumList returns a list over source holding quanta.
func NewQuantumList(source PcmSource, quanta ...Quantum) *QuantumList {
	return &QuantumList{Source: source, Quanta: quanta}
}

// Append adds quanta to the end of the list.
func (l *QuantumList) Append(quanta ...Quantum) {
	l.Quanta = append(l.Quanta, quanta...)
}

// Len returns the number of quanta.
func (l *QuantumList) Len() int { return len(l.Quanta) }

// Duration returns the sum of member durations in seconds.
func (l *QuantumList) Duration() float64 {
	var d float64
	for _, q := range l.Quanta {
		d += q.Duration
	}
	return d
}

// Frames returns the rendered length at sampleRate. Each member's duration
// is rounded to frames on its own before summing, so external callers sizing
// a target must round the same way.
func (l *QuantumList) Frames(sampleRate int) int64 {
	var n int64
	for _, q := range l.Quanta {
		n += FramesFor(q.Duration, sampleRate)
	}
	return n
}

// Interval returns the envelope from the first member's start to the last
// member's end.
func (l *QuantumList) Interval() Interval {
	if len(l.Quanta) == 0 {
		return Interval{}
	}
	return Envelope(l.Quanta[0], l.Quanta[len(l.Quanta)-1])
}

// Every returns a new list holding every n-th quantum starting at first.
func (l *QuantumList) Every(n, first int) *QuantumList {
	out := &QuantumList{Kind: l.Kind, Source: l.Source}
	if n <= 0 {
		return out
	}
	for i := first; i >= 0 && i < len(l.Quanta); i += n {
		out.Quanta = append(out.Quanta, l.Quanta[i])
	}
	return out
}

func (l *QuantumList) sourceOf(q Quantum) PcmSource {
	if q.Source != nil {
		return q.Source
	}
	return l.Source
}

// Sources returns the distinct sources referenced by the list in order of
// first appearance.
func (l *QuantumList) Sources() ([]PcmSource, error) {
	var sources []PcmSource
	for i, q := range l.Quanta {
		src := l.sourceOf(q)
		if src == nil {
			return nil, errors.Newf("quantum %d has no source and the list has no default", i).
				Component(ComponentAudioCore).
				Category(errors.CategoryValidation).
				Build()
		}
		if !containsSource(sources, src) {
			sources = append(sources, src)
		}
	}
	return sources, nil
}

func containsSource(sources []PcmSource, src PcmSource) bool {
	for _, s := range sources {
		if s == src {
			return true
		}
	}
	return false
}

// Render writes the list into target starting at start seconds and returns
// the target.
//
// An empty list returns (nil, nil) without allocating. A nil target is
// allocated to hold start plus the per-member rounded durations at the
// sample rate of the default source, or the first member's source. Members
// are rendered strictly in order, each advancing the output position by its
// own rounded duration. When the list references several sources and
// selected is nil, one pass is made per source, each starting again at start,
// so the sources are mixed. When selected is set only its members are
// written; if the list never references it the call does nothing.
func (l *QuantumList) Render(start float64, target *Buffer, selected PcmSource) (*Buffer, error) {
	if len(l.Quanta) == 0 {
		return nil, nil
	}

	sources, err := l.Sources()
	if err != nil {
		return target, err
	}

	passes := sources
	if selected != nil {
		if !containsSource(sources, selected) {
			return target, nil
		}
		passes = []PcmSource{selected}
	}

	if target == nil {
		ref := l.Source
		if ref == nil {
			ref = sources[0]
		}
		f := ref.Format()
		target = Zeros(FramesFor(start, f.SampleRate)+l.Frames(f.SampleRate), f.SampleRate, f.Channels)
	}

	sr := target.SampleRate()
	for _, src := range passes {
		at := FramesFor(start, sr)
		for _, q := range l.Quanta {
			if l.sourceOf(q) == src {
				if err := renderInto(target, at, q, src); err != nil {
					return target, err
				}
			}
			at += FramesFor(q.Duration, sr)
		}
	}

	return target, nil
}

// Concatenate renders each list one after another into a single buffer.
// Lists that render to nothing are skipped.
func Concatenate(lists ...*QuantumList) (*Buffer, error) {
	var (
		total int64
		ref   PcmSource
	)
	for _, l := range lists {
		sources, err := l.Sources()
		if err != nil {
			return nil, err
		}
		if ref == nil && len(sources) > 0 {
			ref = sources[0]
		}
	}
	if ref == nil {
		return nil, nil
	}

	f := ref.Format()
	for _, l := range lists {
		total += l.Frames(f.SampleRate)
	}
	target := Zeros(total, f.SampleRate, f.Channels)

	var at int64
	for _, l := range lists {
		if _, err := l.Render(float64(at)/float64(f.SampleRate), target, nil); err != nil {
			return target, err
		}
		at += l.Frames(f.SampleRate)
	}
	return target, nil
}
