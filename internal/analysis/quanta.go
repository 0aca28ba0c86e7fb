package analysis

import (
	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/errors"
)

// Quanta binds the units of kind to src. The record keeps no reference to
// the source; callers pass the buffer each time.
func (r *Record) Quanta(kind string, src audiocore.PcmSource) (*audiocore.QuantumList, error) {
	units, ok := r.Units(kind)
	if !ok {
		return nil, errors.Newf("unknown analysis unit %q", kind).
			Component(componentAnalysis).
			Category(errors.CategoryValidation).
			Context("kind", kind).
			Build()
	}

	list := audiocore.NewQuantumList(src)
	list.Kind = kind
	list.Quanta = make([]audiocore.Quantum, 0, len(units))
	for _, u := range units {
		list.Append(audiocore.Quantum{
			Start:      u.Start,
			Duration:   u.Duration,
			Confidence: u.Confidence,
			Source:     src,
		})
	}
	return list, nil
}
