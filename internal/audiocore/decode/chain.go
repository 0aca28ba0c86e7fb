package decode

import (
	"context"

	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/errors"
)

// Chain tries decoders in order and returns the first success.
type Chain struct {
	decoders []audiocore.Decoder
}

// NewChain returns a chain over decoders, skipping nil entries.
func NewChain(decoders ...audiocore.Decoder) *Chain {
	c := &Chain{}
	for _, d := range decoders {
		if d != nil {
			c.decoders = append(c.decoders, d)
		}
	}
	return c
}

// Len returns the number of decoders in the chain.
func (c *Chain) Len() int { return len(c.decoders) }

// Decode runs each decoder until one succeeds. When all fail the errors are
// joined into a single decode error.
func (c *Chain) Decode(ctx context.Context, in audiocore.Input, target audiocore.Format) ([]int16, error) {
	if len(c.decoders) == 0 {
		return nil, errors.Newf("no decoders configured").
			Component(componentDecode).
			Category(errors.CategoryDecode).
			Build()
	}

	var errs []error
	for i, d := range c.decoders {
		samples, err := d.Decode(ctx, in, target)
		if err == nil {
			return samples, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger().Debug("decoder failed, trying next",
			"decoder_index", i,
			"filetype", in.Type(),
			"error", err)
		errs = append(errs, err)
	}
	return nil, audiocore.DecodeError(errors.Join(errs...), in)
}

// Default returns the decoder used by the pipeline: native decoding first
// when enabled, then ffmpeg when available.
func Default(native bool, external audiocore.Decoder) *Chain {
	var first audiocore.Decoder
	if native {
		first = NewNative()
	}
	return NewChain(first, external)
}
