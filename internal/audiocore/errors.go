package audiocore

import (
	"github.com/tphakala/go-remix/internal/errors"
)

// Component identifier for audiocore errors
const ComponentAudioCore = "audiocore"

// Sentinel errors, matched with errors.Is by category.
var (
	// ErrDecode is returned when raw input cannot be turned into canonical PCM
	ErrDecode = errors.New(nil).
			Component(ComponentAudioCore).
			Category(errors.CategoryDecode).
			Build()

	// ErrOutOfRange is returned when a discarded or nonexistent interval is accessed
	ErrOutOfRange = errors.New(nil).
			Component(ComponentAudioCore).
			Category(errors.CategoryOutOfRange).
			Build()

	// ErrBackwardSeek is returned when a stream is asked for a position before its cursor
	ErrBackwardSeek = errors.New(nil).
			Component(ComponentAudioCore).
			Category(errors.CategoryBackwardSeek).
			Build()

	// ErrFormat is returned when a sample format precondition is violated
	ErrFormat = errors.New(nil).
			Component(ComponentAudioCore).
			Category(errors.CategoryFormat).
			Build()
)

func outOfRange(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component(ComponentAudioCore).
		Category(errors.CategoryOutOfRange).
		Build()
}

func formatError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component(ComponentAudioCore).
		Category(errors.CategoryFormat).
		Build()
}

// DecodeError wraps err as a decode failure unless it already is one.
func DecodeError(err error, in Input) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDecode) {
		return err
	}
	return errors.New(err).
		Component(ComponentAudioCore).
		Category(errors.CategoryDecode).
		Context("filetype", in.Type()).
		Context("input_size", len(in.Data)).
		Build()
}
