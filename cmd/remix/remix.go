package remix

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/go-remix/internal/acquire"
	"github.com/tphakala/go-remix/internal/analysis"
	"github.com/tphakala/go-remix/internal/conf"
	"github.com/tphakala/go-remix/internal/errors"
)

// Options selects which units are rendered.
type Options struct {
	Unit   string
	Every  int
	Offset int
	Out    string
}

// Command creates the remix command.
func Command(settings *conf.Settings) *cobra.Command {
	opts := Options{Unit: analysis.KindBeats, Every: 2, Out: "remix.wav"}

	cmd := &cobra.Command{
		Use:   "remix [file]",
		Short: "Render every n-th analysis unit of a track",
		Long:  "Acquire a track and render every n-th unit (beat, bar, section...) back to back into a WAV file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asm, err := acquire.FromSettings(settings, nil)
			if err != nil {
				return err
			}
			defer func() { _ = asm.Close() }()

			audio, err := asm.Pipeline.AcquireFile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("remix %s: %w", args[0], err)
			}
			frames, err := Render(audio, opts)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d frames (%.2fs) to %s\n",
				frames, float64(frames)/conf.SampleRate, opts.Out)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Unit, "unit", opts.Unit, "Unit to render: bars, beats, tatums, sections or segments")
	cmd.Flags().IntVar(&opts.Every, "every", opts.Every, "Render every n-th unit")
	cmd.Flags().IntVar(&opts.Offset, "offset", opts.Offset, "Index of the first unit rendered")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", opts.Out, "Output WAV file")
	return cmd
}

// Render writes the selected units of audio to opts.Out and returns the
// number of frames written.
func Render(audio *acquire.AnalyzedAudio, opts Options) (int64, error) {
	if opts.Every < 1 || opts.Offset < 0 {
		return 0, errors.Newf("every must be at least 1 and offset non-negative").
			Component("remix").
			Category(errors.CategoryValidation).
			Build()
	}
	quanta, err := audio.Quanta(opts.Unit)
	if err != nil {
		return 0, err
	}
	selected := quanta.Every(opts.Every, opts.Offset)
	if selected.Len() == 0 {
		return 0, errors.Newf("no %s selected from %d available", opts.Unit, quanta.Len()).
			Component("remix").
			Category(errors.CategoryValidation).
			Build()
	}

	out, err := selected.Render(0, nil, nil)
	if err != nil {
		return 0, err
	}
	if err := out.WriteFile(opts.Out); err != nil {
		return 0, err
	}
	return out.Frames(), nil
}
