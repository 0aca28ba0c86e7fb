package slice

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/go-remix/internal/acquire"
	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/conf"
)

// Options describes one cut.
type Options struct {
	Start  float64
	End    float64
	Out    string
	Stream bool // decode through a forward-only pipe instead of a whole buffer
}

// Command creates the slice command.
func Command(settings *conf.Settings) *cobra.Command {
	opts := Options{Out: "slice.wav"}

	cmd := &cobra.Command{
		Use:   "slice [file]",
		Short: "Cut a time range out of an audio file",
		Long:  "Decode an audio file and write the frames between --start and --end seconds to a WAV file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := audiocore.Input{Path: args[0]}

			var (
				frames int64
				err    error
			)
			if opts.Stream {
				open := acquire.DefaultStreamOpener(acquire.FFmpegConfig(settings))
				frames, err = Stream(cmd.Context(), open, in, opts)
			} else {
				frames, err = Buffered(cmd.Context(), acquire.DecoderFromSettings(settings), in, opts)
			}
			if err != nil {
				return fmt.Errorf("slice %s: %w", args[0], err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d frames to %s\n", frames, opts.Out)
			return err
		},
	}

	cmd.Flags().Float64Var(&opts.Start, "start", 0, "Start of the cut in seconds")
	cmd.Flags().Float64Var(&opts.End, "end", 0, "End of the cut in seconds")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", opts.Out, "Output WAV file")
	cmd.Flags().BoolVar(&opts.Stream, "stream", false, "Stream the input instead of decoding it whole")
	return cmd
}

// Buffered decodes in whole and writes the cut.
func Buffered(ctx context.Context, decoder audiocore.Decoder, in audiocore.Input, opts Options) (int64, error) {
	buf := audiocore.NewDeferred(in, decoder)
	if err := buf.Load(ctx); err != nil {
		return 0, err
	}
	return write(buf, opts)
}

// Stream reads only as far as the end of the cut.
func Stream(ctx context.Context, open acquire.StreamOpener, in audiocore.Input, opts Options) (int64, error) {
	pipe, err := open(ctx, in)
	if err != nil {
		return 0, err
	}
	stream, err := audiocore.NewStream(pipe)
	if err != nil {
		_ = pipe.Close()
		return 0, err
	}
	defer func() { _ = stream.Finish() }()
	return write(stream, opts)
}

func write(src audiocore.PcmSource, opts Options) (int64, error) {
	part, err := src.Slice(audiocore.Seconds(opts.Start), audiocore.Seconds(opts.End))
	if err != nil {
		return 0, err
	}
	if err := part.WriteFile(opts.Out); err != nil {
		return 0, err
	}
	return part.Frames(), nil
}
