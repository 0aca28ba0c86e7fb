package play

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/go-remix/internal/audiocore"
	"github.com/tphakala/go-remix/internal/conf"
)

// Command creates the play command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play [file.wav]",
		Short: "Play a WAV file through the configured player",
		Long:  "Decode a WAV container and pipe its samples to sox play, or the player set in audio.playerpath.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := audiocore.ReadFile(args[0])
			if err != nil {
				return err
			}
			return buf.Play(cmd.Context(), settings.Audio.PlayerPath)
		},
	}

	cmd.Flags().StringVar(&settings.Audio.PlayerPath, "player", settings.Audio.PlayerPath, "Player binary reading raw s16 samples on stdin")
	return cmd
}
