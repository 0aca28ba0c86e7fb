package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/go-remix/cmd/analyze"
	"github.com/tphakala/go-remix/cmd/play"
	"github.com/tphakala/go-remix/cmd/remix"
	"github.com/tphakala/go-remix/cmd/serve"
	"github.com/tphakala/go-remix/cmd/slice"
	"github.com/tphakala/go-remix/internal/buildinfo"
	"github.com/tphakala/go-remix/internal/conf"
	"github.com/tphakala/go-remix/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "remix",
		Short:         "Remix audio along its beats, bars and sections",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       buildinfo.Current().String(),
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		logging.Warn("failed to bind global flags", "error", err)
	}

	rootCmd.AddCommand(
		analyze.Command(settings),
		remix.Command(settings),
		slice.Command(settings),
		play.Command(settings),
		serve.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initialize(settings)
	}

	return rootCmd
}

// initialize applies settings that flags may have changed before a
// subcommand runs.
func initialize(settings *conf.Settings) error {
	level := logging.ParseLevel(settings.Main.Level)
	if settings.Debug {
		level = slog.LevelDebug
	}
	logging.SetLevel(level)

	if err := conf.ValidateSettings(settings); err != nil {
		return err
	}

	// stdout carries command output, JSON records go to the main log file
	structured := io.Discard
	if settings.Main.Log.Enabled {
		w, err := logging.NewRotatingWriter(settings.Main.Log.Path, settings.Main.Log)
		if err != nil {
			return err
		}
		structured = w
	}
	logging.SetOutput(structured, os.Stderr)
	conf.SetSettings(settings)
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	// --config is read by main before settings load, it is declared here
	// so cobra accepts it and lists it in help
	rootCmd.PersistentFlags().String("config", "", "Path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Provider.APIKey, "apikey", viper.GetString("provider.apikey"), "Analysis provider API key")
	rootCmd.PersistentFlags().StringVar(&settings.Cache.Type, "cache", viper.GetString("cache.type"), "Analysis cache: memory, sqlite, mysql or file")
	rootCmd.PersistentFlags().StringVar(&settings.Audio.FfmpegPath, "ffmpeg", viper.GetString("audio.ffmpegpath"), "Path to the ffmpeg binary")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
