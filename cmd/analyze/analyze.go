package analyze

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/go-remix/internal/acquire"
	"github.com/tphakala/go-remix/internal/analysis"
	"github.com/tphakala/go-remix/internal/conf"
)

// Summary is the printed result of an analysis.
type Summary struct {
	ID            string         `yaml:"id"`
	File          string         `yaml:"file"`
	Digest        string         `yaml:"digest"`
	CacheHit      bool           `yaml:"cache_hit"`
	Frames        int64          `yaml:"frames"`
	Duration      float64        `yaml:"duration"`
	TrackID       string         `yaml:"track_id,omitempty"`
	Artist        string         `yaml:"artist,omitempty"`
	Title         string         `yaml:"title,omitempty"`
	Tempo         float64        `yaml:"tempo"`
	Key           int            `yaml:"key"`
	Mode          int            `yaml:"mode"`
	TimeSignature int            `yaml:"time_signature"`
	Units         map[string]int `yaml:"units"`
}

// NewSummary builds the printed summary of audio read from file.
func NewSummary(file string, a *acquire.AnalyzedAudio) Summary {
	units := make(map[string]int, len(analysis.Kinds))
	for _, kind := range analysis.Kinds {
		if u, ok := a.Analysis.Units(kind); ok {
			units[kind] = len(u)
		}
	}
	return Summary{
		ID:            a.ID.String(),
		File:          file,
		Digest:        a.Digest.String(),
		CacheHit:      a.CacheHit,
		Frames:        a.Buffer.Frames(),
		Duration:      a.Buffer.Duration(),
		TrackID:       a.Analysis.ID,
		Artist:        a.Analysis.Artist,
		Title:         a.Analysis.Title,
		Tempo:         a.Analysis.Summary.Tempo,
		Key:           a.Analysis.Summary.Key,
		Mode:          a.Analysis.Summary.Mode,
		TimeSignature: a.Analysis.Summary.TimeSignature,
		Units:         units,
	}
}

// Command creates the analyze command.
func Command(settings *conf.Settings) *cobra.Command {
	var dumpConfig bool

	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Analyze an audio file",
		Long:  "Decode an audio file, fetch its analysis and print a summary as YAML.",
		Args: func(cmd *cobra.Command, args []string) error {
			if dumpConfig {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if dumpConfig {
				data, err := settings.YAML()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			asm, err := acquire.FromSettings(settings, nil)
			if err != nil {
				return err
			}
			defer func() { _ = asm.Close() }()

			audio, err := asm.Pipeline.AcquireFile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("analyze %s: %w", args[0], err)
			}
			return writeYAML(cmd.OutOrStdout(), NewSummary(args[0], audio))
		},
	}

	cmd.Flags().BoolVar(&dumpConfig, "dump-config", false, "Print the effective settings and exit")
	return cmd
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
