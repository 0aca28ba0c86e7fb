package serve

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/go-remix/internal/acquire"
	"github.com/tphakala/go-remix/internal/conf"
	"github.com/tphakala/go-remix/internal/httpserver"
	"github.com/tphakala/go-remix/internal/observability"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Serve analysis and remix endpoints, /health and Prometheus /metrics until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := observability.NewMetrics()
			if err != nil {
				return err
			}

			asm, err := acquire.FromSettings(settings, m.Acquisition)
			if err != nil {
				return err
			}
			defer func() { _ = asm.Close() }()

			server, err := httpserver.NewFromSettings(settings, asm.Pipeline,
				httpserver.WithRecordLookup(asm.Store),
				httpserver.WithMetrics(m))
			if err != nil {
				return err
			}
			return server.StartWithGracefulShutdown(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&settings.Server.Listen, "listen", viper.GetString("server.listen"), "Listen address")
	cmd.Flags().IntVar(&settings.Server.MaxUploadMB, "max-upload", viper.GetInt("server.maxuploadmb"), "Request body limit in megabytes")
	return cmd
}
