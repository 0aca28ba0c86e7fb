package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/go-remix/cmd"
	"github.com/tphakala/go-remix/internal/buildinfo"
	"github.com/tphakala/go-remix/internal/conf"
	"github.com/tphakala/go-remix/internal/errors"
	"github.com/tphakala/go-remix/internal/logging"
	"github.com/tphakala/go-remix/internal/privacy"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logging.Init()

	// --config has to be known before viper reads anything
	if path := configFlag(args); path != "" {
		if err := os.Setenv(conf.ConfigEnvVar, path); err != nil {
			fmt.Fprintf(os.Stderr, "error setting config path: %v\n", err)
			return 1
		}
	}

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		return 1
	}

	if settings.Telemetry.Enabled {
		flush, err := initTelemetry(settings)
		if err != nil {
			logging.Warn("telemetry disabled", "error", err)
		} else {
			defer flush()
		}
	}

	rootCmd := cmd.RootCommand(settings)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// configFlag returns the value of --config from raw arguments.
func configFlag(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--":
			return ""
		case arg == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}

func initTelemetry(settings *conf.Settings) (func(), error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         settings.Telemetry.DSN,
		Environment: settings.Telemetry.Environment,
		ServerName:  settings.Main.Name,
		Release:     "remix@" + buildinfo.Current().GetVersion(),
	})
	if err != nil {
		return nil, err
	}
	errors.SetPrivacyScrubber(privacy.ScrubMessage)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	logging.Info("error telemetry enabled", "environment", settings.Telemetry.Environment)
	return func() { sentry.Flush(2 * time.Second) }, nil
}
