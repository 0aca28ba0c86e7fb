// conf/utils.go various util functions for configuration package
package conf

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/tphakala/go-remix/internal/errors"
)

const osWindows = "windows"

// GetDefaultConfigPaths returns the directories searched for config.yaml, in
// priority order. The first entry is where a default config is created.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-home-dir").
			Build()
	}

	if runtime.GOOS == osWindows {
		exePath, err := os.Executable()
		if err != nil {
			return nil, errors.New(err).
				Category(errors.CategorySystem).
				Context("operation", "get-executable-path").
				Build()
		}
		return []string{
			filepath.Dir(exePath),
			filepath.Join(homeDir, "AppData", "Local", "remix"),
		}, nil
	}

	return []string{
		filepath.Join(homeDir, ".config", "remix"),
		".",
		"/etc/remix",
	}, nil
}

// FindConfigFile returns the path of the first existing config.yaml.
func FindConfigFile() (string, error) {
	if explicit := os.Getenv(ConfigEnvVar); explicit != "" {
		return explicit, nil
	}

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}

	for _, path := range configPaths {
		configFilePath := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configFilePath); err == nil {
			return configFilePath, nil
		}
	}

	return "", errors.Newf("config file not found").
		Category(errors.CategoryNotFound).
		Context("operation", "find-config-file").
		Build()
}

// GetFfmpegBinaryName returns the binary name for ffmpeg based on the current OS.
func GetFfmpegBinaryName() string {
	if runtime.GOOS == osWindows {
		return "ffmpeg.exe"
	}
	return "ffmpeg"
}

// ResolveFFmpegPath returns the configured ffmpeg path, or the one found on PATH.
// An empty string means ffmpeg is unavailable.
func ResolveFFmpegPath(configured string) string {
	if configured != "" {
		return configured
	}
	path, err := exec.LookPath(GetFfmpegBinaryName())
	if err != nil {
		return ""
	}
	return path
}
