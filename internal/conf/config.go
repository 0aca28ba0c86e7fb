// config.go: settings struct for remix and the functions to load and save it.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/go-remix/internal/errors"
)

//go:embed config.yaml
var configFiles embed.FS

// ConfigEnvVar names the environment variable that points at an explicit config file.
const ConfigEnvVar = "REMIX_CONFIG"

// AudioSettings controls decoding, playback and buffer behaviour.
type AudioSettings struct {
	FfmpegPath       string        // path to ffmpeg, resolved at runtime when empty
	PlayerPath       string        // path to the sox play binary used by debug playback
	DestructiveReads bool          // acquired buffers release frames once sliced
	NativeDecode     bool          // try in-process decoders before ffmpeg
	DecodeGrace      time.Duration // bounded wait for the decode task before fetching analysis
	MaxInputSize     int64         // reject inputs larger than this many bytes, 0 disables
}

// ProviderSettings configures the remote analysis provider.
type ProviderSettings struct {
	BaseURL           string        // provider API root
	APIKey            string        // provider API key
	UserAgent         string        // user agent sent with requests
	Timeout           time.Duration // per request timeout
	RequestsPerSecond float64       // client side rate limit
	RateLimitBackoff  time.Duration // wait after a provider rate limit response
	LookupByDigest    bool          // ask for an existing profile by md5 before uploading
}

// MySQLSettings holds connection settings for the mysql cache backend.
type MySQLSettings struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// CacheSettings selects and configures the analysis cache store.
type CacheSettings struct {
	Type  string        // memory, sqlite, mysql or file
	Path  string        // sqlite database file or cache directory for the file store
	TTL   time.Duration // memory store expiry, 0 keeps entries forever
	MySQL MySQLSettings
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Listen      string    // listen address
	MaxUploadMB int       // request body limit in megabytes
	Log         LogConfig // access log
}

// TelemetrySettings contains settings for error telemetry.
type TelemetrySettings struct {
	Enabled     bool   // true to report errors to Sentry
	DSN         string // Sentry DSN
	Environment string // Sentry environment tag
}

// Settings contains all configuration options for remix.
type Settings struct {
	Debug bool

	Main struct {
		Name  string    // name of the instance, used in logs and telemetry
		Level string    // log level: trace, debug, info, warn, error
		Log   LogConfig // main log file
	}

	Audio     AudioSettings
	Provider  ProviderSettings
	Cache     CacheSettings
	Server    ServerSettings
	Telemetry TelemetrySettings
}

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled  bool         // true to enable this log
	Path     string       // Path to the log file
	Rotation RotationType // Type of log rotation
	MaxSize  int64        // Max size in bytes for RotationSize
	Compress bool         // gzip rotated files
}

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into the settings instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal-config").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults, binds REMIX_ environment variables and reads the config file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("REMIX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if explicit := os.Getenv(ConfigEnvVar); explicit != "" {
		viper.SetConfigFile(explicit)
		if err := viper.ReadInConfig(); err != nil {
			return errors.New(err).
				Category(errors.CategoryConfiguration).
				FileContext(explicit, 0).
				Context("operation", "read-explicit-config").
				Build()
		}
		return nil
	}

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded config.yaml into dir and reads it back.
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Fprintln(os.Stderr, "Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "read-embedded-config").
			Build()
	}
	return data, nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SetSettings replaces the current settings instance.
func SetSettings(s *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = s
}

// Setting returns the current settings instance, loading it on first use.
// When loading fails the defaults are used so that callers always get settings.
func Setting() *Settings {
	once.Do(func() {
		if GetSettings() != nil {
			return
		}
		if _, err := Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading settings, using defaults: %v\n", err)
			SetSettings(DefaultSettings())
		}
	})
	return GetSettings()
}

// DefaultSettings returns settings built from the defaults alone, without
// reading any file or environment.
func DefaultSettings() *Settings {
	v := viper.New()
	setDefaults(v)
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		// defaults are static, a failure here is a programming error
		panic(err)
	}
	return s
}

// YAML renders settings as YAML.
func (s *Settings) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// SaveYAMLConfig writes settings to configPath atomically.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := settings.YAML()
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	return os.Rename(tempFileName, configPath)
}
