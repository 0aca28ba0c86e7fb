// conf/validate.go settings validation
package conf

import (
	"net/url"

	"github.com/tphakala/go-remix/internal/errors"
)

// ValidateSettings checks the loaded settings for values that would make the
// pipeline misbehave. All problems are reported together.
func ValidateSettings(s *Settings) error {
	var errs []error

	if s.Audio.DecodeGrace < 0 {
		errs = append(errs, validationError("audio.decodegrace", "must not be negative"))
	}
	if s.Audio.MaxInputSize < 0 {
		errs = append(errs, validationError("audio.maxinputsize", "must not be negative"))
	}

	if s.Provider.BaseURL == "" {
		errs = append(errs, validationError("provider.baseurl", "must be set"))
	} else if u, err := url.Parse(s.Provider.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, validationError("provider.baseurl", "must be an absolute URL"))
	}
	if s.Provider.Timeout < 0 {
		errs = append(errs, validationError("provider.timeout", "must not be negative"))
	}
	if s.Provider.RateLimitBackoff < 0 {
		errs = append(errs, validationError("provider.ratelimitbackoff", "must not be negative"))
	}
	if s.Provider.RequestsPerSecond <= 0 {
		errs = append(errs, validationError("provider.requestspersecond", "must be positive"))
	}

	switch s.Cache.Type {
	case CacheMemory, CacheSQLite, CacheMySQL, CacheFile:
	default:
		errs = append(errs, validationError("cache.type", "must be memory, sqlite, mysql or file"))
	}
	if (s.Cache.Type == CacheSQLite || s.Cache.Type == CacheFile) && s.Cache.Path == "" {
		errs = append(errs, validationError("cache.path", "must be set for sqlite and file caches"))
	}
	if s.Cache.TTL < 0 {
		errs = append(errs, validationError("cache.ttl", "must not be negative"))
	}

	if s.Telemetry.Enabled && s.Telemetry.DSN == "" {
		errs = append(errs, validationError("telemetry.dsn", "must be set when telemetry is enabled"))
	}

	return errors.Join(errs...)
}

func validationError(key, msg string) error {
	return errors.Newf("%s %s", key, msg).
		Category(errors.CategoryValidation).
		Context("key", key).
		Build()
}
