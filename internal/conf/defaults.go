// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig applies defaults to the global viper instance.
func setDefaultConfig() {
	setDefaults(viper.GetViper())
}

// setDefaults sets default values for every configuration key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.name", "remix")
	v.SetDefault("main.level", "info")
	v.SetDefault("main.log.enabled", false)
	v.SetDefault("main.log.path", "logs/remix.log")
	v.SetDefault("main.log.rotation", RotationDaily)
	v.SetDefault("main.log.maxsize", 10485760)
	v.SetDefault("main.log.compress", false)

	v.SetDefault("audio.ffmpegpath", "")
	v.SetDefault("audio.playerpath", "play")
	v.SetDefault("audio.destructivereads", true)
	v.SetDefault("audio.nativedecode", true)
	v.SetDefault("audio.decodegrace", DefaultDecodeGrace)
	v.SetDefault("audio.maxinputsize", 200*1024*1024)

	v.SetDefault("provider.baseurl", "https://developer.echonest.com/api/v4")
	v.SetDefault("provider.apikey", "")
	v.SetDefault("provider.useragent", "") // empty sends remix/<version>
	v.SetDefault("provider.timeout", 60*time.Second)
	v.SetDefault("provider.requestspersecond", 2.0)
	v.SetDefault("provider.ratelimitbackoff", DefaultRateLimitBackoff)
	v.SetDefault("provider.lookupbydigest", true)

	v.SetDefault("cache.type", "sqlite")
	v.SetDefault("cache.path", "remix-cache.db")
	v.SetDefault("cache.ttl", time.Duration(0))
	v.SetDefault("cache.mysql.host", "localhost")
	v.SetDefault("cache.mysql.port", "3306")
	v.SetDefault("cache.mysql.username", "")
	v.SetDefault("cache.mysql.password", "")
	v.SetDefault("cache.mysql.database", "remix")

	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.maxuploadmb", 100)
	v.SetDefault("server.log.enabled", false)
	v.SetDefault("server.log.path", "logs/server.log")
	v.SetDefault("server.log.rotation", RotationDaily)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")
	v.SetDefault("telemetry.environment", "production")
}
