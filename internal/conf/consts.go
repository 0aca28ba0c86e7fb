// conf/consts.go hard coded constants
package conf

import "time"

const (
	SampleRate  = 44100 // Sample rate of every canonical buffer
	BitDepth    = 16    // Bit depth of every canonical buffer
	NumChannels = 2     // Number of channels of every canonical buffer

	DefaultDecodeGrace      = 200 * time.Millisecond // bounded join on the decode task
	DefaultRateLimitBackoff = 10 * time.Second       // provider rate limit wait
)

// Cache store types
const (
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheMySQL  = "mysql"
	CacheFile   = "file"
)
