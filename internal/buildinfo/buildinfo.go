// Package buildinfo holds build-time metadata injected with -ldflags.
package buildinfo

import "fmt"

// Set at build time:
//
//	go build -ldflags "-X github.com/tphakala/go-remix/internal/buildinfo.Version=v1.2.0"
var (
	Version   = ""
	BuildDate = ""
)

const unknown = "unknown"

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	Version   string
	BuildDate string
}

// Current returns the metadata of the running binary.
func Current() *Context {
	return &Context{Version: Version, BuildDate: BuildDate}
}

// GetVersion returns the version, or "unknown" for development builds.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return unknown
	}
	return c.Version
}

// GetBuildDate returns the build date, or "unknown".
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return unknown
	}
	return c.BuildDate
}

// String formats the metadata for --version output.
func (c *Context) String() string {
	return fmt.Sprintf("%s (built %s)", c.GetVersion(), c.GetBuildDate())
}

// UserAgent is the User-Agent sent to the analysis provider.
func (c *Context) UserAgent() string {
	v := c.GetVersion()
	if v == unknown {
		v = "dev"
	}
	return "remix/" + v
}
