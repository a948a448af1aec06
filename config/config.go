// Package config holds the small set of recognized configuration keys the
// controller and log panel read at startup, following the
// Config/NewConfig("struct of overridable knobs, constructor fills in
// defaults") shape used for the same purpose elsewhere in the pack.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config is the recognized subset of configuration from spec.md §6. Zero
// value is usable; NewConfig fills in the defaults a caller would otherwise
// have to remember.
type Config struct {
	// FeaturesPathPrefix is the raw, unvalidated "features.pathPrefix"
	// value. Use PathPrefix() for the validated accessor.
	FeaturesPathPrefix string

	// LogTorCtlPortClosed is the severity at which control-port closure
	// is reported.
	LogTorCtlPortClosed slog.Level

	// LogTorGetInfo and LogTorGetConf are the severities for per-query
	// tracing of GETINFO and GETCONF calls respectively.
	LogTorGetInfo slog.Level
	LogTorGetConf slog.Level

	// LogTorPrefixPathInvalid is the severity logged when
	// FeaturesPathPrefix fails validation and is blanked.
	LogTorPrefixPathInvalid slog.Level

	// TimeNow substitutes for time.Now, so tests can control wall-clock
	// reads of lastHeartbeat and status timestamps without sleeping.
	TimeNow func() time.Time

	// Logger receives all of the above severities. Defaults to
	// slog.Default() when nil, matching the fallback behavior of the
	// teacher's connect.LogWriter for code running outside of its
	// framework.
	Logger *slog.Logger

	// Stat is used to validate FeaturesPathPrefix. Overridable for tests
	// that want to exercise the invalid-prefix path without touching a
	// real filesystem.
	Stat func(path string) (os.FileInfo, error)

	pathPrefix    string
	pathPrefixSet bool
}

// NewConfig returns a Config with every field defaulted: debug-level
// tracing for GETINFO/GETCONF, warn for port closure, notice-equivalent
// (slog has no NOTICE, so info is used) for an invalid prefix, the real
// wall clock, the default logger, and the real filesystem.
func NewConfig() *Config {
	return &Config{
		LogTorCtlPortClosed:     slog.LevelWarn,
		LogTorGetInfo:           slog.LevelDebug,
		LogTorGetConf:           slog.LevelDebug,
		LogTorPrefixPathInvalid: slog.LevelInfo,
		TimeNow:                 time.Now,
		Logger:                  slog.Default(),
		Stat:                    os.Stat,
	}
}

// PathPrefix validates FeaturesPathPrefix on first use (existence check,
// trailing slash stripped) and caches the result, matching the original
// loadConfig's "validated once at load" behavior. An invalid prefix is
// logged at LogTorPrefixPathInvalid and yields ""; an unset one yields ""
// without logging.
func (c *Config) PathPrefix() string {
	if c.pathPrefixSet {
		return c.pathPrefix
	}
	c.pathPrefixSet = true

	prefix := strings.TrimRight(c.FeaturesPathPrefix, "/")
	if prefix == "" {
		c.pathPrefix = ""
		return ""
	}

	stat := c.Stat
	if stat == nil {
		stat = os.Stat
	}
	if _, err := stat(prefix); err != nil {
		c.logger().Log(nil, c.LogTorPrefixPathInvalid, "configured path prefix does not exist, ignoring", "prefix", prefix, "error", err)
		c.pathPrefix = ""
		return ""
	}

	c.pathPrefix = prefix
	return prefix
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Config) now() time.Time {
	if c.TimeNow != nil {
		return c.TimeNow()
	}
	return time.Now()
}

// Now returns the current time per TimeNow, defaulting to the real clock.
func (c *Config) Now() time.Time {
	return c.now()
}
