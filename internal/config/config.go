package config

import (
	"fmt"
	"strings"
)

// Config carries the runtime knobs shared by the CLI and the server
// daemon. Zero values mean "feature off" where a feature is optional:
// an empty EventsAddr selects the no-op sink, an empty APIKey disables
// request authentication, a zero MaxOpsPerCall lifts the per-call budget.
type Config struct {
	ModelPath string

	// ModelName labels emitted events. Left empty it is filled from the
	// loaded manifest's name.
	ModelName string

	LogLevel  string
	LogFormat string

	ListenAddr  string
	MetricsAddr string

	APIKey         string
	AllowedOrigins []string

	EventsAddr string

	// MaxOpsPerCall bounds the signed multiplies a single engine call may
	// perform. Calls that would exceed it fail before computing anything.
	MaxOpsPerCall uint64
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %q (must be debug, info, warn or error)", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log_format: %q (must be console or json)", c.LogFormat)
	}
	if c.ListenAddr != "" && !strings.Contains(c.ListenAddr, ":") {
		return fmt.Errorf("invalid listen_addr: %q (must be host:port)", c.ListenAddr)
	}
	if c.MetricsAddr != "" && !strings.Contains(c.MetricsAddr, ":") {
		return fmt.Errorf("invalid metrics_addr: %q (must be host:port)", c.MetricsAddr)
	}
	if c.EventsAddr != "" && !strings.Contains(c.EventsAddr, ":") {
		return fmt.Errorf("invalid events_addr: %q (must be host:port)", c.EventsAddr)
	}
	return nil
}

// EventsEnabled reports whether an event sink address is configured.
func (c *Config) EventsEnabled() bool {
	return c.EventsAddr != ""
}

// AuthEnabled reports whether API requests must carry a key.
func (c *Config) AuthEnabled() bool {
	return c.APIKey != ""
}

func Default() Config {
	return Config{
		LogLevel:    "info",
		LogFormat:   "console",
		ListenAddr:  ":8080",
		MetricsAddr: ":9090",
	}
}

// ParseOrigins splits a comma-separated origin list, dropping empties.
func ParseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
