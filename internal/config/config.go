// Package config loads toolshim-mcp settings from defaults, an optional
// config file, TOOLSHIM_* environment variables and command-line flags.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Automation AutomationConfig `mapstructure:"automation"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// ServerConfig selects how the server is exposed.
type ServerConfig struct {
	Name      string `mapstructure:"name" validate:"required"`
	Version   string `mapstructure:"version"`
	Transport string `mapstructure:"transport" validate:"oneof=stdio http"`
	// ShutdownTimeout bounds Stop.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Addr           string        `mapstructure:"addr" validate:"required"`
	Token          string        `mapstructure:"token"`
	TLSCertFile    string        `mapstructure:"tls_cert_file" validate:"required_with=TLSKeyFile"`
	TLSKeyFile     string        `mapstructure:"tls_key_file" validate:"required_with=TLSCertFile"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
	WebSocket      bool          `mapstructure:"websocket"`
	Stream         bool          `mapstructure:"stream"`
	Metrics        bool          `mapstructure:"metrics"`
}

// DispatchConfig tunes tool invocation.
type DispatchConfig struct {
	// Timeout bounds each invocation. Zero means none.
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
	// CacheTTL enables result caching for pure tools. Zero disables it.
	CacheTTL      time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
}

// AutomationConfig selects the automation backend.
type AutomationConfig struct {
	Backend string        `mapstructure:"backend" validate:"oneof=none rod"`
	Pause   time.Duration `mapstructure:"pause" validate:"gte=0"`
	Rod     RodConfig     `mapstructure:"rod"`
}

// RodConfig configures the browser backend.
type RodConfig struct {
	Bin       string `mapstructure:"bin"`
	Headless  bool   `mapstructure:"headless"`
	NoSandbox bool   `mapstructure:"no_sandbox"`
	Width     int    `mapstructure:"width" validate:"gt=0"`
	Height    int    `mapstructure:"height" validate:"gt=0"`
	URL       string `mapstructure:"url"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	File   string `mapstructure:"file"`
}

// TracingConfig toggles OpenTelemetry spans.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var defaults = map[string]any{
	"server.name":             "toolshim-mcp",
	"server.version":          "dev",
	"server.transport":        "stdio",
	"server.shutdown_timeout": "10s",

	"http.addr":            ":3000",
	"http.token":           "",
	"http.tls_cert_file":   "",
	"http.tls_key_file":    "",
	"http.request_timeout": "60s",
	"http.websocket":       true,
	"http.stream":          true,
	"http.metrics":         true,

	"dispatch.timeout":        "0s",
	"dispatch.cache_ttl":      "5m",
	"dispatch.sweep_schedule": "@every 1m",

	"automation.backend":        "none",
	"automation.pause":          "50ms",
	"automation.rod.bin":        "",
	"automation.rod.headless":   true,
	"automation.rod.no_sandbox": false,
	"automation.rod.width":      1280,
	"automation.rod.height":     800,
	"automation.rod.url":        "about:blank",

	"logging.level":  "info",
	"logging.format": "json",
	"logging.file":   "",

	"tracing.enabled": false,
}
