package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TOOLSHIM_HTTP_ADDR.
const EnvPrefix = "TOOLSHIM"

// FlagKeys maps command-line flag names to config keys.
var FlagKeys = map[string]string{
	"transport":          "server.transport",
	"addr":               "http.addr",
	"token":              "http.token",
	"log-level":          "logging.level",
	"log-format":         "logging.format",
	"log-file":           "logging.file",
	"automation-backend": "automation.backend",
	"timeout":            "dispatch.timeout",
}

// Loader reads configuration with viper.
type Loader struct {
	configPath string
	flags      *pflag.FlagSet
}

// NewLoader creates a loader. configPath may be empty; flags may be nil.
func NewLoader(configPath string, flags *pflag.FlagSet) *Loader {
	return &Loader{configPath: configPath, flags: flags}
}

// Load merges defaults, the config file, environment and flags, in
// increasing precedence, and validates the result.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", l.configPath)
		}
	}

	if l.flags != nil {
		for name, key := range FlagKeys {
			if f := l.flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "bind flag %s", name)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}
