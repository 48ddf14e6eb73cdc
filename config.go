package scripting

import (
	"errors"
	"os"
	"strconv"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/env"
)

const (
	// EnvPrefix prefixes every environment variable read by the provider.
	EnvPrefix = "SCRIPTING_"

	// CompatModeEnv controls the compatibility mode of the JavaScript engine.
	// Users can force non compat mode with SCRIPTING_JS_COMPAT=false.
	CompatModeEnv = EnvPrefix + configKeyCompat

	// DefaultCompatMode applies when CompatModeEnv is unset.
	DefaultCompatMode = true

	configKeyCompat   = "JS_COMPAT"
	configKeyLogLevel = "LOG_LEVEL"
)

// Config is the provider configuration read from SCRIPTING_* environment variables.
type Config struct {
	// JSCompat is the raw value of SCRIPTING_JS_COMPAT; empty when unset.
	JSCompat string
	// LogLevel is a kratos level name (debug, info, warn, error).
	LogLevel string
}

// LoadConfig reads the configuration through a kratos env source.
func LoadConfig() (*Config, error) {
	c := config.New(config.WithSource(env.NewSource(EnvPrefix)))
	defer func() { _ = c.Close() }()

	if err := c.Load(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var err error
	if cfg.JSCompat, err = lookupString(c, configKeyCompat); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = lookupString(c, configKeyLogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func lookupString(c config.Config, key string) (string, error) {
	v, err := c.Value(key).String()
	if errors.Is(err, config.ErrNotFound) {
		return "", nil
	}
	return v, err
}

// CompatMode parses JSCompat. ok is false when the value is not a boolean; callers
// then apply DefaultCompatMode without rewriting the setting.
func (c *Config) CompatMode() (enabled bool, ok bool) {
	if c.JSCompat == "" {
		return DefaultCompatMode, true
	}
	v, err := strconv.ParseBool(c.JSCompat)
	if err != nil {
		return DefaultCompatMode, false
	}
	return v, true
}

// ensureCompatDefault sets CompatModeEnv to its default unless the caller set it,
// whatever the value.
func ensureCompatDefault() error {
	if _, ok := os.LookupEnv(CompatModeEnv); ok {
		return nil
	}
	return os.Setenv(CompatModeEnv, strconv.FormatBool(DefaultCompatMode))
}
