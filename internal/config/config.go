// Package config holds the process settings of chainopt. These configure
// the tool itself (logging, progress rendering, run records) and are
// separate from the chain configuration being optimized.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding settings,
// e.g. CHAINOPT_LOGGER_LEVEL.
const EnvPrefix = "CHAINOPT"

// Settings is the root of the settings tree.
type Settings struct {
	Logger   LoggerConfig   `mapstructure:"logger"`
	Optimize OptimizeConfig `mapstructure:"optimize"`
	Store    StoreConfig    `mapstructure:"store"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	AddSource   bool   `mapstructure:"add_source"`
	ServiceName string `mapstructure:"service_name"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
}

// OptimizeConfig tunes the optimize action.
type OptimizeConfig struct {
	// RenderInterval is how often progress is polled and printed
	RenderInterval time.Duration `mapstructure:"render_interval"`
	// Seed feeds the solver's random source
	Seed int64 `mapstructure:"seed"`
}

// StoreConfig controls run records. An empty Dir disables them.
type StoreConfig struct {
	Dir   string `mapstructure:"dir"`
	Trace bool   `mapstructure:"trace"`
}

// SetDefaults registers the default value of every setting.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "chainopt")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	v.SetDefault("optimize.render_interval", 500*time.Millisecond)
	v.SetDefault("optimize.seed", 42)

	v.SetDefault("store.dir", "")
	v.SetDefault("store.trace", false)
}

// NewDefaultSettings returns settings populated with default values.
func NewDefaultSettings() *Settings {
	v := viper.New()
	SetDefaults(v)

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default settings: %v", err))
	}
	return &s
}

// Load reads settings from file (or ./chainopt.yaml when file is empty and
// it exists) layered over defaults, then applies CHAINOPT_* environment
// overrides.
func Load(v *viper.Viper, file string) (*Settings, error) {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("chainopt")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, fmt.Errorf("error reading settings file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("error unmarshaling settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &s, nil
}

// Validate checks the settings for sane values.
func (s *Settings) Validate() error {
	if s.Optimize.RenderInterval <= 0 {
		return fmt.Errorf("optimize.render_interval must be a positive duration")
	}
	switch s.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be \"console\" or \"json\", got %q", s.Logger.Format)
	}
	if s.Store.Trace && s.Store.Dir == "" {
		return fmt.Errorf("store.trace requires store.dir")
	}
	return nil
}
