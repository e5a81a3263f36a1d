// Package config reads the application configuration from a stoca.yml file,
// the environment and defaults, in that order of precedence.
package config

import (
	"errors"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/wolfsblu/stoca/internal/analyzer"
	"github.com/wolfsblu/stoca/pkg/log"
)

var (
	ErrReadConfig   = errors.New("failed to read config file")
	ErrFormatConfig = errors.New("config file format invalid")
)

type LogConfig struct {
	Level log.Level `mapstructure:"level"`
	// File redirects log output into a file, keeping stdout clean when the
	// follow mode renders tables there.
	File string `mapstructure:"file"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Tracing     bool    `mapstructure:"tracing"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

type FollowConfig struct {
	// PollInterval is the fallback refresh rate for filesystems where
	// change notifications are unreliable, e.g. network shares.
	PollInterval string `mapstructure:"poll_interval"`
}

type Config struct {
	Analysis analyzer.Settings `mapstructure:"analysis"`
	Follow   FollowConfig      `mapstructure:"follow"`
	Log      LogConfig         `mapstructure:"logging"`
	Sentry   SentryConfig      `mapstructure:"sentry"`
}

func setDefaultConfigValues() {
	if home, errHomeDir := homedir.Dir(); errHomeDir == nil {
		viper.AddConfigPath(home)
	}

	viper.AddConfigPath(".")
	viper.SetConfigName("stoca")
	viper.SetConfigType("yml")
	viper.SetEnvPrefix("stoca")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	defaultConfig := map[string]any{
		"analysis.combatlog_file":    "",
		"analysis.start_offset":      0,
		"analysis.combat_separation": "90s",
		"follow.poll_interval":       "5s",
		"logging.level":              "info",
		"logging.file":               "",
		"sentry.enabled":             false,
		"sentry.dsn":                 "",
		"sentry.tracing":             false,
		"sentry.sample_rate":         1.0,
		"sentry.environment":         "production",
	}

	for configKey, value := range defaultConfig {
		viper.SetDefault(configKey, value)
	}
}

// Read loads the configuration. An explicit path overrides the search in
// the home and working directories; a missing file is only an error when a
// path was given explicitly.
func Read(configFile string) (Config, error) {
	viper.Reset()
	setDefaultConfigValues()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	}

	if errReadConfig := viper.ReadInConfig(); errReadConfig != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(errReadConfig, &notFound) {
			return Config{}, errors.Join(errReadConfig, ErrReadConfig)
		}
	}

	var conf Config

	if errUnmarshal := viper.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))); errUnmarshal != nil {
		return Config{}, errors.Join(errUnmarshal, ErrFormatConfig)
	}

	return conf, nil
}
