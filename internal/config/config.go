// Package config loads the engine settings that are not part of a job
// description: where the journal lives, how the tile packer and renderer
// behave, and how the process logs.
//
// Settings come from defaults, an optional YAML file and BAKEGRID_* environment
// variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, for example
// BAKEGRID_JOURNAL_DIR.
const EnvPrefix = "BAKEGRID"

type Config struct {
	Journal JournalConfig
	Cleanup CleanupConfig
	UDIM    UDIMConfig
	Render  RenderConfig
	Log     LogConfig
}

type JournalConfig struct {
	Dir    string `validate:"required"`
	Retain int    `validate:"gte=0"`
}

type CleanupConfig struct {
	AuditLog string
}

type UDIMConfig struct {
	OutlierBound float64 `validate:"gt=0"`
	LayerLimit   int     `validate:"gte=1"`
}

type RenderConfig struct {
	Timeout time.Duration `validate:"gte=0"`
	Samples int           `validate:"gte=1"`
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=text json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("journal.dir", ".bakegrid/journal")
	v.SetDefault("journal.retain", 20)
	v.SetDefault("cleanup.audit_log", ".bakegrid/cleanup.log")
	v.SetDefault("udim.outlier_bound", 100.0)
	v.SetDefault("udim.layer_limit", 8)
	v.SetDefault("render.timeout", "10m")
	v.SetDefault("render.samples", 16)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration. path names a YAML file; when it is empty,
// config.yaml is looked up in the working directory and ./config and is
// optional.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{
		Journal: JournalConfig{
			Dir:    v.GetString("journal.dir"),
			Retain: v.GetInt("journal.retain"),
		},
		Cleanup: CleanupConfig{
			AuditLog: v.GetString("cleanup.audit_log"),
		},
		UDIM: UDIMConfig{
			OutlierBound: v.GetFloat64("udim.outlier_bound"),
			LayerLimit:   v.GetInt("udim.layer_limit"),
		},
		Render: RenderConfig{
			Timeout: v.GetDuration("render.timeout"),
			Samples: v.GetInt("render.samples"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
