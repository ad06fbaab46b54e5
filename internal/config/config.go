// Package config loads the command line settings from flags, PIPEDEF_ environment
// variables and an optional configuration file, in that order of precedence.
package config

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/askiada/pipedef/internal/logger"
)

const (
	EnvPrefix = "PIPEDEF"

	defaultConcurrency = 4
	defaultOutput      = "yaml"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the command line settings.
type Config struct {
	Log         logger.Config `mapstructure:"log"`
	Concurrency int           `mapstructure:"concurrency" validate:"gte=1"`
	Output      string        `mapstructure:"output" validate:"oneof=yaml json"`
}

// Flags registers the configuration flags on fs.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a configuration file")
	fs.String("log-level", "", "log level (trace, debug, info, warn, error, disabled)")
	fs.String("log-format", "", "log format (console, json)")
	fs.Bool("log-no-color", false, "disable colours in console logs")
	fs.Int("concurrency", 0, "number of pipeline files decoded at the same time")
	fs.StringP("output", "o", "", "export format (yaml, json)")
}

var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"log-no-color": "log.no_color",
	"concurrency":  "concurrency",
	"output":       "output",
}

// Load resolves the configuration. Only flags explicitly set on fs override the
// environment and the configuration file.
func Load(fs *pflag.FlagSet) (Config, error) {
	vpr := viper.New()

	def := logger.DefaultConfig()
	vpr.SetDefault("log.level", def.Level)
	vpr.SetDefault("log.format", def.Format)
	vpr.SetDefault("log.no_color", def.NoColor)
	vpr.SetDefault("concurrency", defaultConcurrency)
	vpr.SetDefault("output", defaultOutput)

	vpr.SetEnvPrefix(EnvPrefix)
	vpr.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	vpr.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			flag := fs.Lookup(name)
			if flag == nil || !flag.Changed {
				continue
			}

			err := vpr.BindPFlag(key, flag)
			if err != nil {
				return Config{}, errors.Wrapf(err, "unable to bind flag %s", name)
			}
		}

		if flag := fs.Lookup("config"); flag != nil && flag.Value.String() != "" {
			vpr.SetConfigFile(flag.Value.String())

			err := vpr.ReadInConfig()
			if err != nil {
				return Config{}, errors.Wrapf(err, "unable to read config file %s", flag.Value.String())
			}
		}
	}

	var cfg Config

	err := vpr.Unmarshal(&cfg)
	if err != nil {
		return Config{}, errors.Wrap(err, "unable to decode configuration")
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks the values of cfg.
func (c Config) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})

	err := validate.Struct(c)
	if err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%s", err.Error())
	}

	return nil
}
