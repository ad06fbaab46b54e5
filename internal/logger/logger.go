// Package logger builds the zerolog logger used by the command line.
package logger

import (
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var ErrInvalidFormat = errors.New("invalid log format")

// Config contains logging configuration.
type Config struct {
	Level   string `mapstructure:"level" validate:"oneof=trace debug info warn error disabled"`
	Format  string `mapstructure:"format" validate:"oneof=console json"`
	NoColor bool   `mapstructure:"no_color"`
}

// DefaultConfig logs info and above in a human readable form.
func DefaultConfig() Config {
	return Config{
		Level:  zerolog.InfoLevel.String(),
		Format: FormatConsole,
	}
}

// New creates a logger writing to wrt.
func New(cfg Config, wrt io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), errors.Wrapf(err, "unable to parse log level %q", cfg.Level)
	}

	var zl zerolog.Logger

	switch strings.ToLower(cfg.Format) {
	case FormatConsole, "":
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        wrt,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
		})
	case FormatJSON:
		zl = zerolog.New(wrt)
	default:
		return zerolog.Nop(), errors.Wrapf(ErrInvalidFormat, "%q", cfg.Format)
	}

	return zl.Level(level).With().Timestamp().Logger(), nil
}
