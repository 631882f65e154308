package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.uber.org/multierr"

	"github.com/MeKo-Tech/vioinit/internal/calib"
	"github.com/MeKo-Tech/vioinit/internal/initializer"
	"github.com/MeKo-Tech/vioinit/internal/output"
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

// DefaultCalibration returns intrinsics for a 640×480 camera with a 60° horizontal field of view.
func DefaultCalibration() calib.Calibration {
	return calib.Calibration{
		Width:  640,
		Height: 480,
		Fx:     554.256,
		Fy:     554.256,
		Cx:     319.5,
		Cy:     239.5,
	}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:    "info",
		LogFormat:   "text",
		Calibration: DefaultCalibration(),
		Initializer: initializer.DefaultOptions(),
		Output: OutputConfig{
			Format: output.FormatText,
		},
	}
}

// Validate validates the configuration and returns every problem found.
func (c *Config) Validate() error {
	var err error

	if !slices.Contains(validLogLevels, c.LogLevel) {
		err = multierr.Append(err, fmt.Errorf("invalid log level: %s (must be one of: %s)",
			c.LogLevel, strings.Join(validLogLevels, ", ")))
	}
	if c.LogFormat != "" && !slices.Contains(validLogFormats, c.LogFormat) {
		err = multierr.Append(err, fmt.Errorf("invalid log format: %s (must be one of: %s)",
			c.LogFormat, strings.Join(validLogFormats, ", ")))
	}
	if c.Output.Format != "" && !slices.Contains(output.Formats, c.Output.Format) {
		err = multierr.Append(err, fmt.Errorf("invalid output format: %s (must be one of: %s)",
			c.Output.Format, strings.Join(output.Formats, ", ")))
	}
	if e := c.Calibration.Validate(); e != nil {
		err = multierr.Append(err, fmt.Errorf("calibration: %w", e))
	}
	if e := c.Initializer.Validate(); e != nil {
		err = multierr.Append(err, fmt.Errorf("initializer: %w", e))
	}
	return err
}

// SlogLevel maps LogLevel to a slog level; Verbose forces debug.
func (c *Config) SlogLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
