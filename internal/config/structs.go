//nolint:lll
package config

import (
	"github.com/MeKo-Tech/vioinit/internal/calib"
	"github.com/MeKo-Tech/vioinit/internal/initializer"
)

// Config represents the complete configuration of the vioinit application.
// It supports loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format" json:"log_format"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Camera intrinsics of the input images
	Calibration calib.Calibration `mapstructure:"calibration" yaml:"calibration" json:"calibration"`

	// Initializer tuning
	Initializer initializer.Options `mapstructure:"initializer" yaml:"initializer" json:"initializer"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Metrics endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format   string `mapstructure:"format" yaml:"format" json:"format"`
	File     string `mapstructure:"file" yaml:"file" json:"file"`
	DepthDir string `mapstructure:"depth_dir" yaml:"depth_dir" json:"depth_dir"`
	Points   bool   `mapstructure:"points" yaml:"points" json:"points"`
}

// MetricsConfig contains the Prometheus endpoint settings. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr"`
}
