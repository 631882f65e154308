package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "vioinit"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "VIOINIT"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a configuration loader on v. Flags bound to v take precedence over
// the config file and environment.
func NewLoader(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load loads configuration from files, environment variables, and defaults, then validates it.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithFile loads configuration from a specific file path. An empty path searches
// the standard locations.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	config, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// LoadWithFileWithoutValidation loads configuration from a specific file path without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	l.setupEnvironmentVariables()
	l.setDefaults()

	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()

		if err := l.v.ReadInConfig(); err != nil {
			// A missing config file is fine; defaults and env vars still apply.
			var configFileNotFoundError viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFoundError) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables configures environment variable handling.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	// initializer.alpha_k is read from VIOINIT_INITIALIZER_ALPHA_K
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	// Global settings
	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("log_format", defaults.LogFormat)
	l.v.SetDefault("verbose", defaults.Verbose)

	// Calibration defaults
	c := defaults.Calibration
	l.v.SetDefault("calibration.width", c.Width)
	l.v.SetDefault("calibration.height", c.Height)
	l.v.SetDefault("calibration.fx", c.Fx)
	l.v.SetDefault("calibration.fy", c.Fy)
	l.v.SetDefault("calibration.cx", c.Cx)
	l.v.SetDefault("calibration.cy", c.Cy)

	// Initializer defaults
	o := defaults.Initializer
	l.v.SetDefault("initializer.levels", o.Levels)
	l.v.SetDefault("initializer.densities", o.Densities)
	l.v.SetDefault("initializer.max_iterations", o.MaxIterations)
	l.v.SetDefault("initializer.alpha_k", o.AlphaK)
	l.v.SetDefault("initializer.alpha_w", o.AlphaW)
	l.v.SetDefault("initializer.reg_weight", o.RegWeight)
	l.v.SetDefault("initializer.coupling_weight", o.CouplingWeight)
	l.v.SetDefault("initializer.huber_th", o.HuberTH)
	l.v.SetDefault("initializer.outlier_th", o.OutlierTH)
	l.v.SetDefault("initializer.zero_prior_x", o.ZeroPriorX)
	l.v.SetDefault("initializer.zero_prior_y", o.ZeroPriorY)
	l.v.SetDefault("initializer.scale_rot", o.ScaleRot)
	l.v.SetDefault("initializer.scale_trans", o.ScaleTrans)
	l.v.SetDefault("initializer.scale_a", o.ScaleA)
	l.v.SetDefault("initializer.scale_b", o.ScaleB)
	l.v.SetDefault("initializer.fix_affine", o.FixAffine)
	l.v.SetDefault("initializer.snap_hysteresis", o.SnapHysteresis)
	l.v.SetDefault("initializer.workers", o.Workers)
	l.v.SetDefault("initializer.chunk_size", o.ChunkSize)
	l.v.SetDefault("initializer.neighbours", o.Neighbours)
	l.v.SetDefault("initializer.neighbour_weight_sum", o.NeighbourWeightSum)
	l.v.SetDefault("initializer.nn_dist_factor", o.NNDistFactor)
	l.v.SetDefault("initializer.parent_hessian_floor", o.ParentHessianFloor)
	l.v.SetDefault("initializer.max_pixel_step", o.MaxPixelStep)
	l.v.SetDefault("initializer.print_debug", o.PrintDebug)

	// Output defaults
	l.v.SetDefault("output.format", defaults.Output.Format)
	l.v.SetDefault("output.file", defaults.Output.File)
	l.v.SetDefault("output.depth_dir", defaults.Output.DepthDir)
	l.v.SetDefault("output.points", defaults.Output.Points)

	// Metrics defaults
	l.v.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]any {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes a configuration file holding every default.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoader(viper.New())
	loader.setDefaults()

	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	paths = append(paths, filepath.Join("/etc", ConfigFileName))

	return paths
}
