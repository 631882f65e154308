package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/vioinit/internal/config"
	"github.com/MeKo-Tech/vioinit/internal/version"
)

var (
	// Loader of the most recent GetConfig call.
	configLoader *config.Loader
	// Configuration file path.
	cfgFile string
	// Flags overriding configuration keys.
	flagBindings []flagBinding
)

type flagBinding struct {
	key  string
	flag *pflag.Flag
}

// bindFlag makes the flag named name of fs override the configuration key.
func bindFlag(key string, fs *pflag.FlagSet, name string) {
	f := fs.Lookup(name)
	if f == nil {
		panic(fmt.Sprintf("bind flag %s: no such flag", name))
	}
	flagBindings = append(flagBindings, flagBinding{key: key, flag: f})
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "vioinit",
	Short: "Coarse photometric initializer for monocular visual odometry",
	Long: `vioinit estimates the relative pose, affine brightness change and a sparse
inverse-depth map between a reference image and the frames that follow it, using
direct photometric alignment over an image pyramid.

Examples:
  vioinit synth --out seq --frames 20 --tx 0.01
  vioinit run --config seq/vioinit.yaml seq/*.png
  vioinit config --write vioinit.yaml`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, _ := cmd.Flags().GetBool("version")
		if v {
			ver, commit, date := version.Info()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "vioinit version %s\n", ver)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", commit)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Date: %s\n", date)
			return nil
		}
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $XDG_CONFIG_HOME/vioinit, /etc/vioinit)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.Flags().Bool("version", false, "print version information and exit")

	bindFlag("verbose", rootCmd.PersistentFlags(), "verbose")
	bindFlag("log_level", rootCmd.PersistentFlags(), "log-level")
	bindFlag("log_format", rootCmd.PersistentFlags(), "log-format")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg))
		return nil
	}
}

// newLogger builds the process logger. Logs go to stderr so results on stdout stay parseable.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// GetConfig loads the configuration from file, environment and bound flags and validates it.
// Every call starts from a fresh viper instance.
func GetConfig() (*config.Config, error) {
	v := viper.New()
	for _, b := range flagBindings {
		if err := v.BindPFlag(b.key, b.flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", b.flag.Name, err)
		}
	}
	configLoader = config.NewLoader(v)
	cfg, err := configLoader.LoadWithFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// GetConfigLoader returns the loader of the most recent GetConfig call.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoader(viper.New())
	}
	return configLoader
}
