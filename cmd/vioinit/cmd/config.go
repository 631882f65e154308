package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/vioinit/internal/config"
)

// configCmd represents the config command.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or write the configuration",
	Long: `Print the resolved configuration (defaults, config file, environment and flags)
as YAML, or write a file holding every default with --write.

Examples:
  vioinit config
  vioinit config --write vioinit.yaml
  VIOINIT_INITIALIZER_ALPHA_K=4 vioinit config`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("write")
		if path != "" {
			if err := config.GenerateDefaultConfigFile(path); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote default configuration to %s\n", path)
			return nil
		}

		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if used := GetConfigLoader().GetConfigFileUsed(); used != "" {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", used)
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	},
}

func init() {
	configCmd.Flags().String("write", "", "write a default configuration file to this path")
	rootCmd.AddCommand(configCmd)
}
