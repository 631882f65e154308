package cmd

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/vioinit/internal/benchmark"
)

// benchCmd represents the bench command.
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure tracking latency on a synthetic sequence",
	Long: `Render a synthetic translation sequence in memory, track every frame with the
configured initializer options and report per-frame latency and allocation.

Examples:
  vioinit bench
  vioinit bench --frames 50 --width 640 --height 480
  VIOINIT_INITIALIZER_WORKERS=4 vioinit bench --runs 3`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		runs, _ := cmd.Flags().GetInt("runs")
		sc := benchmark.DefaultScenario()
		sc.Frames, _ = cmd.Flags().GetInt("frames")
		sc.Width, _ = cmd.Flags().GetInt("width")
		sc.Height, _ = cmd.Flags().GetInt("height")
		tx, _ := cmd.Flags().GetFloat64("tx")
		sc.Step = r3.Vector{X: tx}
		sc.Options = cfg.Initializer

		for i := range runs {
			res, err := benchmark.Run(cmd.Context(), sc)
			if err != nil {
				return fmt.Errorf("run %d: %w", i+1, err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.String())
		}
		return nil
	},
}

func init() {
	benchCmd.Flags().Int("runs", 1, "number of repetitions")
	benchCmd.Flags().Int("frames", 20, "frames per run including the reference")
	benchCmd.Flags().Int("width", 320, "image width")
	benchCmd.Flags().Int("height", 240, "image height")
	benchCmd.Flags().Float64("tx", 0.01, "camera translation per frame along x")
	rootCmd.AddCommand(benchCmd)
}
