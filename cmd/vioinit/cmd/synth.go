package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/vioinit/internal/calib"
	"github.com/MeKo-Tech/vioinit/internal/config"
	"github.com/MeKo-Tech/vioinit/internal/synth"
)

// synthCmd represents the synth command.
var synthCmd = &cobra.Command{
	Use:   "synth --out DIR",
	Short: "Render a synthetic image sequence",
	Long: `Render a textured fronto-parallel plane at unit depth seen by a camera that
translates by a constant step per frame. The first frame is the reference.

A vioinit.yaml holding the matching calibration is written next to the images, so
the sequence can be fed straight back into "vioinit run".

Examples:
  vioinit synth --out seq
  vioinit synth --out seq --frames 30 --tx 0.005 --ty 0.002`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("out")
		n, _ := cmd.Flags().GetInt("frames")
		w, _ := cmd.Flags().GetInt("width")
		h, _ := cmd.Flags().GetInt("height")
		tx, _ := cmd.Flags().GetFloat64("tx")
		ty, _ := cmd.Flags().GetFloat64("ty")
		tz, _ := cmd.Flags().GetFloat64("tz")

		if dir == "" {
			return fmt.Errorf("--out is required")
		}
		if n < 2 {
			return fmt.Errorf("need at least 2 frames, got %d", n)
		}

		scene := synth.NewScene(w, h)
		if err := scene.Calib.Validate(); err != nil {
			return fmt.Errorf("invalid size %dx%d: %w", w, h, err)
		}
		paths, err := scene.WriteSequence(dir, synth.Translations(n, r3.Vector{X: tx, Y: ty, Z: tz}))
		if err != nil {
			return err
		}
		cfgPath := filepath.Join(dir, config.ConfigFileName+".yaml")
		if err := writeCalibration(cfgPath, scene.Calib); err != nil {
			return err
		}

		slog.Info("rendered synthetic sequence", "dir", dir, "frames", len(paths), "config", cfgPath)
		for _, p := range paths {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func writeCalibration(path string, c calib.Calibration) error {
	doc := struct {
		Calibration calib.Calibration `yaml:"calibration"`
	}{c}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode calibration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func init() {
	synthCmd.Flags().String("out", "", "output directory")
	synthCmd.Flags().Int("frames", 20, "number of frames including the reference")
	synthCmd.Flags().Int("width", 320, "image width")
	synthCmd.Flags().Int("height", 240, "image height")
	synthCmd.Flags().Float64("tx", 0.01, "camera translation per frame along x")
	synthCmd.Flags().Float64("ty", 0, "camera translation per frame along y")
	synthCmd.Flags().Float64("tz", 0, "camera translation per frame along z")
	rootCmd.AddCommand(synthCmd)
}
