package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/vioinit/internal/config"
	"github.com/MeKo-Tech/vioinit/internal/frame"
	"github.com/MeKo-Tech/vioinit/internal/initializer"
	"github.com/MeKo-Tech/vioinit/internal/metrics"
	"github.com/MeKo-Tech/vioinit/internal/output"
)

// runCmd represents the run command.
var runCmd = &cobra.Command{
	Use:   "run [flags] IMAGE...",
	Short: "Initialize from an image sequence",
	Long: `Use the first image as the reference frame and track the following images
until the initializer reports success or the input is exhausted, then print the
estimated pose, affine brightness pair and depth summary.

Images are converted to grayscale and resized to the calibration size.

Examples:
  vioinit run frame_*.png
  vioinit run --format json --depth-dir debug frame_*.png
  vioinit run --exposure 10,10,12 a.png b.png c.png`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		exposures, err := cmd.Flags().GetFloat64Slice("exposure")
		if err != nil {
			return err
		}
		if len(exposures) > 0 && len(exposures) != len(args) {
			return fmt.Errorf("got %d exposures for %d images", len(exposures), len(args))
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		if cfg.Metrics.Addr != "" {
			stop := serveMetrics(ctx, cfg.Metrics.Addr)
			defer stop()
		}

		res, err := initialize(cfg, args, exposures, slog.Default())
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), cfg.Output, res)
	},
}

// initialize runs the initializer over paths and returns its hand-off state.
func initialize(cfg *config.Config, paths []string, exposures []float64, logger *slog.Logger) (*output.Result, error) {
	opts := cfg.Initializer
	opts.Logger = logger

	var sinks []output.Sink
	var pngSink *output.PNGSink
	if cfg.Output.DepthDir != "" {
		var err error
		pngSink, err = output.NewPNGSink(cfg.Output.DepthDir, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, pngSink)
	}

	in, err := initializer.New(opts, sinks...)
	if err != nil {
		return nil, fmt.Errorf("create initializer: %w", err)
	}

	exposure := func(i int) float64 {
		if len(exposures) == 0 {
			return 0
		}
		return exposures[i]
	}

	first, err := loadFrame(paths[0], cfg, exposure(0))
	if err != nil {
		return nil, err
	}
	if err := in.SetFirst(cfg.Calibration, first); err != nil {
		return nil, fmt.Errorf("set reference frame: %w", err)
	}

	start := time.Now()
	ready := false
	for i := 1; i < len(paths) && !ready; i++ {
		f, err := loadFrame(paths[i], cfg, exposure(i))
		if err != nil {
			return nil, err
		}
		ready, err = in.TrackFrame(f)
		if err != nil {
			return nil, fmt.Errorf("track %s: %w", paths[i], err)
		}
		stats := in.LastStats()
		logger.Info("tracked frame",
			"path", paths[i],
			"frame", stats.Frame,
			"snapped", stats.Snapped,
			"ready", stats.Ready,
			"duration", stats.Duration)
	}

	if !ready {
		logger.Warn("input exhausted before initialization succeeded",
			"frames", len(paths), "snapped", in.Snapped())
	} else {
		logger.Info("initialization succeeded",
			"frames", in.FrameID(), "elapsed", time.Since(start), "rescale", in.Rescale())
	}

	if pngSink != nil {
		if err := pngSink.Err(); err != nil {
			return nil, err
		}
		logger.Debug("depth images written", "dir", cfg.Output.DepthDir, "count", pngSink.Written())
	}

	return in.Result(cfg.Output.Points)
}

func loadFrame(path string, cfg *config.Config, exposure float64) (*frame.Frame, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	f, err := frame.FromImage(img, cfg.Calibration.Width, cfg.Calibration.Height, cfg.Initializer.Levels, exposure)
	if err != nil {
		return nil, fmt.Errorf("convert image %s: %w", path, err)
	}
	return f, nil
}

func writeResult(stdout io.Writer, out config.OutputConfig, res *output.Result) error {
	if out.File == "" {
		return output.Encode(stdout, res, out.Format)
	}
	f, err := os.Create(out.File)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := output.Encode(f, res, out.Format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// serveMetrics exposes the Prometheus registry on addr until the returned stop
// function is called or ctx ends.
func serveMetrics(ctx context.Context, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", output.FormatText, "output format (text, json, yaml)")
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	cmd.Flags().Bool("points", false, "include the finest-level points in the result")
	cmd.Flags().String("depth-dir", "", "directory to write debug depth images")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	cmd.Flags().Float64Slice("exposure", nil, "exposure time per image, seeds the affine brightness model")

	defaults := config.DefaultCalibration()
	cmd.Flags().Int("calib-width", defaults.Width, "calibrated image width")
	cmd.Flags().Int("calib-height", defaults.Height, "calibrated image height")
	cmd.Flags().Float64("calib-fx", defaults.Fx, "focal length x in pixels")
	cmd.Flags().Float64("calib-fy", defaults.Fy, "focal length y in pixels")
	cmd.Flags().Float64("calib-cx", defaults.Cx, "principal point x")
	cmd.Flags().Float64("calib-cy", defaults.Cy, "principal point y")

	opts := initializer.DefaultOptions()
	cmd.Flags().Int("levels", opts.Levels, "pyramid levels")
	cmd.Flags().Int("workers", opts.Workers, "reduction workers (0 = GOMAXPROCS)")
	cmd.Flags().Int("snap-hysteresis", opts.SnapHysteresis, "frames required after snapping")
	cmd.Flags().Bool("print-debug", opts.PrintDebug, "log every optimizer iteration at debug level")
}

func bindRunFlags(cmd *cobra.Command) {
	bindings := []struct {
		key  string
		flag string
	}{
		{"output.format", "format"},
		{"output.file", "output"},
		{"output.points", "points"},
		{"output.depth_dir", "depth-dir"},
		{"metrics.addr", "metrics-addr"},
		{"calibration.width", "calib-width"},
		{"calibration.height", "calib-height"},
		{"calibration.fx", "calib-fx"},
		{"calibration.fy", "calib-fy"},
		{"calibration.cx", "calib-cx"},
		{"calibration.cy", "calib-cy"},
		{"initializer.levels", "levels"},
		{"initializer.workers", "workers"},
		{"initializer.snap_hysteresis", "snap-hysteresis"},
		{"initializer.print_debug", "print-debug"},
	}
	for _, binding := range bindings {
		bindFlag(binding.key, cmd.Flags(), binding.flag)
	}
}

func init() {
	addRunFlags(runCmd)
	bindRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
