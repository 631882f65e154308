package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/montanaflynn/stats"
	"gopkg.in/yaml.v3"
)

// Supported result formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formats lists the accepted values of Encode's format argument.
var Formats = []string{FormatText, FormatJSON, FormatYAML}

// Pose is a rigid transform as translation plus unit quaternion (w, x, y, z).
type Pose struct {
	Translation [3]float64 `json:"translation" yaml:"translation"`
	Rotation    [4]float64 `json:"rotation" yaml:"rotation"`
}

// Affine is the photometric (log-gain, offset) pair.
type Affine struct {
	A float64 `json:"a" yaml:"a"`
	B float64 `json:"b" yaml:"b"`
}

// Point is a finest-level point handed to the backend.
type Point struct {
	U       float32 `json:"u" yaml:"u"`
	V       float32 `json:"v" yaml:"v"`
	IDepth  float32 `json:"idepth" yaml:"idepth"`
	IR      float32 `json:"ir" yaml:"ir"`
	Hessian float32 `json:"hessian" yaml:"hessian"`
	Type    float32 `json:"type" yaml:"type"`
	Good    bool    `json:"good" yaml:"good"`
}

// DepthSummary describes the inverse depths of the good points.
type DepthSummary struct {
	Count  int     `json:"count" yaml:"count"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Mean   float64 `json:"mean" yaml:"mean"`
	Median float64 `json:"median" yaml:"median"`
	StdDev float64 `json:"stddev" yaml:"stddev"`
	P10    float64 `json:"p10" yaml:"p10"`
	P90    float64 `json:"p90" yaml:"p90"`
}

// Result is the state of the initializer after the last tracked frame.
type Result struct {
	Ready       bool         `json:"ready" yaml:"ready"`
	Snapped     bool         `json:"snapped" yaml:"snapped"`
	Frames      int          `json:"frames" yaml:"frames"`
	Pose        Pose         `json:"pose" yaml:"pose"`
	Affine      Affine       `json:"affine" yaml:"affine"`
	Rescale     float64      `json:"rescale" yaml:"rescale"`
	TotalPoints int          `json:"total_points" yaml:"total_points"`
	GoodPoints  int          `json:"good_points" yaml:"good_points"`
	Depth       DepthSummary `json:"depth" yaml:"depth"`
	Points      []Point      `json:"points,omitempty" yaml:"points,omitempty"`
}

// Summarize computes statistics over the inverse depths of the good points.
func Summarize(pts []Point) (DepthSummary, error) {
	data := make(stats.Float64Data, 0, len(pts))
	for _, p := range pts {
		if p.Good {
			data = append(data, float64(p.IDepth))
		}
	}
	s := DepthSummary{Count: len(data)}
	if len(data) == 0 {
		return s, nil
	}

	var err error
	if s.Min, err = data.Min(); err != nil {
		return s, fmt.Errorf("depth min: %w", err)
	}
	if s.Max, err = data.Max(); err != nil {
		return s, fmt.Errorf("depth max: %w", err)
	}
	if s.Mean, err = data.Mean(); err != nil {
		return s, fmt.Errorf("depth mean: %w", err)
	}
	if s.Median, err = data.Median(); err != nil {
		return s, fmt.Errorf("depth median: %w", err)
	}
	if s.StdDev, err = data.StandardDeviation(); err != nil {
		return s, fmt.Errorf("depth stddev: %w", err)
	}
	if s.P10, err = data.Percentile(10); err != nil {
		return s, fmt.Errorf("depth p10: %w", err)
	}
	if s.P90, err = data.Percentile(90); err != nil {
		return s, fmt.Errorf("depth p90: %w", err)
	}
	return s, nil
}

// Encode writes res to w in the given format.
func Encode(w io.Writer, res *Result, format string) error {
	if res == nil {
		return errors.New("nil result")
	}
	switch strings.ToLower(format) {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		_, err := io.WriteString(w, ToPlainText(res))
		return err
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// ToPlainText renders a short human-readable report.
func ToPlainText(res *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ready:        %t\n", res.Ready)
	fmt.Fprintf(&b, "snapped:      %t\n", res.Snapped)
	fmt.Fprintf(&b, "frames:       %d\n", res.Frames)
	t := res.Pose.Translation
	q := res.Pose.Rotation
	fmt.Fprintf(&b, "translation:  %.6f %.6f %.6f\n", t[0], t[1], t[2])
	fmt.Fprintf(&b, "rotation:     %.6f %.6f %.6f %.6f\n", q[0], q[1], q[2], q[3])
	fmt.Fprintf(&b, "affine:       a=%.6f b=%.6f\n", res.Affine.A, res.Affine.B)
	fmt.Fprintf(&b, "rescale:      %.6f\n", res.Rescale)
	fmt.Fprintf(&b, "points:       %d good / %d total\n", res.GoodPoints, res.TotalPoints)
	d := res.Depth
	if d.Count > 0 {
		fmt.Fprintf(&b, "idepth:       min=%.4f p10=%.4f median=%.4f p90=%.4f max=%.4f mean=%.4f sd=%.4f\n",
			d.Min, d.P10, d.Median, d.P90, d.Max, d.Mean, d.StdDev)
	}
	return b.String()
}
