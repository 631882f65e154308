package initializer

import (
	"fmt"
	"time"

	"github.com/MeKo-Tech/vioinit/internal/lie"
	"github.com/MeKo-Tech/vioinit/internal/output"
)

// LevelStats summarizes the optimization of one pyramid level.
type LevelStats struct {
	Level      int
	Iterations int
	Accepted   int
	Rejected   int
	Lambda     float64
	// Energy is the mean photometric energy per residual after the last accepted step.
	Energy     float64
	Alpha      float64
	GoodPoints int
}

// TrackStats summarizes one TrackFrame call.
type TrackStats struct {
	Frame    int
	Levels   []LevelStats // finest level first
	Snapped  bool
	Ready    bool
	Duration time.Duration
}

// Pose returns the current anchor-to-frame transform.
func (in *Initializer) Pose() lie.SE3 { return in.thisToNext }

// Affine returns the current affine brightness pair.
func (in *Initializer) Affine() lie.AffLight { return in.thisToNextAff }

// Snapped reports whether enough parallax has been observed.
func (in *Initializer) Snapped() bool { return in.snapped }

// FrameID returns the number of frames tracked against the current anchor.
func (in *Initializer) FrameID() int { return in.frameID }

// Levels returns the number of pyramid levels in use.
func (in *Initializer) Levels() int { return in.pyr.Levels() }

// Rescale returns the factor that would normalize the translation to a length of 1/20.
func (in *Initializer) Rescale() float64 { return 20 * in.thisToNext.T.Norm() }

// Points returns a copy of the points of a level.
func (in *Initializer) Points(lvl int) []Point {
	if lvl < 0 || lvl >= len(in.points) {
		return nil
	}
	return append([]Point(nil), in.points[lvl]...)
}

// LastStats returns the statistics of the most recent TrackFrame call.
func (in *Initializer) LastStats() TrackStats { return in.stats }

// Result assembles the hand-off state. Finest-level points are included when withPoints
// is set; the depth summary always covers them.
func (in *Initializer) Result(withPoints bool) (*output.Result, error) {
	if in.first == nil {
		return nil, ErrNotInitialized
	}
	q := in.thisToNext.R.Quat()
	t := in.thisToNext.T
	res := &output.Result{
		Ready:   in.stats.Ready,
		Snapped: in.snapped,
		Frames:  in.frameID,
		Pose: output.Pose{
			Translation: [3]float64{t.X, t.Y, t.Z},
			Rotation:    [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag},
		},
		Affine:      output.Affine{A: in.thisToNextAff.A, B: in.thisToNextAff.B},
		Rescale:     in.Rescale(),
		TotalPoints: len(in.points[0]),
	}

	pts := make([]output.Point, len(in.points[0]))
	for i, p := range in.points[0] {
		pts[i] = output.Point{
			U:       p.U,
			V:       p.V,
			IDepth:  p.IDepth,
			IR:      p.IR,
			Hessian: p.LastHessian,
			Type:    p.Type,
			Good:    p.IsGood,
		}
		if p.IsGood {
			res.GoodPoints++
		}
	}
	summary, err := output.Summarize(pts)
	if err != nil {
		return nil, fmt.Errorf("summarize depths: %w", err)
	}
	res.Depth = summary
	if withPoints {
		res.Points = pts
	}
	return res, nil
}
