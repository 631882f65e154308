// Package initializer bootstraps a monocular odometry front end: it jointly estimates the
// relative pose, photometric affine correction and per-point inverse depths between an
// anchor frame and subsequent frames by coarse-to-fine direct image alignment.
package initializer

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang/geo/r3"

	"github.com/MeKo-Tech/vioinit/internal/accum"
	"github.com/MeKo-Tech/vioinit/internal/calib"
	"github.com/MeKo-Tech/vioinit/internal/frame"
	"github.com/MeKo-Tech/vioinit/internal/lie"
	"github.com/MeKo-Tech/vioinit/internal/mempool"
	"github.com/MeKo-Tech/vioinit/internal/metrics"
	"github.com/MeKo-Tech/vioinit/internal/nngraph"
	"github.com/MeKo-Tech/vioinit/internal/output"
	"github.com/MeKo-Tech/vioinit/internal/reduce"
	"github.com/MeKo-Tech/vioinit/internal/selector"
)

var (
	// ErrNotInitialized is returned by TrackFrame before SetFirst succeeded.
	ErrNotInitialized = errors.New("initializer has no anchor frame")
	// ErrFrameMismatch is returned when a frame does not match the anchor's geometry.
	ErrFrameMismatch = errors.New("frame does not match the anchor frame")
)

// Initializer estimates the transform from an anchor frame to later frames.
// It is not safe for concurrent use.
type Initializer struct {
	opts    Options
	logger  *slog.Logger
	reducer *reduce.Reducer
	sinks   []output.Sink
	gridSel *selector.GridSelector

	pyr      calib.Pyramid
	first    *frame.Frame
	newFrame *frame.Frame
	points   [][]Point

	// Per-point Jacobian buffers with jbStride entries per point: Σ dd·dp for the 8
	// parameters, Σ r·dd, and the damped inverse depth curvature.
	jb, jbNew []float32

	acc9s  []accum.Accumulator9
	accE   []accum.Energy
	acc9SC accum.Accumulator9

	thisToNext    lie.SE3
	thisToNextAff lie.AffLight
	snapped       bool
	snappedAt     int
	frameID       int

	stats TrackStats
}

// New validates opts and returns an initializer without an anchor frame.
func New(opts Options, sinks ...output.Sink) (*Initializer, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid initializer options: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := reduce.New(reduce.Config{Workers: opts.Workers, ChunkSize: opts.ChunkSize})
	return &Initializer{
		opts:       opts,
		logger:     logger,
		reducer:    r,
		sinks:      sinks,
		gridSel:    selector.NewGridSelector(),
		acc9s:      make([]accum.Accumulator9, r.Workers()),
		accE:       make([]accum.Energy, r.Workers()),
		thisToNext: lie.Identity(),
	}, nil
}

// SetFirst makes f the anchor frame: it derives the pyramid intrinsics, selects points on
// every level, links them into the neighbour graph and resets the tracking state.
func (in *Initializer) SetFirst(c calib.Calibration, f *frame.Frame) error {
	if f == nil {
		return errors.New("nil anchor frame")
	}
	pyr, err := calib.MakePyramid(c, in.opts.Levels)
	if err != nil {
		return err
	}
	if err := checkGeometry(pyr, f); err != nil {
		return err
	}

	in.pyr = pyr
	in.first = f
	in.points = in.selectPoints()

	positions := make([][]nngraph.Pos, len(in.points))
	for lvl, pts := range in.points {
		positions[lvl] = make([]nngraph.Pos, len(pts))
		for i := range pts {
			positions[lvl][i] = nngraph.Pos{U: pts[i].U, V: pts[i].V}
		}
	}
	graph, err := nngraph.Build(positions, in.opts.graphConfig())
	if err != nil {
		return fmt.Errorf("build neighbour graph: %w", err)
	}
	maxPoints := 0
	for lvl, links := range graph {
		for i, l := range links {
			p := &in.points[lvl][i]
			p.neighbours = l.Neighbours
			p.parent = l.Parent
			p.parentWeight = l.ParentWeight
		}
		maxPoints = max(maxPoints, len(links))
	}

	if in.jb != nil {
		mempool.PutFloat32(in.jb)
		mempool.PutFloat32(in.jbNew)
	}
	in.jb = mempool.GetFloat32(maxPoints * jbStride)
	in.jbNew = mempool.GetFloat32(maxPoints * jbStride)

	in.thisToNext = lie.Identity()
	in.thisToNextAff = lie.AffLight{}
	in.snapped = false
	in.frameID = 0
	in.snappedAt = 0
	in.newFrame = nil
	in.stats = TrackStats{}

	counts := make([]int, len(in.points))
	for lvl, pts := range in.points {
		counts[lvl] = len(pts)
	}
	metrics.ObserveAnchor()
	in.logger.Info("anchor frame set", "width", c.Width, "height", c.Height, "points", counts)
	return nil
}

func checkGeometry(pyr calib.Pyramid, f *frame.Frame) error {
	if f.Levels() < pyr.Levels() {
		return fmt.Errorf("%w: frame has %d pyramid levels, need %d", ErrFrameMismatch, f.Levels(), pyr.Levels())
	}
	if f.Width(0) != pyr[0].Width || f.Height(0) != pyr[0].Height {
		return fmt.Errorf("%w: frame is %dx%d, calibration is %dx%d",
			ErrFrameMismatch, f.Width(0), f.Height(0), pyr[0].Width, pyr[0].Height)
	}
	return nil
}

// selectPoints runs the selectors on every level of the anchor frame and creates the points.
func (in *Initializer) selectPoints() [][]Point {
	w0, h0 := in.pyr[0].Width, in.pyr[0].Height
	statusMap := mempool.GetFloat32(w0 * h0)
	statusMapB := mempool.GetBool(w0 * h0)
	defer mempool.PutFloat32(statusMap)
	defer mempool.PutBool(statusMapB)

	pixelSel := selector.NewPixelSelector(w0, h0, selector.DefaultPixelConfig())
	points := make([][]Point, in.pyr.Levels())
	for lvl, l := range in.pyr {
		wl, hl := l.Width, l.Height
		want := in.opts.Densities[lvl] * float32(w0*h0)
		var n int
		if lvl == 0 {
			n = pixelSel.MakeMaps(in.first, statusMap, want, 1, 2)
		} else {
			n = in.gridSel.MakeStatus(in.first.Level(lvl), statusMapB[:wl*hl], wl, hl, want, 5, 1)
		}

		pts := make([]Point, 0, n)
		for y := patternPadding + 1; y < hl-patternPadding-2; y++ {
			for x := patternPadding + 1; x < wl-patternPadding-2; x++ {
				idx := x + y*wl
				var typ float32
				switch {
				case lvl == 0 && statusMap[idx] != 0:
					typ = statusMap[idx]
				case lvl != 0 && statusMapB[idx]:
					typ = 1
				default:
					continue
				}
				pts = append(pts, Point{
					U:         float32(x) + 0.1,
					V:         float32(y) + 0.1,
					IDepth:    1,
					IR:        1,
					IsGood:    true,
					Type:      typ,
					OutlierTH: patternNum * in.opts.OutlierTH,
				})
			}
		}
		points[lvl] = pts
	}
	return points
}

// TrackFrame aligns f against the anchor frame coarse to fine and reports whether the
// estimate has held enough parallax for SnapHysteresis frames to hand off.
// Errors are returned for misuse and for internal faults during evaluation; alignment
// failures never surface as errors. After a fault the anchor is dropped and SetFirst
// must be called again.
func (in *Initializer) TrackFrame(f *frame.Frame) (bool, error) {
	if in.first == nil {
		return false, ErrNotInitialized
	}
	if f == nil {
		return false, fmt.Errorf("%w: nil frame", ErrFrameMismatch)
	}
	if err := checkGeometry(in.pyr, f); err != nil {
		return false, err
	}
	start := time.Now()
	in.newFrame = f

	for _, s := range in.sinks {
		s.PushLiveFrame(f)
	}

	if !in.snapped {
		in.thisToNext.T = r3.Vector{}
		for lvl := range in.points {
			for i := range in.points[lvl] {
				p := &in.points[lvl][i]
				p.IR = 1
				p.idepthNew = 1
				p.LastHessian = 0
			}
		}
	}

	refToNew := in.thisToNext
	refToNewAff := in.thisToNextAff
	if in.first.Exposure > 0 && f.Exposure > 0 {
		refToNewAff = lie.AffFromExposure(in.first.Exposure, f.Exposure)
	}

	stats := TrackStats{Frame: in.frameID + 1, Levels: make([]LevelStats, in.pyr.Levels())}
	for lvl := in.pyr.Levels() - 1; lvl >= 0; lvl-- {
		if lvl < in.pyr.Levels()-1 {
			in.propagateDown(lvl + 1)
		}
		ls, err := in.optimizeLevel(lvl, &refToNew, &refToNewAff)
		if err != nil {
			in.first = nil
			return false, fmt.Errorf("frame %d: %w", stats.Frame, err)
		}
		stats.Levels[lvl] = ls
	}

	in.thisToNext = refToNew
	in.thisToNextAff = refToNewAff

	for lvl := 0; lvl < in.pyr.Levels()-1; lvl++ {
		in.propagateUp(lvl)
	}

	in.frameID++
	if !in.snapped {
		in.snappedAt = 0
	}
	if in.snapped && in.snappedAt == 0 {
		in.snappedAt = in.frameID
	}

	in.debugPlot()

	ready := in.snapped && in.frameID > in.snappedAt+in.opts.SnapHysteresis
	stats.Snapped = in.snapped
	stats.Ready = ready
	stats.Duration = time.Since(start)
	in.stats = stats

	for lvl := range in.points {
		metrics.SetGoodPoints(lvl, in.goodPoints(lvl))
	}
	metrics.ObserveTrack(stats.Duration, in.snapped, ready)
	in.logger.Debug("frame tracked",
		"frame", in.frameID,
		"snapped", in.snapped,
		"ready", ready,
		"translation", in.thisToNext.T,
		"duration", stats.Duration)
	return ready, nil
}

// debugPlot renders the level-0 depth image for the sinks that want it.
func (in *Initializer) debugPlot() {
	var want []output.Sink
	for _, s := range in.sinks {
		if s.NeedPushDepthImage() {
			want = append(want, s)
		}
	}
	if len(want) == 0 {
		return
	}

	pts := in.points[0]
	dps := make([]output.DepthPoint, len(pts))
	for i := range pts {
		dps[i] = output.DepthPoint{U: pts[i].U, V: pts[i].V, IR: pts[i].IR, Good: pts[i].IsGood}
	}
	img := output.RenderDepthImage(in.first, dps)
	for _, s := range want {
		s.PushDepthImage(img)
	}
}

func (in *Initializer) goodPoints(lvl int) int {
	n := 0
	for i := range in.points[lvl] {
		if in.points[lvl][i].IsGood {
			n++
		}
	}
	return n
}
