package initializer

import (
	"errors"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/MeKo-Tech/vioinit/internal/calib"
	"github.com/MeKo-Tech/vioinit/internal/nngraph"
)

// Options is the immutable tuning of an Initializer.
type Options struct {
	// Levels is the number of pyramid levels used.
	Levels int `mapstructure:"levels" yaml:"levels" json:"levels"`
	// Densities is the wanted point count per level as a fraction of the level-0 pixel count.
	Densities []float32 `mapstructure:"densities" yaml:"densities" json:"densities"`
	// MaxIterations caps the optimizer iterations per level, finest level first.
	MaxIterations []int `mapstructure:"max_iterations" yaml:"max_iterations" json:"max_iterations"`

	AlphaK         float32 `mapstructure:"alpha_k" yaml:"alpha_k" json:"alpha_k"`
	AlphaW         float32 `mapstructure:"alpha_w" yaml:"alpha_w" json:"alpha_w"`
	RegWeight      float32 `mapstructure:"reg_weight" yaml:"reg_weight" json:"reg_weight"`
	CouplingWeight float32 `mapstructure:"coupling_weight" yaml:"coupling_weight" json:"coupling_weight"`
	HuberTH        float32 `mapstructure:"huber_th" yaml:"huber_th" json:"huber_th"`
	// OutlierTH is the per pattern-pixel outlier energy; points use patternNum·OutlierTH.
	OutlierTH float32 `mapstructure:"outlier_th" yaml:"outlier_th" json:"outlier_th"`

	// ZeroPriorX and ZeroPriorY are squared weights of priors pulling the translation's
	// x and y components toward zero.
	ZeroPriorX float64 `mapstructure:"zero_prior_x" yaml:"zero_prior_x" json:"zero_prior_x"`
	ZeroPriorY float64 `mapstructure:"zero_prior_y" yaml:"zero_prior_y" json:"zero_prior_y"`

	ScaleRot   float64 `mapstructure:"scale_rot" yaml:"scale_rot" json:"scale_rot"`
	ScaleTrans float64 `mapstructure:"scale_trans" yaml:"scale_trans" json:"scale_trans"`
	ScaleA     float64 `mapstructure:"scale_a" yaml:"scale_a" json:"scale_a"`
	ScaleB     float64 `mapstructure:"scale_b" yaml:"scale_b" json:"scale_b"`

	// FixAffine solves only the 6×6 pose block and keeps the affine pair constant.
	FixAffine bool `mapstructure:"fix_affine" yaml:"fix_affine" json:"fix_affine"`
	// SnapHysteresis is the number of frames that must follow the first snapped frame
	// before TrackFrame reports success.
	SnapHysteresis int `mapstructure:"snap_hysteresis" yaml:"snap_hysteresis" json:"snap_hysteresis"`

	Workers   int `mapstructure:"workers" yaml:"workers" json:"workers"`
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size" json:"chunk_size"`

	Neighbours         int     `mapstructure:"neighbours" yaml:"neighbours" json:"neighbours"`
	NeighbourWeightSum float32 `mapstructure:"neighbour_weight_sum" yaml:"neighbour_weight_sum" json:"neighbour_weight_sum"`
	NNDistFactor       float32 `mapstructure:"nn_dist_factor" yaml:"nn_dist_factor" json:"nn_dist_factor"`
	ParentHessianFloor float32 `mapstructure:"parent_hessian_floor" yaml:"parent_hessian_floor" json:"parent_hessian_floor"`
	MaxPixelStep       float32 `mapstructure:"max_pixel_step" yaml:"max_pixel_step" json:"max_pixel_step"`

	// PrintDebug logs every optimizer iteration at debug level.
	PrintDebug bool `mapstructure:"print_debug" yaml:"print_debug" json:"print_debug"`

	// Logger receives the initializer's log output; nil means slog.Default().
	Logger *slog.Logger `mapstructure:"-" yaml:"-" json:"-"`
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		Levels:             5,
		Densities:          []float32{0.03, 0.05, 0.15, 0.5, 1},
		MaxIterations:      []int{50, 30, 10, 5, 5},
		AlphaK:             2.5 * 2.5,
		AlphaW:             150 * 150,
		RegWeight:          0.8,
		CouplingWeight:     1,
		HuberTH:            9,
		OutlierTH:          12 * 12,
		ScaleRot:           1,
		ScaleTrans:         1,
		ScaleA:             10,
		ScaleB:             1000,
		FixAffine:          true,
		SnapHysteresis:     5,
		ChunkSize:          50,
		Neighbours:         10,
		NeighbourWeightSum: 10,
		NNDistFactor:       0.05,
		ParentHessianFloor: 0.1,
		MaxPixelStep:       0.25,
	}
}

// Validate reports every invalid field.
func (o Options) Validate() error {
	var err error
	if o.Levels < 1 || o.Levels > calib.MaxLevels {
		err = multierr.Append(err, fmt.Errorf("levels must be between 1 and %d, got %d", calib.MaxLevels, o.Levels))
	}
	if len(o.Densities) < o.Levels {
		err = multierr.Append(err, fmt.Errorf("need %d densities, got %d", o.Levels, len(o.Densities)))
	}
	for i, d := range o.Densities {
		if d <= 0 {
			err = multierr.Append(err, fmt.Errorf("density %d must be positive", i))
		}
	}
	if len(o.MaxIterations) < o.Levels {
		err = multierr.Append(err, fmt.Errorf("need %d iteration caps, got %d", o.Levels, len(o.MaxIterations)))
	}
	for i, n := range o.MaxIterations {
		if n < 0 {
			err = multierr.Append(err, fmt.Errorf("max iterations of level %d must not be negative", i))
		}
	}
	if o.AlphaK <= 0 || o.AlphaW <= 0 {
		err = multierr.Append(err, errors.New("alpha_k and alpha_w must be positive"))
	}
	if o.RegWeight < 0 || o.RegWeight > 1 {
		err = multierr.Append(err, errors.New("reg_weight must be within [0, 1]"))
	}
	if o.CouplingWeight < 0 {
		err = multierr.Append(err, errors.New("coupling_weight must not be negative"))
	}
	if o.HuberTH <= 0 {
		err = multierr.Append(err, errors.New("huber_th must be positive"))
	}
	if o.OutlierTH <= 0 {
		err = multierr.Append(err, errors.New("outlier_th must be positive"))
	}
	if o.ZeroPriorX < 0 || o.ZeroPriorY < 0 {
		err = multierr.Append(err, errors.New("zero priors must not be negative"))
	}
	if o.ScaleRot <= 0 || o.ScaleTrans <= 0 || o.ScaleA <= 0 || o.ScaleB <= 0 {
		err = multierr.Append(err, errors.New("parameter scales must be positive"))
	}
	if o.SnapHysteresis < 0 {
		err = multierr.Append(err, errors.New("snap_hysteresis must not be negative"))
	}
	if o.Workers < 0 || o.ChunkSize < 0 {
		err = multierr.Append(err, errors.New("workers and chunk_size must not be negative"))
	}
	if o.MaxPixelStep <= 0 {
		err = multierr.Append(err, errors.New("max_pixel_step must be positive"))
	}
	if o.ParentHessianFloor < 0 {
		err = multierr.Append(err, errors.New("parent_hessian_floor must not be negative"))
	}
	err = multierr.Append(err, o.graphConfig().Validate())
	return err
}

func (o Options) graphConfig() nngraph.Config {
	return nngraph.Config{K: o.Neighbours, WeightSum: o.NeighbourWeightSum, DistFactor: o.NNDistFactor}
}

// paramScale is the diagonal reweighting of the 8 parameters in tangent order
// (translation, rotation, a, b).
func (o Options) paramScale() [8]float64 {
	return [8]float64{
		o.ScaleTrans, o.ScaleTrans, o.ScaleTrans,
		o.ScaleRot, o.ScaleRot, o.ScaleRot,
		o.ScaleA, o.ScaleB,
	}
}
