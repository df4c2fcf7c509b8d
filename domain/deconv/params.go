package deconv

import (
	"gosane/domain/grid"
)

// ConvMode selects the convolution semantics used by the FFT backend.
type ConvMode string

const (
	// ConvLinear zero-pads to double size before transforming, avoiding
	// wrap-around at the cost of memory and compute.
	ConvLinear ConvMode = "linear"
	// ConvCircular assumes periodic repetition of the input.
	ConvCircular ConvMode = "circular"
)

// DecomMode selects the execution strategy of the wavelet decomposition.
// All modes produce identical output beyond float rounding.
type DecomMode string

const (
	DecomSerial   DecomMode = "ser"
	DecomParallel DecomMode = "mp"
	DecomFFT      DecomMode = "fft"
)

// Params carries every tunable of a deconvolution run. The zero value is not
// usable; start from DefaultParams.
type Params struct {
	// Subregion is the side, in pixels, of the central region to be analyzed
	// and deconvolved. Zero means the whole image.
	Subregion int `yaml:"subregion" json:"subregion"`
	// ScaleCount is the analysis depth. Zero means log2(side)-1, which is
	// also the cap.
	ScaleCount int `yaml:"scale_count" json:"scale_count"`
	// SigmaLevel is the number of noise sigmas at which wavelet coefficients
	// are thresholded.
	SigmaLevel float64 `yaml:"sigma_level" json:"sigma_level"`
	// LoopGain scales every model increment accepted by the major loop.
	LoopGain float64 `yaml:"loop_gain" json:"loop_gain"`
	// Tolerance is the fraction of a scale's peak wavelet coefficient below
	// which a connected component is discarded. In [0,1].
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`
	// Accuracy is the relative residual-stddev improvement below which the
	// major loop exits.
	Accuracy float64 `yaml:"accuracy" json:"accuracy"`

	MajorLoopMiter int `yaml:"major_loop_miter" json:"major_loop_miter"`
	MinorLoopMiter int `yaml:"minor_loop_miter" json:"minor_loop_miter"`

	EnforcePositivity bool `yaml:"enforce_positivity" json:"enforce_positivity"`
	EdgeSuppression   bool `yaml:"edge_suppression" json:"edge_suppression"`
	// EdgeOffset widens the suppressed border beyond the per-scale minimum.
	EdgeOffset int `yaml:"edge_offset" json:"edge_offset"`
	// FluxThreshold, in Jy, stops the major loop once the residual peak
	// drops beneath it.
	FluxThreshold float64 `yaml:"flux_threshold" json:"flux_threshold"`
	// NegComp keeps negative wavelet components instead of clipping them.
	NegComp bool `yaml:"neg_comp" json:"neg_comp"`

	// EdgeExcl and IntExcl exclude a border strip and a central square from
	// the noise estimation window.
	EdgeExcl int `yaml:"edge_excl" json:"edge_excl"`
	IntExcl  int `yaml:"int_excl" json:"int_excl"`

	ConvMode  ConvMode  `yaml:"conv_mode" json:"conv_mode"`
	DecomMode DecomMode `yaml:"decom_mode" json:"decom_mode"`

	// StartScale and StopScale bound the scale-by-scale driver.
	StartScale int `yaml:"start_scale" json:"start_scale"`
	StopScale  int `yaml:"stop_scale" json:"stop_scale"`
}

// DefaultParams returns the reference defaults.
func DefaultParams() Params {
	return Params{
		SigmaLevel:     4,
		LoopGain:       0.1,
		Tolerance:      0.75,
		Accuracy:       1e-6,
		MajorLoopMiter: 100,
		MinorLoopMiter: 30,
		ConvMode:       ConvLinear,
		DecomMode:      DecomSerial,
		StartScale:     1,
		StopScale:      20,
	}
}

// Normalize fills defaulted fields against the image side and validates the
// rest. It returns the effective parameters.
func (p Params) Normalize(side int) (Params, error) {
	if side%2 == 1 {
		return p, ErrUnevenImage
	}
	if !grid.IsPowerOfTwo(side) || side < 4 {
		return p, ErrNotPowerOfTwo
	}
	if p.Subregion <= 0 || p.Subregion > side {
		p.Subregion = side
	}
	if limit := grid.MaxScaleCount(side); p.ScaleCount <= 0 || p.ScaleCount > limit {
		p.ScaleCount = limit
	}
	if p.Tolerance < 0 || p.Tolerance > 1 {
		return p, NewParamError("tolerance", "must lie in [0,1]")
	}
	if p.LoopGain <= 0 || p.LoopGain > 1 {
		return p, NewParamError("loop_gain", "must lie in (0,1]")
	}
	if p.MajorLoopMiter <= 0 {
		return p, NewParamError("major_loop_miter", "must be positive")
	}
	if p.MinorLoopMiter <= 0 {
		return p, NewParamError("minor_loop_miter", "must be positive")
	}
	switch p.ConvMode {
	case ConvLinear, ConvCircular:
	default:
		return p, NewParamError("conv_mode", "must be linear or circular")
	}
	switch p.DecomMode {
	case DecomSerial, DecomParallel, DecomFFT:
	default:
		return p, NewParamError("decom_mode", "must be ser, mp or fft")
	}
	return p, nil
}
