package app

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"gosane/adapters/extract"
	"gosane/adapters/iuwt"
	"gosane/domain/deconv"
	"gosane/domain/grid"
	"gosane/ports"
)

// Deconvolver drives the MORESANE major/minor loops against pluggable
// convolution, decomposition and extraction backends.
type Deconvolver struct {
	convolver ports.Convolver
	extractor ports.SourceExtractor
	log       *log.Logger

	// OnIteration, when set, observes the metrics of every major iteration.
	OnIteration func(deconv.IterationMetrics)
}

// NewDeconvolver wires a deconvolver from its backends.
func NewDeconvolver(convolver ports.Convolver, extractor ports.SourceExtractor, logger *log.Logger) *Deconvolver {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &Deconvolver{
		convolver: convolver,
		extractor: extractor,
		log:       logger,
	}
}

// decomposer selects the execution backend for the wavelet transform.
func (d *Deconvolver) decomposer(mode deconv.DecomMode) ports.Decomposer {
	switch mode {
	case deconv.DecomParallel:
		return iuwt.NewParallel(0)
	case deconv.DecomFFT:
		return iuwt.NewFFT()
	default:
		return iuwt.NewSerial()
	}
}

// Moresane runs the major loop on the session at the depth given by
// params.ScaleCount, accreting into the session model and refreshing the
// session residual. It returns how the loop ended.
func (d *Deconvolver) Moresane(ctx context.Context, s *Session, params deconv.Params) (deconv.Status, error) {
	side := s.Dirty.Side
	params, err := params.Normalize(side)
	if err != nil {
		return deconv.StatusFailed, err
	}
	sub := params.Subregion
	scaleCount := params.ScaleCount
	// A shrunken subregion admits fewer scales than the full image.
	if limit := grid.MaxScaleCount(sub); scaleCount > limit {
		scaleCount = limit
	}
	dec := d.decomposer(params.DecomMode)

	d.log.Info("starting", "subregion", sub, "scale_count", scaleCount)

	// PSF spectrum for the minor loop, at subregion size. In linear mode a
	// sufficiently large PSF contributes its real wings instead of zero
	// padding; a PSF at exactly double the subregion is used as-is.
	psfForSub := s.PSF
	if params.ConvMode == deconv.ConvLinear && s.PSF.Side >= 2*sub {
		if s.PSF.Side > 2*sub {
			psfForSub = s.PSF.Central(2 * sub)
		}
		if s.PSF.Side == 2*side && sub == side {
			d.log.Info("using double size psf")
		}
	} else if s.PSF.Side > sub {
		psfForSub = s.PSF.Central(sub)
	}
	subSpec, err := d.convolver.Precompute(psfForSub, params.ConvMode, sub)
	if err != nil {
		return deconv.StatusFailed, err
	}

	// PSF spectrum for the residual update, at the full image size.
	fullSpec, err := d.convolver.Precompute(s.PSF, params.ConvMode, side)
	if err != nil {
		return deconv.StatusFailed, err
	}

	// Per-scale energies of the PSF decomposition normalize wavelet maxima
	// so scales compete fairly.
	psfSub := s.PSF.Central(sub)
	psfCube, err := dec.Decompose(ctx, psfSub, scaleCount, 0)
	if err != nil {
		return deconv.StatusFailed, err
	}
	energies := make([]float64, scaleCount)
	for i := range energies {
		energies[i] = floats.Norm(psfCube.Plane(i), 2)
	}

	var maskSub *grid.Image
	if s.Mask != nil {
		maskSub = s.Mask.Central(sub)
	}

	model := grid.New(side)
	dirtySub := s.Dirty.Central(sub)
	var residual *grid.Image

	majorIter := 0
	maxCoeff := 1.0
	stdCurrent, stdLast, stdRatio := 1000.0, 1.0, 1.0
	minScale := 0

	var thresh *grid.Cube
	var normMaxima []float64
	status := deconv.StatusCompleted

	for {
		if err := ctx.Err(); err != nil {
			return deconv.StatusFailed, err
		}

		// Inner loop: re-estimate at a higher minimum scale whenever the
		// minor loop rejects a fit.
		var x *grid.Image
		var fit minorResult
		scaleAdjust := 0
		maxScale := 0
		for minScale < scaleCount {
			if minScale == 0 {
				cube, err := dec.Decompose(ctx, dirtySub, scaleCount, 0)
				if err != nil {
					return deconv.StatusFailed, err
				}
				thresholds := extract.EstimateThresholds(cube, params.EdgeExcl, params.IntExcl)
				if maskSub != nil {
					masked := dirtySub.Clone()
					for i := range masked.Data {
						masked.Data[i] *= maskSub.Data[i]
					}
					cube, err = dec.Decompose(ctx, masked, scaleCount, 0)
					if err != nil {
						return deconv.StatusFailed, err
					}
				}
				extract.ApplyThreshold(cube, thresholds, params.SigmaLevel, params.NegComp)
				extract.Suppress(cube, params.EdgeSuppression, params.EdgeOffset)
				thresh = cube

				normMaxima = make([]float64, scaleCount)
				for i := 0; i < scaleCount; i++ {
					normMaxima[i] = thresh.PlaneImage(i).Max() / energies[i]
				}
			}

			maxIndex := minScale
			for i := minScale; i < scaleCount; i++ {
				if normMaxima[i] > normMaxima[maxIndex] {
					maxIndex = i
				}
			}
			maxScale = maxIndex + 1
			maxCoeff = normMaxima[maxIndex]

			if maxCoeff == 0 {
				d.log.Info("no significant wavelet coefficients detected")
				break
			}
			d.log.Info("scale window", "min_scale", minScale, "max_scale", maxScale)

			// Skip empty scales beneath the maximum: the first empty scale
			// seen walking down sets the adjustment.
			scaleAdjust = 0
			for i := maxIndex - 1; i >= 0; i-- {
				if normMaxima[i] == 0 {
					scaleAdjust = i + 1
					d.log.Info("empty scale - ignoring scales at and below", "scale_adjust", scaleAdjust)
					break
				}
			}

			sources, srcMask := d.extractor.Extract(thresh.Slice(scaleAdjust, maxScale), params.Tolerance, params.NegComp)
			b, err := dec.Recompose(ctx, sources, scaleAdjust)
			if err != nil {
				return deconv.StatusFailed, err
			}

			fit, err = d.minorLoop(ctx, b, srcMask, subSpec, dec, maxScale, scaleAdjust, params.MinorLoopMiter, params.EnforcePositivity)
			if err != nil {
				return deconv.StatusFailed, err
			}
			d.log.Info("minor loop done", "iterations", fit.iters, "snr", fit.snr)

			if fit.accepted {
				minScale = 0
				x = fit.x
				break
			}
			minScale++
		}

		if minScale == scaleCount {
			d.log.Info("all scales are performing poorly - stopping")
			status = deconv.StatusStalled
			break
		}

		reverted := false
		if maxCoeff > 0 {
			model.AddCentral(x, params.LoopGain)

			smeared, err := d.convolver.Convolve(model, fullSpec)
			if err != nil {
				return deconv.StatusFailed, err
			}
			residual = s.Dirty.Clone()
			floats.Sub(residual.Data, smeared.Data)

			stdLast = stdCurrent
			stdCurrent = stat.PopStdDev(residual.Central(sub).Data, nil)
			stdRatio = (stdLast - stdCurrent) / stdLast

			if stdRatio < 0 {
				d.log.Info("residual has worsened - reverting changes")
				reverted = true
				model.AddCentral(x, -params.LoopGain)
				smeared, err = d.convolver.Convolve(model, fullSpec)
				if err != nil {
					return deconv.StatusFailed, err
				}
				residual = s.Dirty.Clone()
				floats.Sub(residual.Data, smeared.Data)
			}

			dirtySub = residual.Central(sub)
			majorIter++
			d.log.Info("major iteration done", "iteration", majorIter, "residual_std", stdCurrent)

			if d.OnIteration != nil {
				d.OnIteration(deconv.IterationMetrics{
					MajorIter:   majorIter,
					ScaleCount:  scaleCount,
					MaxScale:    maxScale,
					MaxCoeff:    maxCoeff,
					MinorIters:  fit.iters,
					SNR:         fit.snr,
					ResidualStd: stdCurrent,
					StdRatio:    stdRatio,
					Reverted:    reverted,
				})
			}
		}

		if majorIter == 0 {
			d.log.Info("current iteration did no work - finished")
			s.Complete = true
			status = deconv.StatusCompleted
			break
		}
		if majorIter >= params.MajorLoopMiter {
			status = deconv.StatusIterCap
			break
		}
		if maxCoeff <= 0 {
			status = deconv.StatusNoSignal
			break
		}
		if stdRatio <= params.Accuracy {
			status = deconv.StatusCompleted
			break
		}
		if dirtySub.Max() <= params.FluxThreshold {
			status = deconv.StatusCompleted
			break
		}
	}

	if majorIter > 0 {
		for i := range s.Model.Data {
			s.Model.Data[i] += model.Data[i]
		}
		s.Residual = residual
	}
	return status, nil
}
