package app

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"gosane/domain/grid"
	"gosane/ports"
)

// Minor loop SNR constants. 40 dB corresponds to roughly 1% model error and
// ends the fit immediately; 10.5 dB (~30% error) is the floor beneath which
// a fit is rejected rather than accepted.
const (
	snrAccept = 40
	snrFloor  = 10.5
)

// minorResult carries the outcome of one conjugate-gradient fit.
type minorResult struct {
	x        *grid.Image
	snr      float64
	iters    int
	accepted bool
}

// applyOperator evaluates A(p) = recompose(mask ⊙ decompose(p ⊛ PSF)): the
// candidate image is smeared by the PSF, analyzed, projected onto the
// retained wavelet atoms and synthesized back.
func (d *Deconvolver) applyOperator(ctx context.Context, p *grid.Image, spec ports.PSFSpectrum, dec ports.Decomposer, mask *grid.Mask, maxScale, scaleAdjust int) (*grid.Image, error) {
	conv, err := d.convolver.Convolve(p, spec)
	if err != nil {
		return nil, err
	}
	cube, err := dec.Decompose(ctx, conv, maxScale, scaleAdjust)
	if err != nil {
		return nil, err
	}
	mask.Apply(cube)
	return dec.Recompose(ctx, cube, scaleAdjust)
}

// minorLoop amplitude-fits the recomposed sources b against the PSF with
// conjugate gradients. The SNR of the running model against b decides
// acceptance: an immediate jump past 40 dB on the first step is a false
// detection, a later one an accepted fit; once the SNR turns over, the fit
// before the turn is accepted when the current SNR still clears the 10.5 dB
// floor and rejected otherwise. Rejection tells the caller to advance the minimum scale.
func (d *Deconvolver) minorLoop(ctx context.Context, b *grid.Image, mask *grid.Mask, spec ports.PSFSpectrum, dec ports.Decomposer, maxScale, scaleAdjust, miter int, enforcePositivity bool) (minorResult, error) {
	x := grid.New(b.Side)
	r := b.Clone()
	p := b.Clone()

	normB := floats.Norm(b.Data, 2)
	snrPrev := 0.0
	res := minorResult{}

	for k := 1; k <= miter; k++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		Ap, err := d.applyOperator(ctx, p, spec, dec, mask, maxScale, scaleAdjust)
		if err != nil {
			return res, err
		}

		rr := floats.Dot(r.Data, r.Data)
		pAp := floats.Dot(p.Data, Ap.Data)
		if pAp == 0 || rr == 0 {
			d.log.Warn("conjugate gradient degenerate", "iteration", k)
			res.x, res.iters = x, k-1
			res.accepted = res.snr > snrFloor
			return res, nil
		}
		alpha := rr / pAp

		xn := x.Clone()
		floats.AddScaled(xn.Data, alpha, p.Data)

		if enforcePositivity && xn.Min() < 0 {
			for i, v := range xn.Data {
				if v < 0 {
					xn.Data[i] = 0
				}
			}
			for i := range p.Data {
				p.Data[i] = (xn.Data[i] - x.Data[i]) / alpha
			}
			Ap, err = d.applyOperator(ctx, p, spec, dec, mask, maxScale, scaleAdjust)
			if err != nil {
				return res, err
			}
		}

		rn := r.Clone()
		floats.AddScaled(rn.Data, -alpha, Ap.Data)

		beta := floats.Dot(rn.Data, rn.Data) / rr
		for i := range p.Data {
			p.Data[i] = rn.Data[i] + beta*p.Data[i]
		}

		Axn, err := d.applyOperator(ctx, xn, spec, dec, mask, maxScale, scaleAdjust)
		if err != nil {
			return res, err
		}
		diff := 0.0
		for i, v := range Axn.Data {
			e := b.Data[i] - v
			diff += e * e
		}
		snr := 20 * math.Log10(normB/math.Sqrt(diff))

		res.snr, res.iters = snr, k
		d.log.Debug("minor loop", "iteration", k, "snr", snr)

		if k == 1 && snr > snrAccept {
			d.log.Info("snr too large on first iteration - false detection, incrementing the minimum scale")
			res.x, res.accepted = nil, false
			return res, nil
		}
		if snr > snrAccept {
			d.log.Info("model has reached <1% error - exiting minor loop")
			res.x, res.accepted = xn, true
			return res, nil
		}
		if k > 2 && snr <= snrPrev {
			if snr > snrFloor {
				// Accept the fit from before the SNR turned over.
				d.log.Info("snr has decreased - accepting previous model", "error_pct", errorPercent(snr))
				res.x, res.accepted = x, true
				return res, nil
			}
			d.log.Info("snr has decreased - snr too small, incrementing the minimum scale")
			res.x, res.accepted = nil, false
			return res, nil
		}

		r, x = rn, xn
		snrPrev = snr
	}

	if res.snr > snrFloor {
		d.log.Info("maximum number of minor loop iterations exceeded", "error_pct", errorPercent(res.snr))
		res.x, res.accepted = x, true
		return res, nil
	}
	res.x, res.accepted = nil, false
	return res, nil
}

// errorPercent converts an SNR in dB to an approximate model error in
// percent.
func errorPercent(snr float64) int {
	return int(100 / math.Pow(10, snr/20))
}
