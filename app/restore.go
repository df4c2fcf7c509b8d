package app

import (
	"gosane/adapters/beam"
	"gosane/domain/deconv"
)

// Restore convolves the model with the fitted clean beam and adds the
// residual back, storing the result on the session. The returned beam
// parameters are written into the output header by the caller.
func (d *Deconvolver) Restore(s *Session) (beam.Params, error) {
	clean, params, err := beam.Fit(s.PSF)
	if err != nil {
		return beam.Params{}, err
	}
	if clean.Side != s.Model.Side {
		clean = clean.Central(s.Model.Side)
	}

	spec, err := d.convolver.Precompute(clean, deconv.ConvLinear, s.Model.Side)
	if err != nil {
		return beam.Params{}, err
	}
	restored, err := d.convolver.Convolve(s.Model, spec)
	if err != nil {
		return beam.Params{}, err
	}
	for i, v := range s.Residual.Data {
		restored.Data[i] += v
	}
	s.Restored = restored

	d.log.Info("restored image computed", "bmaj", params.Bmaj, "bmin", params.Bmin, "bpa", params.Bpa)
	return params, nil
}
