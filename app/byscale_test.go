package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosane/domain/deconv"
	"gosane/domain/grid"
	"gosane/internal/testkit"
)

// boxFlux sums the model inside a (2r+1)² box around a position.
func boxFlux(img *grid.Image, r0, c0, radius int) float64 {
	sum := 0.0
	for r := r0 - radius; r <= r0+radius; r++ {
		for c := c0 - radius; c <= c0+radius; c++ {
			sum += img.At(r, c)
		}
	}
	return sum
}

// TestTwoSourcesByScale is the mixed-scale scenario: a point source and a
// resolved Gaussian blob of integrated flux 2 recovered by the
// scale-by-scale driver with both fluxes within 10%.
func TestTwoSourcesByScale(t *testing.T) {
	side := 256
	psf := testkit.GaussianPSF(side, 4)

	sky := testkit.Delta(side, 64, 64, 1)
	blob := testkit.GaussianBlob(side, 192, 192, 8, 1)
	scale := 2.0 / testkit.Sum(blob)
	for i, v := range blob.Data {
		sky.Data[i] += scale * v
	}

	dirty := dirtyFrom(t, sky, psf)
	testkit.AddNoise(dirty, 0.002, 7)

	session, err := NewSession(dirty, psf, nil)
	require.NoError(t, err)

	params := deconv.DefaultParams()
	params.LoopGain = 0.2
	params.EnforcePositivity = true
	params.StartScale = 1
	params.StopScale = 6

	status, err := quietDeconvolver().MoresaneByScale(context.Background(), session, params)
	require.NoError(t, err)
	require.NotEqual(t, deconv.StatusFailed, status)

	assert.InDelta(t, 1.0, boxFlux(session.Model, 64, 64, 12), 0.1)
	assert.InDelta(t, 2.0, boxFlux(session.Model, 192, 192, 16), 0.2)

	// The driver restores the session's dirty image after the walk.
	assert.Equal(t, dirty.Data, session.Dirty.Data)
	assert.False(t, session.Complete)
}

// TestByScaleAccumulatesAcrossPasses: after the by-scale walk the residual
// equals dirty - model ⊛ PSF for the model accumulated over every pass.
func TestByScaleAccumulatesAcrossPasses(t *testing.T) {
	side := 128
	psf := testkit.GaussianPSF(side, 4)
	dirty := testkit.AddNoise(dirtyFrom(t, testkit.Delta(side, 64, 64, 1), psf), 0.005, 3)

	session, err := NewSession(dirty.Clone(), psf, nil)
	require.NoError(t, err)

	params := deconv.DefaultParams()
	params.LoopGain = 0.2
	params.StartScale = 1
	params.StopScale = 5
	params.EnforcePositivity = true

	_, err = quietDeconvolver().MoresaneByScale(context.Background(), session, params)
	require.NoError(t, err)

	smeared := convolveWith(t, session.Model, psf)
	peak := dirty.Max()
	for i := range dirty.Data {
		want := dirty.Data[i] - smeared.Data[i]
		require.InDelta(t, want, session.Residual.Data[i], 1e-4*peak)
	}
}

func TestByScaleStopsAtNullInput(t *testing.T) {
	side := 64
	session, err := NewSession(grid.New(side), testkit.GaussianPSF(side, 4), nil)
	require.NoError(t, err)

	params := deconv.DefaultParams()
	status, err := quietDeconvolver().MoresaneByScale(context.Background(), session, params)
	require.NoError(t, err)

	assert.Equal(t, deconv.StatusCompleted, status)
	for _, v := range session.Model.Data {
		assert.Zero(t, v)
	}
}
