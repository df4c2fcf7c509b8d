package beam

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosane/domain/grid"
	"gosane/internal/testkit"
)

func TestFitCircularBeam(t *testing.T) {
	psf := testkit.GaussianPSF(64, 5)

	clean, params, err := Fit(psf)
	require.NoError(t, err)

	assert.InDelta(t, 5, params.Bmaj, 0.2)
	assert.InDelta(t, 5, params.Bmin, 0.2)

	// The rendered clean beam matches the PSF main lobe.
	assert.InDelta(t, 1, clean.At(32, 32), 1e-6)
	assert.InDelta(t, psf.At(34, 32), clean.At(34, 32), 0.02)
}

func TestFitEllipticalBeam(t *testing.T) {
	n := 64
	psf := grid.New(n)
	sx, sy := 4.0, 2.0
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			dx := float64(c - n/2)
			dy := float64(r - n/2)
			psf.Set(r, c, math.Exp(-(dx*dx/(2*sx*sx)+dy*dy/(2*sy*sy))))
		}
	}

	_, params, err := Fit(psf)
	require.NoError(t, err)

	factor := 2 * math.Sqrt(2*math.Log(2))
	assert.InDelta(t, factor*sx, params.Bmaj, 0.3)
	assert.InDelta(t, factor*sy, params.Bmin, 0.3)
}

func TestFitRejectsEmptyPSF(t *testing.T) {
	_, _, err := Fit(grid.New(32))
	assert.Error(t, err)
}
