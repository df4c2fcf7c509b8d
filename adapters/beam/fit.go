// Package beam fits the restoring beam: an idealized elliptical Gaussian
// matched to the main lobe of the PSF, used to smooth the model before the
// residual is added back.
package beam

import (
	"math"

	"gonum.org/v1/gonum/optimize"

	"gosane/domain/deconv"
	"gosane/domain/grid"
)

// fwhmFactor converts a Gaussian sigma to full width at half maximum.
var fwhmFactor = 2 * math.Sqrt(2*math.Log(2))

// Params are the fitted clean-beam parameters: major and minor axis FWHM in
// pixels and the position angle in degrees.
type Params struct {
	Bmaj float64 `json:"bmaj"`
	Bmin float64 `json:"bmin"`
	Bpa  float64 `json:"bpa"`
}

// Fit fits a unit-amplitude elliptical Gaussian to the PSF main lobe and
// returns the clean beam rendered at the PSF centre together with the fitted
// parameters. The fit minimizes the squared error over a square window
// around the peak that reaches out to the first ring with no pixel at or
// above half maximum; every pixel of the window takes part in the fit.
func Fit(psf *grid.Image) (*grid.Image, Params, error) {
	n := psf.Side
	peak := math.Inf(-1)
	pr, pc := 0, 0
	for r := 0; r < n; r++ {
		row := psf.Row(r)
		for c, v := range row {
			if v > peak {
				peak, pr, pc = v, r, c
			}
		}
	}
	if peak <= 0 {
		return nil, Params{}, deconv.ErrDegenerate
	}

	// Collect the main lobe: every pixel of a square window that stops
	// growing once a full ring falls below half maximum (that ring included).
	type sample struct {
		dr, dc int
		v      float64
	}
	var lobe []sample
	for radius := 1; radius < n/2; radius++ {
		above := false
		for dr := -radius; dr <= radius; dr++ {
			for dc := -radius; dc <= radius; dc++ {
				if maxAbs(dr, dc) != radius {
					continue
				}
				r, c := pr+dr, pc+dc
				if r < 0 || r >= n || c < 0 || c >= n {
					continue
				}
				v := psf.At(r, c) / peak
				lobe = append(lobe, sample{dr, dc, v})
				if v >= 0.5 {
					above = true
				}
			}
		}
		if !above {
			break
		}
	}
	lobe = append(lobe, sample{0, 0, 1})

	// Second moments seed the optimizer.
	var sxx, syy float64
	for _, s := range lobe {
		if s.v > 0 {
			sxx += s.v * float64(s.dc*s.dc)
			syy += s.v * float64(s.dr*s.dr)
		}
	}
	norm := 0.0
	for _, s := range lobe {
		if s.v > 0 {
			norm += s.v
		}
	}
	seed := []float64{math.Sqrt(sxx/norm) + 0.5, math.Sqrt(syy/norm) + 0.5, 0}

	objective := func(x []float64) float64 {
		sx, sy, th := x[0], x[1], x[2]
		if sx <= 0.1 || sy <= 0.1 {
			return math.Inf(1)
		}
		sum := 0.0
		for _, s := range lobe {
			g := gaussian(float64(s.dc), float64(s.dr), sx, sy, th)
			e := s.v - g
			sum += e * e
		}
		return sum
	}

	result, err := optimize.Minimize(optimize.Problem{Func: objective}, seed, nil, &optimize.NelderMead{})
	if err != nil {
		return nil, Params{}, err
	}
	sx, sy, th := result.X[0], result.X[1], result.X[2]

	// Render the clean beam at the grid centre.
	clean := grid.New(n)
	cr, cc := n/2, n/2
	for r := 0; r < n; r++ {
		row := clean.Row(r)
		for c := range row {
			row[c] = gaussian(float64(c-cc), float64(r-cr), sx, sy, th)
		}
	}

	bmaj, bmin := sx, sy
	pa := th
	if bmin > bmaj {
		bmaj, bmin = bmin, bmaj
		pa += math.Pi / 2
	}
	return clean, Params{
		Bmaj: fwhmFactor * bmaj,
		Bmin: fwhmFactor * bmin,
		Bpa:  math.Mod(pa*180/math.Pi, 180),
	}, nil
}

// gaussian evaluates a unit-amplitude elliptical Gaussian rotated by theta.
func gaussian(x, y, sx, sy, theta float64) float64 {
	ct, st := math.Cos(theta), math.Sin(theta)
	u := x*ct + y*st
	v := -x*st + y*ct
	return math.Exp(-(u*u/(2*sx*sx) + v*v/(2*sy*sy)))
}

func maxAbs(a, b int) int {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	if a > b {
		return a
	}
	return b
}
