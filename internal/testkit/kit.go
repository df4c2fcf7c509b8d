// Package testkit generates the synthetic images the test suites share:
// δ-functions, Gaussian beams and blobs, and seeded white noise.
package testkit

import (
	"math"
	"math/rand"

	"gosane/domain/grid"
)

// Delta returns a side×side image with a single spike of the given amplitude.
func Delta(side, r, c int, amp float64) *grid.Image {
	img := grid.New(side)
	img.Set(r, c, amp)
	return img
}

// GaussianPSF returns a unit-peak circular Gaussian beam of the given FWHM
// centred at (side/2, side/2), the centring convention of the convolution
// backend.
func GaussianPSF(side int, fwhm float64) *grid.Image {
	return GaussianBlob(side, side/2, side/2, fwhm, 1)
}

// GaussianBlob returns a circular Gaussian of the given FWHM and peak
// amplitude centred at (r0, c0).
func GaussianBlob(side, r0, c0 int, fwhm, peak float64) *grid.Image {
	img := grid.New(side)
	sigma := fwhm / (2 * math.Sqrt(2*math.Log(2)))
	for r := 0; r < side; r++ {
		row := img.Row(r)
		for c := range row {
			dr := float64(r - r0)
			dc := float64(c - c0)
			row[c] = peak * math.Exp(-(dr*dr+dc*dc)/(2*sigma*sigma))
		}
	}
	return img
}

// AddNoise adds seeded Gaussian white noise of the given sigma in place and
// returns the image.
func AddNoise(img *grid.Image, sigma float64, seed int64) *grid.Image {
	rng := rand.New(rand.NewSource(seed))
	for i := range img.Data {
		img.Data[i] += sigma * rng.NormFloat64()
	}
	return img
}

// Sum returns the total flux of the image.
func Sum(img *grid.Image) float64 {
	total := 0.0
	for _, v := range img.Data {
		total += v
	}
	return total
}
