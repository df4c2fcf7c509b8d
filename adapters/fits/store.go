// Package fits reads and writes sky images as FITS files. The primary HDU
// is expected to carry the image; higher-dimensional cubes (frequency,
// Stokes) are reduced to their first RA/Dec plane.
package fits

import (
	"fmt"
	"os"
	"strings"

	"github.com/astrogo/fitsio"

	"gosane/domain/grid"
	"gosane/ports"
)

// Store implements ports.ImageStore on FITS files. Names passed to the
// store are file paths.
type Store struct{}

// NewStore creates a FITS-backed image store.
func NewStore() *Store { return &Store{} }

// ReadImage loads the RA/Dec plane of the primary HDU. Pixel types are
// converted to float64; the returned header keeps every card so WriteImage
// can carry the world coordinate system through.
func (s *Store) ReadImage(name string) (*grid.Image, ports.ImageHeader, error) {
	r, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open fits %s: %w", name, err)
	}
	defer f.Close()

	hdu := f.HDU(0)
	img, ok := hdu.(fitsio.Image)
	if !ok {
		return nil, nil, fmt.Errorf("%s: primary HDU is not an image", name)
	}
	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) < 2 {
		return nil, nil, fmt.Errorf("%s: expected at least 2 axes, got %d", name, len(axes))
	}
	if err := checkSkyAxes(hdr, len(axes)); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}

	width, height := axes[0], axes[1]
	if width != height {
		return nil, nil, fmt.Errorf("%s: image is %dx%d, expected square", name, width, height)
	}

	data, err := readPixels(img, hdr.Bitpix())
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(data) < width*height {
		return nil, nil, fmt.Errorf("%s: short pixel data", name)
	}

	out := grid.FromData(width, data[:width*height])

	header := ports.ImageHeader{}
	for _, key := range hdr.Keys() {
		if card := hdr.Get(key); card != nil {
			header[key] = card.Value
		}
	}
	return out, header, nil
}

// checkSkyAxes verifies the RA/Dec plane sits on the first two axes, the
// only layout the flat plane cut below is valid for. CTYPEn cards that
// continue past naxis are checked as well.
func checkSkyAxes(hdr *fitsio.Header, naxis int) error {
	for i := 1; i <= naxis || hdr.Get(fmt.Sprintf("CTYPE%d", i)) != nil; i++ {
		card := hdr.Get(fmt.Sprintf("CTYPE%d", i))
		if card == nil {
			continue
		}
		ctype, _ := card.Value.(string)
		isSky := strings.HasPrefix(ctype, "RA") || strings.HasPrefix(ctype, "DEC")
		if isSky && i > 2 {
			return fmt.Errorf("sky axis %s on NAXIS%d; only leading RA/Dec axes are supported", ctype, i)
		}
	}
	return nil
}

// readPixels reads the HDU data as float64 regardless of the stored type.
func readPixels(img fitsio.Image, bitpix int) ([]float64, error) {
	switch bitpix {
	case -32:
		var raw []float32
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		out := make([]float64, len(raw))
		for i, v := range raw {
			out[i] = float64(v)
		}
		return out, nil
	case -64:
		var raw []float64
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		return raw, nil
	case 16:
		var raw []int16
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		out := make([]float64, len(raw))
		for i, v := range raw {
			out[i] = float64(v)
		}
		return out, nil
	case 32:
		var raw []int32
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		out := make([]float64, len(raw))
		for i, v := range raw {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}
}

// WriteImage stores img as a single-HDU float64 FITS file, carrying the
// given header cards through. Existing files are overwritten. Structural
// cards describing the source cube's shape are dropped since the output is
// always a plain 2D plane.
func (s *Store) WriteImage(name string, img *grid.Image, hdr ports.ImageHeader) error {
	if !strings.HasSuffix(name, ".fits") {
		name += ".fits"
	}
	w, err := os.Create(name)
	if err != nil {
		return err
	}
	defer w.Close()

	f, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("create fits %s: %w", name, err)
	}
	defer f.Close()

	out := fitsio.NewImage(-64, []int{img.Side, img.Side})
	defer out.Close()

	for name, value := range hdr {
		if skipCard(name) {
			continue
		}
		if err := out.Header().Append(fitsio.Card{Name: name, Value: value}); err != nil {
			return fmt.Errorf("append card %s: %w", name, err)
		}
	}
	if err := out.Write(&img.Data); err != nil {
		return fmt.Errorf("write pixels: %w", err)
	}
	return f.Write(out)
}

// skipCard filters header cards that describe the input's storage layout.
func skipCard(name string) bool {
	switch name {
	case "SIMPLE", "BITPIX", "NAXIS", "EXTEND", "END":
		return true
	}
	return strings.HasPrefix(name, "NAXIS")
}
