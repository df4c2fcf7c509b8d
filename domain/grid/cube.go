package grid

// Cube holds a stack of wavelet detail planes over a square grid. Plane 0 is
// the finest scale present; when a decomposition skips low scales the caller
// tracks the offset separately.
type Cube struct {
	Scales int
	Side   int
	Data   []float64
}

// NewCube creates a zeroed cube of the given depth and side length.
func NewCube(scales, side int) *Cube {
	return &Cube{
		Scales: scales,
		Side:   side,
		Data:   make([]float64, scales*side*side),
	}
}

// Plane returns plane i as a subslice of the backing buffer.
func (c *Cube) Plane(i int) []float64 {
	n := c.Side * c.Side
	return c.Data[i*n : (i+1)*n]
}

// PlaneImage wraps plane i as an Image sharing the backing buffer.
func (c *Cube) PlaneImage(i int) *Image {
	return FromData(c.Side, c.Plane(i))
}

// Clone returns a deep copy.
func (c *Cube) Clone() *Cube {
	out := NewCube(c.Scales, c.Side)
	copy(out.Data, c.Data)
	return out
}

// Slice returns a cube sharing the backing buffer restricted to planes
// [from, to).
func (c *Cube) Slice(from, to int) *Cube {
	n := c.Side * c.Side
	return &Cube{
		Scales: to - from,
		Side:   c.Side,
		Data:   c.Data[from*n : to*n],
	}
}

// Mask is a boolean cube marking retained wavelet coefficients.
type Mask struct {
	Scales int
	Side   int
	Bits   []bool
}

// NewMask creates a cleared mask of the given depth and side length.
func NewMask(scales, side int) *Mask {
	return &Mask{
		Scales: scales,
		Side:   side,
		Bits:   make([]bool, scales*side*side),
	}
}

// Plane returns plane i of the mask.
func (m *Mask) Plane(i int) []bool {
	n := m.Side * m.Side
	return m.Bits[i*n : (i+1)*n]
}

// Apply zeroes every coefficient of the cube not retained by the mask.
func (m *Mask) Apply(c *Cube) {
	for i, keep := range m.Bits {
		if !keep {
			c.Data[i] = 0
		}
	}
}

// Count returns the number of retained coefficients.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}
