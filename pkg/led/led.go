// Package led defines the addressable LED strip collaborator and colour
// helpers used by the effect scheduler.
//
// The strip is a frame buffer: [Strip.SetPixel] stages a colour and
// [Strip.Refresh] latches the staged frame onto the hardware. Callers
// serialise access; implementations need not be safe for concurrent use.
package led

// Color is an 8-bit RGB triple.
type Color struct {
	R, G, B uint8
}

// Black is the "off" colour.
var Black = Color{}

// Scale returns c with each channel multiplied by num/den (integer
// arithmetic, truncating). den must be positive.
func (c Color) Scale(num, den int) Color {
	if num <= 0 {
		return Black
	}
	if num >= den {
		return c
	}
	return Color{
		R: uint8(int(c.R) * num / den),
		G: uint8(int(c.G) * num / den),
		B: uint8(int(c.B) * num / den),
	}
}

// Strip is an addressable LED strip.
type Strip interface {
	// Init allocates a frame buffer for maxLeds pixels and prepares the
	// transport. Failure is fatal at startup.
	Init(maxLeds int) error

	// Len reports the number of pixels configured by Init.
	Len() int

	// SetPixel stages colour c for pixel index. Out-of-range indices are
	// ignored.
	SetPixel(index int, c Color)

	// Refresh latches the staged frame onto the LEDs.
	Refresh() error

	// Clear turns every pixel off and latches the result.
	Clear() error
}
