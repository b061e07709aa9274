package led

// HSV converts hue (degrees, any value; reduced mod 360), saturation and value
// (0-100) to RGB using integer sector arithmetic.
func HSV(h, s, v int) Color {
	h %= 360
	if h < 0 {
		h += 360
	}
	s = min(max(s, 0), 100)
	v = min(max(v, 0), 100)

	rgbMax := v * 255 / 100
	rgbMin := rgbMax * (100 - s) / 100
	i := h / 60
	diff := h % 60
	adj := (rgbMax - rgbMin) * diff / 60

	var r, g, b int
	switch i {
	case 0:
		r, g, b = rgbMax, rgbMin+adj, rgbMin
	case 1:
		r, g, b = rgbMax-adj, rgbMax, rgbMin
	case 2:
		r, g, b = rgbMin, rgbMax, rgbMin+adj
	case 3:
		r, g, b = rgbMin, rgbMax-adj, rgbMax
	case 4:
		r, g, b = rgbMin+adj, rgbMin, rgbMax
	default:
		r, g, b = rgbMax, rgbMin, rgbMax-adj
	}
	return Color{R: uint8(r), G: uint8(g), B: uint8(b)}
}
