package audio

import "encoding/binary"

// FirstChannel extracts channel 0 of interleaved samples into dst and returns
// the filled prefix. dst must hold at least len(src)/channels samples. With a
// single channel src is copied.
func FirstChannel(dst, src []int16, channels int) []int16 {
	if channels <= 1 {
		n := copy(dst, src)
		return dst[:n]
	}
	frames := len(src) / channels
	for i := range frames {
		dst[i] = src[i*channels]
	}
	return dst[:frames]
}

// IsSilent reports whether every sample's magnitude is at or below threshold.
// Threshold is in raw PCM units.
func IsSilent(samples []int16, threshold int) bool {
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > threshold {
			return false
		}
	}
	return true
}

// Int16ToBytes encodes samples as little-endian PCM into dst, growing it as
// needed, and returns the result.
func Int16ToBytes(dst []byte, samples []int16) []byte {
	need := len(samples) * 2
	if cap(dst) < need {
		dst = make([]byte, need)
	}
	dst = dst[:need]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(s))
	}
	return dst
}

// BytesToInt16 decodes little-endian PCM. A trailing odd byte is ignored.
func BytesToInt16(dst []int16, p []byte) []int16 {
	n := len(p) / 2
	if cap(dst) < n {
		dst = make([]int16, n)
	}
	dst = dst[:n]
	for i := range n {
		dst[i] = int16(binary.LittleEndian.Uint16(p[i*2:]))
	}
	return dst
}

// ScaleVolume scales little-endian PCM in place by percent/100. Values of
// 100 or more leave p unchanged.
func ScaleVolume(p []byte, percent uint8) {
	if percent >= 100 {
		return
	}
	for i := 0; i+1 < len(p); i += 2 {
		s := int32(int16(binary.LittleEndian.Uint16(p[i:])))
		s = s * int32(percent) / 100
		binary.LittleEndian.PutUint16(p[i:], uint16(int16(s)))
	}
}

// Resample converts mono samples from srcRate to dstRate with linear
// interpolation. Equal or invalid rates return samples unchanged.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	out := make([]int16, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}
