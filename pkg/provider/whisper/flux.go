package whisper

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// fluxGate spots speech onsets by spectral flux so whisper inference only
// runs when something new is said. After an onset the gate stays open for
// hold observations so a phrase spanning several chunks is fully captured.
type fluxGate struct {
	ratio float64
	floor float64
	hold  int

	prev      []float64
	lastFlux  float64
	remaining int
}

func newFluxGate(ratio, floor float64, hold int) *fluxGate {
	return &fluxGate{ratio: ratio, floor: floor, hold: hold}
}

// observe feeds one chunk and reports whether the gate is open.
func (g *fluxGate) observe(samples []int16) bool {
	x := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = float64(s) / 32768.0
	}
	spec := fft.FFTReal(x)
	mags := make([]float64, len(spec)/2+1)
	for i := range mags {
		mags[i] = cmplx.Abs(spec[i])
	}

	var flux float64
	if len(g.prev) == len(mags) {
		for i, m := range mags {
			if d := m - g.prev[i]; d > 0 {
				flux += d
			}
		}
	}
	g.prev = mags

	if flux > g.floor && flux >= g.lastFlux*g.ratio {
		g.remaining = g.hold
	}
	g.lastFlux = flux

	if g.remaining > 0 {
		g.remaining--
		return true
	}
	return false
}

func (g *fluxGate) reset() {
	g.prev = nil
	g.lastFlux = 0
	g.remaining = 0
}
