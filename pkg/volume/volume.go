// Package volume provides the output gain consulted by the playback
// scheduler before each speaker write.
//
// A [Reader] reports gain as a percentage in 0..100. [Fixed] serves a
// configured constant; [Potentiometer] maps a 12-bit ADC reading of a volume
// knob, sampled through a [Sampler].
package volume

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Reader reports the current output gain in percent (0..100).
type Reader interface {
	Volume() uint8
}

// Fixed is a constant [Reader].
type Fixed uint8

// Volume implements [Reader], clamping to 100.
func (f Fixed) Volume() uint8 { return min(uint8(f), 100) }

// Sampler returns one raw ADC reading.
type Sampler interface {
	Sample() (int, error)
}

const (
	adcMax       = 4095
	adcRefMillis = 3300
	potSamples   = 10
)

// Potentiometer converts averaged ADC samples of a volume knob to percent.
// The raw average maps to millivolts against a 3.3 V reference and then
// linearly to 0..100.
type Potentiometer struct {
	sampler Sampler

	mu       sync.Mutex
	last     uint8
	warnOnce sync.Once
}

// NewPotentiometer returns a reader over s. Until the first successful read
// the reported volume is 100.
func NewPotentiometer(s Sampler) *Potentiometer {
	return &Potentiometer{sampler: s, last: 100}
}

// Volume implements [Reader]. When sampling fails the last good value is
// reported and the failure is logged once.
func (p *Potentiometer) Volume() uint8 {
	var sum, n int
	for range potSamples {
		raw, err := p.sampler.Sample()
		if err != nil {
			p.warnOnce.Do(func() {
				slog.Warn("volume: potentiometer read failed, keeping last value", "err", err)
			})
			continue
		}
		sum += raw
		n++
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if n == 0 {
		return p.last
	}
	p.last = Percent(sum / n)
	return p.last
}

// Percent maps a raw 12-bit ADC value to a 0..100 volume.
func Percent(raw int) uint8 {
	raw = min(max(raw, 0), adcMax)
	mv := raw * adcRefMillis / adcMax
	return uint8(min(mv*100/adcRefMillis, 100))
}

// SysfsSampler reads a Linux IIO channel such as
// /sys/bus/iio/devices/iio:device0/in_voltage0_raw.
type SysfsSampler struct {
	fs   afero.Fs
	path string
}

// NewSysfsSampler returns a sampler reading path on fs.
func NewSysfsSampler(fs afero.Fs, path string) *SysfsSampler {
	return &SysfsSampler{fs: fs, path: path}
}

// Sample implements [Sampler].
func (s *SysfsSampler) Sample() (int, error) {
	b, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return 0, fmt.Errorf("volume: read %s: %w", s.path, err)
	}
	txt := strings.TrimSpace(string(b))
	if txt == "" {
		return 0, errors.New("volume: empty adc reading")
	}
	v, err := strconv.Atoi(txt)
	if err != nil {
		return 0, fmt.Errorf("volume: parse adc reading %q: %w", txt, err)
	}
	return v, nil
}
