package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ada-assistant/ada/pkg/audio"
	"github.com/ada-assistant/ada/pkg/led"
	"github.com/ada-assistant/ada/pkg/provider/wake"
	"github.com/ada-assistant/ada/pkg/volume"
)

// ErrDriverNotRegistered is returned by Create* methods when no factory has
// been registered under the requested driver name.
var ErrDriverNotRegistered = errors.New("config: driver not registered")

// Registry maps driver names to constructors for each device kind. It is
// safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	microphone map[string]func(DeviceEntry) (audio.Source, error)
	speaker    map[string]func(DeviceEntry) (audio.Sink, error)
	ledStrip   map[string]func(DeviceEntry) (led.Strip, error)
	detector   map[string]func(DeviceEntry) (wake.Detector, error)
	volume     map[string]func(DeviceEntry) (volume.Reader, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		microphone: make(map[string]func(DeviceEntry) (audio.Source, error)),
		speaker:    make(map[string]func(DeviceEntry) (audio.Sink, error)),
		ledStrip:   make(map[string]func(DeviceEntry) (led.Strip, error)),
		detector:   make(map[string]func(DeviceEntry) (wake.Detector, error)),
		volume:     make(map[string]func(DeviceEntry) (volume.Reader, error)),
	}
}

// RegisterMicrophone registers a microphone factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterMicrophone(name string, factory func(DeviceEntry) (audio.Source, error)) {
	register(r, r.microphone, name, factory)
}

// RegisterSpeaker registers a speaker factory under name.
func (r *Registry) RegisterSpeaker(name string, factory func(DeviceEntry) (audio.Sink, error)) {
	register(r, r.speaker, name, factory)
}

// RegisterLEDStrip registers an LED strip factory under name.
func (r *Registry) RegisterLEDStrip(name string, factory func(DeviceEntry) (led.Strip, error)) {
	register(r, r.ledStrip, name, factory)
}

// RegisterDetector registers a wake detector factory under name.
func (r *Registry) RegisterDetector(name string, factory func(DeviceEntry) (wake.Detector, error)) {
	register(r, r.detector, name, factory)
}

// RegisterVolume registers a volume reader factory under name.
func (r *Registry) RegisterVolume(name string, factory func(DeviceEntry) (volume.Reader, error)) {
	register(r, r.volume, name, factory)
}

// CreateMicrophone instantiates the microphone registered under
// entry.Driver. Returns [ErrDriverNotRegistered] for unknown drivers.
func (r *Registry) CreateMicrophone(entry DeviceEntry) (audio.Source, error) {
	return create(r, r.microphone, "microphone", entry)
}

// CreateSpeaker instantiates the speaker registered under entry.Driver.
func (r *Registry) CreateSpeaker(entry DeviceEntry) (audio.Sink, error) {
	return create(r, r.speaker, "speaker", entry)
}

// CreateLEDStrip instantiates the LED strip registered under entry.Driver.
func (r *Registry) CreateLEDStrip(entry DeviceEntry) (led.Strip, error) {
	return create(r, r.ledStrip, "led_strip", entry)
}

// CreateDetector instantiates the wake detector registered under
// entry.Driver.
func (r *Registry) CreateDetector(entry DeviceEntry) (wake.Detector, error) {
	return create(r, r.detector, "detector", entry)
}

// CreateVolume instantiates the volume reader registered under
// entry.Driver.
func (r *Registry) CreateVolume(entry DeviceEntry) (volume.Reader, error) {
	return create(r, r.volume, "volume", entry)
}

func register[T any](r *Registry, m map[string]func(DeviceEntry) (T, error), name string, factory func(DeviceEntry) (T, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m[name] = factory
}

func create[T any](r *Registry, m map[string]func(DeviceEntry) (T, error), kind string, entry DeviceEntry) (T, error) {
	r.mu.RLock()
	factory, ok := m[entry.Driver]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrDriverNotRegistered, kind, entry.Driver)
	}
	return factory(entry)
}
