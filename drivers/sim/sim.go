// Package sim provides a synthetic sensor device for commissioning a
// deployment before the hardware is wired up. Readings follow a bounded
// random walk quantized to the emulated model's resolution, and an optional
// failure rate injects the bus errors a real line produces.
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/hygrod/hygrod/drivers/dht"
)

// Driver is the configuration value that selects this device.
const Driver = "sim"

const (
	defaultTemperatureMin = 18
	defaultTemperatureMax = 28
	defaultHumidityMin    = 35
	defaultHumidityMax    = 75

	temperatureStep = 0.3
	humidityStep    = 1.2
)

// failureModes are the errors injected when the failure rate trips.
var failureModes = []error{
	dht.ErrChecksum,
	dht.ErrAckTimeout,
	dht.ErrNotDetected,
}

// Sensor emulates one sensor. Safe for use from a single acquisition loop;
// accessors may race with Read and take the same lock.
type Sensor struct {
	mu    sync.Mutex
	model dht.Model
	rng   *rand.Rand

	temperature float64
	humidity    float64

	temperatureMin float64
	temperatureMax float64
	humidityMin    float64
	humidityMax    float64
	failureRate    float64
}

// Option adjusts a Sensor during construction.
type Option func(*Sensor)

// WithSeed makes the walk deterministic.
func WithSeed(seed int64) Option {
	return func(s *Sensor) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithTemperatureRange bounds the temperature walk in degrees Celsius.
func WithTemperatureRange(min, max float64) Option {
	return func(s *Sensor) {
		s.temperatureMin = min
		s.temperatureMax = max
	}
}

// WithHumidityRange bounds the humidity walk in percent.
func WithHumidityRange(min, max float64) Option {
	return func(s *Sensor) {
		s.humidityMin = min
		s.humidityMax = max
	}
}

// WithFailureRate makes the given fraction of reads fail with a rotating
// bus error. Values at or below zero disable injection, values at or above
// one fail every read.
func WithFailureRate(rate float64) Option {
	return func(s *Sensor) {
		s.failureRate = rate
	}
}

// New returns a Sensor emulating the given model. The walk starts at a
// random point inside the configured ranges.
func New(model dht.Model, opts ...Option) *Sensor {
	s := &Sensor{
		model:          model,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		temperatureMin: defaultTemperatureMin,
		temperatureMax: defaultTemperatureMax,
		humidityMin:    defaultHumidityMin,
		humidityMax:    defaultHumidityMax,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.temperature = s.quantize(s.between(s.temperatureMin, s.temperatureMax))
	s.humidity = s.quantize(s.between(s.humidityMin, s.humidityMax))
	return s
}

// Read advances the walk or injects a failure. The previous values survive
// a failed read, matching the hardware driver's trust rule.
func (s *Sensor) Read() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failureRate > 0 && s.rng.Float64() < s.failureRate {
		mode := failureModes[s.rng.Intn(len(failureModes))]
		return fmt.Errorf("simulated read: %w", mode)
	}
	s.temperature = s.step(s.temperature, s.temperatureMin, s.temperatureMax, temperatureStep)
	s.humidity = s.step(s.humidity, s.humidityMin, s.humidityMax, humidityStep)
	return nil
}

// Temperature returns the temperature of the last successful Read converted
// to the requested scale.
func (s *Sensor) Temperature(scale dht.Scale) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch scale {
	case dht.Fahrenheit:
		return dht.CelsiusToFahrenheit(s.temperature)
	case dht.Kelvin:
		return dht.CelsiusToKelvin(s.temperature)
	default:
		return s.temperature
	}
}

// Humidity returns the relative humidity percentage of the last successful
// Read.
func (s *Sensor) Humidity() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.humidity
}

func (s *Sensor) between(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + s.rng.Float64()*(max-min)
}

func (s *Sensor) step(value, min, max, width float64) float64 {
	value += (s.rng.Float64()*2 - 1) * width
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	return s.quantize(value)
}

// quantize rounds to the emulated model's resolution: whole units for the
// DHT11, tenths for the DHT22.
func (s *Sensor) quantize(value float64) float64 {
	if s.model == dht.DHT11 {
		return math.Round(value)
	}
	return math.Round(value*10) / 10
}
