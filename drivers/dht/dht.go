// Package dht reads DHT11 and DHT22 class humidity and temperature sensors
// over a single bidirectional GPIO line.
//
// The sensor family shares one half duplex protocol without a clock line: the
// controller holds the bus low to request a conversion, the sensor answers
// with a fixed ack sequence and then streams 40 bits whose values are encoded
// purely in pulse widths. Decoding therefore happens in a busy polling loop
// with microsecond bounds rather than against a wall clock; see Read for the
// blocking contract this implies.
//
// A Device is not safe for concurrent use. Confine it to a single goroutine
// or serialize access externally; a read is a short bounded burst, so a plain
// mutex around Read is enough when sharing is unavoidable.
package dht

import (
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
)

// MinSamplingPeriod is the shortest interval between two bus transactions the
// sensor family tolerates. Read enforces it by replaying the previous outcome
// when called again too early.
const MinSamplingPeriod = 3 * time.Second

const frameSize = 5

// Model selects the frame encoding of the attached sensor. The handshake is
// identical across models apart from the start pulse duration.
type Model int

const (
	// DHT11 encodes whole percent and whole degrees in single bytes.
	DHT11 Model = iota
	// DHT22 encodes tenths in 16 bit words with a sign-magnitude
	// temperature. Also sold as AM2302.
	DHT22
)

func (m Model) String() string {
	if m == DHT22 {
		return "DHT22"
	}
	return "DHT11"
}

// ParseModel maps a configuration string onto a Model.
func ParseModel(value string) (Model, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "DHT11":
		return DHT11, nil
	case "DHT22", "AM2302":
		return DHT22, nil
	default:
		return DHT11, fmt.Errorf("unknown sensor model %q", value)
	}
}

func (m Model) startPulse() time.Duration {
	if m == DHT22 {
		// The data sheet asks for at least 1ms, doubled for margin.
		return 2 * time.Millisecond
	}
	// The data sheet asks for at least 18ms.
	return 20 * time.Millisecond
}

// Scale names a temperature unit for Temperature.
type Scale int

const (
	Celsius Scale = iota
	Fahrenheit
	Kelvin
)

func (s Scale) String() string {
	switch s {
	case Fahrenheit:
		return "fahrenheit"
	case Kelvin:
		return "kelvin"
	default:
		return "celsius"
	}
}

// ParseScale maps a configuration string onto a Scale.
func ParseScale(value string) (Scale, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "c", "celsius":
		return Celsius, nil
	case "f", "fahrenheit":
		return Fahrenheit, nil
	case "k", "kelvin":
		return Kelvin, nil
	default:
		return Celsius, fmt.Errorf("unknown temperature scale %q", value)
	}
}

// Device decodes one sensor attached to one Line.
type Device struct {
	model Model
	line  Line
	clock clock.Clock

	frame       [frameSize]byte
	temperature float64
	humidity    float64
	lastAttempt time.Time
	lastResult  error
}

// Option adjusts a Device during construction.
type Option func(*Device)

// WithClock replaces the clock used for sampling rate enforcement. Tests use
// this with a mock clock; production code has no reason to.
func WithClock(c clock.Clock) Option {
	return func(d *Device) {
		d.clock = c
	}
}

// New returns a Device for the given model on the given line. The sampling
// throttle is backdated so the first Read always reaches the bus.
func New(model Model, line Line, opts ...Option) *Device {
	d := &Device{
		model: model,
		line:  line,
		clock: clock.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.lastAttempt = d.clock.Now().Add(-MinSamplingPeriod)
	return d
}

// Model returns the model the device was constructed for.
func (d *Device) Model() Model {
	return d.model
}

// Temperature returns the temperature of the last successful Read converted
// to the requested scale. Unrecognised scales fall back to Celsius. The value
// is undefined until a Read has succeeded; check Read's error first.
func (d *Device) Temperature(scale Scale) float64 {
	switch scale {
	case Fahrenheit:
		return CelsiusToFahrenheit(d.temperature)
	case Kelvin:
		return CelsiusToKelvin(d.temperature)
	default:
		return d.temperature
	}
}

// Humidity returns the relative humidity percentage of the last successful
// Read. Undefined until a Read has succeeded.
func (d *Device) Humidity() float64 {
	return d.humidity
}

// CelsiusToFahrenheit converts a Celsius temperature to Fahrenheit.
func CelsiusToFahrenheit(celsius float64) float64 {
	return celsius*9/5 + 32
}

// CelsiusToKelvin converts a Celsius temperature to Kelvin.
func CelsiusToKelvin(celsius float64) float64 {
	return celsius + 273.15
}
