package service

import (
	"errors"
	"fmt"

	"github.com/hygrod/hygrod/config"
	"github.com/hygrod/hygrod/drivers/dht"
	"github.com/hygrod/hygrod/drivers/sim"
	"github.com/hygrod/hygrod/internal/gpio"
)

// Device is the sensor surface the acquisition cycle drives.
type Device interface {
	Read() error
	Temperature(scale dht.Scale) float64
	Humidity() float64
}

// DeviceFactory builds the device for one configured sensor and returns a
// release function for the underlying line.
type DeviceFactory func(cfg config.SensorConfig) (Device, func() error, error)

// Sensor couples a configured device with its identity.
type Sensor struct {
	Name     string
	Model    dht.Model
	Location string
	Scale    dht.Scale
	device   Device
}

func defaultDeviceFactory(cfg config.SensorConfig) (Device, func() error, error) {
	model, err := dht.ParseModel(cfg.Model)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Driver == sim.Driver {
		return sim.New(model), nil, nil
	}
	line, closeLine, err := gpio.OpenLine(cfg.Driver, cfg.Pin)
	if err != nil {
		return nil, nil, fmt.Errorf("open pin %s: %w", cfg.Pin, err)
	}
	return dht.New(model, line), closeLine, nil
}

func buildSensors(cfgs []config.SensorConfig, factory DeviceFactory) ([]*Sensor, []func() error, error) {
	sensors := make([]*Sensor, 0, len(cfgs))
	closers := make([]func() error, 0, len(cfgs))
	for _, cfg := range cfgs {
		model, err := dht.ParseModel(cfg.Model)
		if err != nil {
			return nil, closers, fmt.Errorf("sensor %s: %w", cfg.Name, err)
		}
		scale := dht.Celsius
		if cfg.Scale != "" {
			scale, err = dht.ParseScale(cfg.Scale)
			if err != nil {
				return nil, closers, fmt.Errorf("sensor %s: %w", cfg.Name, err)
			}
		}
		device, release, err := factory(cfg)
		if err != nil {
			return nil, closers, fmt.Errorf("sensor %s: %w", cfg.Name, err)
		}
		if release != nil {
			closers = append(closers, release)
		}
		sensors = append(sensors, &Sensor{
			Name:     cfg.Name,
			Model:    model,
			Location: cfg.Location,
			Scale:    scale,
			device:   device,
		})
	}
	return sensors, closers, nil
}

// errorReason maps an acquisition error onto a stable label used for the
// store tallies and the telemetry counter.
func errorReason(err error) string {
	switch {
	case errors.Is(err, dht.ErrBusBusy):
		return "bus_busy"
	case errors.Is(err, dht.ErrNotDetected):
		return "not_detected"
	case errors.Is(err, dht.ErrAckTimeout):
		return "ack_timeout"
	case errors.Is(err, dht.ErrSyncTimeout):
		return "sync_timeout"
	case errors.Is(err, dht.ErrDataTimeout):
		return "data_timeout"
	case errors.Is(err, dht.ErrChecksum):
		return "checksum"
	case errors.Is(err, dht.ErrTooFrequent):
		return "throttled"
	default:
		return "other"
	}
}
