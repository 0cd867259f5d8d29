package service

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hygrod/hygrod/config"
	"github.com/hygrod/hygrod/drivers/dht"
	"github.com/hygrod/hygrod/drivers/display"
	"github.com/hygrod/hygrod/drivers/mqtt"
	"github.com/hygrod/hygrod/internal/gpio"
	"github.com/hygrod/hygrod/internal/sysinfo"
	"github.com/hygrod/hygrod/internal/words"
)

// Screen is the display surface the render sink drives.
type Screen interface {
	Init() error
	WriteLine(row int, text string) error
}

// ScreenFactory builds the screen for the display configuration and returns a
// release function for the claimed pins.
type ScreenFactory func(cfg config.DisplayConfig) (Screen, func() error, error)

func defaultScreenFactory(cfg config.DisplayConfig) (Screen, func() error, error) {
	closers := make([]func() error, 0, 6)
	release := func() error {
		var first error
		for _, closer := range closers {
			if err := closer(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	open := func(pin string) (*gpio.OutPin, error) {
		out, closer, err := gpio.OpenOutput(cfg.Driver, pin)
		if err != nil {
			return nil, fmt.Errorf("open pin %s: %w", pin, err)
		}
		closers = append(closers, closer)
		return out, nil
	}

	rs, err := open(cfg.RS)
	if err != nil {
		return nil, release, err
	}
	en, err := open(cfg.EN)
	if err != nil {
		return nil, release, err
	}
	var data [4]display.Pin
	for i, pin := range cfg.Data {
		out, err := open(pin)
		if err != nil {
			return nil, release, err
		}
		data[i] = out
	}
	return display.New(rs, en, data, cfg.Cols, cfg.Rows), release, nil
}

// displaySink renders the selected sensor's freshest reading on the LCD.
type displaySink struct {
	screen Screen
	sensor string
	scales map[string]dht.Scale
	logger zerolog.Logger
}

func newDisplaySink(cfg config.DisplayConfig, sensors []*Sensor, factory ScreenFactory, logger zerolog.Logger) (*displaySink, func() error, error) {
	screen, release, err := factory(cfg)
	if err != nil {
		return nil, release, err
	}
	if err := screen.Init(); err != nil {
		return nil, release, fmt.Errorf("init display: %w", err)
	}
	scales := make(map[string]dht.Scale, len(sensors))
	for _, sensor := range sensors {
		scales[sensor.Name] = sensor.Scale
	}
	return &displaySink{screen: screen, sensor: cfg.Sensor, scales: scales, logger: logger}, release, nil
}

// render shows the reading on two rows: the sensor name, then humidity and
// temperature in the sensor's configured scale.
func (d *displaySink) render(r Reading) {
	if err := d.screen.WriteLine(0, r.Sensor); err != nil {
		d.logger.Warn().Err(err).Msg("display write failed")
		return
	}
	scale := d.scales[r.Sensor]
	line := fmt.Sprintf("H:%.1f%% T:%.1f%s", r.Humidity, scaledTemperature(r.Temperature, scale), scaleUnit(scale))
	if err := d.screen.WriteLine(1, line); err != nil {
		d.logger.Warn().Err(err).Msg("display write failed")
	}
}

func scaledTemperature(celsius float64, scale dht.Scale) float64 {
	switch scale {
	case dht.Fahrenheit:
		return dht.CelsiusToFahrenheit(celsius)
	case dht.Kelvin:
		return dht.CelsiusToKelvin(celsius)
	default:
		return celsius
	}
}

func scaleUnit(scale dht.Scale) string {
	switch scale {
	case dht.Fahrenheit:
		return "F"
	case dht.Kelvin:
		return "K"
	default:
		return "C"
	}
}

// pick selects the reading to render: the configured sensor's, or the
// freshest one available.
func (d *displaySink) pick(statuses []SensorStatus) (Reading, bool) {
	var best *Reading
	for _, status := range statuses {
		if status.Reading == nil {
			continue
		}
		if d.sensor != "" {
			if status.Sensor == d.sensor {
				return *status.Reading, true
			}
			continue
		}
		if best == nil || status.Reading.Timestamp.After(best.Timestamp) {
			best = status.Reading
		}
	}
	if best == nil {
		return Reading{}, false
	}
	return *best, true
}

// mqttSink bundles the broker connection with the publishers built on it.
type mqttSink struct {
	conn      *mqtt.Connection
	publisher *mqtt.Publisher
	responder *mqtt.Responder
	alerts    map[string]config.AlertConfig
}

func newMQTTSink(cfg *config.MQTTConfig, name string, alerts []config.AlertConfig, sensors []*Sensor, logger zerolog.Logger) (*mqttSink, error) {
	settings, err := mqtt.NewSettings(name, *cfg)
	if err != nil {
		return nil, err
	}
	conn, err := mqtt.Dial(settings, logger)
	if err != nil {
		return nil, err
	}
	publisher := mqtt.NewPublisher(conn, logger)

	infos := make([]mqtt.SensorInfo, 0, len(sensors))
	for _, sensor := range sensors {
		infos = append(infos, mqtt.SensorInfo{
			Name:     sensor.Name,
			Model:    sensor.Model.String(),
			Location: sensor.Location,
		})
	}
	if err := publisher.EnsureDiscovery(infos); err != nil {
		logger.Error().Err(err).Msg("mqtt discovery failed")
	}

	responder := mqtt.NewResponder(conn, logger, sentenceSource())
	if err := responder.Subscribe(); err != nil {
		conn.Close()
		return nil, err
	}

	byName := make(map[string]config.AlertConfig, len(alerts))
	for _, alert := range alerts {
		byName[alert.Name] = alert
	}
	return &mqttSink{conn: conn, publisher: publisher, responder: responder, alerts: byName}, nil
}

func (m *mqttSink) publishReading(r Reading) ([]string, error) {
	return m.publisher.PublishMeasurement(mqtt.Measurement{
		Sensor:      r.Sensor,
		Model:       r.Model,
		Location:    r.Location,
		Temperature: mqtt.Tenths(r.Temperature),
		Humidity:    mqtt.Tenths(r.Humidity),
		DewPoint:    mqtt.Tenths(r.DewPoint),
		Timestamp:   r.Timestamp,
	})
}

func (m *mqttSink) publishAlert(name, state, message string) error {
	alert, ok := m.alerts[name]
	if !ok {
		alert = config.AlertConfig{Name: name}
	}
	return m.publisher.PublishAlert(alert, state, message)
}

func (m *mqttSink) publishStats(collector *sysinfo.Collector, now time.Time) error {
	docs := []struct {
		kind string
		doc  any
	}{
		{"network", collector.Network()},
		{"profile", collector.Profile()},
		{"runtime", collector.Runtime()},
		{"heap", collector.Heap()},
	}
	for _, entry := range docs {
		if err := m.publisher.PublishStats(entry.kind, entry.doc); err != nil {
			return err
		}
	}
	return m.publisher.PublishTime(now, collector.Uptime())
}

func (m *mqttSink) close() {
	m.conn.Close()
}

// sentenceSource wraps the word generator with a lock so concurrent command
// handlers can share one rand stream.
func sentenceSource() func() string {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		return words.Sentence(rng)
	}
}
