// Package service runs the acquisition cycle: it reads every configured
// sensor in turn, stores the outcome, evaluates alert rules, and feeds the
// configured sinks.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/hygrod/hygrod/config"
	"github.com/hygrod/hygrod/drivers/dht"
	"github.com/hygrod/hygrod/drivers/mqtt"
	"github.com/hygrod/hygrod/internal/sysinfo"
	"github.com/hygrod/hygrod/telemetry"
)

// Service owns the sensors, the reading store, and the sinks.
type Service struct {
	cfg    *config.Config
	logger zerolog.Logger

	sensors []*Sensor
	store   *Store
	rules   []*alertRule

	display *displaySink
	mqtt    *mqttSink
	sysinfo *sysinfo.Collector

	telemetry telemetry.Collector
	clock     clock.Clock

	liveView *liveViewServer
	closers  []func() error

	startedAt time.Time
	lastStats time.Time

	metricsMu sync.Mutex
	metrics   CycleMetrics
}

// CycleMetrics summarizes the acquisition loop for the liveview.
type CycleMetrics struct {
	CycleCount   uint64        `json:"cycle_count"`
	LastDuration time.Duration `json:"last_duration_ns"`
	LastErrors   int           `json:"last_errors"`
}

// Option adjusts service construction.
type Option func(*serviceOptions)

type serviceOptions struct {
	deviceFactory DeviceFactory
	screenFactory ScreenFactory
	collector     telemetry.Collector
	clock         clock.Clock
	disableMQTT   bool
}

// WithDeviceFactory overrides how sensor devices are built.
func WithDeviceFactory(factory DeviceFactory) Option {
	return func(o *serviceOptions) { o.deviceFactory = factory }
}

// WithScreenFactory overrides how the display screen is built.
func WithScreenFactory(factory ScreenFactory) Option {
	return func(o *serviceOptions) { o.screenFactory = factory }
}

// WithCollector sets the telemetry collector.
func WithCollector(collector telemetry.Collector) Option {
	return func(o *serviceOptions) { o.collector = collector }
}

// WithClock substitutes the time source.
func WithClock(clk clock.Clock) Option {
	return func(o *serviceOptions) { o.clock = clk }
}

// WithoutMQTT skips the broker connection even when configured.
func WithoutMQTT() Option {
	return func(o *serviceOptions) { o.disableMQTT = true }
}

// New assembles a service from the configuration.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Service, error) {
	options := serviceOptions{
		deviceFactory: defaultDeviceFactory,
		screenFactory: defaultScreenFactory,
		collector:     telemetry.Noop(),
		clock:         clock.New(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	svc := &Service{
		cfg:       cfg,
		logger:    logger,
		telemetry: options.collector,
		clock:     options.clock,
		sysinfo:   sysinfo.New(),
		startedAt: options.clock.Now(),
	}

	sensors, closers, err := buildSensors(cfg.Sensors, options.deviceFactory)
	svc.closers = append(svc.closers, closers...)
	if err != nil {
		svc.release()
		return nil, err
	}
	svc.sensors = sensors

	names := make([]string, 0, len(sensors))
	for _, sensor := range sensors {
		names = append(names, sensor.Name)
	}
	svc.store = newStore(names)

	svc.rules, err = compileAlerts(cfg.Alerts)
	if err != nil {
		svc.release()
		return nil, err
	}

	if cfg.Display != nil && cfg.Display.Enabled {
		sink, release, derr := newDisplaySink(*cfg.Display, sensors, options.screenFactory, logger)
		if release != nil {
			svc.closers = append(svc.closers, release)
		}
		if derr != nil {
			svc.release()
			return nil, derr
		}
		svc.display = sink
	}

	if cfg.MQTT != nil && cfg.MQTT.Enabled && !options.disableMQTT {
		sink, merr := newMQTTSink(cfg.MQTT, cfg.Name, cfg.Alerts, sensors, logger)
		if merr != nil {
			svc.release()
			return nil, merr
		}
		svc.mqtt = sink
	}

	if cfg.Liveview.Enabled {
		liveView, lerr := newLiveViewServer(cfg.LiveviewListen(), svc, logger)
		if lerr != nil {
			svc.release()
			return nil, lerr
		}
		svc.liveView = liveView
	}

	return svc, nil
}

// Run executes acquisition cycles until the context is cancelled. The first
// cycle starts immediately.
func (s *Service) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.cfg.SampleInterval())
	defer ticker.Stop()

	if err := s.IterateOnce(ctx, s.clock.Now()); err != nil {
		s.logger.Error().Err(err).Msg("iteration failure")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := s.IterateOnce(ctx, now); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				s.logger.Error().Err(err).Msg("iteration failure")
			}
		}
	}
}

// IterateOnce performs a single acquisition cycle. The context is consulted
// between sensors, never inside an ongoing line transaction.
func (s *Service) IterateOnce(ctx context.Context, now time.Time) error {
	start := s.clock.Now()

	cycleErrors := s.acquirePhase(ctx, now)
	statuses := s.store.Snapshot()
	s.alertPhase(statuses, now)
	s.publishPhase(statuses)
	s.statsPhase(now)

	elapsed := s.clock.Now().Sub(start)
	s.metricsMu.Lock()
	s.metrics.CycleCount++
	s.metrics.LastDuration = elapsed
	s.metrics.LastErrors = cycleErrors
	s.metricsMu.Unlock()
	s.telemetry.ObserveCycle(elapsed)
	return ctx.Err()
}

func (s *Service) acquirePhase(ctx context.Context, now time.Time) int {
	failures := 0
	for _, sensor := range s.sensors {
		if ctx.Err() != nil {
			return failures
		}
		if err := sensor.device.Read(); err != nil {
			reason := errorReason(err)
			s.store.SetError(sensor.Name, reason, now)
			s.telemetry.IncReadError(sensor.Name, reason)
			s.logger.Warn().
				Str("sensor", sensor.Name).
				Str("reason", reason).
				Err(err).
				Msg("sensor read failed")
			failures++
			continue
		}
		celsius := sensor.device.Temperature(dht.Celsius)
		humidity := sensor.device.Humidity()
		reading := Reading{
			Sensor:      sensor.Name,
			Model:       sensor.Model.String(),
			Location:    sensor.Location,
			Temperature: celsius,
			Humidity:    humidity,
			DewPoint:    dht.DewPoint(celsius, humidity),
			Timestamp:   now,
		}
		s.store.SetReading(reading)
		s.telemetry.ObserveReading(sensor.Name, celsius, humidity, reading.DewPoint)
		s.logger.Debug().
			Str("sensor", sensor.Name).
			Float64("temperature", celsius).
			Float64("humidity", humidity).
			Float64("dew_point", reading.DewPoint).
			Msg("sensor read")
	}
	return failures
}

func (s *Service) alertPhase(statuses []SensorStatus, now time.Time) {
	for _, rule := range s.rules {
		for _, status := range statuses {
			event, err := rule.evaluate(status, now)
			if err != nil {
				s.logger.Debug().
					Str("alert", rule.cfg.Name).
					Str("sensor", status.Sensor).
					Err(err).
					Msg("alert rule evaluation failed")
				continue
			}
			switch event {
			case alertFired:
				message := rule.message(status)
				s.logger.Warn().
					Str("alert", rule.cfg.Name).
					Str("sensor", status.Sensor).
					Msg(message)
				s.telemetry.IncAlert(rule.cfg.Name)
				s.notifyAlert(rule.cfg.Name, "firing", message)
			case alertCleared:
				message := rule.clearedMessage(status)
				s.logger.Info().
					Str("alert", rule.cfg.Name).
					Str("sensor", status.Sensor).
					Msg(message)
				s.notifyAlert(rule.cfg.Name, "cleared", message)
			}
		}
	}
}

func (s *Service) notifyAlert(name, state, message string) {
	if s.mqtt == nil {
		return
	}
	if err := s.mqtt.publishAlert(name, state, message); err != nil {
		s.logger.Error().Err(err).Str("alert", name).Msg("alert publish failed")
	}
}

func (s *Service) publishPhase(statuses []SensorStatus) {
	if s.mqtt != nil {
		for _, status := range statuses {
			if status.Reading == nil || status.LastError != "" {
				continue
			}
			topics, err := s.mqtt.publishReading(*status.Reading)
			if err != nil {
				s.logger.Error().Err(err).Str("sensor", status.Sensor).Msg("reading publish failed")
			}
			for _, topic := range topics {
				s.telemetry.IncPublish(topic)
			}
		}
	}

	if s.display != nil {
		if reading, ok := s.display.pick(statuses); ok {
			s.display.render(reading)
		}
	}
}

func (s *Service) statsPhase(now time.Time) {
	if s.mqtt == nil {
		return
	}
	if !s.lastStats.IsZero() && now.Sub(s.lastStats) < s.cfg.StatsPeriod() {
		return
	}
	s.lastStats = now
	if err := s.mqtt.publishStats(s.sysinfo, now); err != nil {
		s.logger.Error().Err(err).Msg("stats publish failed")
	}
}

// Metrics returns the cycle counters.
func (s *Service) Metrics() CycleMetrics {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()
	return s.metrics
}

// Snapshot returns the current per-sensor statuses.
func (s *Service) Snapshot() []SensorStatus {
	return s.store.Snapshot()
}

// AlertStatuses returns the state of every alert rule.
func (s *Service) AlertStatuses() []AlertStatus {
	statuses := make([]AlertStatus, 0, len(s.rules))
	for _, rule := range s.rules {
		statuses = append(statuses, rule.status())
	}
	return statuses
}

// Uptime reports how long the service has been running.
func (s *Service) Uptime() time.Duration {
	return s.clock.Now().Sub(s.startedAt)
}

func (s *Service) release() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn().Err(err).Msg("release failed")
		}
	}
	s.closers = nil
}

// Validate compiles everything the service would compile at start without
// touching hardware or the network: alert rules and, when MQTT is enabled,
// the broker settings.
func Validate(cfg *config.Config) error {
	if _, err := compileAlerts(cfg.Alerts); err != nil {
		return err
	}
	if cfg.MQTT != nil && cfg.MQTT.Enabled {
		if _, err := mqtt.NewSettings(cfg.Name, *cfg.MQTT); err != nil {
			return err
		}
	}
	return nil
}

// Close shuts down the liveview server, the broker connection, and the
// claimed GPIO lines.
func (s *Service) Close() error {
	if s.liveView != nil {
		s.liveView.Close()
	}
	if s.mqtt != nil {
		s.mqtt.close()
	}
	s.release()
	return nil
}
