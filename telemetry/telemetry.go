package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the acquisition service.
//
// Implementations must be inexpensive to call: hooks run inline with the
// acquisition cycle between sensor transactions.
type Collector interface {
	ObserveReading(sensor string, temperature, humidity, dewPoint float64)
	IncReadError(sensor, reason string)
	IncPublish(topic string)
	IncAlert(name string)
	ObserveCycle(d time.Duration)
	IncHotReload(file string)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) ObserveReading(string, float64, float64, float64) {}
func (noopCollector) IncReadError(string, string)                      {}
func (noopCollector) IncPublish(string)                                {}
func (noopCollector) IncAlert(string)                                  {}
func (noopCollector) ObserveCycle(time.Duration)                       {}
func (noopCollector) IncHotReload(string)                              {}

// PrometheusCollector exposes the service metrics via Prometheus.
type PrometheusCollector struct {
	temperature *prometheus.GaugeVec
	humidity    *prometheus.GaugeVec
	dewPoint    *prometheus.GaugeVec
	readErrors  *prometheus.CounterVec
	publishes   *prometheus.CounterVec
	alerts      *prometheus.CounterVec
	cycles      prometheus.Histogram
	hotReloads  *prometheus.CounterVec
}

// NewPrometheusCollector registers the service metrics with the provided
// registerer, reusing collectors that are already present so repeated
// construction after a hot reload does not fail.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	temperature, err := registerGaugeVec(reg, prometheus.GaugeOpts{
		Name: "hygrod_sensor_temperature_celsius",
		Help: "Temperature of the last valid reading per sensor.",
	}, []string{"sensor"})
	if err != nil {
		return nil, err
	}
	humidity, err := registerGaugeVec(reg, prometheus.GaugeOpts{
		Name: "hygrod_sensor_humidity_percent",
		Help: "Relative humidity of the last valid reading per sensor.",
	}, []string{"sensor"})
	if err != nil {
		return nil, err
	}
	dewPoint, err := registerGaugeVec(reg, prometheus.GaugeOpts{
		Name: "hygrod_sensor_dew_point_celsius",
		Help: "Dew point derived from the last valid reading per sensor.",
	}, []string{"sensor"})
	if err != nil {
		return nil, err
	}
	readErrors, err := registerCounterVec(reg, prometheus.CounterOpts{
		Name: "hygrod_sensor_read_errors_total",
		Help: "Failed sensor reads by sensor and failure reason.",
	}, []string{"sensor", "reason"})
	if err != nil {
		return nil, err
	}
	publishes, err := registerCounterVec(reg, prometheus.CounterOpts{
		Name: "hygrod_mqtt_publishes_total",
		Help: "Messages handed to the MQTT connection per topic.",
	}, []string{"topic"})
	if err != nil {
		return nil, err
	}
	alerts, err := registerCounterVec(reg, prometheus.CounterOpts{
		Name: "hygrod_alerts_fired_total",
		Help: "Alert firing transitions per rule.",
	}, []string{"alert"})
	if err != nil {
		return nil, err
	}
	cycles, err := registerHistogram(reg, prometheus.HistogramOpts{
		Name:    "hygrod_cycle_duration_seconds",
		Help:    "Wall time of one full acquisition cycle.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})
	if err != nil {
		return nil, err
	}
	hotReloads, err := registerCounterVec(reg, prometheus.CounterOpts{
		Name: "hygrod_config_hot_reload_total",
		Help: "Hot reload operations triggered per configuration file.",
	}, []string{"file"})
	if err != nil {
		return nil, err
	}

	return &PrometheusCollector{
		temperature: temperature,
		humidity:    humidity,
		dewPoint:    dewPoint,
		readErrors:  readErrors,
		publishes:   publishes,
		alerts:      alerts,
		cycles:      cycles,
		hotReloads:  hotReloads,
	}, nil
}

func registerGaugeVec(reg prometheus.Registerer, opts prometheus.GaugeOpts, labels []string) (*prometheus.GaugeVec, error) {
	gauge := prometheus.NewGaugeVec(opts, labels)
	if err := reg.Register(gauge); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.GaugeVec)
		if !ok {
			return nil, err
		}
		return existing, nil
	}
	return gauge, nil
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		return existing, nil
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, opts prometheus.HistogramOpts) (prometheus.Histogram, error) {
	histogram := prometheus.NewHistogram(opts)
	if err := reg.Register(histogram); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(prometheus.Histogram)
		if !ok {
			return nil, err
		}
		return existing, nil
	}
	return histogram, nil
}

// ObserveReading updates the per sensor gauges after a valid read.
func (p *PrometheusCollector) ObserveReading(sensor string, temperature, humidity, dewPoint float64) {
	if p == nil {
		return
	}
	p.temperature.WithLabelValues(sensor).Set(temperature)
	p.humidity.WithLabelValues(sensor).Set(humidity)
	p.dewPoint.WithLabelValues(sensor).Set(dewPoint)
}

// IncReadError counts a failed read against its failure reason.
func (p *PrometheusCollector) IncReadError(sensor, reason string) {
	if p == nil || p.readErrors == nil {
		return
	}
	p.readErrors.WithLabelValues(sensor, reason).Inc()
}

// IncPublish counts a message handed to the MQTT connection.
func (p *PrometheusCollector) IncPublish(topic string) {
	if p == nil || p.publishes == nil {
		return
	}
	p.publishes.WithLabelValues(topic).Inc()
}

// IncAlert counts a fired alert rule.
func (p *PrometheusCollector) IncAlert(name string) {
	if p == nil || p.alerts == nil {
		return
	}
	p.alerts.WithLabelValues(name).Inc()
}

// ObserveCycle records the wall time of one acquisition cycle.
func (p *PrometheusCollector) ObserveCycle(d time.Duration) {
	if p == nil || p.cycles == nil {
		return
	}
	p.cycles.Observe(d.Seconds())
}

// IncHotReload increments the reload counter for the given file path.
func (p *PrometheusCollector) IncHotReload(file string) {
	if p == nil || p.hotReloads == nil {
		return
	}
	p.hotReloads.WithLabelValues(file).Inc()
}
