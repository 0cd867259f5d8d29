package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hygrod/hygrod/config"
)

// Measure names used as topic suffixes below a sensor.
const (
	MeasureTemperature = "temperature"
	MeasureHumidity    = "humidity"
	MeasureDewPoint    = "dew_point"
)

// Publisher pushes measurement, statistics, and alert documents to the broker
// while applying the configured deadband and rate gates per topic.
type Publisher struct {
	conn   *Connection
	logger zerolog.Logger

	mu   sync.Mutex
	last map[string]Sample
	ha   *homeAssistantPublisher
}

// NewPublisher wraps a connection with publish gating state.
func NewPublisher(conn *Connection, logger zerolog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
		last:   make(map[string]Sample),
	}
}

// PublishMeasurement publishes the bare value topics that pass the configured
// gates, plus the JSON state document whenever at least one value changed.
// The returned slice lists the topics that were actually published.
func (p *Publisher) PublishMeasurement(m Measurement) ([]string, error) {
	settings := p.conn.Settings()
	values := []struct {
		measure string
		value   float64
	}{
		{MeasureTemperature, float64(m.Temperature)},
		{MeasureHumidity, float64(m.Humidity)},
		{MeasureDewPoint, float64(m.DewPoint)},
	}

	published := make([]string, 0, len(values)+1)
	for _, v := range values {
		topic := settings.ValueTopic(m.Sensor, v.measure)
		next := Sample{Value: v.value, Timestamp: m.Timestamp}
		if !p.passGate(topic, settings, next) {
			continue
		}
		payload := []byte(Tenths(v.value).String())
		if err := p.conn.Publish(topic, payload, settings.Retain); err != nil {
			return published, err
		}
		p.recordSample(topic, next)
		published = append(published, topic)
	}

	if len(published) == 0 {
		return nil, nil
	}

	stateTopic := settings.StateTopic(m.Sensor)
	body, err := EncodeMeasurement(m)
	if err != nil {
		return published, fmt.Errorf("mqtt: encode measurement: %w", err)
	}
	if err := p.conn.Publish(stateTopic, body, settings.Retain); err != nil {
		return published, err
	}
	published = append(published, stateTopic)
	return published, nil
}

func (p *Publisher) passGate(topic string, settings Settings, next Sample) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.last[topic]
	if !ok {
		return ShouldPublish(settings.Deadband, settings.MinInterval, nil, next)
	}
	return ShouldPublish(settings.Deadband, settings.MinInterval, &last, next)
}

func (p *Publisher) recordSample(topic string, sample Sample) {
	p.mu.Lock()
	p.last[topic] = sample
	p.mu.Unlock()
}

// PublishStats publishes one of the periodic device statistics documents.
func (p *Publisher) PublishStats(kind string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("mqtt: encode %s stats: %w", kind, err)
	}
	return p.conn.Publish(p.conn.Settings().StatsTopic(kind), body, false)
}

// PublishTime publishes the uptime and wall-clock beacons.
func (p *Publisher) PublishTime(now time.Time, uptime time.Duration) error {
	settings := p.conn.Settings()
	seconds := strconv.FormatInt(int64(uptime.Seconds()), 10)
	if err := p.conn.Publish(settings.TimeTopic("seconds"), []byte(seconds), false); err != nil {
		return err
	}
	stamp := now.UTC().Format(time.RFC3339)
	return p.conn.Publish(settings.TimeTopic("iso8601"), []byte(stamp), false)
}

// PublishSentence publishes a generated sentence on the conversation topic.
func (p *Publisher) PublishSentence(sentence string) error {
	return p.conn.Publish(p.conn.Settings().ConversationTopic(), []byte(sentence), false)
}

// PublishAlert publishes an alert transition on its resolved topic. State is
// "firing" on the rising edge and "cleared" on the falling edge.
func (p *Publisher) PublishAlert(alert config.AlertConfig, state, message string) error {
	body, err := json.Marshal(map[string]string{
		"alert":   alert.Name,
		"state":   state,
		"message": message,
	})
	if err != nil {
		return fmt.Errorf("mqtt: encode alert: %w", err)
	}
	return p.conn.Publish(p.conn.Settings().AlertTopic(alert), body, false)
}
