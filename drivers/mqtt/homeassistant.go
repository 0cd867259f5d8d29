package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/iancoleman/strcase"
	"github.com/rs/zerolog"

	"github.com/hygrod/hygrod/config"
)

// SensorInfo describes a configured sensor for discovery announcements.
type SensorInfo struct {
	Name     string
	Model    string
	Location string
}

type discoveryEntry struct {
	topic   string
	payload []byte
}

type homeAssistantPublisher struct {
	entries []discoveryEntry
	once    sync.Once
}

var discoveryMeasures = []struct {
	measure string
	class   string
	unit    string
}{
	{MeasureTemperature, "temperature", "°C"},
	{MeasureHumidity, "humidity", "%"},
	{MeasureDewPoint, "temperature", "°C"},
}

func newHomeAssistantPublisher(opts config.HomeAssistantConfig, settings Settings, sensors []SensorInfo) (*homeAssistantPublisher, error) {
	if !opts.Enabled {
		return nil, nil
	}
	prefix := strings.Trim(opts.DiscoveryPrefix, "/")
	if prefix == "" {
		prefix = "homeassistant"
	}
	deviceName := opts.DeviceName
	if deviceName == "" {
		deviceName = settings.ClientID
	}

	entries := make([]discoveryEntry, 0, len(sensors)*len(discoveryMeasures))
	for _, sensor := range sensors {
		for _, m := range discoveryMeasures {
			objectID := strcase.ToSnake(sensor.Name + " " + m.measure)
			payload := map[string]any{
				"name":                  sensor.Name + " " + strings.ReplaceAll(m.measure, "_", " "),
				"object_id":             objectID,
				"unique_id":             uniqueID(settings.ClientID, objectID),
				"state_topic":           settings.ValueTopic(sensor.Name, m.measure),
				"device_class":          m.class,
				"unit_of_measurement":   m.unit,
				"state_class":           "measurement",
				"availability_topic":    settings.StatusTopic(),
				"payload_available":     payloadOnline,
				"payload_not_available": payloadOffline,
				"device": map[string]any{
					"identifiers":  []string{settings.ClientID},
					"manufacturer": "hygrod",
					"model":        sensor.Model,
					"name":         deviceName,
				},
			}
			if sensor.Location != "" {
				payload["suggested_area"] = sensor.Location
			}
			body, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("mqtt: encode discovery for %s: %w", objectID, err)
			}
			entries = append(entries, discoveryEntry{
				topic:   fmt.Sprintf("%s/sensor/%s/config", prefix, objectID),
				payload: body,
			})
		}
	}
	return &homeAssistantPublisher{entries: entries}, nil
}

// Ensure publishes the retained discovery documents exactly once.
func (h *homeAssistantPublisher) Ensure(conn *Connection, logger zerolog.Logger) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		for _, entry := range h.entries {
			if err := conn.Publish(entry.topic, entry.payload, true); err != nil {
				logger.Error().Err(err).Str("topic", entry.topic).Msg("mqtt: home assistant discovery publish failed")
				continue
			}
			logger.Info().Str("topic", entry.topic).Msg("mqtt: home assistant discovery published")
		}
	})
}

// EnsureDiscovery announces the configured sensors to Home Assistant when
// discovery is enabled. Repeated calls publish at most once.
func (p *Publisher) EnsureDiscovery(sensors []SensorInfo) error {
	settings := p.conn.Settings()
	p.mu.Lock()
	if p.ha == nil {
		ha, err := newHomeAssistantPublisher(settings.HomeAssistant, settings, sensors)
		if err != nil {
			p.mu.Unlock()
			return err
		}
		p.ha = ha
	}
	ha := p.ha
	p.mu.Unlock()

	ha.Ensure(p.conn, p.logger)
	return nil
}

func uniqueID(clientID, objectID string) string {
	base := strings.TrimSpace(clientID)
	if base == "" {
		base = "hygrod-mqtt"
	}
	return fmt.Sprintf("%s_%s", base, strings.TrimSpace(objectID))
}
