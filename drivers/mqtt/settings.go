// Package mqtt publishes sensor readings, device statistics, and alerts to an
// MQTT broker and answers the command topics exposed under the topic prefix.
package mqtt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hygrod/hygrod/config"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultPrefix    = "hygrod"
	payloadOnline    = "online"
	payloadOffline   = "offline"
	reconnectCeiling = time.Minute
)

// Settings is the resolved broker configuration shared by the connection and
// the publishers.
type Settings struct {
	Broker        string
	ClientID      string
	TopicPrefix   string
	QoS           byte
	Retain        bool
	KeepAlive     time.Duration
	Timeout       time.Duration
	Auth          *config.AuthConfig
	TLS           *config.TLSConfig
	Deadband      *config.DeadbandConfig
	MinInterval   time.Duration
	HomeAssistant config.HomeAssistantConfig
}

// NewSettings resolves the raw MQTT section into connection settings. The
// client ID receives a random suffix when none is configured so that several
// devices can share a broker without clashing.
func NewSettings(name string, cfg config.MQTTConfig) (Settings, error) {
	if cfg.Broker == "" {
		return Settings{}, errors.New("mqtt: broker address is required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("hygrod-%.8s", uuid.NewString())
	}
	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
		if name != "" {
			prefix = defaultPrefix + "/" + name
		}
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return Settings{
		Broker:        cfg.Broker,
		ClientID:      clientID,
		TopicPrefix:   prefix,
		QoS:           cfg.QoS,
		Retain:        cfg.Retain,
		KeepAlive:     cfg.KeepAlive.Duration,
		Timeout:       timeout,
		Auth:          cfg.Auth,
		TLS:           cfg.TLS,
		Deadband:      cfg.Deadband,
		MinInterval:   cfg.MinInterval.Duration,
		HomeAssistant: cfg.HomeAssistant,
	}, nil
}

func (s Settings) topic(parts ...string) string {
	return s.TopicPrefix + "/" + strings.Join(parts, "/")
}

// StatusTopic carries the retained online/offline availability payload and is
// also registered as the last-will topic.
func (s Settings) StatusTopic() string { return s.topic("status") }

// StateTopic carries the JSON measurement document for a sensor.
func (s Settings) StateTopic(sensor string) string { return s.topic(sensor, "state") }

// ValueTopic carries a single bare decimal value for a sensor measure.
func (s Settings) ValueTopic(sensor, measure string) string { return s.topic(sensor, measure) }

// StatsTopic carries one of the periodic device statistics documents.
func (s Settings) StatsTopic(kind string) string { return s.topic("stats", kind) }

// TimeTopic carries the periodic time beacons.
func (s Settings) TimeTopic(kind string) string { return s.topic("time", kind) }

// CommandTopic receives inbound requests.
func (s Settings) CommandTopic(kind string) string { return s.topic("command", kind) }

// ConversationTopic carries generated sentence replies.
func (s Settings) ConversationTopic() string { return s.topic("conversation") }

// AlertTopic resolves the topic for a fired alert, honouring a per-alert
// override.
func (s Settings) AlertTopic(alert config.AlertConfig) string {
	if alert.Topic != "" {
		return alert.Topic
	}
	return s.topic("alerts", alert.Name)
}
