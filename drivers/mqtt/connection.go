package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/hygrod/hygrod/config"
)

// Connection wraps a paho client with the resolved settings and keeps a
// subscription registry so handlers survive broker reconnects.
type Connection struct {
	settings Settings
	logger   zerolog.Logger
	client   mqtt.Client

	mu   sync.Mutex
	subs map[string]mqtt.MessageHandler
}

// Dial builds a configured MQTT client and establishes the initial connection.
// The retained status topic is set to online once connected and an offline
// last will covers unclean disconnects.
func Dial(settings Settings, logger zerolog.Logger) (*Connection, error) {
	conn := &Connection{
		settings: settings,
		logger:   logger,
		subs:     make(map[string]mqtt.MessageHandler),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(settings.Broker)
	opts.SetClientID(settings.ClientID)
	opts.SetCleanSession(true)
	if settings.Auth != nil {
		opts.SetUsername(settings.Auth.Username)
		opts.SetPassword(settings.Auth.Password)
	}
	if settings.KeepAlive > 0 {
		opts.SetKeepAlive(settings.KeepAlive)
	}
	opts.SetConnectTimeout(settings.Timeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(reconnectCeiling)

	if settings.TLS != nil && settings.TLS.Enabled {
		tlsConfig, err := buildTLSConfig(*settings.TLS)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetWill(settings.StatusTopic(), payloadOffline, settings.QoS, true)
	opts.SetOnConnectHandler(conn.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt: connection lost")
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info().Msg("mqtt: reconnecting")
	})

	conn.client = mqtt.NewClient(opts)
	token := conn.client.Connect()
	if !token.WaitTimeout(settings.Timeout) {
		return nil, fmt.Errorf("mqtt: connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect failed: %w", err)
	}

	return conn, nil
}

func (c *Connection) onConnect(client mqtt.Client) {
	c.logger.Info().Str("broker", c.settings.Broker).Msg("mqtt: connected")

	token := client.Publish(c.settings.StatusTopic(), c.settings.QoS, true, payloadOnline)
	if token.Wait() && token.Error() != nil {
		c.logger.Error().Err(token.Error()).Msg("mqtt: status publish failed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, handler := range c.subs {
		sub := client.Subscribe(topic, c.settings.QoS, handler)
		if sub.Wait() && sub.Error() != nil {
			c.logger.Error().Err(sub.Error()).Str("topic", topic).Msg("mqtt: resubscribe failed")
		}
	}
}

// Publish sends a payload on the given topic and waits for completion.
func (c *Connection) Publish(topic string, payload []byte, retain bool) error {
	token := c.client.Publish(topic, c.settings.QoS, retain, payload)
	if !token.WaitTimeout(c.settings.Timeout) {
		return fmt.Errorf("mqtt: publish timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a handler for a topic filter. The registration is
// replayed after every reconnect.
func (c *Connection) Subscribe(topic string, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	token := c.client.Subscribe(topic, c.settings.QoS, handler)
	if !token.WaitTimeout(c.settings.Timeout) {
		return fmt.Errorf("mqtt: subscribe timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", topic, err)
	}
	return nil
}

// Settings returns the resolved settings backing the connection.
func (c *Connection) Settings() Settings { return c.settings }

// Close marks the device offline and disconnects from the broker.
func (c *Connection) Close() {
	token := c.client.Publish(c.settings.StatusTopic(), c.settings.QoS, true, payloadOffline)
	token.WaitTimeout(c.settings.Timeout)
	c.client.Disconnect(250)
}

func buildTLSConfig(settings config.TLSConfig) (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: settings.InsecureSkipVerify}
	if settings.ServerName != "" {
		cfg.ServerName = settings.ServerName
	}

	if settings.CAFile != "" {
		ca, err := os.ReadFile(settings.CAFile)
		if err != nil {
			return nil, fmt.Errorf("mqtt: read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(ca); !ok {
			return nil, fmt.Errorf("mqtt: parse ca file %s", settings.CAFile)
		}
		cfg.RootCAs = pool
	}

	if settings.CertFile != "" && settings.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(settings.CertFile, settings.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("mqtt: load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
