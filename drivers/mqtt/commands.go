package mqtt

import (
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/relvacode/iso8601"
	"github.com/rs/zerolog"
)

// Responder answers the inbound command topics below the prefix.
//
// command/time accepts either unix seconds or an ISO 8601 stamp and replies on
// time/delta with the whole-second offset between the received stamp and now.
// command/conversation replies with a generated sentence on the conversation
// topic regardless of payload.
type Responder struct {
	conn     *Connection
	logger   zerolog.Logger
	sentence func() string
	now      func() time.Time
}

// NewResponder wires command handling onto an established connection. The
// sentence source must be safe for concurrent use.
func NewResponder(conn *Connection, logger zerolog.Logger, sentence func() string) *Responder {
	return &Responder{
		conn:     conn,
		logger:   logger,
		sentence: sentence,
		now:      time.Now,
	}
}

// Subscribe registers the command topic handlers.
func (r *Responder) Subscribe() error {
	settings := r.conn.Settings()
	if err := r.conn.Subscribe(settings.CommandTopic("time"), r.handleTime); err != nil {
		return err
	}
	return r.conn.Subscribe(settings.CommandTopic("conversation"), r.handleConversation)
}

func (r *Responder) handleTime(_ mqtt.Client, msg mqtt.Message) {
	raw := strings.TrimSpace(string(msg.Payload()))
	var target time.Time
	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		target = time.Unix(seconds, 0)
	} else {
		parsed, perr := iso8601.ParseString(raw)
		if perr != nil {
			r.logger.Warn().Str("payload", raw).Err(perr).Msg("mqtt: unparseable time command")
			return
		}
		target = parsed
	}

	delta := target.Sub(r.now()) / time.Second
	reply := strconv.FormatInt(int64(delta), 10)
	if err := r.conn.Publish(r.conn.Settings().TimeTopic("delta"), []byte(reply), false); err != nil {
		r.logger.Error().Err(err).Msg("mqtt: time delta publish failed")
	}
}

func (r *Responder) handleConversation(_ mqtt.Client, _ mqtt.Message) {
	if err := r.conn.Publish(r.conn.Settings().ConversationTopic(), []byte(r.sentence()), false); err != nil {
		r.logger.Error().Err(err).Msg("mqtt: conversation publish failed")
	}
}
