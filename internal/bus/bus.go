// Package bus broadcasts engine messages to external observers over NATS
package bus

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/arjunkhanna/tradedesk/internal/messages"
)

// Publisher fans engine messages out on NATS subjects. The engine never
// blocks on observers; publish failures are logged and dropped.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	log    zerolog.Logger
}

// Connect dials NATS with infinite reconnects
func Connect(url, prefix string, log zerolog.Logger) (*Publisher, error) {
	l := log.With().Str("component", "bus").Logger()

	nc, err := nats.Connect(
		url,
		nats.Name("tradedesk-engine"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				l.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	if prefix == "" {
		prefix = "tradedesk.engine"
	}
	prefix = strings.TrimSuffix(prefix, ".")

	l.Info().Str("url", url).Str("prefix", prefix).Msg("Observer bus connected")
	return &Publisher{nc: nc, prefix: prefix, log: l}, nil
}

// Publish broadcasts one message on "<prefix>.<type>"
func (p *Publisher) Publish(msg messages.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Error().Err(err).Str("type", string(msg.Type)).Msg("Message marshal failed")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, strings.ToLower(string(msg.Type)))
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("Publish failed, dropping message")
	}
}

// Close flushes and closes the connection
func (p *Publisher) Close() {
	if err := p.nc.Flush(); err != nil {
		p.log.Warn().Err(err).Msg("NATS flush failed on close")
	}
	p.nc.Close()
}
