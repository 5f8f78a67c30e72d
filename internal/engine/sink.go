package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/arjunkhanna/tradedesk/internal/eventlog"
	"github.com/arjunkhanna/tradedesk/internal/messages"
)

// Sink receives every message the engine emits. Sinks must not block the
// cycle; slow consumers drop rather than stall.
type Sink interface {
	Publish(msg messages.Message)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(messages.Message)

// Publish calls the wrapped function
func (f SinkFunc) Publish(msg messages.Message) { f(msg) }

// eventlogSink bridges the engine fan-out to the append-only event log
type eventlogSink struct {
	log eventlog.Log
	zl  zerolog.Logger
}

// NewEventlogSink wraps an event log as a message sink
func NewEventlogSink(l eventlog.Log, zl zerolog.Logger) Sink {
	return &eventlogSink{log: l, zl: zl.With().Str("component", "eventlog_sink").Logger()}
}

func (s *eventlogSink) Publish(msg messages.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.log.Append(ctx, msg); err != nil {
		s.zl.Warn().Err(err).Str("type", string(msg.Type)).Msg("Event append failed, dropping")
	}
}
