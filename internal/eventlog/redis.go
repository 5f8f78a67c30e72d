package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/arjunkhanna/tradedesk/internal/messages"
)

// RedisLog appends events to a capped Redis stream so external observers can
// tail the engine without coupling to its process.
type RedisLog struct {
	client *redis.Client
	stream string
	maxLen int64
	log    zerolog.Logger
}

// NewRedisLog connects to Redis and verifies the connection
func NewRedisLog(url, stream string, maxLen int64, log zerolog.Logger) (*RedisLog, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if maxLen <= 0 {
		maxLen = DefaultMemoryCap
	}

	l := log.With().Str("component", "eventlog").Logger()
	l.Info().Str("stream", stream).Int64("max_len", maxLen).Msg("Redis event log connected")

	return &RedisLog{client: client, stream: stream, maxLen: maxLen, log: l}, nil
}

// NewRedisLogWithClient wraps an existing client. Used by tests with miniredis.
func NewRedisLogWithClient(client *redis.Client, stream string, maxLen int64, log zerolog.Logger) *RedisLog {
	if maxLen <= 0 {
		maxLen = DefaultMemoryCap
	}
	return &RedisLog{
		client: client,
		stream: stream,
		maxLen: maxLen,
		log:    log.With().Str("component", "eventlog").Logger(),
	}
}

// Append records one message on the stream, trimming to the capped length
func (l *RedisLog) Append(ctx context.Context, msg messages.Message) error {
	e, err := FromMessage(msg)
	if err != nil {
		return err
	}

	err = l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		MaxLen: l.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":        e.ID,
			"type":      string(e.Type),
			"cycle":     strconv.FormatUint(e.Cycle, 10),
			"source":    e.Source,
			"payload":   string(e.Payload),
			"timestamp": e.Timestamp.Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", l.stream, err)
	}
	return nil
}

// Recent reads up to n most recent entries, oldest first
func (l *RedisLog) Recent(ctx context.Context, n int) ([]Event, error) {
	if n <= 0 {
		n = 100
	}

	raw, err := l.client.XRevRangeN(ctx, l.stream, "+", "-", int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", l.stream, err)
	}

	out := make([]Event, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		out = append(out, decodeStreamEntry(raw[i]))
	}
	return out, nil
}

// Close releases the Redis connection
func (l *RedisLog) Close() error {
	return l.client.Close()
}

func decodeStreamEntry(m redis.XMessage) Event {
	e := Event{}
	if v, ok := m.Values["id"].(string); ok {
		e.ID = v
	}
	if v, ok := m.Values["type"].(string); ok {
		e.Type = messages.Type(v)
	}
	if v, ok := m.Values["cycle"].(string); ok {
		if cycle, err := strconv.ParseUint(v, 10, 64); err == nil {
			e.Cycle = cycle
		}
	}
	if v, ok := m.Values["source"].(string); ok {
		e.Source = v
	}
	if v, ok := m.Values["payload"].(string); ok {
		e.Payload = json.RawMessage(v)
	}
	if v, ok := m.Values["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			e.Timestamp = ts
		}
	}
	return e
}
