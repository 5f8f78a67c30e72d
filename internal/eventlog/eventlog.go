// Package eventlog provides the append-only structured event log
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arjunkhanna/tradedesk/internal/messages"
)

// Event is one append-only log record
type Event struct {
	ID        string          `json:"id"`
	Type      messages.Type   `json:"type"`
	Cycle     uint64          `json:"cycle"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Log is the append-only event sink
type Log interface {
	// Append records one message as an event
	Append(ctx context.Context, msg messages.Message) error

	// Recent returns up to n most recent events, oldest first
	Recent(ctx context.Context, n int) ([]Event, error)

	// Close releases backend resources
	Close() error
}

// FromMessage converts an envelope into an event record
func FromMessage(msg messages.Message) (Event, error) {
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", msg.Type, err)
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      msg.Type,
		Cycle:     msg.Cycle,
		Source:    msg.Source,
		Payload:   raw,
		Timestamp: msg.Timestamp,
	}, nil
}

// MemoryLog is the in-process ring backend
type MemoryLog struct {
	mu     sync.Mutex
	events []Event
	cap    int
}

// DefaultMemoryCap bounds the in-memory event ring
const DefaultMemoryCap = 10_000

// NewMemoryLog creates a bounded in-memory event log
func NewMemoryLog(capacity int) *MemoryLog {
	if capacity <= 0 {
		capacity = DefaultMemoryCap
	}
	return &MemoryLog{cap: capacity}
}

// Append records one message
func (l *MemoryLog) Append(ctx context.Context, msg messages.Message) error {
	e, err := FromMessage(msg)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, e)
	if len(l.events) > l.cap {
		l.events = l.events[len(l.events)-l.cap:]
	}
	return nil
}

// Recent returns up to n most recent events, oldest first
func (l *MemoryLog) Recent(ctx context.Context, n int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}
	out := make([]Event, n)
	copy(out, l.events[len(l.events)-n:])
	return out, nil
}

// Close is a no-op for the memory backend
func (l *MemoryLog) Close() error { return nil }
