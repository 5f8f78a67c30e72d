// Package messages defines the typed envelopes exchanged between engine stages
package messages

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arjunkhanna/tradedesk/internal/broker"
	"github.com/arjunkhanna/tradedesk/internal/execution"
	"github.com/arjunkhanna/tradedesk/internal/indicators"
	"github.com/arjunkhanna/tradedesk/internal/market"
	"github.com/arjunkhanna/tradedesk/internal/predict"
	"github.com/arjunkhanna/tradedesk/internal/reflection"
	"github.com/arjunkhanna/tradedesk/internal/regime"
	"github.com/arjunkhanna/tradedesk/internal/risk"
	"github.com/arjunkhanna/tradedesk/internal/strategy"
)

// Type discriminates message payloads
type Type string

const (
	TypeMarketUpdate Type = "MARKET_UPDATE"
	TypeSignal       Type = "SIGNAL"
	TypeDecision     Type = "DECISION"
	TypeVeto         Type = "VETO"
	TypeExecution    Type = "EXECUTION"
	TypeStateUpdate  Type = "STATE_UPDATE"
	TypeError        Type = "ERROR"
	TypeRiskAlert    Type = "RISK_ALERT"
	TypeReflection   Type = "REFLECTION"
)

// Payload is the typed content of a message
type Payload interface {
	MessageType() Type
}

// Message is the envelope every stage output travels in
type Message struct {
	ID               uuid.UUID `json:"id"`
	Type             Type      `json:"type"`
	Source           string    `json:"source"`
	Target           string    `json:"target"` // "*" for broadcast
	Timestamp        time.Time `json:"timestamp"`
	Priority         int       `json:"priority"` // 1-10, 1 is most urgent
	RequiresResponse bool      `json:"requires_response"`
	CorrelationID    string    `json:"correlation_id,omitempty"`
	Cycle            uint64    `json:"cycle"`
	Payload          Payload   `json:"payload"`
}

// New wraps a payload in an envelope with defaults applied
func New(source, target string, cycle uint64, priority int, p Payload) Message {
	if priority < 1 {
		priority = 1
	}
	if priority > 10 {
		priority = 10
	}
	return Message{
		ID:        uuid.New(),
		Type:      p.MessageType(),
		Source:    source,
		Target:    target,
		Timestamp: time.Now(),
		Priority:  priority,
		Cycle:     cycle,
		Payload:   p,
	}
}

// SymbolSnapshot is the per-symbol slice of a market update
type SymbolSnapshot struct {
	Quote      market.Quote                             `json:"quote"`
	Bundles    map[market.Timeframe]indicators.Bundle   `json:"bundles"`
	Regime     regime.Snapshot                          `json:"regime"`
	Traps      regime.TrapFlags                         `json:"traps"`
	Prediction predict.Prediction                       `json:"prediction"`
}

// MarketUpdate carries the full per-cycle snapshot, symbols in sorted order
type MarketUpdate struct {
	Symbols []string                  `json:"symbols"`
	Data    map[string]SymbolSnapshot `json:"data"`
}

// Signal wraps a strategy signal
type Signal struct {
	Signal strategy.Signal `json:"signal"`
}

// Decision wraps an approved risk decision
type Decision struct {
	Decision risk.Decision `json:"decision"`
}

// Veto wraps a rejected signal with its verdict
type Veto struct {
	Signal  strategy.Signal `json:"signal"`
	Verdict risk.Verdict    `json:"verdict"`
}

// Execution wraps an execution result
type Execution struct {
	Result execution.Result `json:"result"`
}

// StateUpdate summarizes guardian and portfolio state at cycle end
type StateUpdate struct {
	Risk      risk.Status       `json:"risk"`
	Funds     *broker.Funds     `json:"funds,omitempty"`
	Positions []broker.Position `json:"positions,omitempty"`
	Pending   int               `json:"pending_orders"`
}

// Error reports a recoverable stage failure
type Error struct {
	Stage   string `json:"stage"`
	Symbol  string `json:"symbol,omitempty"`
	Message string `json:"message"`
}

// RiskAlert surfaces a guardian alert
type RiskAlert struct {
	Alert risk.Alert `json:"alert"`
}

// Reflection wraps a reflection report
type Reflection struct {
	Report reflection.Report `json:"report"`
}

func (MarketUpdate) MessageType() Type { return TypeMarketUpdate }
func (Signal) MessageType() Type       { return TypeSignal }
func (Decision) MessageType() Type     { return TypeDecision }
func (Veto) MessageType() Type         { return TypeVeto }
func (Execution) MessageType() Type    { return TypeExecution }
func (StateUpdate) MessageType() Type  { return TypeStateUpdate }
func (Error) MessageType() Type        { return TypeError }
func (RiskAlert) MessageType() Type    { return TypeRiskAlert }
func (Reflection) MessageType() Type   { return TypeReflection }

// envelope mirrors Message for wire encoding with a raw payload
type envelope struct {
	ID               uuid.UUID       `json:"id"`
	Type             Type            `json:"type"`
	Source           string          `json:"source"`
	Target           string          `json:"target"`
	Timestamp        time.Time       `json:"timestamp"`
	Priority         int             `json:"priority"`
	RequiresResponse bool            `json:"requires_response"`
	CorrelationID    string          `json:"correlation_id,omitempty"`
	Cycle            uint64          `json:"cycle"`
	Payload          json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the envelope with the payload inline
func (m Message) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", m.Type, err)
	}
	return json.Marshal(envelope{
		ID:               m.ID,
		Type:             m.Type,
		Source:           m.Source,
		Target:           m.Target,
		Timestamp:        m.Timestamp,
		Priority:         m.Priority,
		RequiresResponse: m.RequiresResponse,
		CorrelationID:    m.CorrelationID,
		Cycle:            m.Cycle,
		Payload:          raw,
	})
}

// UnmarshalJSON decodes the envelope and dispatches the payload by type
func (m *Message) UnmarshalJSON(data []byte) error {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return err
	}

	m.ID = e.ID
	m.Type = e.Type
	m.Source = e.Source
	m.Target = e.Target
	m.Timestamp = e.Timestamp
	m.Priority = e.Priority
	m.RequiresResponse = e.RequiresResponse
	m.CorrelationID = e.CorrelationID
	m.Cycle = e.Cycle

	p, err := decodePayload(e.Type, e.Payload)
	if err != nil {
		return err
	}
	m.Payload = p
	return nil
}

func decodePayload(t Type, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch t {
	case TypeMarketUpdate:
		p = &MarketUpdate{}
	case TypeSignal:
		p = &Signal{}
	case TypeDecision:
		p = &Decision{}
	case TypeVeto:
		p = &Veto{}
	case TypeExecution:
		p = &Execution{}
	case TypeStateUpdate:
		p = &StateUpdate{}
	case TypeError:
		p = &Error{}
	case TypeRiskAlert:
		p = &RiskAlert{}
	case TypeReflection:
		p = &Reflection{}
	default:
		return nil, fmt.Errorf("unknown message type %q", t)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("unmarshal %s payload: %w", t, err)
		}
	}
	return p, nil
}
