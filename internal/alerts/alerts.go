// Package alerts fans risk and engine notifications out to operator channels
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/arjunkhanna/tradedesk/internal/risk"
)

// Severity levels for alerts
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is one operator notification
type Alert struct {
	Title     string
	Message   string
	Severity  Severity
	Timestamp time.Time
	Fields    map[string]string
}

// Alerter is a single delivery channel
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager fans alerts out to every configured channel. A channel failure
// never blocks the others.
type Manager struct {
	alerters []Alerter
	log      zerolog.Logger
}

// NewManager creates an alert manager
func NewManager(log zerolog.Logger, alerters ...Alerter) *Manager {
	return &Manager{
		alerters: alerters,
		log:      log.With().Str("component", "alerts").Logger(),
	}
}

// Send delivers an alert to all channels, returning the last failure
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	var lastErr error
	for _, a := range m.alerters {
		if err := a.Send(ctx, alert); err != nil {
			m.log.Error().Err(err).Str("title", alert.Title).Msg("Alert delivery failed")
			lastErr = err
		}
	}
	return lastErr
}

// SendRiskAlert converts a guardian alert into an operator notification
func (m *Manager) SendRiskAlert(ctx context.Context, a risk.Alert) error {
	sev := SeverityWarning
	if a.Level == risk.LevelCritical {
		sev = SeverityCritical
	}

	return m.Send(ctx, Alert{
		Title:     fmt.Sprintf("Risk: %s", a.Type),
		Message:   a.Message,
		Severity:  sev,
		Timestamp: a.Timestamp,
		Fields:    map[string]string{"level": string(a.Level)},
	})
}

// LogAlerter writes alerts to the engine log
type LogAlerter struct {
	log zerolog.Logger
}

// NewLogAlerter creates a log-based alert channel
func NewLogAlerter(log zerolog.Logger) *LogAlerter {
	return &LogAlerter{log: log.With().Str("component", "alerts").Logger()}
}

// Send logs the alert at a level matching its severity
func (l *LogAlerter) Send(ctx context.Context, alert Alert) error {
	event := l.log.Info()
	switch alert.Severity {
	case SeverityCritical:
		event = l.log.Error()
	case SeverityWarning:
		event = l.log.Warn()
	}

	for k, v := range alert.Fields {
		event = event.Str(k, v)
	}
	event.Str("title", alert.Title).Msg(alert.Message)
	return nil
}
