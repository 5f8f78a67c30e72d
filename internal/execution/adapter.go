// Package execution turns approved decisions into broker orders
package execution

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arjunkhanna/tradedesk/internal/broker"
	"github.com/arjunkhanna/tradedesk/internal/config"
	"github.com/arjunkhanna/tradedesk/internal/risk"
	"github.com/arjunkhanna/tradedesk/internal/strategy"
)

// Result is the outcome of executing one decision
type Result struct {
	Success      bool             `json:"success"`
	OrderID      string           `json:"order_id,omitempty"`
	StopOrderID  string           `json:"stop_order_id,omitempty"`
	Key          string           `json:"key"`
	Action       strategy.Action  `json:"action"`
	Quantity     int64            `json:"quantity"`
	FillPrice    float64          `json:"fill_price"`
	Status       broker.OrderStatus `json:"status"`
	Warnings     []string         `json:"warnings,omitempty"`
	Error        string           `json:"error,omitempty"`
	Cycle        uint64           `json:"cycle"`
	Timestamp    time.Time        `json:"timestamp"`
}

// Adapter places orders for approved decisions and tracks their lifecycle.
// It is the single writer of the pending-order set.
type Adapter struct {
	mu      sync.Mutex
	broker  broker.Broker
	pending map[string]broker.Order
	log     zerolog.Logger
}

// NewAdapter creates an execution adapter over a broker
func NewAdapter(b broker.Broker, log zerolog.Logger) *Adapter {
	return &Adapter{
		broker:  b,
		pending: make(map[string]broker.Order),
		log:     log.With().Str("component", "execution").Logger(),
	}
}

// Execute places the primary order for a decision and, when a stop is set,
// a protective stop order for the opposite side. A failed protective stop
// never rolls back the primary fill.
func (a *Adapter) Execute(ctx context.Context, d risk.Decision, tun config.Tunables) Result {
	res := Result{
		Key:       d.Signal.Key.String(),
		Action:    d.Signal.Action,
		Cycle:     d.Cycle,
		Timestamp: time.Now(),
	}

	qty := resolveQuantity(d, tun.MaxPositionSize)
	res.Quantity = qty

	side := broker.SideBuy
	if d.Signal.Action == strategy.ActionSell {
		side = broker.SideSell
	}

	req := broker.OrderRequest{
		Key:      d.Signal.Key,
		Side:     side,
		Type:     broker.TypeMarket,
		Quantity: qty,
		Product:  "MIS",
		Tag:      fmt.Sprintf("cycle-%d", d.Cycle),
	}

	ack, err := a.broker.PlaceOrder(ctx, req)
	if err != nil {
		res.Error = err.Error()
		a.log.Error().Err(err).Str("symbol", res.Key).Msg("Order placement failed")
		return res
	}
	res.OrderID = ack.OrderID
	res.Status = ack.Status

	if ack.Status == broker.StatusRejected {
		res.Error = ack.Message
		return res
	}

	if o, err := a.broker.Order(ctx, ack.OrderID); err == nil {
		res.FillPrice = o.AvgFillPrice
		a.trackIfPending(*o)
	}
	res.Success = true

	if d.Verdict.AdjustedStopLoss > 0 {
		stopID, err := a.placeStop(ctx, d, side, qty)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("protective SL not placed: %v", err))
			a.log.Warn().Err(err).Str("symbol", res.Key).Msg("Protective stop placement failed")
		} else {
			res.StopOrderID = stopID
		}
	}

	a.log.Info().
		Str("symbol", res.Key).
		Str("action", string(res.Action)).
		Int64("quantity", qty).
		Str("order_id", res.OrderID).
		Str("stop_order_id", res.StopOrderID).
		Msg("Decision executed")

	return res
}

// placeStop submits the protective stop-loss-market order opposite the entry
func (a *Adapter) placeStop(ctx context.Context, d risk.Decision, entrySide broker.OrderSide, qty int64) (string, error) {
	stopSide := broker.SideSell
	if entrySide == broker.SideSell {
		stopSide = broker.SideBuy
	}

	ack, err := a.broker.PlaceOrder(ctx, broker.OrderRequest{
		Key:          d.Signal.Key,
		Side:         stopSide,
		Type:         broker.TypeStopLossMkt,
		Quantity:     qty,
		TriggerPrice: d.Verdict.AdjustedStopLoss,
		Product:      "MIS",
		Tag:          fmt.Sprintf("sl-cycle-%d", d.Cycle),
	})
	if err != nil {
		return "", err
	}
	if ack.Status == broker.StatusRejected {
		return "", fmt.Errorf("broker rejected stop: %s", ack.Message)
	}

	if o, err := a.broker.Order(ctx, ack.OrderID); err == nil {
		a.trackIfPending(*o)
	}
	return ack.OrderID, nil
}

// Reconcile refreshes pending orders and drops terminal ones
func (a *Adapter) Reconcile(ctx context.Context) {
	a.mu.Lock()
	ids := make([]string, 0, len(a.pending))
	for id := range a.pending {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	for _, id := range ids {
		o, err := a.broker.Order(ctx, id)
		if err != nil {
			a.log.Warn().Err(err).Str("order_id", id).Msg("Order reconcile fetch failed")
			continue
		}

		a.mu.Lock()
		if o.Status.Terminal() {
			delete(a.pending, id)
		} else {
			a.pending[id] = *o
		}
		a.mu.Unlock()
	}
}

// Pending returns a copy of the tracked non-terminal orders
func (a *Adapter) Pending() []broker.Order {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]broker.Order, 0, len(a.pending))
	for _, o := range a.pending {
		out = append(out, o)
	}
	return out
}

func (a *Adapter) trackIfPending(o broker.Order) {
	if o.Status.Terminal() {
		return
	}
	a.mu.Lock()
	a.pending[o.ID] = o
	a.mu.Unlock()
}

// resolveQuantity interprets the verdict position size. An integral value is
// a share count; a fraction in (0,1] is a percentage of the position cap
// converted to shares at the entry price. Quantity is never below 1.
func resolveQuantity(d risk.Decision, maxPositionSize float64) int64 {
	size := d.Verdict.PositionSize
	if size >= 1 {
		return int64(math.Floor(size))
	}
	if size > 0 && d.Signal.EntryPrice > 0 {
		qty := int64(math.Floor(size * maxPositionSize / d.Signal.EntryPrice))
		if qty >= 1 {
			return qty
		}
	}
	return 1
}
