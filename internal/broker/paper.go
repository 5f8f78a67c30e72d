package broker

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arjunkhanna/tradedesk/internal/config"
	"github.com/arjunkhanna/tradedesk/internal/market"
)

// PaperBroker simulates fills against simulator prices. Market data comes
// from the embedded simulator so the paper broker satisfies the full Broker
// contract on its own.
type PaperBroker struct {
	mu sync.RWMutex

	sim       *market.Simulator
	orders    map[string]*Order
	pos       map[market.SymbolKey]*Position
	prices    map[market.SymbolKey]market.Quote
	connected bool

	cash        float64
	realizedPnL float64

	baseSlippage float64
	maxSlippage  float64
	brokerage    float64

	log zerolog.Logger
}

// NewPaperBroker creates a paper broker seeded with initial capital
func NewPaperBroker(sim *market.Simulator, capital float64, fees config.FeeConfig, log zerolog.Logger) *PaperBroker {
	l := log.With().Str("component", "paper_broker").Logger()
	l.Info().
		Float64("capital", capital).
		Float64("base_slippage", fees.BaseSlippage).
		Float64("brokerage", fees.Brokerage).
		Msg("Paper broker initialized")

	return &PaperBroker{
		sim:          sim,
		orders:       make(map[string]*Order),
		pos:          make(map[market.SymbolKey]*Position),
		prices:       make(map[market.SymbolKey]market.Quote),
		connected:    true,
		cash:         capital,
		baseSlippage: fees.BaseSlippage,
		maxSlippage:  fees.MaxSlippage,
		brokerage:    fees.Brokerage,
		log:          l,
	}
}

// UpdatePrices syncs the cycle's quotes into the fill model and walks open
// trigger orders against the new prices.
func (p *PaperBroker) UpdatePrices(quotes map[market.SymbolKey]*market.Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, q := range quotes {
		if q == nil || q.LTP <= 0 {
			continue
		}
		p.prices[key] = *q
		if pos, ok := p.pos[key]; ok {
			pos.LastPrice = q.LTP
			pos.PnL = float64(pos.Quantity) * (q.LTP - pos.AvgPrice)
		}
	}

	p.triggerStopsLocked()
}

// triggerStopsLocked fills SL-M orders whose trigger price was crossed
func (p *PaperBroker) triggerStopsLocked() {
	for _, o := range p.orders {
		if o.Status != StatusOpen || (o.Type != TypeStopLossMkt && o.Type != TypeStopLoss) {
			continue
		}
		q, ok := p.prices[o.Key]
		if !ok {
			continue
		}

		crossed := (o.Side == SideSell && q.LTP <= o.TriggerPrice) ||
			(o.Side == SideBuy && q.LTP >= o.TriggerPrice)
		if !crossed {
			continue
		}

		o.Status = StatusTriggered
		p.fillLocked(o, q.LTP)
		p.log.Info().
			Str("order_id", o.ID).
			Str("symbol", o.Key.String()).
			Float64("trigger", o.TriggerPrice).
			Float64("ltp", q.LTP).
			Msg("Stop order triggered")
	}
}

// Connect marks the paper session live. There is no remote session to open,
// so the call only flips the flag.
func (p *PaperBroker) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

// Disconnect marks the paper session down
func (p *PaperBroker) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

// IsConnected reports the session state
func (p *PaperBroker) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// RefreshToken has no token to renew; it only checks the session
func (p *PaperBroker) RefreshToken(ctx context.Context) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// SymbolToken derives a stable instrument token from the symbol key
func (p *PaperBroker) SymbolToken(ctx context.Context, key market.SymbolKey) (string, error) {
	if !key.Exchange.Valid() || key.Symbol == "" {
		return "", fmt.Errorf("invalid symbol key %q", key.String())
	}
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	return fmt.Sprintf("%d", h.Sum32()), nil
}

// Profile returns the paper account identity
func (p *PaperBroker) Profile(ctx context.Context) (*Profile, error) {
	return &Profile{
		UserID:   "PAPER001",
		UserName: "Paper Trading",
		Broker:   "paper",
	}, nil
}

// Funds returns cash and margin in use
func (p *PaperBroker) Funds(ctx context.Context) (*Funds, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var used float64
	for _, pos := range p.pos {
		used += math.Abs(float64(pos.Quantity)) * pos.AvgPrice
	}
	return &Funds{
		AvailableCash: p.cash,
		UsedMargin:    used,
		TotalValue:    p.cash + used,
	}, nil
}

// Quote returns the simulator's current market state for the symbol
func (p *PaperBroker) Quote(ctx context.Context, key market.SymbolKey) (*market.Quote, error) {
	q := p.sim.Quote(key, time.Now())
	return &q, nil
}

// Quotes returns current market state for several symbols
func (p *PaperBroker) Quotes(ctx context.Context, keys []market.SymbolKey) (map[market.SymbolKey]*market.Quote, error) {
	out := make(map[market.SymbolKey]*market.Quote, len(keys))
	for _, key := range keys {
		q := p.sim.Quote(key, time.Now())
		out[key] = &q
	}
	return out, nil
}

// Historical returns simulator bars for the window, oldest first
func (p *PaperBroker) Historical(ctx context.Context, key market.SymbolKey, tf market.Timeframe, from, to time.Time) ([]market.Candle, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("historical window inverted: %s..%s", from, to)
	}
	bars := int(to.Sub(from) / tf.Duration())
	if bars <= 0 {
		bars = 1
	}
	return p.sim.Backfill(key, tf, bars, to), nil
}

// PlaceOrder submits a new order. Market orders fill immediately at the last
// synced price with slippage and brokerage applied.
func (p *PaperBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.validateLocked(req); err != nil {
		p.log.Warn().Err(err).Str("symbol", req.Key.String()).Msg("Order rejected")
		return &OrderResult{Status: StatusRejected, Message: err.Error()}, nil
	}

	now := time.Now()
	o := &Order{
		ID:           uuid.New().String(),
		Key:          req.Key,
		Side:         req.Side,
		Type:         req.Type,
		Quantity:     req.Quantity,
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
		Status:       StatusPending,
		Tag:          req.Tag,
		PlacedAt:     now,
		UpdatedAt:    now,
	}
	p.orders[o.ID] = o

	if req.Type == TypeMarket {
		q, ok := p.prices[req.Key]
		if !ok {
			o.Status = StatusRejected
			return &OrderResult{OrderID: o.ID, Status: StatusRejected, Message: "no market price"}, nil
		}
		p.fillLocked(o, q.LTP)
	} else {
		o.Status = StatusOpen
	}

	p.log.Info().
		Str("order_id", o.ID).
		Str("symbol", o.Key.String()).
		Str("side", string(o.Side)).
		Str("type", string(o.Type)).
		Int64("quantity", o.Quantity).
		Str("status", string(o.Status)).
		Msg("Order placed")

	return &OrderResult{OrderID: o.ID, Status: o.Status, Message: "ok"}, nil
}

// ModifyOrder updates an open order in place
func (p *PaperBroker) ModifyOrder(ctx context.Context, orderID string, req OrderRequest) (*OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order not found: %s", orderID)
	}
	if o.Status.Terminal() {
		return &OrderResult{OrderID: orderID, Status: o.Status, Message: "order already terminal"}, nil
	}

	if req.Quantity > 0 {
		o.Quantity = req.Quantity
	}
	if req.Price > 0 {
		o.Price = req.Price
	}
	if req.TriggerPrice > 0 {
		o.TriggerPrice = req.TriggerPrice
	}
	o.UpdatedAt = time.Now()

	return &OrderResult{OrderID: orderID, Status: o.Status, Message: "modified"}, nil
}

// CancelOrder cancels an open order
func (p *PaperBroker) CancelOrder(ctx context.Context, orderID string) (*OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order not found: %s", orderID)
	}
	if o.Status.Terminal() {
		return &OrderResult{OrderID: orderID, Status: o.Status, Message: "order already terminal"}, nil
	}

	o.Status = StatusCancelled
	o.UpdatedAt = time.Now()
	return &OrderResult{OrderID: orderID, Status: StatusCancelled, Message: "cancelled"}, nil
}

// Order fetches one order by ID
func (p *PaperBroker) Order(ctx context.Context, orderID string) (*Order, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	o, ok := p.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order not found: %s", orderID)
	}
	cp := *o
	return &cp, nil
}

// Orders lists all orders, oldest first
func (p *PaperBroker) Orders(ctx context.Context) ([]Order, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Order, 0, len(p.orders))
	for _, o := range p.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out, nil
}

// Positions lists open positions
func (p *PaperBroker) Positions(ctx context.Context) ([]Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Position, 0, len(p.pos))
	for _, pos := range p.pos {
		if pos.Quantity != 0 {
			out = append(out, *pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out, nil
}

// Holdings lists demat holdings. Paper trading keeps everything as positions.
func (p *PaperBroker) Holdings(ctx context.Context) ([]Holding, error) {
	return []Holding{}, nil
}

// SearchSymbols matches against symbols the broker has priced
func (p *PaperBroker) SearchSymbols(ctx context.Context, query string) ([]SymbolMatch, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []SymbolMatch
	for key := range p.prices {
		if query == "" || containsFold(key.Symbol, query) {
			out = append(out, SymbolMatch{
				Key:            key,
				Name:           key.Symbol,
				InstrumentType: "EQ",
				TickSize:       0.05,
				LotSize:        1,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out, nil
}

// RealizedPnL returns cumulative realized profit and loss
func (p *PaperBroker) RealizedPnL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realizedPnL
}

// fillLocked executes an order at the reference price with slippage and fees
func (p *PaperBroker) fillLocked(o *Order, refPrice float64) {
	slip := p.baseSlippage
	if slip > p.maxSlippage {
		slip = p.maxSlippage
	}

	price := refPrice * (1 + slip)
	if o.Side == SideSell {
		price = refPrice * (1 - slip)
	}
	price = math.Round(price*100) / 100

	fee := price * float64(o.Quantity) * p.brokerage

	pos, ok := p.pos[o.Key]
	if !ok {
		pos = &Position{Key: o.Key, Product: "CNC", OpenedAt: o.PlacedAt}
		p.pos[o.Key] = pos
	}

	if o.Side == SideBuy {
		cost := price*float64(o.Quantity) + fee
		total := pos.AvgPrice*float64(pos.Quantity) + price*float64(o.Quantity)
		pos.Quantity += o.Quantity
		if pos.Quantity != 0 {
			pos.AvgPrice = total / float64(pos.Quantity)
		}
		p.cash -= cost
	} else {
		qty := o.Quantity
		if qty > pos.Quantity {
			qty = pos.Quantity
		}
		realized := float64(qty)*(price-pos.AvgPrice) - fee
		pos.Quantity -= qty
		pos.RealizedPnL += realized
		p.realizedPnL += realized
		p.cash += price*float64(qty) - fee
		if pos.Quantity == 0 {
			pos.AvgPrice = 0
		}
	}

	pos.LastPrice = price
	o.FilledQty = o.Quantity
	o.AvgFillPrice = price
	o.Status = StatusComplete
	o.UpdatedAt = time.Now()

	p.log.Info().
		Str("order_id", o.ID).
		Str("symbol", o.Key.String()).
		Str("side", string(o.Side)).
		Float64("fill_price", price).
		Float64("fee", math.Round(fee*100)/100).
		Msg("Order filled")
}

func (p *PaperBroker) validateLocked(req OrderRequest) error {
	if !req.Key.Exchange.Valid() || req.Key.Symbol == "" {
		return fmt.Errorf("invalid symbol key %q", req.Key.String())
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", req.Quantity)
	}
	if req.Side != SideBuy && req.Side != SideSell {
		return fmt.Errorf("invalid side %q", req.Side)
	}
	switch req.Type {
	case TypeMarket:
	case TypeLimit:
		if req.Price <= 0 {
			return fmt.Errorf("limit order requires a price")
		}
	case TypeStopLoss, TypeStopLossMkt:
		if req.TriggerPrice <= 0 {
			return fmt.Errorf("stop order requires a trigger price")
		}
	default:
		return fmt.Errorf("invalid order type %q", req.Type)
	}

	if req.Side == SideBuy {
		q, ok := p.prices[req.Key]
		ref := req.Price
		if ok && req.Type == TypeMarket {
			ref = q.LTP
		}
		if ref > 0 && ref*float64(req.Quantity) > p.cash {
			return fmt.Errorf("insufficient funds: need %.2f, have %.2f", ref*float64(req.Quantity), p.cash)
		}
	}
	return nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToUpper(s), strings.ToUpper(sub))
}
