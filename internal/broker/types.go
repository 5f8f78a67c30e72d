// Package broker defines the broker capability surface and its adapters
package broker

import (
	"time"

	"github.com/arjunkhanna/tradedesk/internal/market"
)

// OrderSide is the trade direction
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType is the order variant
type OrderType string

const (
	TypeMarket        OrderType = "MARKET"
	TypeLimit         OrderType = "LIMIT"
	TypeStopLoss      OrderType = "SL"
	TypeStopLossMkt   OrderType = "SL-M"
)

// OrderStatus is the broker-side order state
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusOpen      OrderStatus = "OPEN"
	StatusComplete  OrderStatus = "COMPLETE"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusTriggered OrderStatus = "TRIGGERED"
)

// Terminal reports whether the status will no longer change
func (s OrderStatus) Terminal() bool {
	return s == StatusComplete || s == StatusCancelled || s == StatusRejected
}

// OrderRequest is a new order submission
type OrderRequest struct {
	Key          market.SymbolKey `json:"key"`
	Side         OrderSide        `json:"side"`
	Type         OrderType        `json:"type"`
	Quantity     int64            `json:"quantity"`
	Price        float64          `json:"price"`         // limit price, 0 for market
	TriggerPrice float64          `json:"trigger_price"` // SL / SL-M trigger
	Product      string           `json:"product"`       // CNC, MIS
	Tag          string           `json:"tag"`
}

// OrderResult is the broker acknowledgment for a submission
type OrderResult struct {
	OrderID string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
	Message string      `json:"message"`
}

// Order is the broker-side view of an order
type Order struct {
	ID           string           `json:"id"`
	Key          market.SymbolKey `json:"key"`
	Side         OrderSide        `json:"side"`
	Type         OrderType        `json:"type"`
	Quantity     int64            `json:"quantity"`
	FilledQty    int64            `json:"filled_qty"`
	Price        float64          `json:"price"`
	TriggerPrice float64          `json:"trigger_price"`
	AvgFillPrice float64          `json:"avg_fill_price"`
	Status       OrderStatus      `json:"status"`
	Tag          string           `json:"tag"`
	PlacedAt     time.Time        `json:"placed_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Position is an open intraday or delivery position
type Position struct {
	Key          market.SymbolKey `json:"key"`
	Quantity     int64            `json:"quantity"` // negative for short
	AvgPrice     float64          `json:"avg_price"`
	LastPrice    float64          `json:"last_price"`
	PnL          float64          `json:"pnl"`
	RealizedPnL  float64          `json:"realized_pnl"`
	Product      string           `json:"product"`
	OpenedCycle  uint64           `json:"opened_cycle"`
	OpenedAt     time.Time        `json:"opened_at"`
}

// Holding is a demat holding
type Holding struct {
	Key       market.SymbolKey `json:"key"`
	Quantity  int64            `json:"quantity"`
	AvgPrice  float64          `json:"avg_price"`
	LastPrice float64          `json:"last_price"`
	PnL       float64          `json:"pnl"`
}

// Funds is the available margin summary
type Funds struct {
	AvailableCash float64 `json:"available_cash"`
	UsedMargin    float64 `json:"used_margin"`
	TotalValue    float64 `json:"total_value"`
}

// Profile is the broker account identity
type Profile struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Email    string `json:"email"`
	Broker   string `json:"broker"`
}

// SymbolMatch is one instrument search result
type SymbolMatch struct {
	Key            market.SymbolKey `json:"key"`
	Name           string           `json:"name"`
	InstrumentType string           `json:"instrument_type"`
	TickSize       float64          `json:"tick_size"`
	LotSize        int64            `json:"lot_size"`
}
