// Package strategy implements the multi-timeframe weighted-vote decision core
package strategy

import (
	"time"

	"github.com/arjunkhanna/tradedesk/internal/indicators"
	"github.com/arjunkhanna/tradedesk/internal/market"
	"github.com/arjunkhanna/tradedesk/internal/predict"
	"github.com/arjunkhanna/tradedesk/internal/regime"
)

// Action is the trading decision for one symbol
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Inputs is everything the decision core consumes for one symbol in one cycle
type Inputs struct {
	Key        market.SymbolKey
	Quote      market.Quote
	Bundles    map[market.Timeframe]indicators.Bundle
	Regime     regime.Snapshot
	Traps      regime.TrapFlags
	Prediction predict.Prediction
	Cycle      uint64
	Now        time.Time
}

// Signal is an actionable decision candidate handed to the risk guardian
type Signal struct {
	Action     Action               `json:"action"`
	Key        market.SymbolKey     `json:"key"`
	Confidence float64              `json:"confidence"`
	EntryPrice float64              `json:"entry_price"`
	StopLoss   float64              `json:"stop_loss"`
	TakeProfit float64              `json:"take_profit"`
	Score      float64              `json:"score"`
	Aligned    bool                 `json:"aligned"`
	Regime     regime.Snapshot      `json:"regime"`
	Traps      regime.TrapFlags     `json:"traps"`
	Reasoning  string               `json:"reasoning"`
	Source     string               `json:"source"`
	Cycle      uint64               `json:"cycle"`
	Timestamp  time.Time            `json:"timestamp"`
}
