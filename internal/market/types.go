// Package market defines market data primitives and the per-cycle snapshot service
package market

import (
	"fmt"
	"strings"
	"time"
)

// Exchange identifies a trading venue
type Exchange string

const (
	ExchangeNSE Exchange = "NSE"
	ExchangeBSE Exchange = "BSE"
	ExchangeNFO Exchange = "NFO"
	ExchangeBFO Exchange = "BFO"
	ExchangeMCX Exchange = "MCX"
	ExchangeCDS Exchange = "CDS"
)

// Valid reports whether the exchange token is one of the known venues
func (e Exchange) Valid() bool {
	switch e {
	case ExchangeNSE, ExchangeBSE, ExchangeNFO, ExchangeBFO, ExchangeMCX, ExchangeCDS:
		return true
	}
	return false
}

// SymbolKey is the canonical (exchange, symbol) identifier
type SymbolKey struct {
	Exchange Exchange `json:"exchange"`
	Symbol   string   `json:"symbol"`
}

// String renders the key as "NSE:RELIANCE"
func (k SymbolKey) String() string {
	return fmt.Sprintf("%s:%s", k.Exchange, k.Symbol)
}

// ParseSymbolKey parses "EXCHANGE:SYMBOL" into a SymbolKey
func ParseSymbolKey(s string) (SymbolKey, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return SymbolKey{}, fmt.Errorf("invalid symbol key: %q (expected EXCHANGE:SYMBOL)", s)
	}
	ex := Exchange(strings.ToUpper(parts[0]))
	if !ex.Valid() {
		return SymbolKey{}, fmt.Errorf("unknown exchange: %q", parts[0])
	}
	return SymbolKey{Exchange: ex, Symbol: strings.ToUpper(parts[1])}, nil
}

// Timeframe is a candle interval
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe3m  Timeframe = "3m"
	Timeframe5m  Timeframe = "5m"
	Timeframe10m Timeframe = "10m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe1d  Timeframe = "1d"
)

// CycleTimeframes are the intervals the decision core consumes, coarsest last
var CycleTimeframes = []Timeframe{Timeframe5m, Timeframe15m, Timeframe1h}

// Duration returns the bar length of the timeframe
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1m:
		return time.Minute
	case Timeframe3m:
		return 3 * time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe10m:
		return 10 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe30m:
		return 30 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	}
	return time.Minute
}

// Candle is a single OHLCV bar
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// Quote is the current market state for a symbol
type Quote struct {
	Key       SymbolKey `json:"key"`
	LTP       float64   `json:"ltp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Timestamp time.Time `json:"timestamp"`
	Simulated bool      `json:"simulated"`
}
