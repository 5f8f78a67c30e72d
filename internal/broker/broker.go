package broker

import (
	"context"
	"errors"
	"time"

	"github.com/arjunkhanna/tradedesk/internal/market"
)

// ErrNotConnected is returned for calls that need a live broker session
var ErrNotConnected = errors.New("broker not connected")

// Broker is the full capability surface the engine needs from a brokerage.
// PaperBroker implements it in-process; a live adapter would wrap a broker
// HTTP API behind the same contract.
type Broker interface {
	// Connect establishes the broker session
	Connect(ctx context.Context) error

	// Disconnect tears down the broker session
	Disconnect(ctx context.Context) error

	// IsConnected reports whether the session is usable
	IsConnected() bool

	// RefreshToken renews the session token before it expires
	RefreshToken(ctx context.Context) error

	// Profile returns the account identity
	Profile(ctx context.Context) (*Profile, error)

	// Funds returns the available margin summary
	Funds(ctx context.Context) (*Funds, error)

	// Quote fetches the current market state for one symbol
	Quote(ctx context.Context, key market.SymbolKey) (*market.Quote, error)

	// Quotes fetches current market state for several symbols
	Quotes(ctx context.Context, keys []market.SymbolKey) (map[market.SymbolKey]*market.Quote, error)

	// Historical fetches OHLCV bars, oldest first
	Historical(ctx context.Context, key market.SymbolKey, tf market.Timeframe, from, to time.Time) ([]market.Candle, error)

	// PlaceOrder submits a new order
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// ModifyOrder updates price, trigger, or quantity of an open order
	ModifyOrder(ctx context.Context, orderID string, req OrderRequest) (*OrderResult, error)

	// CancelOrder cancels an open order
	CancelOrder(ctx context.Context, orderID string) (*OrderResult, error)

	// Order fetches one order by ID
	Order(ctx context.Context, orderID string) (*Order, error)

	// Orders lists today's orders
	Orders(ctx context.Context) ([]Order, error)

	// Positions lists open positions
	Positions(ctx context.Context) ([]Position, error)

	// Holdings lists demat holdings
	Holdings(ctx context.Context) ([]Holding, error)

	// SearchSymbols finds tradeable instruments matching the query
	SearchSymbols(ctx context.Context, query string) ([]SymbolMatch, error)

	// SymbolToken resolves the broker's instrument token for a symbol
	SymbolToken(ctx context.Context, key market.SymbolKey) (string, error)
}
