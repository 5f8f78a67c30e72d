package broker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjunkhanna/tradedesk/internal/config"
	"github.com/arjunkhanna/tradedesk/internal/market"
)

var testKey = market.SymbolKey{Exchange: market.ExchangeNSE, Symbol: "RELIANCE"}

func testFees() config.FeeConfig {
	return config.FeeConfig{
		BaseSlippage: 0.001, // 0.1%
		MaxSlippage:  0.003,
		Brokerage:    0.0003,
	}
}

func newTestBroker(capital float64) *PaperBroker {
	sim := market.NewSimulator(7, zerolog.Nop())
	return NewPaperBroker(sim, capital, testFees(), zerolog.Nop())
}

func priceAt(p *PaperBroker, ltp float64) {
	p.UpdatePrices(map[market.SymbolKey]*market.Quote{
		testKey: {Key: testKey, LTP: ltp},
	})
}

func TestMarketBuyFillsWithSlippage(t *testing.T) {
	p := newTestBroker(500_000)
	priceAt(p, 100)

	res, err := p.PlaceOrder(context.Background(), OrderRequest{
		Key:      testKey,
		Side:     SideBuy,
		Type:     TypeMarket,
		Quantity: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, res.Status)

	o, err := p.Order(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, 100.1, o.AvgFillPrice, "buy slips up by 0.1%")
	assert.Equal(t, int64(10), o.FilledQty)

	positions, err := p.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(10), positions[0].Quantity)
	assert.Equal(t, 100.1, positions[0].AvgPrice)
}

func TestMarketBuyRejectedWithoutPrice(t *testing.T) {
	p := newTestBroker(500_000)

	res, err := p.PlaceOrder(context.Background(), OrderRequest{
		Key:      testKey,
		Side:     SideBuy,
		Type:     TypeMarket,
		Quantity: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, "no market price", res.Message)
}

func TestMarketBuyInsufficientFunds(t *testing.T) {
	p := newTestBroker(500)
	priceAt(p, 100)

	res, err := p.PlaceOrder(context.Background(), OrderRequest{
		Key:      testKey,
		Side:     SideBuy,
		Type:     TypeMarket,
		Quantity: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Contains(t, res.Message, "insufficient funds")
}

func TestSellRealizesPnL(t *testing.T) {
	p := newTestBroker(500_000)
	priceAt(p, 100)

	_, err := p.PlaceOrder(context.Background(), OrderRequest{
		Key: testKey, Side: SideBuy, Type: TypeMarket, Quantity: 10,
	})
	require.NoError(t, err)

	priceAt(p, 110)
	_, err = p.PlaceOrder(context.Background(), OrderRequest{
		Key: testKey, Side: SideSell, Type: TypeMarket, Quantity: 10,
	})
	require.NoError(t, err)

	// Bought at 100.1, sold at 109.89 less the sell-side fee
	assert.InDelta(t, 97.57, p.RealizedPnL(), 0.01)

	positions, err := p.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions, "flat position drops out of the listing")
}

func TestSellQuantityClampedToPosition(t *testing.T) {
	p := newTestBroker(500_000)
	priceAt(p, 100)

	_, err := p.PlaceOrder(context.Background(), OrderRequest{
		Key: testKey, Side: SideBuy, Type: TypeMarket, Quantity: 5,
	})
	require.NoError(t, err)

	_, err = p.PlaceOrder(context.Background(), OrderRequest{
		Key: testKey, Side: SideSell, Type: TypeMarket, Quantity: 50,
	})
	require.NoError(t, err)

	positions, err := p.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions, "the sell closes at most the held quantity, never short")
}

func TestStopLossMarketTriggers(t *testing.T) {
	p := newTestBroker(500_000)
	priceAt(p, 100)

	_, err := p.PlaceOrder(context.Background(), OrderRequest{
		Key: testKey, Side: SideBuy, Type: TypeMarket, Quantity: 10,
	})
	require.NoError(t, err)

	stop, err := p.PlaceOrder(context.Background(), OrderRequest{
		Key:          testKey,
		Side:         SideSell,
		Type:         TypeStopLossMkt,
		Quantity:     10,
		TriggerPrice: 95,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, stop.Status, "stop rests until the trigger is crossed")

	priceAt(p, 96)
	o, err := p.Order(context.Background(), stop.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, o.Status, "96 has not crossed the 95 trigger")

	priceAt(p, 94.5)
	o, err = p.Order(context.Background(), stop.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, o.Status)
	assert.Less(t, p.RealizedPnL(), 0.0, "stopping out below entry realizes a loss")
}

func TestStopOrderRequiresTrigger(t *testing.T) {
	p := newTestBroker(500_000)
	priceAt(p, 100)

	res, err := p.PlaceOrder(context.Background(), OrderRequest{
		Key: testKey, Side: SideSell, Type: TypeStopLossMkt, Quantity: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Contains(t, res.Message, "trigger price")
}

func TestModifyAndCancelOpenOrder(t *testing.T) {
	p := newTestBroker(500_000)
	priceAt(p, 100)

	stop, err := p.PlaceOrder(context.Background(), OrderRequest{
		Key: testKey, Side: SideSell, Type: TypeStopLossMkt, Quantity: 10, TriggerPrice: 95,
	})
	require.NoError(t, err)

	_, err = p.ModifyOrder(context.Background(), stop.OrderID, OrderRequest{TriggerPrice: 93})
	require.NoError(t, err)

	o, err := p.Order(context.Background(), stop.OrderID)
	require.NoError(t, err)
	assert.Equal(t, 93.0, o.TriggerPrice)

	res, err := p.CancelOrder(context.Background(), stop.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, res.Status)

	// Terminal orders refuse further changes
	res, err = p.CancelOrder(context.Background(), stop.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "order already terminal", res.Message)
}

func TestFundsReflectOpenPositions(t *testing.T) {
	p := newTestBroker(100_000)
	priceAt(p, 100)

	_, err := p.PlaceOrder(context.Background(), OrderRequest{
		Key: testKey, Side: SideBuy, Type: TypeMarket, Quantity: 100,
	})
	require.NoError(t, err)

	funds, err := p.Funds(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10_010, funds.UsedMargin, 0.5, "100 shares at the slipped fill price")
	assert.Less(t, funds.AvailableCash, 90_000.0)
}

func TestSearchSymbolsMatchesPricedKeys(t *testing.T) {
	p := newTestBroker(500_000)
	priceAt(p, 100)

	matches, err := p.SearchSymbols(context.Background(), "reli")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, testKey, matches[0].Key)

	matches, err = p.SearchSymbols(context.Background(), "INFY")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestConnectionLifecycle(t *testing.T) {
	p := newTestBroker(500_000)

	assert.True(t, p.IsConnected(), "paper session starts live")
	require.NoError(t, p.RefreshToken(context.Background()))

	require.NoError(t, p.Disconnect(context.Background()))
	assert.False(t, p.IsConnected())
	assert.ErrorIs(t, p.RefreshToken(context.Background()), ErrNotConnected)

	require.NoError(t, p.Connect(context.Background()))
	assert.True(t, p.IsConnected())
}

func TestSymbolTokenStable(t *testing.T) {
	p := newTestBroker(500_000)

	tok1, err := p.SymbolToken(context.Background(), testKey)
	require.NoError(t, err)
	tok2, err := p.SymbolToken(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, tok1, tok2, "same symbol resolves to the same token")

	other, err := p.SymbolToken(context.Background(), market.SymbolKey{Exchange: market.ExchangeNSE, Symbol: "TCS"})
	require.NoError(t, err)
	assert.NotEqual(t, tok1, other)

	_, err = p.SymbolToken(context.Background(), market.SymbolKey{})
	assert.Error(t, err)
}

func TestFetchGuardRefusesWhenDisconnected(t *testing.T) {
	p := newTestBroker(500_000)
	guard := NewFetchGuard(p, config.BrokerConfig{
		QuoteTimeout:      time.Second,
		HistoricalTimeout: time.Second,
		RateLimitPerSec:   100,
	}, zerolog.Nop())

	require.NoError(t, p.Disconnect(context.Background()))
	assert.False(t, guard.IsConnected())

	_, err := guard.Quote(context.Background(), testKey)
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, p.Connect(context.Background()))
	q, err := guard.Quote(context.Background(), testKey)
	require.NoError(t, err)
	assert.Positive(t, q.LTP)
}
