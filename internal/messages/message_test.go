package messages

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjunkhanna/tradedesk/internal/market"
	"github.com/arjunkhanna/tradedesk/internal/strategy"
)

func TestNewClampsPriority(t *testing.T) {
	m := New("engine", "*", 1, 15, Error{Stage: "snapshot", Message: "boom"})
	assert.Equal(t, 10, m.Priority)

	m = New("engine", "*", 1, -3, Error{Stage: "snapshot", Message: "boom"})
	assert.Equal(t, 1, m.Priority)
}

func TestNewStampsTypeFromPayload(t *testing.T) {
	m := New("engine", "risk", 7, 6, Signal{})

	assert.Equal(t, TypeSignal, m.Type)
	assert.Equal(t, "engine", m.Source)
	assert.Equal(t, uint64(7), m.Cycle)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", m.ID.String())
	assert.False(t, m.Timestamp.IsZero())
}

func TestMessageRoundTrip(t *testing.T) {
	key := market.SymbolKey{Exchange: market.ExchangeNSE, Symbol: "RELIANCE"}
	orig := New("engine", "risk", 12, 6, Signal{Signal: strategy.Signal{
		Action:     strategy.ActionBuy,
		Key:        key,
		Confidence: 0.82,
		EntryPrice: 102,
		StopLoss:   100.5,
		TakeProfit: 106,
	}})

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var got Message
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, TypeSignal, got.Type)
	assert.Equal(t, uint64(12), got.Cycle)

	sig, ok := got.Payload.(*Signal)
	require.True(t, ok, "payload must decode to the concrete signal type")
	assert.Equal(t, strategy.ActionBuy, sig.Signal.Action)
	assert.Equal(t, key, sig.Signal.Key)
	assert.Equal(t, 0.82, sig.Signal.Confidence)
}

func TestMarketUpdateRoundTrip(t *testing.T) {
	orig := New("engine", "*", 3, 5, MarketUpdate{
		Symbols: []string{"NSE:RELIANCE"},
		Data: map[string]SymbolSnapshot{
			"NSE:RELIANCE": {Quote: market.Quote{LTP: 2500}},
		},
	})

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var got Message
	require.NoError(t, json.Unmarshal(data, &got))

	mu, ok := got.Payload.(*MarketUpdate)
	require.True(t, ok)
	assert.Equal(t, []string{"NSE:RELIANCE"}, mu.Symbols)
	assert.Equal(t, 2500.0, mu.Data["NSE:RELIANCE"].Quote.LTP)
}

func TestUnmarshalUnknownTypeFails(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"type":"GOSSIP","payload":{}}`), &m)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown message type")
}
