package rates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPair(t *testing.T) {
	p, err := NewPair("btc", "usd")
	require.NoError(t, err)
	assert.Equal(t, Pair{From: "BTC", To: "USD"}, p)
	assert.Equal(t, "BTC_USD", p.String())

	_, err = NewPair("USD", "USD")
	assert.Error(t, err)

	_, err = NewPair("", "USD")
	assert.Error(t, err)
}

func TestParsePair(t *testing.T) {
	p, err := ParsePair("EUR_USD")
	require.NoError(t, err)
	assert.Equal(t, "EUR", p.From)
	assert.Equal(t, "USD", p.To)

	_, err = ParsePair("EURUSD")
	assert.Error(t, err)

	_, err = ParsePair("EUR_US1")
	assert.Error(t, err)
}

func TestPairInverse(t *testing.T) {
	p := Pair{From: "BTC", To: "USD"}
	assert.Equal(t, Pair{From: "USD", To: "BTC"}, p.Inverse())
	assert.Equal(t, p, p.Inverse().Inverse())
}

func TestPairIsCrypto(t *testing.T) {
	assert.True(t, Pair{From: "BTC", To: "USD"}.IsCrypto())
	assert.False(t, Pair{From: "EUR", To: "USD"}.IsCrypto())
	// Class follows the From side.
	assert.False(t, Pair{From: "USD", To: "BTC"}.IsCrypto())
}

func TestIsFreshAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ttl := 5 * time.Minute

	assert.True(t, IsFreshAt(now, now, ttl))
	assert.True(t, IsFreshAt(now, now.Add(-ttl+time.Second), ttl))
	// Age exactly equal to the TTL is already stale.
	assert.False(t, IsFreshAt(now, now.Add(-ttl), ttl))
	assert.False(t, IsFreshAt(now, now.Add(-ttl-time.Hour), ttl))
	assert.False(t, IsFreshAt(now, time.Time{}, ttl))
}

func TestNewTable(t *testing.T) {
	tab := NewTable("ParserService")
	require.NotNil(t, tab.Pairs)
	assert.Empty(t, tab.Pairs)
	assert.Equal(t, "ParserService", tab.Source)
}
