package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultCoins(t *testing.T) {
	t.Parallel()

	coins := DefaultCoins()
	assert.Len(t, coins, 10)
	symbols := make(map[string]bool)
	for _, c := range coins {
		assert.NotEmpty(t, c.GeckoID)
		assert.False(t, symbols[c.Symbol], c.Symbol)
		symbols[c.Symbol] = true
	}
}

func TestPrices_Symbols(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, Prices{"SOL": 150, "BTC": 60000, "ETH": 3000}.Symbols())
	assert.Empty(t, Prices{}.Symbols())
}
