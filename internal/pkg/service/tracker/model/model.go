// Package model contains the domain types of the price tracker.
package model

import (
	"sort"
)

// Coin is a tracked cryptocurrency.
type Coin struct {
	// GeckoID is the coin ID in the CoinGecko API.
	GeckoID string
	Symbol  string
}

// Prices maps a coin symbol to the USD price.
type Prices map[string]float64

// Symbols returns sorted symbols of the prices.
func (p Prices) Symbols() []string {
	out := make([]string, 0, len(p))
	for symbol := range p {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// DefaultCoins returns the tracked set of coins.
func DefaultCoins() []Coin {
	return []Coin{
		{GeckoID: "bitcoin", Symbol: "BTC"},
		{GeckoID: "ethereum", Symbol: "ETH"},
		{GeckoID: "ripple", Symbol: "XRP"},
		{GeckoID: "solana", Symbol: "SOL"},
		{GeckoID: "tron", Symbol: "TRX"},
		{GeckoID: "dogecoin", Symbol: "DOGE"},
		{GeckoID: "cardano", Symbol: "ADA"},
		{GeckoID: "hyperliquid", Symbol: "HYPE"},
		{GeckoID: "bitcoin-cash", Symbol: "BCH"},
		{GeckoID: "chainlink", Symbol: "LINK"},
	}
}
