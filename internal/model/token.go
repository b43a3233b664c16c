package model

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// USDSymbol is the pseudo-token symbol for fiat USD quotes.
const USDSymbol = "USD"

// TokenRef identifies a token by chain address and symbol.
type TokenRef struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// USD is the quote currency used when prices are expressed in US dollars.
var USD = TokenRef{Symbol: USDSymbol}

// IsUSD reports whether the ref is the USD pseudo-token.
func (t TokenRef) IsUSD() bool {
	return t.Address == (common.Address{}) && strings.EqualFold(t.Symbol, USDSymbol)
}

// Key returns a stable cache key component for the token.
func (t TokenRef) Key() string {
	if t.IsUSD() {
		return USDSymbol
	}
	return strings.ToLower(t.Address.Hex())
}

func (t TokenRef) String() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}
