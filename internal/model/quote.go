package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is a resolved token price. A zero Price means no source could
// answer; it is never a market price.
type PriceQuote struct {
	Token         TokenRef        `json:"token"`
	QuoteCurrency TokenRef        `json:"quote_currency"`
	Price         decimal.Decimal `json:"price"`
	Source        string          `json:"source"`
	ResolvedAt    time.Time       `json:"resolved_at"`
}

// IsUnavailable reports whether the quote carries the zero sentinel.
func (q PriceQuote) IsUnavailable() bool {
	return q.Price.Sign() <= 0
}
