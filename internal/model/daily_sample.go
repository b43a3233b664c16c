package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailySample is one day bucket of pool fee income and TVL in USD.
type DailySample struct {
	Day     time.Time       `json:"day"`
	FeesUSD decimal.Decimal `json:"fees_usd"`
	TVLUSD  decimal.Decimal `json:"tvl_usd"`
}
