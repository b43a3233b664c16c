package model

import (
	"github.com/shopspring/decimal"
)

// APY derivation methods.
const (
	APYMethodDaily  = "daily_fees"
	APYMethodVolume = "volume_24h"
	APYMethodNone   = "unavailable"
)

// PoolSnapshot is a read-only derived view of a pool. The engine recomputes
// it on demand; it is only written out by explicit export.
type PoolSnapshot struct {
	Reserves     PoolReserves    `json:"reserves"`
	TVLUSD       decimal.Decimal `json:"tvl_usd"`
	Volume24hUSD decimal.Decimal `json:"volume_24h_usd"`
	FeeRate      decimal.Decimal `json:"fee_rate"`
	APY          decimal.Decimal `json:"apy"`
	APYMethod    string          `json:"apy_method"`
}
