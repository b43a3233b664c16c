package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PoolCandidate is a pool returned by discovery.
type PoolCandidate struct {
	Address    common.Address  `json:"address"`
	Token0     common.Address  `json:"token0"`
	Token1     common.Address  `json:"token1"`
	ReserveUSD decimal.Decimal `json:"reserve_usd"`
	Venue      string          `json:"venue"`
}
