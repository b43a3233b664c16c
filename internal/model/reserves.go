package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PoolReserves holds decimal-adjusted reserves and LP supply for a pool.
type PoolReserves struct {
	PoolAddress   common.Address  `json:"pool_address"`
	Token0        TokenRef        `json:"token0"`
	Token1        TokenRef        `json:"token1"`
	Token0Reserve decimal.Decimal `json:"token0_reserve"`
	Token1Reserve decimal.Decimal `json:"token1_reserve"`
	TotalLPSupply decimal.Decimal `json:"total_lp_supply"`
	Source        string          `json:"source"`
	ResolvedAt    time.Time       `json:"resolved_at"`
}

// IsEmpty reports whether both reserves are zero.
func (r PoolReserves) IsEmpty() bool {
	return r.Token0Reserve.Sign() <= 0 && r.Token1Reserve.Sign() <= 0
}

// IsSeeded reports whether LP tokens have ever been minted.
func (r PoolReserves) IsSeeded() bool {
	return r.TotalLPSupply.Sign() > 0
}
