package engine

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"liquidityPricer/internal/amm"
	"liquidityPricer/internal/model"
)

// CalculateOptimalAmounts trims a desired deposit to the pool's current
// ratio.
func (e *Engine) CalculateOptimalAmounts(ctx context.Context, pool common.Address, token0Desired, token1Desired decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	r, err := e.GetReserves(ctx, pool)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	a0, a1 := amm.OptimalAmounts(r, token0Desired, token1Desired)
	return a0, a1, nil
}

// EstimateLPTokens returns the LP tokens minted for a deposit.
func (e *Engine) EstimateLPTokens(ctx context.Context, pool common.Address, token0Amount, token1Amount decimal.Decimal) (decimal.Decimal, error) {
	r, err := e.GetReserves(ctx, pool)
	if err != nil {
		return decimal.Zero, err
	}
	return amm.EstimateLPTokens(r, token0Amount, token1Amount), nil
}

// EstimateWithdrawalAmounts returns the tokens redeemed for lpTokens.
func (e *Engine) EstimateWithdrawalAmounts(ctx context.Context, pool common.Address, lpTokens decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	r, err := e.GetReserves(ctx, pool)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	a0, a1 := amm.EstimateWithdrawal(r, lpTokens)
	return a0, a1, nil
}

// CalculatePriceImpact returns the percentage move of the token0 price
// caused by applying the reserve deltas.
func (e *Engine) CalculatePriceImpact(ctx context.Context, pool common.Address, token0Delta, token1Delta decimal.Decimal) (decimal.Decimal, error) {
	r, err := e.GetReserves(ctx, pool)
	if err != nil {
		return decimal.Zero, err
	}
	return amm.PriceImpact(r, token0Delta, token1Delta), nil
}

// CalculateMinimumAmounts applies a slippage tolerance to both amounts.
func (e *Engine) CalculateMinimumAmounts(token0Amount, token1Amount, tolerance decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	return amm.MinimumAmounts(token0Amount, token1Amount, tolerance)
}

// APYEstimate is an annualized fee yield with the path that produced it.
type APYEstimate struct {
	APY        decimal.Decimal `json:"apy"`
	Method     string          `json:"method"`
	WindowDays int             `json:"window_days"`
	FeeRate    decimal.Decimal `json:"fee_rate"`
	Samples    int             `json:"samples"`
}

// CalculateAPY prefers trailing daily fee history and falls back to the
// instantaneous 24h volume. Both paths report zero for pools without TVL.
func (e *Engine) CalculateAPY(ctx context.Context, pool common.Address, windowDays int) (APYEstimate, error) {
	if windowDays <= 0 {
		windowDays = e.cfg.APYWindowDays
	}
	est := APYEstimate{APY: decimal.Zero, Method: model.APYMethodNone, WindowDays: windowDays}

	feeRate, err := e.GetFeeRate(ctx, pool)
	if err != nil {
		return est, err
	}
	est.FeeRate = feeRate

	samples, err := e.DailySamples(ctx, pool, windowDays)
	if err != nil {
		return est, err
	}
	est.Samples = len(samples)
	if apy := amm.APYFromDailySamples(samples, windowDays); apy.Sign() > 0 {
		est.APY = apy
		est.Method = model.APYMethodDaily
		return est, nil
	}

	volume, err := e.GetVolume24h(ctx, pool)
	if err != nil {
		return est, err
	}
	tvl, err := e.GetTVL(ctx, pool)
	if err != nil {
		return est, err
	}
	if apy := amm.APYFromVolume(volume, feeRate, tvl); apy.Sign() > 0 {
		est.APY = apy
		est.Method = model.APYMethodVolume
	}
	return est, nil
}

// Snapshot gathers reserves, TVL, volume, fee and APY for a pool.
func (e *Engine) Snapshot(ctx context.Context, pool common.Address) (model.PoolSnapshot, error) {
	r, err := e.GetReserves(ctx, pool)
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	tvl, err := e.GetTVL(ctx, pool)
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	volume, err := e.GetVolume24h(ctx, pool)
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	apy, err := e.CalculateAPY(ctx, pool, 0)
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	return model.PoolSnapshot{
		Reserves:     r,
		TVLUSD:       tvl,
		Volume24hUSD: volume,
		FeeRate:      apy.FeeRate,
		APY:          apy.APY,
		APYMethod:    apy.Method,
	}, nil
}

// QuoteSwap returns the output of swapping amountIn of token0 (or token1
// when zeroForOne is false) at the pool's current reserves and fee.
func (e *Engine) QuoteSwap(ctx context.Context, pool common.Address, amountIn decimal.Decimal, zeroForOne bool) (decimal.Decimal, error) {
	r, err := e.GetReserves(ctx, pool)
	if err != nil {
		return decimal.Zero, err
	}
	fee, err := e.GetFeeRate(ctx, pool)
	if err != nil {
		return decimal.Zero, err
	}
	if zeroForOne {
		return amm.AmountOut(amountIn, r.Token0Reserve, r.Token1Reserve, fee), nil
	}
	return amm.AmountOut(amountIn, r.Token1Reserve, r.Token0Reserve, fee), nil
}

// PoolShare returns the percentage of the pool owned after minting lpTokens.
func (e *Engine) PoolShare(ctx context.Context, pool common.Address, lpTokens decimal.Decimal) (decimal.Decimal, error) {
	r, err := e.GetReserves(ctx, pool)
	if err != nil {
		return decimal.Zero, err
	}
	return amm.PoolShare(lpTokens, r.TotalLPSupply), nil
}
