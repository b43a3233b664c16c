// Package amm implements constant-product pool math. Every function is pure
// and total: invalid or unseeded states yield zero results instead of errors.
package amm

import (
	"math/big"

	"github.com/shopspring/decimal"

	"liquidityPricer/internal/model"
)

// precision is the number of fractional digits kept by divisions and sqrt.
const precision int32 = 18

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.Sign() < 0 {
		return decimal.Zero
	}
	return d
}

func div(num, denom decimal.Decimal) decimal.Decimal {
	if denom.Sign() == 0 {
		return decimal.Zero
	}
	return num.DivRound(denom, precision)
}

func sqrt(d decimal.Decimal) decimal.Decimal {
	if d.Sign() <= 0 {
		return decimal.Zero
	}
	f, ok := new(big.Float).SetPrec(256).SetString(d.String())
	if !ok {
		return decimal.Zero
	}
	f.Sqrt(f)
	out, err := decimal.NewFromString(f.Text('f', int(precision)))
	if err != nil {
		return decimal.Zero
	}
	return out
}

// SpotPrice returns the price of token0 denominated in token1.
func SpotPrice(r model.PoolReserves) decimal.Decimal {
	return div(nonNegative(r.Token1Reserve), nonNegative(r.Token0Reserve))
}

// OptimalAmounts trims the desired deposit so that it matches the current
// reserve ratio. Unseeded pools accept the desired amounts unchanged.
func OptimalAmounts(r model.PoolReserves, token0Desired, token1Desired decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	token0Desired = nonNegative(token0Desired)
	token1Desired = nonNegative(token1Desired)
	reserve0 := nonNegative(r.Token0Reserve)
	reserve1 := nonNegative(r.Token1Reserve)

	if reserve0.IsZero() || reserve1.IsZero() {
		return token0Desired, token1Desired
	}

	// multiply before dividing so the pair keeps the exact pool ratio
	token1Optimal := div(token0Desired.Mul(reserve1), reserve0)
	if token1Optimal.LessThanOrEqual(token1Desired) {
		return token0Desired, token1Optimal
	}
	token0Optimal := div(token1Desired.Mul(reserve0), reserve1)
	return token0Optimal, token1Desired
}

// EstimateLPTokens estimates LP tokens minted for a deposit. The first
// deposit mints the geometric mean; later deposits mint the smaller of the
// two proportional shares.
func EstimateLPTokens(r model.PoolReserves, token0Amount, token1Amount decimal.Decimal) decimal.Decimal {
	token0Amount = nonNegative(token0Amount)
	token1Amount = nonNegative(token1Amount)

	if !r.IsSeeded() {
		return sqrt(token0Amount.Mul(token1Amount))
	}

	reserve0 := nonNegative(r.Token0Reserve)
	reserve1 := nonNegative(r.Token1Reserve)
	if reserve0.IsZero() || reserve1.IsZero() {
		return decimal.Zero
	}

	share0 := div(token0Amount.Mul(r.TotalLPSupply), reserve0)
	share1 := div(token1Amount.Mul(r.TotalLPSupply), reserve1)
	return decimal.Min(share0, share1)
}

// EstimateWithdrawal returns the pro-rata token amounts redeemed by burning
// lpTokenAmount.
func EstimateWithdrawal(r model.PoolReserves, lpTokenAmount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if !r.IsSeeded() {
		return decimal.Zero, decimal.Zero
	}
	lpTokenAmount = nonNegative(lpTokenAmount)
	token0 := div(lpTokenAmount.Mul(nonNegative(r.Token0Reserve)), r.TotalLPSupply)
	token1 := div(lpTokenAmount.Mul(nonNegative(r.Token1Reserve)), r.TotalLPSupply)
	return token0, token1
}

// PriceImpact returns the percentage move of the token0 price caused by
// adding the given deltas to the reserves. Deltas that would drain a reserve
// report a full 100% impact.
func PriceImpact(r model.PoolReserves, token0Delta, token1Delta decimal.Decimal) decimal.Decimal {
	reserve0 := nonNegative(r.Token0Reserve)
	reserve1 := nonNegative(r.Token1Reserve)
	if reserve0.IsZero() || reserve1.IsZero() {
		return decimal.Zero
	}

	newReserve0 := reserve0.Add(token0Delta)
	newReserve1 := reserve1.Add(token1Delta)
	if newReserve0.Sign() <= 0 || newReserve1.Sign() < 0 {
		return hundred
	}

	currentPrice := div(reserve1, reserve0)
	newPrice := div(newReserve1, newReserve0)
	return div(newPrice.Sub(currentPrice).Abs(), currentPrice).Mul(hundred)
}

// MinimumAmount applies a slippage tolerance fraction to amount. The
// tolerance is clamped to [0, 1].
func MinimumAmount(amount, tolerance decimal.Decimal) decimal.Decimal {
	tolerance = decimal.Min(nonNegative(tolerance), one)
	return amount.Mul(one.Sub(tolerance))
}

// MinimumAmounts applies the same tolerance to both legs independently.
func MinimumAmounts(token0Amount, token1Amount, tolerance decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	return MinimumAmount(token0Amount, tolerance), MinimumAmount(token1Amount, tolerance)
}

// AmountOut returns the constant-product swap output for amountIn after the
// pool fee.
func AmountOut(amountIn, reserveIn, reserveOut, feeRate decimal.Decimal) decimal.Decimal {
	amountIn = nonNegative(amountIn)
	reserveIn = nonNegative(reserveIn)
	reserveOut = nonNegative(reserveOut)
	if amountIn.IsZero() || reserveIn.IsZero() || reserveOut.IsZero() {
		return decimal.Zero
	}
	inWithFee := amountIn.Mul(one.Sub(decimal.Min(nonNegative(feeRate), one)))
	return div(inWithFee.Mul(reserveOut), reserveIn.Add(inWithFee))
}

// PoolShare returns the percentage of the pool owned after minting
// lpTokens on top of totalSupply.
func PoolShare(lpTokens, totalSupply decimal.Decimal) decimal.Decimal {
	lpTokens = nonNegative(lpTokens)
	if lpTokens.IsZero() {
		return decimal.Zero
	}
	return div(lpTokens, nonNegative(totalSupply).Add(lpTokens)).Mul(hundred)
}
