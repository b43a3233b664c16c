package amm

import (
	"github.com/shopspring/decimal"

	"liquidityPricer/internal/model"
)

const (
	// DefaultWindowDays is the trailing window used for fee-based APY.
	DefaultWindowDays = 7
	daysPerYear       = 365
)

var (
	basisPointDivisor = decimal.NewFromInt(10_000)

	// DefaultFeeRate is the conventional constant-product venue fee (0.3%).
	DefaultFeeRate = decimal.RequireFromString("0.003")
)

func annualize(dailyYield decimal.Decimal) decimal.Decimal {
	return dailyYield.Mul(decimal.NewFromInt(daysPerYear)).Mul(hundred)
}

// APYFromDailySamples annualizes the fee yield over a trailing window:
// sum(fees) / (avg(tvl) * windowDays) * 365 * 100.
func APYFromDailySamples(samples []model.DailySample, windowDays int) decimal.Decimal {
	if len(samples) == 0 {
		return decimal.Zero
	}
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	fees := decimal.Zero
	tvl := decimal.Zero
	for _, s := range samples {
		fees = fees.Add(nonNegative(s.FeesUSD))
		tvl = tvl.Add(nonNegative(s.TVLUSD))
	}
	avgTVL := div(tvl, decimal.NewFromInt(int64(len(samples))))
	if avgTVL.IsZero() {
		return decimal.Zero
	}

	dailyYield := div(fees, avgTVL.Mul(decimal.NewFromInt(int64(windowDays))))
	return annualize(dailyYield)
}

// APYFromVolume derives APY from instantaneous 24h volume:
// volume24h * feeRate / tvl * 365 * 100.
func APYFromVolume(volume24h, feeRate, tvl decimal.Decimal) decimal.Decimal {
	if tvl.Sign() <= 0 {
		return decimal.Zero
	}
	dailyYield := div(nonNegative(volume24h).Mul(nonNegative(feeRate)), tvl)
	return annualize(dailyYield)
}

// FeeRateFromBasisPoints converts a basis-point fee into a fraction.
func FeeRateFromBasisPoints(bps decimal.Decimal) decimal.Decimal {
	return div(nonNegative(bps), basisPointDivisor)
}

// ResolveFeeRate prefers an on-chain fee rate and falls back to the venue
// default, then to DefaultFeeRate.
func ResolveFeeRate(onChain, venueDefault decimal.Decimal) decimal.Decimal {
	if onChain.Sign() > 0 && onChain.LessThan(one) {
		return onChain
	}
	if venueDefault.Sign() > 0 && venueDefault.LessThan(one) {
		return venueDefault
	}
	return DefaultFeeRate
}
