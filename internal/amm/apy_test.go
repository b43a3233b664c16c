package amm

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"liquidityPricer/internal/model"
)

func dailySamples(fees, tvl string, days int) []model.DailySample {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.DailySample, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, model.DailySample{
			Day:     start.AddDate(0, 0, i),
			FeesUSD: d(fees),
			TVLUSD:  d(tvl),
		})
	}
	return out
}

func TestAPYFromDailySamples(t *testing.T) {
	// 7 days x 10 USD fees on 10,000 TVL: 0.1% daily -> 36.5%
	assertDecimal(t, d("36.5"), APYFromDailySamples(dailySamples("10", "10000", 7), 7))
	assertDecimal(t, d("36.5"), APYFromDailySamples(dailySamples("10", "10000", 7), 0))

	assertDecimal(t, decimal.Zero, APYFromDailySamples(nil, 7))
	assertDecimal(t, decimal.Zero, APYFromDailySamples(dailySamples("10", "0", 7), 7))
}

func TestAPYFromDailySamplesAveragesTVL(t *testing.T) {
	samples := []model.DailySample{
		{FeesUSD: d("5"), TVLUSD: d("5000")},
		{FeesUSD: d("15"), TVLUSD: d("15000")},
	}
	// fees 20 / (avg 10000 * 2 days) = 0.001 daily
	assertDecimal(t, d("36.5"), APYFromDailySamples(samples, 2))
}

func TestAPYFromVolume(t *testing.T) {
	// 100k volume * 0.3% = 300 fees on 1M TVL -> 0.03% daily -> 10.95%
	assertDecimal(t, d("10.95"), APYFromVolume(d("100000"), d("0.003"), d("1000000")))
	assertDecimal(t, decimal.Zero, APYFromVolume(d("100000"), d("0.003"), decimal.Zero))
	assertDecimal(t, decimal.Zero, APYFromVolume(decimal.Zero, d("0.003"), d("1000")))
}

func TestResolveFeeRate(t *testing.T) {
	testCases := []struct {
		name     string
		onChain  decimal.Decimal
		fallback decimal.Decimal
		expected decimal.Decimal
	}{
		{name: "on-chain wins", onChain: d("0.0025"), fallback: d("0.003"), expected: d("0.0025")},
		{name: "venue default", onChain: decimal.Zero, fallback: d("0.002"), expected: d("0.002")},
		{name: "global default", onChain: decimal.Zero, fallback: decimal.Zero, expected: DefaultFeeRate},
		{name: "nonsense on-chain ignored", onChain: d("30"), fallback: d("0.001"), expected: d("0.001")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assertDecimal(t, tc.expected, ResolveFeeRate(tc.onChain, tc.fallback))
		})
	}
}

func TestFeeRateFromBasisPoints(t *testing.T) {
	assertDecimal(t, d("0.003"), FeeRateFromBasisPoints(d("30")))
	assertDecimal(t, d("0.0025"), FeeRateFromBasisPoints(d("25")))
	assertDecimal(t, decimal.Zero, FeeRateFromBasisPoints(d("-1")))
	assert.True(t, FeeRateFromBasisPoints(decimal.Zero).IsZero())
}
