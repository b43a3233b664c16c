package postgres

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"liquidityPricer/internal/model"
)

func TestDailyRowBucketsByUTCDay(t *testing.T) {
	resolved := time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600))
	snap := model.PoolSnapshot{
		Reserves: model.PoolReserves{
			PoolAddress: common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"),
			Source:      "uniswap-v2",
			ResolvedAt:  resolved,
		},
		TVLUSD:       decimal.NewFromInt(1_000_000),
		Volume24hUSD: decimal.NewFromInt(100_000),
		FeeRate:      decimal.RequireFromString("0.003"),
		APY:          decimal.RequireFromString("10.95"),
		APYMethod:    model.APYMethodVolume,
	}

	row := dailyRow(snap)
	wantStart := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	if !row.start.Equal(wantStart) || !row.end.Equal(wantStart.Add(24*time.Hour)) {
		t.Fatalf("window = [%s, %s), want day starting %s", row.start, row.end, wantStart)
	}
	if row.pool != "0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc" {
		t.Fatalf("pool key = %s", row.pool)
	}
	if row.feeUSD != "300" {
		t.Fatalf("fee_usd = %s, want 300", row.feeUSD)
	}
	if row.aprMethod != model.APYMethodVolume || row.source != "uniswap-v2" {
		t.Fatalf("unexpected provenance: %+v", row)
	}
}

func TestParseSample(t *testing.T) {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	sample, err := parseSample(day, "300.5", "1000000")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !sample.FeesUSD.Equal(decimal.RequireFromString("300.5")) || !sample.TVLUSD.Equal(decimal.NewFromInt(1_000_000)) {
		t.Fatalf("unexpected sample: %+v", sample)
	}
	if _, err := parseSample(day, "NaN?", "1"); err == nil {
		t.Fatal("expected parse error")
	}
}
