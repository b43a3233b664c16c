package model

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func TestTokenRefKey(t *testing.T) {
	weth := TokenRef{Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Symbol: "WETH"}
	if got := weth.Key(); got != "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2" {
		t.Fatalf("key mismatch: %s", got)
	}
	if weth.IsUSD() {
		t.Fatalf("WETH should not be USD")
	}
	if !USD.IsUSD() || USD.Key() != USDSymbol {
		t.Fatalf("USD ref mismatch: %+v", USD)
	}
	if !(TokenRef{Symbol: "usd"}).IsUSD() {
		t.Fatalf("USD symbol should be case-insensitive")
	}
}

func TestPriceQuoteUnavailable(t *testing.T) {
	if !(PriceQuote{}).IsUnavailable() {
		t.Fatalf("zero price should be unavailable")
	}
	if (PriceQuote{Price: decimal.RequireFromString("0.0001")}).IsUnavailable() {
		t.Fatalf("positive price should be available")
	}
}

func TestPoolReservesSeeded(t *testing.T) {
	r := PoolReserves{}
	if r.IsSeeded() || !r.IsEmpty() {
		t.Fatalf("zero reserves should be empty and unseeded")
	}
	r.Token0Reserve = decimal.NewFromInt(10)
	r.TotalLPSupply = decimal.NewFromInt(1)
	if !r.IsSeeded() || r.IsEmpty() {
		t.Fatalf("seeded pool misreported: %+v", r)
	}
}
