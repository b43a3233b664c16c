package tokens

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"liquidityPricer/internal/model"
)

var (
	wethAddr = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]Entry{
		{Symbol: "weth", Address: wethAddr, Decimals: 18},
		{Symbol: "USDC", Address: usdcAddr, Decimals: 6, USD: true},
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return r
}

func TestResolve(t *testing.T) {
	r := newTestRegistry(t)

	ref, err := r.Resolve("WETH")
	if err != nil {
		t.Fatalf("resolve WETH: %v", err)
	}
	if ref.Address != wethAddr || ref.Decimals != 18 {
		t.Fatalf("WETH = %+v", ref)
	}

	ref, err = r.Resolve(" usdc ")
	if err != nil {
		t.Fatalf("resolve usdc: %v", err)
	}
	if ref.Symbol != "USDC" {
		t.Fatalf("symbol = %q, want USDC", ref.Symbol)
	}

	usd, err := r.Resolve("usd")
	if err != nil {
		t.Fatalf("resolve usd: %v", err)
	}
	if !usd.IsUSD() {
		t.Fatalf("usd should resolve to the USD pseudo-token: %+v", usd)
	}

	if _, err := r.Resolve("DOGE"); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
}

func TestResolveAny(t *testing.T) {
	r := newTestRegistry(t)

	ref, err := r.ResolveAny(usdcAddr.Hex())
	if err != nil {
		t.Fatalf("resolve address: %v", err)
	}
	if ref.Symbol != "USDC" {
		t.Fatalf("symbol = %q, want USDC", ref.Symbol)
	}

	other := common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	ref, err = r.ResolveAny(other.Hex())
	if err != nil {
		t.Fatalf("resolve unregistered address: %v", err)
	}
	if ref != (model.TokenRef{Address: other}) {
		t.Fatalf("unregistered ref = %+v", ref)
	}

	if _, err := r.Lookup(other); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
}

func TestNewRegistryRejectsInvalidEntries(t *testing.T) {
	cases := map[string][]Entry{
		"duplicate symbol":  {{Symbol: "WETH", Address: wethAddr}, {Symbol: "weth", Address: usdcAddr}},
		"duplicate address": {{Symbol: "A", Address: wethAddr}, {Symbol: "B", Address: wethAddr}},
		"reserved USD":      {{Symbol: "USD", Address: usdcAddr}},
		"missing address":   {{Symbol: "X"}},
	}
	for name, entries := range cases {
		if _, err := NewRegistry(entries); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestUSDTokensAndSymbols(t *testing.T) {
	r := newTestRegistry(t)
	if got := r.USDTokens(); !reflect.DeepEqual(got, []common.Address{usdcAddr}) {
		t.Fatalf("usd tokens = %v", got)
	}
	if got := r.Symbols(); !reflect.DeepEqual(got, []string{"USDC", "WETH"}) {
		t.Fatalf("symbols = %v", got)
	}
}
