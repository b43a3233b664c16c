package dex

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidityPricer/internal/chain/chaintest"
)

var (
	testPair    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testToken0  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testToken1  = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	testFactory = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func respond(t *testing.T, fake *chaintest.FakeCaller, parsed abi.ABI, to common.Address, method string, outputs ...interface{}) {
	t.Helper()
	m, ok := parsed.Methods[method]
	if !ok {
		t.Fatalf("unknown method %s", method)
	}
	data, err := m.Outputs.Pack(outputs...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	fake.Respond(to, m.ID, data)
}

func TestFetchPairState(t *testing.T) {
	parsed, err := PairABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	fake := chaintest.NewFakeCaller()
	respond(t, fake, parsed, testPair, "token0", testToken0)
	respond(t, fake, parsed, testPair, "token1", testToken1)
	respond(t, fake, parsed, testPair, "getReserves", big.NewInt(1000), big.NewInt(2000), uint32(1700000000))
	respond(t, fake, parsed, testPair, "totalSupply", big.NewInt(1414))

	cache := NewMetaCache()
	state, err := FetchPairState(context.Background(), fake, testPair, cache)
	if err != nil {
		t.Fatalf("fetch pair state: %v", err)
	}
	if state.Token0 != testToken0 || state.Token1 != testToken1 {
		t.Fatalf("token mismatch: %+v", state.PairMeta)
	}
	if state.Reserve0.Int64() != 1000 || state.Reserve1.Int64() != 2000 || state.TotalSupply.Int64() != 1414 {
		t.Fatalf("state mismatch: %+v", state)
	}

	calls := fake.Calls()
	if _, err := FetchPairState(context.Background(), fake, testPair, cache); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	// token0/token1 come from cache on the second read
	if got := fake.Calls() - calls; got != 2 {
		t.Fatalf("expected 2 calls on cached read, got %d", got)
	}
}

func TestFetchFeeBasisPoints(t *testing.T) {
	parsed, err := PairABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	fake := chaintest.NewFakeCaller()
	respond(t, fake, parsed, testPair, FeeMethodFee, big.NewInt(25))

	bps, err := FetchFeeBasisPoints(context.Background(), fake, testPair, FeeMethodFee)
	if err != nil {
		t.Fatalf("fee: %v", err)
	}
	if bps.Int64() != 25 {
		t.Fatalf("fee mismatch: %s", bps)
	}

	if _, err := FetchFeeBasisPoints(context.Background(), fake, testPair, FeeMethodSwapFee); err == nil {
		t.Fatalf("expected revert for missing swapFee")
	}
	if _, err := FetchFeeBasisPoints(context.Background(), fake, testPair, "totalFee"); err == nil {
		t.Fatalf("expected error for unsupported method")
	}
}

func TestGetPair(t *testing.T) {
	parsed, err := FactoryABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	fake := chaintest.NewFakeCaller()
	respond(t, fake, parsed, testFactory, "getPair", testPair)

	pair, err := GetPair(context.Background(), fake, testFactory, testToken0, testToken1)
	if err != nil {
		t.Fatalf("get pair: %v", err)
	}
	if pair != testPair {
		t.Fatalf("pair mismatch: %s", pair.Hex())
	}
}

func TestFetchTokenRefBytes32Symbol(t *testing.T) {
	stringABI, err := erc20ABIString.get()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	bytes32ABI, err := erc20ABIBytes32.get()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	var symbol [32]byte
	copy(symbol[:], "MKR")

	fake := chaintest.NewFakeCaller()
	respond(t, fake, stringABI, testToken0, "decimals", uint8(18))
	respond(t, fake, bytes32ABI, testToken0, "symbol", symbol)

	cache := NewMetaCache()
	ref, err := FetchTokenRef(context.Background(), fake, testToken0, cache, zap.NewNop())
	if err != nil {
		t.Fatalf("fetch token: %v", err)
	}
	if ref.Decimals != 18 || ref.Address != testToken0 || ref.Symbol != "MKR" {
		t.Fatalf("token mismatch: %+v", ref)
	}
	if _, ok := cache.Token(testToken0); !ok {
		t.Fatalf("token should be cached")
	}
}

func TestFetchTokenRefRequiresDecimals(t *testing.T) {
	fake := chaintest.NewFakeCaller()
	if _, err := FetchTokenRef(context.Background(), fake, testToken1, nil, nil); err == nil {
		t.Fatalf("expected error when decimals reverts")
	}
}

func TestScaleAmount(t *testing.T) {
	raw, _ := new(big.Int).SetString("1500000000000000000", 10)
	if got := ScaleAmount(raw, 18); !got.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("scale mismatch: %s", got)
	}
	if got := ScaleAmount(big.NewInt(2500000), 6); !got.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("scale mismatch: %s", got)
	}
	if !ScaleAmount(nil, 18).IsZero() {
		t.Fatalf("nil should scale to zero")
	}
}
