package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"liquidityPricer/internal/cache"
	"liquidityPricer/internal/discovery"
	"liquidityPricer/internal/health"
	"liquidityPricer/internal/model"
	"liquidityPricer/internal/resolver"
	"liquidityPricer/internal/source"
	"liquidityPricer/internal/tokens"
)

var (
	poolAddr = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	wethAddr = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeAdapter serves fixed values and counts calls per query.
type fakeAdapter struct {
	desc     source.Descriptor
	price    decimal.Decimal
	reserves model.PoolReserves
	tvl      decimal.Decimal
	volume   decimal.Decimal
	fee      decimal.Decimal
	samples  []model.DailySample
	err      error
	delay    time.Duration
	probeErr error

	priceCalls    atomic.Int32
	reservesCalls atomic.Int32
}

func (f *fakeAdapter) Descriptor() source.Descriptor { return f.desc }

func (f *fakeAdapter) FetchPrice(ctx context.Context, _, _ model.TokenRef) (decimal.Decimal, error) {
	f.priceCalls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.price, f.err
}

func (f *fakeAdapter) FetchReserves(context.Context, common.Address) (model.PoolReserves, error) {
	f.reservesCalls.Add(1)
	return f.reserves, f.err
}

func (f *fakeAdapter) FetchVolume24h(context.Context, common.Address) (decimal.Decimal, error) {
	return f.volume, f.err
}

func (f *fakeAdapter) FetchTVL(context.Context, common.Address) (decimal.Decimal, error) {
	return f.tvl, f.err
}

func (f *fakeAdapter) FetchFeeRate(context.Context, common.Address) (decimal.Decimal, error) {
	return f.fee, f.err
}

func (f *fakeAdapter) FetchDailySamples(context.Context, common.Address, int) ([]model.DailySample, error) {
	return f.samples, f.err
}

func (f *fakeAdapter) Probe(context.Context) error { return f.probeErr }

func newEngine(t *testing.T, cfg Config, adapters ...*fakeAdapter) *Engine {
	t.Helper()
	c, err := cache.New(cache.Config{MaxEntries: 1000}, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	registry, err := tokens.NewRegistry([]tokens.Entry{
		{Symbol: "WETH", Address: wethAddr, Decimals: 18},
		{Symbol: "USDC", Address: usdcAddr, Decimals: 6, USD: true},
	})
	require.NoError(t, err)

	deps := Deps{
		Cache:    c,
		Resolver: resolver.New(resolver.Options{}, nil, nil, zaptest.NewLogger(t)),
		Tokens:   registry,
		Logger:   zaptest.NewLogger(t),
	}
	var probers []health.Prober
	for _, a := range adapters {
		deps.Adapters = append(deps.Adapters, a)
		deps.History = append(deps.History, a)
		deps.Fees = append(deps.Fees, a)
		probers = append(probers, a)
	}
	deps.Health = health.NewMonitor(probers, time.Second, nil, nil)

	e, err := New(cfg, deps)
	require.NoError(t, err)
	return e
}

func seededPool(source string) model.PoolReserves {
	return model.PoolReserves{
		Token0Reserve: dec("1000"),
		Token1Reserve: dec("2000"),
		TotalLPSupply: dec("1000"),
		Source:        source,
	}
}

func TestDepositScenario(t *testing.T) {
	a := &fakeAdapter{desc: source.Descriptor{Name: "uniswap-v2", Priority: 1}, reserves: seededPool("uniswap-v2")}
	e := newEngine(t, Config{}, a)
	ctx := context.Background()

	a0, a1, err := e.CalculateOptimalAmounts(ctx, poolAddr, dec("100"), dec("150"))
	require.NoError(t, err)
	assert.True(t, a0.Equal(dec("75")), "token0 = %s", a0)
	assert.True(t, a1.Equal(dec("150")), "token1 = %s", a1)

	lp, err := e.EstimateLPTokens(ctx, poolAddr, a0, a1)
	require.NoError(t, err)
	assert.True(t, lp.Equal(dec("75")), "lp = %s", lp)

	w0, w1, err := e.EstimateWithdrawalAmounts(ctx, poolAddr, dec("100"))
	require.NoError(t, err)
	assert.True(t, w0.Equal(dec("100")) && w1.Equal(dec("200")), "withdrawal = %s / %s", w0, w1)

	impact, err := e.CalculatePriceImpact(ctx, poolAddr, dec("100"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, impact.Sign() > 0)

	m0, m1 := e.CalculateMinimumAmounts(dec("100"), dec("200"), dec("0.01"))
	assert.True(t, m0.Equal(dec("99")) && m1.Equal(dec("198")))

	// every calculation above shares one cached reserves read
	assert.Equal(t, int32(1), a.reservesCalls.Load())
}

func TestGetPriceFallsThroughAndTags(t *testing.T) {
	failing := &fakeAdapter{desc: source.Descriptor{Name: "A", Priority: 1}, err: errors.New("boom")}
	b := &fakeAdapter{desc: source.Descriptor{Name: "B", Priority: 2}, price: dec("5")}
	c := &fakeAdapter{desc: source.Descriptor{Name: "C", Priority: 3}, price: dec("7")}
	e := newEngine(t, Config{}, failing, b, c)

	q, err := e.GetPriceBySymbol(context.Background(), "WETH", "USD")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(dec("5")))
	assert.Equal(t, "B", q.Source)
	assert.Equal(t, wethAddr, q.Token.Address)
	assert.True(t, q.QuoteCurrency.IsUSD())
	assert.Equal(t, int32(0), c.priceCalls.Load())
}

func TestGetPriceUnavailableIsZeroSentinel(t *testing.T) {
	a := &fakeAdapter{desc: source.Descriptor{Name: "A", Priority: 1}}
	onchain := &fakeAdapter{desc: source.Descriptor{Name: "onchain", OnChainFallback: true}}
	e := newEngine(t, Config{}, onchain, a)

	q, err := e.GetPrice(context.Background(), model.TokenRef{Address: wethAddr}, model.USD)
	require.NoError(t, err)
	assert.True(t, q.IsUnavailable())
	assert.Empty(t, q.Source)
	assert.Equal(t, int32(1), onchain.priceCalls.Load())
}

func TestGetPriceBySymbolUnknown(t *testing.T) {
	e := newEngine(t, Config{}, &fakeAdapter{desc: source.Descriptor{Name: "A"}})
	_, err := e.GetPriceBySymbol(context.Background(), "DOGE", "USD")
	assert.ErrorIs(t, err, tokens.ErrUnknownToken)
}

func TestGetPriceWithoutSources(t *testing.T) {
	e := newEngine(t, Config{})
	_, err := e.GetPrice(context.Background(), model.TokenRef{Address: wethAddr}, model.USD)
	assert.ErrorIs(t, err, resolver.ErrNoSources)
}

func TestConcurrentPriceRequestsShareOneFetch(t *testing.T) {
	a := &fakeAdapter{desc: source.Descriptor{Name: "A"}, price: dec("2000"), delay: 50 * time.Millisecond}
	e := newEngine(t, Config{}, a)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := e.GetPrice(context.Background(), model.TokenRef{Address: wethAddr}, model.USD)
			assert.NoError(t, err)
			assert.True(t, q.Price.Equal(dec("2000")))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), a.priceCalls.Load())
}

func TestCalculateAPYPrefersDailySamples(t *testing.T) {
	samples := make([]model.DailySample, 7)
	for i := range samples {
		samples[i] = model.DailySample{FeesUSD: dec("100"), TVLUSD: dec("100000")}
	}
	a := &fakeAdapter{
		desc:     source.Descriptor{Name: "A"},
		reserves: seededPool("A"),
		samples:  samples,
		volume:   dec("1000000"),
		tvl:      dec("100000"),
	}
	e := newEngine(t, Config{}, a)

	est, err := e.CalculateAPY(context.Background(), poolAddr, 7)
	require.NoError(t, err)
	assert.Equal(t, model.APYMethodDaily, est.Method)
	assert.True(t, est.APY.Equal(dec("36.5")), "apy = %s", est.APY)
	assert.Equal(t, 7, est.Samples)
}

func dailySamples(n int) []model.DailySample {
	samples := make([]model.DailySample, n)
	for i := range samples {
		samples[i] = model.DailySample{FeesUSD: dec("100"), TVLUSD: dec("100000")}
	}
	return samples
}

func TestCalculateAPYSkipsSparseLocalHistory(t *testing.T) {
	local := &fakeAdapter{desc: source.Descriptor{Name: "postgres", Priority: -1}, samples: dailySamples(1)}
	indexer := &fakeAdapter{
		desc:     source.Descriptor{Name: "uniswap-v2", Priority: 1},
		reserves: seededPool("uniswap-v2"),
		samples:  dailySamples(7),
	}
	e := newEngine(t, Config{}, local, indexer)

	est, err := e.CalculateAPY(context.Background(), poolAddr, 7)
	require.NoError(t, err)
	assert.Equal(t, model.APYMethodDaily, est.Method)
	assert.Equal(t, 7, est.Samples, "a full window from a later source beats one recorded day")
	assert.True(t, est.APY.Equal(dec("36.5")), "apy = %s", est.APY)
}

func TestDailySamplesKeepsLongestPartialHistory(t *testing.T) {
	local := &fakeAdapter{desc: source.Descriptor{Name: "postgres", Priority: -1}, samples: dailySamples(3)}
	indexer := &fakeAdapter{desc: source.Descriptor{Name: "uniswap-v2", Priority: 1}, samples: dailySamples(2)}
	e := newEngine(t, Config{}, local, indexer)

	samples, err := e.DailySamples(context.Background(), poolAddr, 7)
	require.NoError(t, err)
	assert.Len(t, samples, 3)
}

func TestCalculateAPYFallsBackToVolume(t *testing.T) {
	a := &fakeAdapter{
		desc:     source.Descriptor{Name: "sushiswap"},
		reserves: seededPool("sushiswap"),
		volume:   dec("100000"),
		tvl:      dec("1000000"),
	}
	e := newEngine(t, Config{VenueFees: map[string]decimal.Decimal{"sushiswap": dec("0.0025")}}, a)

	est, err := e.CalculateAPY(context.Background(), poolAddr, 0)
	require.NoError(t, err)
	assert.Equal(t, model.APYMethodVolume, est.Method)
	assert.Equal(t, 7, est.WindowDays)
	assert.True(t, est.FeeRate.Equal(dec("0.0025")), "venue default applies without an on-chain fee")
	// 100000 * 0.0025 / 1000000 * 365 * 100
	assert.True(t, est.APY.Equal(dec("9.125")), "apy = %s", est.APY)
}

func TestCalculateAPYWithoutTVL(t *testing.T) {
	a := &fakeAdapter{desc: source.Descriptor{Name: "A"}, volume: dec("100000")}
	e := newEngine(t, Config{}, a)

	est, err := e.CalculateAPY(context.Background(), poolAddr, 7)
	require.NoError(t, err)
	assert.True(t, est.APY.IsZero())
	assert.Equal(t, model.APYMethodNone, est.Method)
}

func TestGetFeeRatePrefersReadFee(t *testing.T) {
	a := &fakeAdapter{desc: source.Descriptor{Name: "A"}, fee: dec("0.0005"), reserves: seededPool("A")}
	e := newEngine(t, Config{VenueFees: map[string]decimal.Decimal{"A": dec("0.003")}}, a)

	fee, err := e.GetFeeRate(context.Background(), poolAddr)
	require.NoError(t, err)
	assert.True(t, fee.Equal(dec("0.0005")))
}

func TestSnapshot(t *testing.T) {
	a := &fakeAdapter{
		desc:     source.Descriptor{Name: "A"},
		reserves: seededPool("A"),
		volume:   dec("100000"),
		tvl:      dec("1000000"),
	}
	e := newEngine(t, Config{}, a)

	snap, err := e.Snapshot(context.Background(), poolAddr)
	require.NoError(t, err)
	assert.Equal(t, poolAddr, snap.Reserves.PoolAddress)
	assert.Equal(t, "A", snap.Reserves.Source)
	assert.True(t, snap.TVLUSD.Equal(dec("1000000")))
	assert.True(t, snap.FeeRate.Equal(dec("0.003")))
	assert.True(t, snap.APY.Equal(dec("10.95")), "apy = %s", snap.APY)
	assert.Equal(t, model.APYMethodVolume, snap.APYMethod)
}

func TestQuoteSwapAndPoolShare(t *testing.T) {
	a := &fakeAdapter{desc: source.Descriptor{Name: "A"}, reserves: seededPool("A")}
	e := newEngine(t, Config{}, a)
	ctx := context.Background()

	out, err := e.QuoteSwap(ctx, poolAddr, dec("10"), true)
	require.NoError(t, err)
	assert.True(t, out.Sign() > 0 && out.LessThan(dec("20")), "out = %s", out)

	share, err := e.PoolShare(ctx, poolAddr, dec("1000"))
	require.NoError(t, err)
	assert.True(t, share.Equal(dec("50")))
}

func TestHealthAndDiscovery(t *testing.T) {
	up := &fakeAdapter{desc: source.Descriptor{Name: "up"}}
	down := &fakeAdapter{desc: source.Descriptor{Name: "down"}, probeErr: errors.New("502")}
	e := newEngine(t, Config{}, up, down)

	assert.Empty(t, e.GetHealthStatus().Sources)
	status := e.CheckHealth(context.Background())
	assert.True(t, status.Healthy)
	require.Len(t, status.Sources, 2)
	assert.Equal(t, "down", status.Sources[0].SourceName)
	assert.False(t, status.Sources[0].IsOnline)

	_, found, err := e.FindPool(context.Background(), wethAddr, usdcAddr, "")
	require.NoError(t, err)
	assert.False(t, found, "no discovery configured")

	pools, err := e.ListPoolsForToken(context.Background(), wethAddr, "")
	require.NoError(t, err)
	assert.Empty(t, pools)
}

func TestFindPoolUnknownVenue(t *testing.T) {
	e := newEngine(t, Config{})
	e.discovery = discovery.New(0, nil)
	_, _, err := e.FindPool(context.Background(), wethAddr, usdcAddr, "curve")
	assert.ErrorIs(t, err, ErrUnknownVenue)
}
