// Package onchain implements the last-resort source adapter that reads pair
// contracts directly from the ledger.
package onchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidityPricer/internal/amm"
	"liquidityPricer/internal/chain"
	"liquidityPricer/internal/dex"
	"liquidityPricer/internal/model"
	"liquidityPricer/internal/source"
)

// lpDecimals is the LP token precision of constant-product pairs.
const lpDecimals = 18

var two = decimal.NewFromInt(2)

// Config describes the on-chain fallback.
type Config struct {
	Name      string
	Endpoint  string
	Factory   common.Address
	FeeMethod string
	// USDTokens are stablecoins treated as worth exactly one USD.
	USDTokens []common.Address
	Timeout   time.Duration
}

// Adapter reads reserves, prices and fees straight from pair contracts.
// Volume is never available on-chain.
type Adapter struct {
	cfg    Config
	caller chain.ContractCaller
	blocks chain.BlockReader
	meta   *dex.MetaCache
	usd    map[common.Address]struct{}
	logger *zap.Logger
	now    func() time.Time
}

// New builds the adapter. blocks may be nil, in which case Probe issues a
// factory read instead.
func New(cfg Config, caller chain.ContractCaller, blocks chain.BlockReader, logger *zap.Logger) (*Adapter, error) {
	if caller == nil {
		return nil, errors.New("on-chain adapter requires a contract caller")
	}
	if cfg.Name == "" {
		cfg.Name = "onchain"
	}
	if cfg.FeeMethod != "" && !dex.ValidFeeMethod(cfg.FeeMethod) {
		return nil, fmt.Errorf("on-chain adapter %s: unsupported fee method %q", cfg.Name, cfg.FeeMethod)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	usd := make(map[common.Address]struct{}, len(cfg.USDTokens))
	for _, addr := range cfg.USDTokens {
		usd[addr] = struct{}{}
	}
	return &Adapter{
		cfg:    cfg,
		caller: caller,
		blocks: blocks,
		meta:   dex.NewMetaCache(),
		usd:    usd,
		logger: logger.With(zap.String("source", cfg.Name)),
		now:    time.Now,
	}, nil
}

func (a *Adapter) Descriptor() source.Descriptor {
	return source.Descriptor{
		Name:            a.cfg.Name,
		Endpoint:        a.cfg.Endpoint,
		OnChainFallback: true,
		Timeout:         a.cfg.Timeout,
	}
}

func (a *Adapter) fail(query source.Query, key string, err error) error {
	return &source.FetchError{Source: a.cfg.Name, Query: query, Key: key, Err: err}
}

func (a *Adapter) isUSD(token common.Address) bool {
	_, ok := a.usd[token]
	return ok
}

func (a *Adapter) reserves(ctx context.Context, pool common.Address) (model.PoolReserves, error) {
	state, err := dex.FetchPairState(ctx, a.caller, pool, a.meta)
	if err != nil {
		return model.PoolReserves{}, err
	}
	token0, err := dex.FetchTokenRef(ctx, a.caller, state.Token0, a.meta, a.logger)
	if err != nil {
		return model.PoolReserves{}, fmt.Errorf("token0 %s: %w", state.Token0.Hex(), err)
	}
	token1, err := dex.FetchTokenRef(ctx, a.caller, state.Token1, a.meta, a.logger)
	if err != nil {
		return model.PoolReserves{}, fmt.Errorf("token1 %s: %w", state.Token1.Hex(), err)
	}
	return model.PoolReserves{
		PoolAddress:   pool,
		Token0:        token0,
		Token1:        token1,
		Token0Reserve: dex.ScaleAmount(state.Reserve0, token0.Decimals),
		Token1Reserve: dex.ScaleAmount(state.Reserve1, token1.Decimals),
		TotalLPSupply: dex.ScaleAmount(state.TotalSupply, lpDecimals),
		Source:        a.cfg.Name,
		ResolvedAt:    a.now(),
	}, nil
}

func (a *Adapter) FetchReserves(ctx context.Context, pool common.Address) (model.PoolReserves, error) {
	r, err := a.reserves(ctx, pool)
	if err != nil {
		return model.PoolReserves{}, a.fail(source.QueryReserves, pool.Hex(), err)
	}
	return r, nil
}

// FetchPrice prices token from the reserve ratio of its factory pair with
// quote. USD quotes go through the configured stablecoins in order.
func (a *Adapter) FetchPrice(ctx context.Context, token, quote model.TokenRef) (decimal.Decimal, error) {
	key := token.Key() + "/" + quote.Key()
	if token.Key() == quote.Key() {
		return decimal.NewFromInt(1), nil
	}
	if a.cfg.Factory == (common.Address{}) {
		return decimal.Zero, nil
	}

	if !quote.IsUSD() {
		price, err := a.pairPrice(ctx, token.Address, quote.Address)
		if err != nil {
			return decimal.Zero, a.fail(source.QueryPrice, key, err)
		}
		return price, nil
	}

	if a.isUSD(token.Address) {
		return decimal.NewFromInt(1), nil
	}
	var lastErr error
	for _, stable := range a.cfg.USDTokens {
		price, err := a.pairPrice(ctx, token.Address, stable)
		if err != nil {
			lastErr = err
			continue
		}
		if price.Sign() > 0 {
			return price, nil
		}
	}
	if lastErr != nil {
		return decimal.Zero, a.fail(source.QueryPrice, key, lastErr)
	}
	return decimal.Zero, nil
}

// pairPrice returns the price of base in quote units, zero when the factory
// has no pair or the pair is empty.
func (a *Adapter) pairPrice(ctx context.Context, base, quote common.Address) (decimal.Decimal, error) {
	pair, err := dex.GetPair(ctx, a.caller, a.cfg.Factory, base, quote)
	if err != nil {
		return decimal.Zero, err
	}
	if pair == (common.Address{}) {
		return decimal.Zero, nil
	}
	r, err := a.reserves(ctx, pair)
	if err != nil {
		return decimal.Zero, err
	}
	if r.Token0.Address == base {
		return amm.SpotPrice(r), nil
	}
	return amm.SpotPrice(model.PoolReserves{
		Token0Reserve: r.Token1Reserve,
		Token1Reserve: r.Token0Reserve,
	}), nil
}

// FetchTVL values the pool at twice its stablecoin side. Pools without a
// stablecoin report zero.
func (a *Adapter) FetchTVL(ctx context.Context, pool common.Address) (decimal.Decimal, error) {
	r, err := a.reserves(ctx, pool)
	if err != nil {
		return decimal.Zero, a.fail(source.QueryTVL, pool.Hex(), err)
	}
	return a.tvl(r), nil
}

func (a *Adapter) tvl(r model.PoolReserves) decimal.Decimal {
	switch {
	case a.isUSD(r.Token0.Address):
		return r.Token0Reserve.Mul(two)
	case a.isUSD(r.Token1.Address):
		return r.Token1Reserve.Mul(two)
	default:
		return decimal.Zero
	}
}

// FetchVolume24h always reports unavailable: swap volume needs event
// history, which this adapter does not index.
func (a *Adapter) FetchVolume24h(context.Context, common.Address) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

// FetchFeeRate reads the pair fee with the configured method. Venues with no
// fee method report unavailable.
func (a *Adapter) FetchFeeRate(ctx context.Context, pool common.Address) (decimal.Decimal, error) {
	if a.cfg.FeeMethod == "" {
		return decimal.Zero, nil
	}
	bps, err := dex.FetchFeeBasisPoints(ctx, a.caller, pool, a.cfg.FeeMethod)
	if err != nil {
		return decimal.Zero, a.fail(source.QueryFee, pool.Hex(), err)
	}
	return amm.FeeRateFromBasisPoints(decimal.NewFromBigInt(bps, 0)), nil
}

// FindPools asks the factory for the pair of tokenA and tokenB.
func (a *Adapter) FindPools(ctx context.Context, tokenA, tokenB common.Address) ([]model.PoolCandidate, error) {
	if a.cfg.Factory == (common.Address{}) {
		return nil, nil
	}
	pair, err := dex.GetPair(ctx, a.caller, a.cfg.Factory, tokenA, tokenB)
	if err != nil {
		return nil, fmt.Errorf("factory getPair on %s: %w", a.cfg.Name, err)
	}
	if pair == (common.Address{}) {
		return nil, nil
	}

	candidate := model.PoolCandidate{Address: pair, Token0: tokenA, Token1: tokenB, Venue: a.cfg.Name}
	if r, err := a.reserves(ctx, pair); err == nil {
		candidate.Token0 = r.Token0.Address
		candidate.Token1 = r.Token1.Address
		candidate.ReserveUSD = a.tvl(r)
	} else {
		a.logger.Debug("pair reserves unavailable", zap.String("pair", pair.Hex()), zap.Error(err))
	}
	return []model.PoolCandidate{candidate}, nil
}

// ListPools is not supported: factories cannot enumerate pairs by token.
func (a *Adapter) ListPools(context.Context, common.Address, int) ([]model.PoolCandidate, error) {
	return nil, nil
}

// Probe checks the node is reachable and has produced a block.
func (a *Adapter) Probe(ctx context.Context) error {
	if a.blocks == nil {
		if a.cfg.Factory == (common.Address{}) {
			return fmt.Errorf("probe %s: no block reader or factory configured", a.cfg.Name)
		}
		_, err := dex.GetPair(ctx, a.caller, a.cfg.Factory, common.Address{}, common.Address{})
		if err != nil {
			return fmt.Errorf("probe %s: %w", a.cfg.Name, err)
		}
		return nil
	}
	block, err := a.blocks.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("probe %s: %w", a.cfg.Name, err)
	}
	if block == 0 {
		return fmt.Errorf("probe %s: node reports block 0", a.cfg.Name)
	}
	return nil
}
