// Package engine is the upward API of the pricer: cached, fallback-resolved
// market data plus the AMM calculations built on it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidityPricer/internal/amm"
	"liquidityPricer/internal/cache"
	"liquidityPricer/internal/discovery"
	"liquidityPricer/internal/health"
	"liquidityPricer/internal/model"
	"liquidityPricer/internal/resolver"
	"liquidityPricer/internal/source"
	"liquidityPricer/internal/tokens"
)

// ErrUnknownVenue is returned for venue names absent from configuration.
var ErrUnknownVenue = discovery.ErrUnknownVenue

const (
	DefaultPriceTTL = time.Minute
	DefaultDataTTL  = 5 * time.Minute
)

// Config holds cache lifetimes and fee defaults.
type Config struct {
	PriceTTL    time.Duration
	ReservesTTL time.Duration
	TVLTTL      time.Duration
	VolumeTTL   time.Duration
	FeeTTL      time.Duration
	HistoryTTL  time.Duration

	// VenueFees maps a source name to the fee rate charged by its venue.
	VenueFees map[string]decimal.Decimal
	// DefaultFeeRate applies to pools whose venue has no configured fee.
	DefaultFeeRate decimal.Decimal
	// APYWindowDays is the trailing window used when a caller passes zero.
	APYWindowDays int
}

func (c *Config) applyDefaults() {
	for _, ttl := range []*time.Duration{&c.ReservesTTL, &c.TVLTTL, &c.VolumeTTL, &c.FeeTTL, &c.HistoryTTL} {
		if *ttl <= 0 {
			*ttl = DefaultDataTTL
		}
	}
	if c.PriceTTL <= 0 {
		c.PriceTTL = DefaultPriceTTL
	}
	if c.DefaultFeeRate.Sign() <= 0 {
		c.DefaultFeeRate = amm.DefaultFeeRate
	}
	if c.APYWindowDays <= 0 {
		c.APYWindowDays = amm.DefaultWindowDays
	}
}

// Deps are the collaborators the engine is assembled from. Discovery and
// Health are optional.
type Deps struct {
	Cache     *cache.Cache
	Resolver  *resolver.Resolver
	Adapters  []source.Adapter
	History   []source.HistorySource
	Fees      []source.FeeSource
	Tokens    *tokens.Registry
	Discovery *discovery.Discovery
	Health    *health.Monitor
	Logger    *zap.Logger
}

// Engine answers price, liquidity and yield queries.
type Engine struct {
	cfg       Config
	cache     *cache.Cache
	resolver  *resolver.Resolver
	adapters  []source.Adapter
	history   []source.HistorySource
	fees      []source.FeeSource
	tokens    *tokens.Registry
	discovery *discovery.Discovery
	health    *health.Monitor
	logger    *zap.Logger
	now       func() time.Time
}

// New assembles an engine. Cache, Resolver and Tokens are required.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Cache == nil {
		return nil, errors.New("engine requires a cache")
	}
	if deps.Resolver == nil {
		return nil, errors.New("engine requires a resolver")
	}
	if deps.Tokens == nil {
		return nil, errors.New("engine requires a token registry")
	}
	cfg.applyDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		cache:     deps.Cache,
		resolver:  deps.Resolver,
		adapters:  deps.Adapters,
		history:   deps.History,
		fees:      deps.Fees,
		tokens:    deps.Tokens,
		discovery: deps.Discovery,
		health:    deps.Health,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func decimalIsZero(d decimal.Decimal) bool { return d.Sign() <= 0 }

func reservesIsZero(r model.PoolReserves) bool { return r.IsEmpty() }

func poolKey(prefix string, pool common.Address) string {
	return prefix + ":" + strings.ToLower(pool.Hex())
}

// GetPrice returns the price of token in quote. A zero Price means no source
// could price the pair.
func (e *Engine) GetPrice(ctx context.Context, token, quote model.TokenRef) (model.PriceQuote, error) {
	key := "price:" + token.Key() + "/" + quote.Key()
	return cache.GetOrFetch(ctx, e.cache, key, e.cfg.PriceTTL, func(ctx context.Context) (model.PriceQuote, error) {
		res, err := resolver.Resolve(ctx, e.resolver, e.adapters, source.QueryPrice, key,
			func(ctx context.Context, a source.Adapter) (decimal.Decimal, error) {
				return a.FetchPrice(ctx, token, quote)
			}, decimalIsZero)
		if err != nil {
			return model.PriceQuote{}, err
		}
		return model.PriceQuote{
			Token:         token,
			QuoteCurrency: quote,
			Price:         res.Value,
			Source:        res.Source,
			ResolvedAt:    e.now(),
		}, nil
	})
}

// GetPriceBySymbol resolves both symbols through the token registry first;
// unknown symbols fail with tokens.ErrUnknownToken.
func (e *Engine) GetPriceBySymbol(ctx context.Context, symbol, quoteSymbol string) (model.PriceQuote, error) {
	token, err := e.tokens.Resolve(symbol)
	if err != nil {
		return model.PriceQuote{}, err
	}
	quote, err := e.tokens.Resolve(quoteSymbol)
	if err != nil {
		return model.PriceQuote{}, err
	}
	return e.GetPrice(ctx, token, quote)
}

// GetReserves returns the pool's reserves. Empty reserves mean no source
// knows the pool or it holds no liquidity.
func (e *Engine) GetReserves(ctx context.Context, pool common.Address) (model.PoolReserves, error) {
	key := poolKey("reserves", pool)
	return cache.GetOrFetch(ctx, e.cache, key, e.cfg.ReservesTTL, func(ctx context.Context) (model.PoolReserves, error) {
		res, err := resolver.Resolve(ctx, e.resolver, e.adapters, source.QueryReserves, key,
			func(ctx context.Context, a source.Adapter) (model.PoolReserves, error) {
				return a.FetchReserves(ctx, pool)
			}, reservesIsZero)
		if err != nil {
			return model.PoolReserves{}, err
		}
		r := res.Value
		r.PoolAddress = pool
		r.Source = res.Source
		if r.ResolvedAt.IsZero() {
			r.ResolvedAt = e.now()
		}
		return r, nil
	})
}

func (e *Engine) resolveAmount(ctx context.Context, query source.Query, prefix string, ttl time.Duration, pool common.Address,
	call func(context.Context, source.Adapter) (decimal.Decimal, error)) (decimal.Decimal, error) {
	key := poolKey(prefix, pool)
	return cache.GetOrFetch(ctx, e.cache, key, ttl, func(ctx context.Context) (decimal.Decimal, error) {
		res, err := resolver.Resolve(ctx, e.resolver, e.adapters, query, key, call, decimalIsZero)
		if err != nil {
			return decimal.Zero, err
		}
		return res.Value, nil
	})
}

// GetTVL returns the pool's total value locked in USD, zero when unknown.
func (e *Engine) GetTVL(ctx context.Context, pool common.Address) (decimal.Decimal, error) {
	return e.resolveAmount(ctx, source.QueryTVL, "tvl", e.cfg.TVLTTL, pool,
		func(ctx context.Context, a source.Adapter) (decimal.Decimal, error) {
			return a.FetchTVL(ctx, pool)
		})
}

// GetVolume24h returns the pool's trailing 24h volume in USD, zero when
// unknown.
func (e *Engine) GetVolume24h(ctx context.Context, pool common.Address) (decimal.Decimal, error) {
	return e.resolveAmount(ctx, source.QueryVolume, "volume", e.cfg.VolumeTTL, pool,
		func(ctx context.Context, a source.Adapter) (decimal.Decimal, error) {
			return a.FetchVolume24h(ctx, pool)
		})
}

// GetFeeRate returns the pool's swap fee as a fraction. An on-chain or
// indexed fee wins; otherwise the default of the venue that reported the
// pool's reserves applies.
func (e *Engine) GetFeeRate(ctx context.Context, pool common.Address) (decimal.Decimal, error) {
	key := poolKey("fee", pool)
	return cache.GetOrFetch(ctx, e.cache, key, e.cfg.FeeTTL, func(ctx context.Context) (decimal.Decimal, error) {
		read := decimal.Zero
		if len(e.fees) > 0 {
			res, err := resolver.Resolve(ctx, e.resolver, e.fees, source.QueryFee, key,
				func(ctx context.Context, f source.FeeSource) (decimal.Decimal, error) {
					return f.FetchFeeRate(ctx, pool)
				}, decimalIsZero)
			if err != nil {
				return decimal.Zero, err
			}
			read = res.Value
		}
		return amm.ResolveFeeRate(read, e.venueFee(ctx, pool)), nil
	})
}

func (e *Engine) venueFee(ctx context.Context, pool common.Address) decimal.Decimal {
	r, err := e.GetReserves(ctx, pool)
	if err != nil {
		e.logger.Debug("venue lookup failed", zap.String("pool", pool.Hex()), zap.Error(err))
		return e.cfg.DefaultFeeRate
	}
	if fee, ok := e.cfg.VenueFees[r.Source]; ok && fee.Sign() > 0 {
		return fee
	}
	return e.cfg.DefaultFeeRate
}

// DailySamples returns up to windowDays of day-bucketed fee/TVL history.
// A source only answers when it covers the whole window; when none does, the
// longest partial history seen is returned.
func (e *Engine) DailySamples(ctx context.Context, pool common.Address, windowDays int) ([]model.DailySample, error) {
	if len(e.history) == 0 {
		return nil, nil
	}
	if windowDays <= 0 {
		windowDays = e.cfg.APYWindowDays
	}
	key := fmt.Sprintf("%s:%d", poolKey("history", pool), windowDays)
	return cache.GetOrFetch(ctx, e.cache, key, e.cfg.HistoryTTL, func(ctx context.Context) ([]model.DailySample, error) {
		var partial []model.DailySample
		res, err := resolver.Resolve(ctx, e.resolver, e.history, source.QueryHistory, key,
			func(ctx context.Context, h source.HistorySource) ([]model.DailySample, error) {
				samples, err := h.FetchDailySamples(ctx, pool, windowDays)
				if err == nil && len(samples) > len(partial) {
					partial = samples
				}
				return samples, err
			}, func(s []model.DailySample) bool { return len(s) < windowDays })
		if err != nil {
			return nil, err
		}
		if res.Found() {
			return res.Value, nil
		}
		if len(partial) > 0 {
			e.logger.Debug("using partial fee history",
				zap.String("pool", pool.Hex()),
				zap.Int("samples", len(partial)),
				zap.Int("window_days", windowDays),
			)
		}
		return partial, nil
	})
}

// GetHealthStatus returns the last recorded source health.
func (e *Engine) GetHealthStatus() model.HealthStatus {
	if e.health == nil {
		return model.HealthStatus{Sources: []model.HealthRecord{}}
	}
	return e.health.Status()
}

// CheckHealth probes every source now.
func (e *Engine) CheckHealth(ctx context.Context) model.HealthStatus {
	if e.health == nil {
		return e.GetHealthStatus()
	}
	return e.health.CheckAll(ctx)
}

// FindPool returns the deepest pool holding both tokens on venue; an empty
// venue searches all venues.
func (e *Engine) FindPool(ctx context.Context, tokenA, tokenB common.Address, venue string) (common.Address, bool, error) {
	if e.discovery == nil {
		return common.Address{}, false, nil
	}
	return e.discovery.FindPool(ctx, tokenA, tokenB, venue)
}

// ListPoolsForToken returns pools containing token ordered by reserve value.
func (e *Engine) ListPoolsForToken(ctx context.Context, token common.Address, venue string) ([]model.PoolCandidate, error) {
	if e.discovery == nil {
		return []model.PoolCandidate{}, nil
	}
	return e.discovery.ListPoolsForToken(ctx, token, venue)
}
