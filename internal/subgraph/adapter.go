package subgraph

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
	"liquidityPricer/internal/model"
	"liquidityPricer/internal/source"
)

const (
	// DefaultListLimit caps ListPools when no limit is given.
	DefaultListLimit = 20
	pricePrecision   = 18
)

var feeTierDivisor = decimal.NewFromInt(1_000_000)

// Config describes one indexer-backed venue.
type Config struct {
	Name       string
	Endpoint   string
	Priority   int
	Schema     Schema
	FeeRate    decimal.Decimal
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Adapter resolves prices, reserves, volume, TVL and history from a venue's
// GraphQL indexer.
type Adapter struct {
	cfg     Config
	queries queries
	client  *Client
	logger  *zap.Logger
	now     func() time.Time
}

// NewAdapter validates cfg and builds an adapter. A zero FeeRate selects
// amm.DefaultFeeRate.
func NewAdapter(cfg Config, logger *zap.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.New("subgraph adapter requires a name")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("subgraph adapter %s requires an endpoint", cfg.Name)
	}
	if cfg.Schema == "" {
		cfg.Schema = SchemaV2
	}
	q, ok := schemaQueries[cfg.Schema]
	if !ok {
		return nil, fmt.Errorf("subgraph adapter %s: unknown schema %q", cfg.Name, cfg.Schema)
	}
	if cfg.FeeRate.Sign() <= 0 {
		cfg.FeeRate = amm.DefaultFeeRate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		cfg:     cfg,
		queries: q,
		client:  NewClient(cfg.Endpoint, cfg.MaxRetries, cfg.RetryDelay),
		logger:  logger.With(zap.String("source", cfg.Name)),
		now:     time.Now,
	}, nil
}

func (a *Adapter) Descriptor() source.Descriptor {
	return source.Descriptor{
		Name:     a.cfg.Name,
		Priority: a.cfg.Priority,
		Endpoint: a.cfg.Endpoint,
		Timeout:  a.cfg.Timeout,
	}
}

func (a *Adapter) fail(query source.Query, key string, err error) error {
	return &source.FetchError{Source: a.cfg.Name, Query: query, Key: key, Err: err}
}

// FetchPrice derives token's price in quote from the indexer's ETH-relative
// prices. Either side may be the USD pseudo-token.
func (a *Adapter) FetchPrice(ctx context.Context, token, quote model.TokenRef) (decimal.Decimal, error) {
	key := token.Key() + "/" + quote.Key()
	if token.Key() == quote.Key() {
		return decimal.NewFromInt(1), nil
	}

	ids := make([]string, 0, 2)
	for _, t := range []model.TokenRef{token, quote} {
		if !t.IsUSD() {
			ids = append(ids, t.Key())
		}
	}

	var resp pricesResponse
	if err := a.client.Query(ctx, a.queries.prices, map[string]any{"ids": ids}, &resp); err != nil {
		return decimal.Zero, a.fail(source.QueryPrice, key, err)
	}
	if resp.Bundle == nil || resp.Bundle.EthPrice.Sign() <= 0 {
		return decimal.Zero, nil
	}

	derived := make(map[string]decimal.Decimal, len(resp.Tokens))
	for _, t := range resp.Tokens {
		derived[strings.ToLower(t.ID)] = t.DerivedETH
	}
	usdPrice := func(t model.TokenRef) decimal.Decimal {
		if t.IsUSD() {
			return decimal.NewFromInt(1)
		}
		return derived[t.Key()].Mul(resp.Bundle.EthPrice)
	}

	tokenUSD := usdPrice(token)
	quoteUSD := usdPrice(quote)
	if tokenUSD.Sign() <= 0 || quoteUSD.Sign() <= 0 {
		return decimal.Zero, nil
	}
	return tokenUSD.DivRound(quoteUSD, pricePrecision), nil
}

func (a *Adapter) fetchPool(ctx context.Context, query source.Query, pool common.Address) (*poolEntity, error) {
	var resp poolResponse
	if err := a.client.Query(ctx, a.queries.pool, map[string]any{"id": entityID(pool)}, &resp); err != nil {
		return nil, a.fail(query, pool.Hex(), err)
	}
	return resp.Pair, nil
}

func (a *Adapter) FetchReserves(ctx context.Context, pool common.Address) (model.PoolReserves, error) {
	p, err := a.fetchPool(ctx, source.QueryReserves, pool)
	if err != nil || p == nil {
		return model.PoolReserves{}, err
	}
	return model.PoolReserves{
		PoolAddress:   pool,
		Token0:        p.Token0.ref(),
		Token1:        p.Token1.ref(),
		Token0Reserve: p.Reserve0,
		Token1Reserve: p.Reserve1,
		TotalLPSupply: p.TotalSupply,
		Source:        a.cfg.Name,
		ResolvedAt:    a.now(),
	}, nil
}

func (a *Adapter) FetchTVL(ctx context.Context, pool common.Address) (decimal.Decimal, error) {
	p, err := a.fetchPool(ctx, source.QueryTVL, pool)
	if err != nil || p == nil {
		return decimal.Zero, err
	}
	return p.ReserveUSD, nil
}

// FetchFeeRate reads the pool fee tier on v3 indexers. v2 indexers carry no
// fee field and report the rate as unavailable.
func (a *Adapter) FetchFeeRate(ctx context.Context, pool common.Address) (decimal.Decimal, error) {
	if a.cfg.Schema != SchemaV3 {
		return decimal.Zero, nil
	}
	p, err := a.fetchPool(ctx, source.QueryFee, pool)
	if err != nil || p == nil || p.FeeTier == "" {
		return decimal.Zero, err
	}
	tier, err := decimal.NewFromString(p.FeeTier)
	if err != nil {
		return decimal.Zero, a.fail(source.QueryFee, pool.Hex(), fmt.Errorf("parsing fee tier %q: %w", p.FeeTier, err))
	}
	return tier.Div(feeTierDivisor), nil
}

func (a *Adapter) fetchDays(ctx context.Context, query source.Query, pool common.Address, first int) ([]dayEntity, error) {
	vars := map[string]any{"id": entityID(pool), "first": first}
	var resp daysResponse
	if err := a.client.Query(ctx, a.queries.days, vars, &resp); err != nil {
		return nil, a.fail(query, pool.Hex(), err)
	}
	return resp.Days, nil
}

// FetchVolume24h returns the USD volume of the most recent day bucket.
func (a *Adapter) FetchVolume24h(ctx context.Context, pool common.Address) (decimal.Decimal, error) {
	days, err := a.fetchDays(ctx, source.QueryVolume, pool, 1)
	if err != nil || len(days) == 0 {
		return decimal.Zero, err
	}
	return days[0].VolumeUSD, nil
}

// FetchDailySamples returns up to days buckets, newest first. v2 indexers
// only record volume, so fees are volume times the venue fee rate.
func (a *Adapter) FetchDailySamples(ctx context.Context, pool common.Address, days int) ([]model.DailySample, error) {
	if days <= 0 {
		days = amm.DefaultWindowDays
	}
	rows, err := a.fetchDays(ctx, source.QueryHistory, pool, days)
	if err != nil {
		return nil, err
	}

	samples := make([]model.DailySample, 0, len(rows))
	for _, row := range rows {
		fees := row.FeesUSD
		if a.cfg.Schema == SchemaV2 {
			fees = row.VolumeUSD.Mul(a.cfg.FeeRate)
		}
		samples = append(samples, model.DailySample{
			Day:     time.Unix(row.Date, 0).UTC(),
			FeesUSD: fees,
			TVLUSD:  row.TVLUSD,
		})
	}
	return samples, nil
}

// FindPools returns pools holding both tokens in either order.
func (a *Adapter) FindPools(ctx context.Context, tokenA, tokenB common.Address) ([]model.PoolCandidate, error) {
	vars := map[string]any{"a": entityID(tokenA), "b": entityID(tokenB)}
	var resp findPoolsResponse
	if err := a.client.Query(ctx, a.queries.findPools, vars, &resp); err != nil {
		return nil, fmt.Errorf("find pools on %s: %w", a.cfg.Name, err)
	}
	return a.candidates(resp.AB, resp.BA), nil
}

// ListPools returns up to limit pools per side containing token, ordered by
// the indexer by reserve value.
func (a *Adapter) ListPools(ctx context.Context, token common.Address, limit int) ([]model.PoolCandidate, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	vars := map[string]any{"token": entityID(token), "first": limit}
	var resp listPoolsResponse
	if err := a.client.Query(ctx, a.queries.listPools, vars, &resp); err != nil {
		return nil, fmt.Errorf("list pools on %s: %w", a.cfg.Name, err)
	}
	return a.candidates(resp.As0, resp.As1), nil
}

func (a *Adapter) candidates(groups ...[]poolEntity) []model.PoolCandidate {
	var out []model.PoolCandidate
	for _, group := range groups {
		for _, p := range group {
			out = append(out, p.candidate(a.cfg.Name))
		}
	}
	return out
}

// Probe queries the indexer's sync metadata.
func (a *Adapter) Probe(ctx context.Context) error {
	var resp metaResponse
	if err := a.client.Query(ctx, metaQuery, nil, &resp); err != nil {
		return fmt.Errorf("probe %s: %w", a.cfg.Name, err)
	}
	if resp.Meta == nil || resp.Meta.Block.Number <= 0 {
		return fmt.Errorf("probe %s: indexer reported no synced block", a.cfg.Name)
	}
	a.logger.Debug("probe ok", zap.Int64("block", resp.Meta.Block.Number))
	return nil
}
