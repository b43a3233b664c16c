// Package source defines the uniform contract every price/liquidity venue
// adapter implements.
package source

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"liquidityPricer/internal/model"
)

// Query names a resolvable value kind.
type Query string

const (
	QueryPrice    Query = "price"
	QueryReserves Query = "reserves"
	QueryVolume   Query = "volume_24h"
	QueryTVL      Query = "tvl"
	QueryHistory  Query = "daily_samples"
	QueryFee      Query = "fee_rate"
)

const (
	// DefaultHTTPTimeout bounds a single indexer call.
	DefaultHTTPTimeout = 10 * time.Second
	// DefaultOnChainTimeout bounds a single on-chain fallback call, which
	// costs several RPC round trips.
	DefaultOnChainTimeout = 30 * time.Second
)

// Descriptor describes an adapter's identity and position in the fallback
// order. Lower Priority is tried first; on-chain fallbacks always sort last.
type Descriptor struct {
	Name            string        `json:"name"`
	Priority        int           `json:"priority"`
	Endpoint        string        `json:"endpoint"`
	OnChainFallback bool          `json:"on_chain_fallback"`
	Timeout         time.Duration `json:"timeout"`
}

// CallTimeout returns the per-call timeout, applying defaults.
func (d Descriptor) CallTimeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	if d.OnChainFallback {
		return DefaultOnChainTimeout
	}
	return DefaultHTTPTimeout
}

// Describer is anything that can be placed in a fallback chain.
type Describer interface {
	Descriptor() Descriptor
}

// Adapter wraps one external venue. Ordinary unavailability is reported as
// a zero value with a nil error; errors are reserved for transport and parse
// failures.
type Adapter interface {
	Describer
	FetchPrice(ctx context.Context, token, quote model.TokenRef) (decimal.Decimal, error)
	FetchReserves(ctx context.Context, pool common.Address) (model.PoolReserves, error)
	FetchVolume24h(ctx context.Context, pool common.Address) (decimal.Decimal, error)
	FetchTVL(ctx context.Context, pool common.Address) (decimal.Decimal, error)
	Probe(ctx context.Context) error
}

// HistorySource provides day-bucketed fee and TVL history.
type HistorySource interface {
	Describer
	FetchDailySamples(ctx context.Context, pool common.Address, days int) ([]model.DailySample, error)
}

// FeeSource reads a pool's swap fee as a fraction.
type FeeSource interface {
	Describer
	FetchFeeRate(ctx context.Context, pool common.Address) (decimal.Decimal, error)
}

// PoolFinder enumerates pools on a venue.
type PoolFinder interface {
	FindPools(ctx context.Context, tokenA, tokenB common.Address) ([]model.PoolCandidate, error)
	ListPools(ctx context.Context, token common.Address, limit int) ([]model.PoolCandidate, error)
}

// Sort returns a copy of sources in fallback order: ascending priority with
// on-chain fallbacks last. Ties keep their configuration order.
func Sort[S Describer](sources []S) []S {
	out := make([]S, len(sources))
	copy(out, sources)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Descriptor(), out[j].Descriptor()
		if a.OnChainFallback != b.OnChainFallback {
			return !a.OnChainFallback
		}
		return a.Priority < b.Priority
	})
	return out
}

// FetchError records a failed adapter call.
type FetchError struct {
	Source string
	Query  Query
	Key    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("source %s: %s %s: %v", e.Source, e.Query, e.Key, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
