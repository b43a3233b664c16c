// Package discovery locates pools for token pairs across configured venues.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"liquidityPricer/internal/model"
	"liquidityPricer/internal/source"
)

// DefaultLimit caps ListPoolsForToken results.
const DefaultLimit = 20

// ErrUnknownVenue is returned for venue names that were never registered.
var ErrUnknownVenue = errors.New("unknown venue")

type venue struct {
	name    string
	finders []source.PoolFinder
}

// Discovery queries each venue's finders in order: indexers first, then the
// on-chain factory. Lookup failures are logged and degrade to empty results.
type Discovery struct {
	venues []venue
	limit  int
	logger *zap.Logger
}

func New(limit int, logger *zap.Logger) *Discovery {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discovery{limit: limit, logger: logger}
}

// Register appends finders to venue, creating it on first use.
func (d *Discovery) Register(name string, finders ...source.PoolFinder) {
	for i := range d.venues {
		if d.venues[i].name == name {
			d.venues[i].finders = append(d.venues[i].finders, finders...)
			return
		}
	}
	d.venues = append(d.venues, venue{name: name, finders: finders})
}

// Venues returns registered venue names in registration order.
func (d *Discovery) Venues() []string {
	return lo.Map(d.venues, func(v venue, _ int) string { return v.name })
}

// selected returns the named venue, or every venue when name is empty.
func (d *Discovery) selected(name string) ([]venue, error) {
	if name == "" {
		return d.venues, nil
	}
	v, ok := lo.Find(d.venues, func(v venue) bool { return v.name == name })
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownVenue)
	}
	return []venue{v}, nil
}

// FindPool returns the deepest pool holding both tokens. Within a venue the
// first finder that yields a candidate wins; across venues the greatest
// reserve value wins.
func (d *Discovery) FindPool(ctx context.Context, tokenA, tokenB common.Address, venueName string) (common.Address, bool, error) {
	venues, err := d.selected(venueName)
	if err != nil {
		return common.Address{}, false, err
	}

	var best []model.PoolCandidate
	for _, v := range venues {
		for _, finder := range v.finders {
			found, err := finder.FindPools(ctx, tokenA, tokenB)
			if err != nil {
				d.logger.Warn("find pool failed",
					zap.String("venue", v.name),
					zap.String("token_a", tokenA.Hex()),
					zap.String("token_b", tokenB.Hex()),
					zap.Error(err),
				)
				continue
			}
			found = lo.Filter(found, func(c model.PoolCandidate, _ int) bool { return holdsPair(c, tokenA, tokenB) })
			if len(found) > 0 {
				best = append(best, deepest(found))
				break
			}
		}
	}
	if len(best) == 0 {
		return common.Address{}, false, nil
	}
	return deepest(best).Address, true, nil
}

// ListPoolsForToken returns pools containing token ordered by descending
// reserve value, deduplicated by address and capped at the configured limit.
func (d *Discovery) ListPoolsForToken(ctx context.Context, token common.Address, venueName string) ([]model.PoolCandidate, error) {
	venues, err := d.selected(venueName)
	if err != nil {
		return nil, err
	}

	var all []model.PoolCandidate
	for _, v := range venues {
		for _, finder := range v.finders {
			listed, err := finder.ListPools(ctx, token, d.limit)
			if err != nil {
				d.logger.Warn("list pools failed",
					zap.String("venue", v.name),
					zap.String("token", token.Hex()),
					zap.Error(err),
				)
				continue
			}
			if len(listed) > 0 {
				all = append(all, listed...)
				break
			}
		}
	}
	return rank(all, d.limit), nil
}

func holdsPair(c model.PoolCandidate, a, b common.Address) bool {
	return (c.Token0 == a && c.Token1 == b) || (c.Token0 == b && c.Token1 == a)
}

func deepest(candidates []model.PoolCandidate) model.PoolCandidate {
	return lo.MaxBy(candidates, func(a, b model.PoolCandidate) bool {
		return a.ReserveUSD.GreaterThan(b.ReserveUSD)
	})
}

func rank(candidates []model.PoolCandidate, limit int) []model.PoolCandidate {
	// keep the deepest entry per address before deduplicating
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ReserveUSD.GreaterThan(candidates[j].ReserveUSD)
	})
	out := lo.UniqBy(candidates, func(c model.PoolCandidate) common.Address { return c.Address })
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []model.PoolCandidate{}
	}
	return out
}
