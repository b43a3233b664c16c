// Package resolver walks an ordered chain of source adapters until one
// returns a usable value.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"liquidityPricer/internal/metrics"
	"liquidityPricer/internal/source"
)

// ErrNoSources is returned when a query is issued with no configured sources.
var ErrNoSources = errors.New("no sources configured")

// HealthView reports advisory source availability.
type HealthView interface {
	IsOnline(name string) bool
}

// Attempt records one adapter call made while resolving a query.
type Attempt struct {
	Source   string        `json:"source"`
	Outcome  string        `json:"outcome"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Resolved is a value tagged with the source that produced it. Source is
// empty when every adapter came back with the zero sentinel.
type Resolved[T any] struct {
	Value    T         `json:"value"`
	Source   string    `json:"source"`
	Attempts []Attempt `json:"attempts"`
}

// Found reports whether any source answered.
func (r Resolved[T]) Found() bool {
	return r.Source != ""
}

// Options tunes resolver behavior.
type Options struct {
	// SkipOffline skips indexers the health monitor currently reports as
	// down. The on-chain fallback is never skipped.
	SkipOffline bool
}

// Resolver carries the shared dependencies of fallback resolution.
type Resolver struct {
	opts    Options
	health  HealthView
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New builds a Resolver. health and m may be nil.
func New(opts Options, health HealthView, m *metrics.Metrics, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		opts:    opts,
		health:  health,
		metrics: m,
		logger:  logger,
	}
}

// Resolve tries sources in fallback order, one at a time, and returns the
// first result for which isZero is false. Failures and timeouts are logged
// and fall through to the next source. When no source answers the zero
// value is returned with a nil error.
func Resolve[S source.Describer, T any](
	ctx context.Context,
	r *Resolver,
	sources []S,
	query source.Query,
	key string,
	call func(context.Context, S) (T, error),
	isZero func(T) bool,
) (Resolved[T], error) {
	var result Resolved[T]
	if len(sources) == 0 {
		return result, fmt.Errorf("%s %s: %w", query, key, ErrNoSources)
	}

	for _, src := range source.Sort(sources) {
		desc := src.Descriptor()

		if r.shouldSkip(desc) {
			result.Attempts = append(result.Attempts, Attempt{Source: desc.Name, Outcome: metrics.OutcomeSkipped})
			r.metrics.ObserveSource(desc.Name, string(query), metrics.OutcomeSkipped, 0)
			continue
		}

		if err := ctx.Err(); err != nil {
			// caller gave up; remaining sources count as unavailable
			r.logger.Debug("resolve cancelled", zap.String("query", string(query)), zap.String("key", key), zap.Error(err))
			break
		}

		value, attempt := callOne(ctx, src, desc, call, isZero)
		result.Attempts = append(result.Attempts, attempt)
		r.metrics.ObserveSource(desc.Name, string(query), attempt.Outcome, attempt.Duration)

		switch attempt.Outcome {
		case metrics.OutcomeHit:
			result.Value = value
			result.Source = desc.Name
			r.metrics.ObserveResolution(string(query), desc.Name)
			r.logger.Debug("resolved",
				zap.String("query", string(query)),
				zap.String("key", key),
				zap.String("source", desc.Name),
				zap.Int("attempts", len(result.Attempts)),
			)
			return result, nil
		case metrics.OutcomeError, metrics.OutcomeTimeout:
			r.logger.Warn("source fetch failed",
				zap.String("query", string(query)),
				zap.String("key", key),
				zap.String("source", desc.Name),
				zap.String("outcome", attempt.Outcome),
				zap.Duration("duration", attempt.Duration),
				zap.String("error", attempt.Error),
			)
		}
	}

	r.metrics.ObserveResolution(string(query), "")
	r.logger.Info("no source answered",
		zap.String("query", string(query)),
		zap.String("key", key),
		zap.Int("attempts", len(result.Attempts)),
	)
	return result, nil
}

func callOne[S source.Describer, T any](
	ctx context.Context,
	src S,
	desc source.Descriptor,
	call func(context.Context, S) (T, error),
	isZero func(T) bool,
) (T, Attempt) {
	callCtx, cancel := context.WithTimeout(ctx, desc.CallTimeout())
	defer cancel()

	start := time.Now()
	value, err := call(callCtx, src)
	attempt := Attempt{Source: desc.Name, Duration: time.Since(start)}

	switch {
	case err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
		attempt.Outcome = metrics.OutcomeTimeout
		attempt.Error = err.Error()
	case err != nil:
		attempt.Outcome = metrics.OutcomeError
		attempt.Error = err.Error()
	case isZero(value):
		attempt.Outcome = metrics.OutcomeZero
	default:
		attempt.Outcome = metrics.OutcomeHit
	}

	var zero T
	if attempt.Outcome != metrics.OutcomeHit {
		return zero, attempt
	}
	return value, attempt
}

func (r *Resolver) shouldSkip(desc source.Descriptor) bool {
	if !r.opts.SkipOffline || r.health == nil || desc.OnChainFallback {
		return false
	}
	return !r.health.IsOnline(desc.Name)
}
