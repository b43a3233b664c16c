package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"liquidityPricer/internal/amm"
	"liquidityPricer/internal/model"
	"liquidityPricer/internal/source"
)

const (
	// DefaultName is the source name of the history store.
	DefaultName = "postgres"

	dailyWindowSeconds = 86400
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS pool_window_metrics (
	chain_id            BIGINT      NOT NULL,
	pool_address        TEXT        NOT NULL,
	window_size_seconds BIGINT      NOT NULL,
	window_start_ts     TIMESTAMPTZ NOT NULL,
	window_end_ts       TIMESTAMPTZ NOT NULL,
	volume_usd          NUMERIC,
	fee_usd             NUMERIC,
	fee_rate            NUMERIC,
	tvl_usd             NUMERIC,
	apr                 NUMERIC,
	apr_method          TEXT,
	source              TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, pool_address, window_size_seconds, window_start_ts)
)`

// Store reads and writes day-bucketed pool metrics in Postgres.
type Store struct {
	pool     *pgxpool.Pool
	chainID  int64
	name     string
	priority int
}

func NewStore(ctx context.Context, dsn string, chainID int64) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, chainID: chainID, name: DefaultName}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// WithPriority sets the store's position among history sources.
func (s *Store) WithPriority(priority int) *Store {
	s.priority = priority
	return s
}

func (s *Store) Descriptor() source.Descriptor {
	return source.Descriptor{Name: s.name, Priority: s.priority}
}

// EnsureSchema creates the metrics table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("create pool_window_metrics: %w", err)
	}
	return nil
}

// Probe checks the database answers.
func (s *Store) Probe(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PutSnapshots upserts each snapshot as the daily bucket of its resolution
// time. Later snapshots of the same day replace earlier ones.
func (s *Store) PutSnapshots(ctx context.Context, snapshots []model.PoolSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		row := dailyRow(snap)
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				chain_id, pool_address, window_size_seconds, window_start_ts, window_end_ts,
				volume_usd, fee_usd, fee_rate, tvl_usd, apr, apr_method, source, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric,$9::numeric,$10::numeric,$11,$12,now(),now())
			ON CONFLICT (chain_id, pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				volume_usd = EXCLUDED.volume_usd,
				fee_usd = EXCLUDED.fee_usd,
				fee_rate = EXCLUDED.fee_rate,
				tvl_usd = EXCLUDED.tvl_usd,
				apr = EXCLUDED.apr,
				apr_method = EXCLUDED.apr_method,
				source = EXCLUDED.source,
				updated_at = now()
		`,
			s.chainID,
			row.pool,
			int64(dailyWindowSeconds),
			row.start,
			row.end,
			row.volumeUSD,
			row.feeUSD,
			row.feeRate,
			row.tvlUSD,
			row.apr,
			row.aprMethod,
			row.source,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// FetchDailySamples sums fees and averages TVL per UTC day over the last
// days days, newest first.
func (s *Store) FetchDailySamples(ctx context.Context, pool common.Address, days int) ([]model.DailySample, error) {
	if days <= 0 {
		days = amm.DefaultWindowDays
	}
	since := dayStart(time.Now()).AddDate(0, 0, -(days - 1))

	rows, err := s.pool.Query(ctx, `
		SELECT date_trunc('day', window_start_ts AT TIME ZONE 'UTC') AS day,
		       COALESCE(SUM(fee_usd), 0)::text,
		       COALESCE(AVG(tvl_usd), 0)::text
		FROM pool_window_metrics
		WHERE chain_id = $1 AND pool_address = $2 AND window_start_ts >= $3
		GROUP BY day
		ORDER BY day DESC
		LIMIT $4
	`, s.chainID, poolKey(pool), since, days)
	if err != nil {
		return nil, &source.FetchError{Source: s.name, Query: source.QueryHistory, Key: pool.Hex(), Err: err}
	}
	defer rows.Close()

	var samples []model.DailySample
	for rows.Next() {
		var (
			day       time.Time
			fees, tvl string
		)
		if err := rows.Scan(&day, &fees, &tvl); err != nil {
			return nil, fmt.Errorf("scan daily sample: %w", err)
		}
		sample, err := parseSample(day, fees, tvl)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, &source.FetchError{Source: s.name, Query: source.QueryHistory, Key: pool.Hex(), Err: err}
	}
	return samples, nil
}

type windowRow struct {
	pool       string
	start, end time.Time
	volumeUSD  string
	feeUSD     string
	feeRate    string
	tvlUSD     string
	apr        string
	aprMethod  string
	source     string
}

func dailyRow(snap model.PoolSnapshot) windowRow {
	at := snap.Reserves.ResolvedAt
	if at.IsZero() {
		at = time.Now()
	}
	start := dayStart(at)
	return windowRow{
		pool:      poolKey(snap.Reserves.PoolAddress),
		start:     start,
		end:       start.Add(dailyWindowSeconds * time.Second),
		volumeUSD: snap.Volume24hUSD.String(),
		feeUSD:    snap.Volume24hUSD.Mul(snap.FeeRate).String(),
		feeRate:   snap.FeeRate.String(),
		tvlUSD:    snap.TVLUSD.String(),
		apr:       snap.APY.String(),
		aprMethod: snap.APYMethod,
		source:    snap.Reserves.Source,
	}
}

func parseSample(day time.Time, fees, tvl string) (model.DailySample, error) {
	feesUSD, err := decimal.NewFromString(fees)
	if err != nil {
		return model.DailySample{}, fmt.Errorf("parse fee_usd %q: %w", fees, err)
	}
	tvlUSD, err := decimal.NewFromString(tvl)
	if err != nil {
		return model.DailySample{}, fmt.Errorf("parse tvl_usd %q: %w", tvl, err)
	}
	return model.DailySample{Day: day.UTC(), FeesUSD: feesUSD, TVLUSD: tvlUSD}, nil
}

func dayStart(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

func poolKey(pool common.Address) string {
	return strings.ToLower(pool.Hex())
}
