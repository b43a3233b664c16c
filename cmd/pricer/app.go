package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityPricer/internal/cache"
	"liquidityPricer/internal/chain"
	"liquidityPricer/internal/config"
	"liquidityPricer/internal/discovery"
	"liquidityPricer/internal/engine"
	"liquidityPricer/internal/health"
	"liquidityPricer/internal/metrics"
	"liquidityPricer/internal/onchain"
	"liquidityPricer/internal/resolver"
	"liquidityPricer/internal/source"
	"liquidityPricer/internal/storage/postgres"
	"liquidityPricer/internal/subgraph"
	"liquidityPricer/internal/tokens"
)

// app is the wired engine plus the resources the commands need to release.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	engine   *engine.Engine
	tokens   *tokens.Registry
	monitor  *health.Monitor
	history  *postgres.Store
	registry *prometheus.Registry
	closers  []func()
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	registry, err := tokens.NewRegistry(lo.Map(cfg.Tokens, func(t config.Token, _ int) tokens.Entry {
		return tokens.Entry{
			Symbol:   t.Symbol,
			Address:  common.HexToAddress(t.Address),
			Decimals: t.Decimals,
			USD:      t.USD,
		}
	}))
	if err != nil {
		return fmt.Errorf("token registry: %w", err)
	}
	a.tokens = registry

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(a.registry, "pricer")

	var (
		adapters []source.Adapter
		history  []source.HistorySource
		fees     []source.FeeSource
		probers  []health.Prober
	)
	venueFees := make(map[string]decimal.Decimal, len(cfg.Venues))
	finder := discovery.New(cfg.ListLimit, a.logger)

	var client *chain.Client
	if cfg.RPCURL != "" {
		client, err = chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.checkChainID(ctx, client)
	}

	for _, venue := range cfg.Venues {
		schema, err := subgraph.ParseSchema(venue.Schema)
		if err != nil {
			return err
		}
		fee := cfg.VenueFee(venue)
		venueFees[venue.Name] = fee

		sg, err := subgraph.NewAdapter(subgraph.Config{
			Name:       venue.Name,
			Endpoint:   venue.Endpoint,
			Priority:   venue.Priority,
			Schema:     schema,
			FeeRate:    fee,
			Timeout:    venue.Timeout,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryBackoff,
		}, a.logger)
		if err != nil {
			return err
		}
		adapters = append(adapters, sg)
		history = append(history, sg)
		fees = append(fees, sg)
		probers = append(probers, sg)
		finder.Register(venue.Name, sg)

		if client != nil && venue.Factory != "" {
			factory, err := onchain.New(onchain.Config{
				Name:      venue.Name + "-factory",
				Endpoint:  cfg.RPCURL,
				Factory:   common.HexToAddress(venue.Factory),
				USDTokens: registry.USDTokens(),
			}, client, nil, a.logger)
			if err != nil {
				return err
			}
			finder.Register(venue.Name, factory)
		}
	}

	if client != nil {
		var factory common.Address
		if cfg.OnChainFactory != "" {
			factory = common.HexToAddress(cfg.OnChainFactory)
		}
		fallback, err := onchain.New(onchain.Config{
			Name:      "onchain",
			Endpoint:  cfg.RPCURL,
			Factory:   factory,
			FeeMethod: cfg.OnChainFeeMethod,
			USDTokens: registry.USDTokens(),
			Timeout:   cfg.OnChainTimeout,
		}, client, client, a.logger)
		if err != nil {
			return err
		}
		adapters = append(adapters, fallback)
		fees = append(fees, fallback)
		probers = append(probers, fallback)
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN, cfg.ChainID)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.history = store
		// local history is tried first and answers once it covers the window
		history = append([]source.HistorySource{store.WithPriority(-1)}, history...)
		probers = append(probers, store)
	}

	if len(adapters) == 0 {
		a.logger.Warn("no sources configured; every query will fail")
	}

	a.monitor = health.NewMonitor(probers, cfg.ProbeTimeout, m, a.logger)

	c, err := cache.New(cache.Config{MaxEntries: cfg.CacheMaxEntries}, m)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, c.Close)

	defaultFee, _ := decimal.NewFromString(cfg.DefaultFee)
	a.engine, err = engine.New(engine.Config{
		PriceTTL:       cfg.PriceTTL,
		ReservesTTL:    cfg.DataTTL,
		TVLTTL:         cfg.DataTTL,
		VolumeTTL:      cfg.DataTTL,
		FeeTTL:         cfg.DataTTL,
		HistoryTTL:     cfg.DataTTL,
		VenueFees:      venueFees,
		DefaultFeeRate: defaultFee,
		APYWindowDays:  cfg.APYWindowDays,
	}, engine.Deps{
		Cache:     c,
		Resolver:  resolver.New(resolver.Options{SkipOffline: cfg.SkipOffline}, a.monitor, m, a.logger),
		Adapters:  adapters,
		History:   history,
		Fees:      fees,
		Tokens:    registry,
		Discovery: finder,
		Health:    a.monitor,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}

	a.logger.Info("engine ready",
		zap.Int("adapters", len(adapters)),
		zap.Int("history_sources", len(history)),
		zap.Int("venues", len(cfg.Venues)),
		zap.Int("tokens", len(cfg.Tokens)),
		zap.Bool("onchain_fallback", client != nil),
	)
	return nil
}

func (a *app) checkChainID(ctx context.Context, client *chain.Client) {
	id, err := client.GetChainID(ctx)
	if err != nil {
		a.logger.Warn("chain id unavailable", zap.Error(err))
		return
	}
	if id.Int64() != a.cfg.ChainID {
		a.logger.Warn("rpc chain id differs from configured chain-id",
			zap.Int64("rpc", id.Int64()),
			zap.Int64("configured", a.cfg.ChainID),
		)
	}
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
