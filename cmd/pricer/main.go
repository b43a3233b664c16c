package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "pricer",
		Short:        "DEX price and liquidity engine",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "ledger RPC URL for the on-chain fallback")
	flags.String("onchain-factory", "", "pair factory used by the on-chain fallback")
	flags.String("onchain-fee-method", "", "pair fee read used on-chain (fee, swapFee)")
	flags.String("pg-dsn", "", "Postgres DSN for fee/TVL history")
	flags.Int64("chain-id", 1, "chain id of recorded history")
	flags.Duration("price-ttl", time.Minute, "price cache lifetime")
	flags.Duration("data-ttl", 5*time.Minute, "reserves, TVL and volume cache lifetime")
	flags.Duration("http-timeout", 10*time.Second, "per-call indexer timeout")
	flags.Duration("onchain-timeout", 30*time.Second, "per-call on-chain timeout")
	flags.Int("max-retries", 2, "indexer retry attempts")
	flags.Duration("retry-backoff", 200*time.Millisecond, "initial indexer retry backoff")
	flags.Bool("skip-offline", false, "skip indexers the health monitor reports offline")
	flags.String("default-fee", "0.003", "fee rate for venues without a configured fee")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		priceCmd(),
		reservesCmd(),
		tvlCmd(),
		volumeCmd(),
		apyCmd(),
		snapshotCmd(),
		depositCmd(),
		withdrawCmd(),
		swapCmd(),
		findPoolCmd(),
		listPoolsCmd(),
		healthCmd(),
		monitorCmd(),
		migrateCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
