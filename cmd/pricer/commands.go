package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityPricer/internal/amm"
	"liquidityPricer/internal/model"
	"liquidityPricer/internal/storage"
)

// withApp runs fn with a wired app and a context cancelled on SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, cmd, a, args)
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseAddress(label, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s %q is not an address", label, value)
	}
	return common.HexToAddress(value), nil
}

func parseAmount(label, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s %q: %w", label, value, err)
	}
	return d, nil
}

func priceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "price <token> [quote]",
		Short: "Price a token by symbol or address (quote defaults to USD)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			quoteArg := model.USDSymbol
			if len(args) == 2 {
				quoteArg = args[1]
			}
			token, err := a.tokens.ResolveAny(args[0])
			if err != nil {
				return err
			}
			quote, err := a.tokens.ResolveAny(quoteArg)
			if err != nil {
				return err
			}
			q, err := a.engine.GetPrice(ctx, token, quote)
			if err != nil {
				return err
			}
			return printJSON(cmd, q)
		}),
	}
}

func poolCmd(use, short string, run func(ctx context.Context, a *app, pool common.Address) (interface{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <pool>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			pool, err := parseAddress("pool", args[0])
			if err != nil {
				return err
			}
			out, err := run(ctx, a, pool)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		}),
	}
}

type amountOutput struct {
	Pool  common.Address  `json:"pool"`
	Value decimal.Decimal `json:"value"`
}

func reservesCmd() *cobra.Command {
	return poolCmd("reserves", "Show pool reserves and LP supply", func(ctx context.Context, a *app, pool common.Address) (interface{}, error) {
		return a.engine.GetReserves(ctx, pool)
	})
}

func tvlCmd() *cobra.Command {
	return poolCmd("tvl", "Show pool total value locked in USD", func(ctx context.Context, a *app, pool common.Address) (interface{}, error) {
		v, err := a.engine.GetTVL(ctx, pool)
		return amountOutput{Pool: pool, Value: v}, err
	})
}

func volumeCmd() *cobra.Command {
	return poolCmd("volume", "Show pool 24h volume in USD", func(ctx context.Context, a *app, pool common.Address) (interface{}, error) {
		v, err := a.engine.GetVolume24h(ctx, pool)
		return amountOutput{Pool: pool, Value: v}, err
	})
}

func apyCmd() *cobra.Command {
	var window int
	cmd := poolCmd("apy", "Estimate fee APY", func(ctx context.Context, a *app, pool common.Address) (interface{}, error) {
		return a.engine.CalculateAPY(ctx, pool, window)
	})
	cmd.Flags().IntVar(&window, "window", 0, "trailing window in days (0 uses apy-window-days)")
	return cmd
}

func snapshotCmd() *cobra.Command {
	var (
		out    string
		record bool
	)
	cmd := poolCmd("snapshot", "Show reserves, TVL, volume, fee and APY together", func(ctx context.Context, a *app, pool common.Address) (interface{}, error) {
		snap, err := a.engine.Snapshot(ctx, pool)
		if err != nil {
			return nil, err
		}
		var sinks []storage.Storage
		if out != "" {
			sinks = append(sinks, storage.NewJsonlStorage(out))
		}
		if record {
			if a.history == nil {
				return nil, errors.New("--record requires pg-dsn")
			}
			sinks = append(sinks, a.history)
		}
		for _, sink := range sinks {
			if err := sink.PutSnapshots(ctx, []model.PoolSnapshot{snap}); err != nil {
				return nil, fmt.Errorf("store snapshot: %w", err)
			}
		}
		return snap, nil
	})
	cmd.Flags().StringVar(&out, "out", "", "append the snapshot to a JSONL file")
	cmd.Flags().BoolVar(&record, "record", false, "record the snapshot as today's history bucket in Postgres")
	return cmd
}

type depositOutput struct {
	Pool          common.Address  `json:"pool"`
	Token0Amount  decimal.Decimal `json:"token0_amount"`
	Token1Amount  decimal.Decimal `json:"token1_amount"`
	Token0Minimum decimal.Decimal `json:"token0_minimum"`
	Token1Minimum decimal.Decimal `json:"token1_minimum"`
	LPTokens      decimal.Decimal `json:"lp_tokens"`
	PoolShare     decimal.Decimal `json:"pool_share_percent"`
	PriceImpact   decimal.Decimal `json:"price_impact_percent"`
}

func depositCmd() *cobra.Command {
	var slippage string
	cmd := &cobra.Command{
		Use:   "deposit <pool> <amount0> <amount1>",
		Short: "Plan a liquidity deposit at the current pool ratio",
		Args:  cobra.ExactArgs(3),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			pool, err := parseAddress("pool", args[0])
			if err != nil {
				return err
			}
			desired0, err := parseAmount("amount0", args[1])
			if err != nil {
				return err
			}
			desired1, err := parseAmount("amount1", args[2])
			if err != nil {
				return err
			}
			tolerance, err := parseAmount("slippage", slippage)
			if err != nil {
				return err
			}

			a0, a1, err := a.engine.CalculateOptimalAmounts(ctx, pool, desired0, desired1)
			if err != nil {
				return err
			}
			lp, err := a.engine.EstimateLPTokens(ctx, pool, a0, a1)
			if err != nil {
				return err
			}
			share, err := a.engine.PoolShare(ctx, pool, lp)
			if err != nil {
				return err
			}
			impact, err := a.engine.CalculatePriceImpact(ctx, pool, a0, a1)
			if err != nil {
				return err
			}
			min0, min1 := a.engine.CalculateMinimumAmounts(a0, a1, tolerance)

			return printJSON(cmd, depositOutput{
				Pool:          pool,
				Token0Amount:  a0,
				Token1Amount:  a1,
				Token0Minimum: min0,
				Token1Minimum: min1,
				LPTokens:      lp,
				PoolShare:     share,
				PriceImpact:   impact,
			})
		}),
	}
	cmd.Flags().StringVar(&slippage, "slippage", "0.005", "slippage tolerance as a fraction")
	return cmd
}

type withdrawOutput struct {
	Pool          common.Address  `json:"pool"`
	LPTokens      decimal.Decimal `json:"lp_tokens"`
	Token0Amount  decimal.Decimal `json:"token0_amount"`
	Token1Amount  decimal.Decimal `json:"token1_amount"`
	Token0Minimum decimal.Decimal `json:"token0_minimum"`
	Token1Minimum decimal.Decimal `json:"token1_minimum"`
}

func withdrawCmd() *cobra.Command {
	var slippage string
	cmd := &cobra.Command{
		Use:   "withdraw <pool> <lp-tokens>",
		Short: "Estimate the tokens redeemed for LP tokens",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			pool, err := parseAddress("pool", args[0])
			if err != nil {
				return err
			}
			lp, err := parseAmount("lp-tokens", args[1])
			if err != nil {
				return err
			}
			tolerance, err := parseAmount("slippage", slippage)
			if err != nil {
				return err
			}
			a0, a1, err := a.engine.EstimateWithdrawalAmounts(ctx, pool, lp)
			if err != nil {
				return err
			}
			min0, min1 := a.engine.CalculateMinimumAmounts(a0, a1, tolerance)
			return printJSON(cmd, withdrawOutput{
				Pool:          pool,
				LPTokens:      lp,
				Token0Amount:  a0,
				Token1Amount:  a1,
				Token0Minimum: min0,
				Token1Minimum: min1,
			})
		}),
	}
	cmd.Flags().StringVar(&slippage, "slippage", "0.005", "slippage tolerance as a fraction")
	return cmd
}

type swapOutput struct {
	Pool        common.Address  `json:"pool"`
	AmountIn    decimal.Decimal `json:"amount_in"`
	AmountOut   decimal.Decimal `json:"amount_out"`
	MinimumOut  decimal.Decimal `json:"minimum_out"`
	PriceImpact decimal.Decimal `json:"price_impact_percent"`
	ZeroForOne  bool            `json:"zero_for_one"`
}

func swapCmd() *cobra.Command {
	var (
		slippage string
		reverse  bool
	)
	cmd := &cobra.Command{
		Use:   "swap <pool> <amount-in>",
		Short: "Quote a constant-product swap of token0 for token1",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			pool, err := parseAddress("pool", args[0])
			if err != nil {
				return err
			}
			amountIn, err := parseAmount("amount-in", args[1])
			if err != nil {
				return err
			}
			tolerance, err := parseAmount("slippage", slippage)
			if err != nil {
				return err
			}
			zeroForOne := !reverse
			out, err := a.engine.QuoteSwap(ctx, pool, amountIn, zeroForOne)
			if err != nil {
				return err
			}
			d0, d1 := amountIn, out.Neg()
			if !zeroForOne {
				d0, d1 = out.Neg(), amountIn
			}
			impact, err := a.engine.CalculatePriceImpact(ctx, pool, d0, d1)
			if err != nil {
				return err
			}
			return printJSON(cmd, swapOutput{
				Pool:        pool,
				AmountIn:    amountIn,
				AmountOut:   out,
				MinimumOut:  amm.MinimumAmount(out, tolerance),
				PriceImpact: impact,
				ZeroForOne:  zeroForOne,
			})
		}),
	}
	cmd.Flags().StringVar(&slippage, "slippage", "0.005", "slippage tolerance as a fraction")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "swap token1 for token0")
	return cmd
}

type findPoolOutput struct {
	Pool  *common.Address `json:"pool"`
	Found bool            `json:"found"`
}

func findPoolCmd() *cobra.Command {
	var venue string
	cmd := &cobra.Command{
		Use:   "find-pool <tokenA> <tokenB>",
		Short: "Find the deepest pool for a token pair",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			tokenA, err := a.tokens.ResolveAny(args[0])
			if err != nil {
				return err
			}
			tokenB, err := a.tokens.ResolveAny(args[1])
			if err != nil {
				return err
			}
			pool, found, err := a.engine.FindPool(ctx, tokenA.Address, tokenB.Address, venue)
			if err != nil {
				return err
			}
			out := findPoolOutput{Found: found}
			if found {
				out.Pool = &pool
			}
			return printJSON(cmd, out)
		}),
	}
	cmd.Flags().StringVar(&venue, "venue", "", "venue name (empty searches every venue)")
	return cmd
}

func listPoolsCmd() *cobra.Command {
	var venue string
	cmd := &cobra.Command{
		Use:   "list-pools <token>",
		Short: "List pools containing a token by descending reserve value",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			token, err := a.tokens.ResolveAny(args[0])
			if err != nil {
				return err
			}
			pools, err := a.engine.ListPoolsForToken(ctx, token.Address, venue)
			if err != nil {
				return err
			}
			return printJSON(cmd, pools)
		}),
	}
	cmd.Flags().StringVar(&venue, "venue", "", "venue name (empty searches every venue)")
	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe every source once",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			return printJSON(cmd, a.engine.CheckHealth(ctx))
		}),
	}
}

func monitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Probe sources periodically and serve Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
			mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
				status := a.engine.GetHealthStatus()
				if !status.Healthy {
					w.WriteHeader(http.StatusServiceUnavailable)
				}
				_ = json.NewEncoder(w).Encode(status)
			})
			srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("metrics server listening", zap.String("addr", a.cfg.MetricsAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			a.monitor.Run(ctx, a.cfg.MonitorInterval)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown metrics server: %w", err)
			}
			return <-errCh
		}),
	}
	cmd.Flags().String("metrics-addr", ":9102", "listen address for /metrics and /health")
	cmd.Flags().Duration("monitor-interval", time.Minute, "probe interval")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres history table",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			if a.history == nil {
				return errors.New("migrate requires pg-dsn")
			}
			if err := a.history.EnsureSchema(ctx); err != nil {
				return err
			}
			a.logger.Info("history schema ready")
			return nil
		}),
	}
}
