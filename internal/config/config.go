package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Venue configures one indexer-backed exchange.
type Venue struct {
	Name       string        `mapstructure:"name"`
	Endpoint   string        `mapstructure:"endpoint"`
	Schema     string        `mapstructure:"schema"`
	Priority   int           `mapstructure:"priority"`
	DefaultFee string        `mapstructure:"default-fee"`
	Factory    string        `mapstructure:"factory"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Token is one entry of the token table.
type Token struct {
	Symbol   string `mapstructure:"symbol"`
	Address  string `mapstructure:"address"`
	Decimals uint8  `mapstructure:"decimals"`
	USD      bool   `mapstructure:"usd"`
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL           string
	ChainID          int64
	OnChainFactory   string
	OnChainFeeMethod string
	Venues           []Venue
	Tokens           []Token

	PriceTTL        time.Duration
	DataTTL         time.Duration
	CacheMaxEntries int64
	HTTPTimeout     time.Duration
	OnChainTimeout  time.Duration
	ProbeTimeout    time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	SkipOffline     bool

	DefaultFee    string
	APYWindowDays int
	ListLimit     int

	PGDSN           string
	MetricsAddr     string
	MonitorInterval time.Duration
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain-id", int64(1))
	v.SetDefault("onchain-fee-method", "")
	v.SetDefault("price-ttl", time.Minute)
	v.SetDefault("data-ttl", 5*time.Minute)
	v.SetDefault("cache-max-entries", int64(100_000))
	v.SetDefault("http-timeout", 10*time.Second)
	v.SetDefault("onchain-timeout", 30*time.Second)
	v.SetDefault("probe-timeout", 10*time.Second)
	v.SetDefault("max-retries", 2)
	v.SetDefault("retry-backoff", 200*time.Millisecond)
	v.SetDefault("skip-offline", false)
	v.SetDefault("default-fee", "0.003")
	v.SetDefault("apy-window-days", 7)
	v.SetDefault("list-limit", 20)
	v.SetDefault("metrics-addr", ":9102")
	v.SetDefault("monitor-interval", time.Minute)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:           v.GetString("rpc"),
		ChainID:          v.GetInt64("chain-id"),
		OnChainFactory:   v.GetString("onchain-factory"),
		OnChainFeeMethod: v.GetString("onchain-fee-method"),
		PriceTTL:         v.GetDuration("price-ttl"),
		DataTTL:          v.GetDuration("data-ttl"),
		CacheMaxEntries:  v.GetInt64("cache-max-entries"),
		HTTPTimeout:      v.GetDuration("http-timeout"),
		OnChainTimeout:   v.GetDuration("onchain-timeout"),
		ProbeTimeout:     v.GetDuration("probe-timeout"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		SkipOffline:      v.GetBool("skip-offline"),
		DefaultFee:       v.GetString("default-fee"),
		APYWindowDays:    v.GetInt("apy-window-days"),
		ListLimit:        v.GetInt("list-limit"),
		PGDSN:            v.GetString("pg-dsn"),
		MetricsAddr:      v.GetString("metrics-addr"),
		MonitorInterval:  v.GetDuration("monitor-interval"),
		LogLevel:         v.GetString("log-level"),
	}

	if err := v.UnmarshalKey("venues", &cfg.Venues); err != nil {
		return Config{}, fmt.Errorf("decode venues: %w", err)
	}
	if err := v.UnmarshalKey("tokens", &cfg.Tokens); err != nil {
		return Config{}, fmt.Errorf("decode tokens: %w", err)
	}
	for i := range cfg.Venues {
		if cfg.Venues[i].Timeout <= 0 {
			cfg.Venues[i].Timeout = cfg.HTTPTimeout
		}
	}

	return cfg, nil
}

// Validate fails fast on configuration that would only surface as silent
// zero results later.
func (c Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalid}, args...)...))
	}

	for name, d := range map[string]time.Duration{
		"price-ttl": c.PriceTTL, "data-ttl": c.DataTTL,
		"http-timeout": c.HTTPTimeout, "onchain-timeout": c.OnChainTimeout,
		"probe-timeout": c.ProbeTimeout, "monitor-interval": c.MonitorInterval,
	} {
		if d <= 0 {
			invalid("%s must be positive, got %s", name, d)
		}
	}
	if c.MaxRetries < 0 {
		invalid("max-retries must not be negative")
	}
	if c.APYWindowDays <= 0 {
		invalid("apy-window-days must be positive")
	}
	if _, err := parseFee(c.DefaultFee); err != nil {
		invalid("default-fee: %v", err)
	}
	if c.OnChainFactory != "" && !common.IsHexAddress(c.OnChainFactory) {
		invalid("onchain-factory %q is not an address", c.OnChainFactory)
	}
	if c.OnChainFeeMethod != "" && c.OnChainFeeMethod != "fee" && c.OnChainFeeMethod != "swapFee" {
		invalid("onchain-fee-method %q must be fee or swapFee", c.OnChainFeeMethod)
	}

	seen := make(map[string]bool, len(c.Venues))
	for i, venue := range c.Venues {
		name := strings.TrimSpace(venue.Name)
		switch {
		case name == "":
			invalid("venues[%d]: name is required", i)
		case seen[name]:
			invalid("venues[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
		if strings.TrimSpace(venue.Endpoint) == "" {
			invalid("venue %s: endpoint is required", name)
		}
		switch strings.ToLower(venue.Schema) {
		case "", "v2", "v3":
		default:
			invalid("venue %s: unknown schema %q", name, venue.Schema)
		}
		if venue.Factory != "" && !common.IsHexAddress(venue.Factory) {
			invalid("venue %s: factory %q is not an address", name, venue.Factory)
		}
		if venue.DefaultFee != "" {
			if _, err := parseFee(venue.DefaultFee); err != nil {
				invalid("venue %s: default-fee: %v", name, err)
			}
		}
	}

	for i, token := range c.Tokens {
		if strings.TrimSpace(token.Symbol) == "" {
			invalid("tokens[%d]: symbol is required", i)
		}
		if !common.IsHexAddress(token.Address) {
			invalid("token %s: address %q is not an address", token.Symbol, token.Address)
		}
	}

	return errors.Join(errs...)
}

// VenueFee returns the venue's configured fee, or the global default.
func (c Config) VenueFee(v Venue) decimal.Decimal {
	if v.DefaultFee != "" {
		if fee, err := parseFee(v.DefaultFee); err == nil {
			return fee
		}
	}
	fee, _ := parseFee(c.DefaultFee)
	return fee
}

func parseFee(s string) (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, err
	}
	if fee.Sign() <= 0 || !fee.LessThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("fee %s must be a fraction in (0, 1)", s)
	}
	return fee, nil
}
