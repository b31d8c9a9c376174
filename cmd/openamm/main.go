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
		Use:          "openamm",
		Short:        "Liquidity pools quoting an order-book venue",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file path")
	pf.String("data-dir", "./data", "directory for pool, ledger and venue state")
	pf.String("store", "file", "pool store (file, postgres)")
	pf.String("pg-dsn", "", "Postgres DSN for the postgres store")
	pf.String("journal", "", "liquidity event JSONL path (default <data-dir>/journal.jsonl)")
	pf.String("redis-addr", "", "redis address for distributed pool locks")
	pf.String("redis-password", "", "redis password")
	pf.Int("redis-db", 0, "redis database")
	pf.Duration("lock-ttl", 30*time.Second, "pool lock ttl")
	pf.String("rpc", "", "EVM RPC URL for ERC20 decimals")
	pf.StringSlice("decimals", nil, "decimals overrides (comma-separated mint=decimals)")
	pf.String("owner", "", "wallet address that funds and receives liquidity")
	pf.Int("max-retries", 3, "maximum rpc retry attempts")
	pf.Duration("retry-backoff", 250*time.Millisecond, "initial rpc retry backoff")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newCreateCmd(),
		newDepositCmd(),
		newWithdrawCmd(),
		newRefreshCmd(),
		newRestartCmd(),
		newShowCmd(),
		newQuoteCmd(),
		newKeeperCmd(),
		newTakeCmd(),
		newEvictCmd(),
		newFundCmd(),
		newTokenCmd(),
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
