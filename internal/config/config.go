package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	DataDir string
	Store   string
	PGDSN   string
	Journal string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	RPCURL       string
	Decimals     map[common.Address]uint8
	MaxRetries   int
	RetryBackoff time.Duration

	Owner common.Address

	KeeperInterval time.Duration
	Concurrency    int
	MetricsAddr    string

	LogLevel string
}

// Paths of the paper venue, token ledger and pool files under DataDir.
func (c Config) VenuePath() string  { return filepath.Join(c.DataDir, "venue.json") }
func (c Config) LedgerPath() string { return filepath.Join(c.DataDir, "ledger.json") }
func (c Config) PoolsDir() string   { return filepath.Join(c.DataDir, "pools") }

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OPENAMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("data-dir", "./data")
	v.SetDefault("store", StoreFile)
	v.SetDefault("lock-ttl", 30*time.Second)
	v.SetDefault("keeper-interval", 10*time.Second)
	v.SetDefault("concurrency", 4)
	v.SetDefault("metrics-addr", ":9108")
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 250*time.Millisecond)
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
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		DataDir:        v.GetString("data-dir"),
		Store:          strings.ToLower(v.GetString("store")),
		PGDSN:          v.GetString("pg-dsn"),
		Journal:        v.GetString("journal"),
		RedisAddr:      v.GetString("redis-addr"),
		RedisPassword:  v.GetString("redis-password"),
		RedisDB:        v.GetInt("redis-db"),
		LockTTL:        v.GetDuration("lock-ttl"),
		RPCURL:         v.GetString("rpc"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		KeeperInterval: v.GetDuration("keeper-interval"),
		Concurrency:    v.GetInt("concurrency"),
		MetricsAddr:    v.GetString("metrics-addr"),
		LogLevel:       v.GetString("log-level"),
	}
	if cfg.Journal == "" {
		cfg.Journal = filepath.Join(cfg.DataDir, "journal.jsonl")
	}

	decimals, err := parseDecimals(getStringSlice(v, "decimals"))
	if err != nil {
		return Config{}, err
	}
	cfg.Decimals = decimals

	if owner := strings.TrimSpace(v.GetString("owner")); owner != "" {
		if !common.IsHexAddress(owner) {
			return Config{}, fmt.Errorf("invalid owner address %q", owner)
		}
		cfg.Owner = common.HexToAddress(owner)
	}

	switch cfg.Store {
	case StoreFile:
	case StorePostgres:
		if cfg.PGDSN == "" {
			return Config{}, fmt.Errorf("pg-dsn is required for store %q", cfg.Store)
		}
	default:
		return Config{}, fmt.Errorf("unknown store %q", cfg.Store)
	}

	return cfg, nil
}

// parseDecimals reads mint=decimals pairs.
func parseDecimals(pairs []string) (map[common.Address]uint8, error) {
	out := make(map[common.Address]uint8, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid decimals override %q", pair)
		}
		mint, value := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if !common.IsHexAddress(mint) {
			return nil, fmt.Errorf("invalid mint in decimals override %q", pair)
		}
		d, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid decimals in override %q: %w", pair, err)
		}
		out[common.HexToAddress(mint)] = uint8(d)
	}
	return out, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
