package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"openamm/internal/amm"
	"openamm/internal/chain"
	"openamm/internal/config"
	"openamm/internal/ledger"
	"openamm/internal/metrics"
	"openamm/internal/storage"
	"openamm/internal/storage/postgres"
	"openamm/internal/storage/redis"
	"openamm/internal/venue"
)

// app is the wired process: configuration, the long-lived store, locker and
// metrics, and the paper venue and ledger state under data-dir. The venue and
// ledger are reloaded from disk for every command or keeper round while the
// data-dir lock is held, so separate processes never overwrite each other.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	rpc      *chain.Client
	registry *prometheus.Registry
	closers  []func()

	stateLock *flock.Flock
	store     storage.PoolStore
	journal   storage.Journal
	locker    storage.Locker
	assets    amm.AssetResolver
	metrics   *metrics.Metrics

	ledger *ledger.Memory
	paper  *venue.Paper
	svc    *amm.Service
}

// stateLockRetry is how often a blocked process retries the data-dir lock.
const stateLockRetry = 50 * time.Millisecond

func openApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, logger)
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.closers = append(a.closers, func() { _ = logger.Sync() })
	fail := func(err error) (*app, error) {
		a.close()
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fail(fmt.Errorf("create data dir: %w", err))
	}
	a.stateLock = flock.New(filepath.Join(cfg.DataDir, ".lock"))
	a.closers = append(a.closers, func() { _ = a.stateLock.Close() })

	switch cfg.Store {
	case config.StorePostgres:
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fail(fmt.Errorf("connect postgres: %w", err))
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fail(fmt.Errorf("ensure schema: %w", err))
		}
		a.store, a.journal = pg, pg
	default:
		a.store = storage.NewFileStore(cfg.PoolsDir())
		a.journal = storage.NewJsonlJournal(cfg.Journal)
	}

	if cfg.RedisAddr != "" {
		rc, err := redis.New(ctx, redis.ClientConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return fail(fmt.Errorf("connect redis: %w", err))
		}
		a.closers = append(a.closers, func() { _ = rc.Close() })
		a.locker = redis.NewLockManager(rc)
	} else {
		a.locker = storage.NewLocalLocker()
	}

	var caller chain.Caller
	if cfg.RPCURL != "" {
		client, err := chain.NewClient(ctx, cfg.RPCURL, logger)
		if err != nil {
			return fail(fmt.Errorf("connect rpc: %w", err))
		}
		a.closers = append(a.closers, client.Close)
		a.rpc, caller = client, client
	}
	a.assets = chain.NewAssetResolver(caller, cfg.Decimals, cfg.MaxRetries, cfg.RetryBackoff, logger)
	a.metrics = metrics.New(a.registry)
	return a, nil
}

// withState runs fn against venue and ledger state freshly loaded from
// data-dir, holding the data-dir lock from load to save. State is saved even
// when fn fails so it stays in step with the pool checkpoint.
func (a *app) withState(ctx context.Context, fn func(ctx context.Context) error) error {
	locked, err := a.stateLock.TryLockContext(ctx, stateLockRetry)
	if err != nil {
		return fmt.Errorf("lock data dir: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock data dir: %s is busy", a.cfg.DataDir)
	}
	defer func() {
		if err := a.stateLock.Unlock(); err != nil {
			a.logger.Warn("unlock data dir failed", zap.Error(err))
		}
	}()

	if err := a.load(); err != nil {
		return err
	}
	fnErr := fn(ctx)
	if err := a.save(); err != nil {
		return errors.Join(fnErr, fmt.Errorf("save state: %w", err))
	}
	return fnErr
}

// load reads the paper venue and ledger from data-dir and wires a service
// over them.
func (a *app) load() error {
	l, err := ledger.LoadMemory(a.cfg.LedgerPath())
	if err != nil {
		return err
	}
	p, err := venue.LoadPaper(a.cfg.VenuePath(), l, a.logger)
	if err != nil {
		return err
	}
	a.ledger, a.paper = l, p
	a.svc = amm.NewService(amm.Deps{
		Store:              a.store,
		Venue:              p,
		Ledger:             l,
		Assets:             a.assets,
		Journal:            a.journal,
		Locker:             a.locker,
		Metrics:            a.metrics,
		Logger:             a.logger,
		LockTTL:            a.cfg.LockTTL,
		RefreshConcurrency: a.cfg.Concurrency,
	})
	return nil
}

// save persists the paper venue and ledger.
func (a *app) save() error {
	if err := a.ledger.SaveFile(a.cfg.LedgerPath()); err != nil {
		return err
	}
	return a.paper.SaveFile(a.cfg.VenuePath())
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) owner() (common.Address, error) {
	if a.cfg.Owner == (common.Address{}) {
		return common.Address{}, fmt.Errorf("owner address is required")
	}
	return a.cfg.Owner, nil
}

// run opens the app, runs fn over freshly loaded state and prints its result.
func run(cmd *cobra.Command, fn func(ctx context.Context, a *app) (any, error)) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	var out any
	err = a.withState(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx, a)
		return err
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func addressFlag(cmd *cobra.Command, name string) (common.Address, error) {
	val, _ := cmd.Flags().GetString(name)
	val = strings.TrimSpace(val)
	if val == "" {
		return common.Address{}, fmt.Errorf("--%s is required", name)
	}
	if !common.IsHexAddress(val) {
		return common.Address{}, fmt.Errorf("invalid --%s address %q", name, val)
	}
	return common.HexToAddress(val), nil
}
