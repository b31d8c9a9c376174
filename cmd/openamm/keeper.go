package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"openamm/internal/amm"
)

func newKeeperCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keeper",
		Short: "Refresh every pool on an interval and serve metrics",
		RunE:  runKeeper,
	}
	cmd.Flags().Duration("keeper-interval", 10*time.Second, "refresh interval")
	cmd.Flags().Int("concurrency", 4, "pools refreshed in parallel")
	cmd.Flags().String("metrics-addr", ":9108", "metrics listen address (empty disables)")
	return cmd
}

func runKeeper(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()
	if a.cfg.KeeperInterval <= 0 {
		return fmt.Errorf("keeper interval must be positive")
	}

	if a.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	a.logger.Info("keeper start",
		zap.Duration("interval", a.cfg.KeeperInterval),
		zap.Int("concurrency", a.cfg.Concurrency),
		zap.String("metrics_addr", a.cfg.MetricsAddr),
		zap.String("keeper", a.cfg.Owner.Hex()),
	)

	ticker := time.NewTicker(a.cfg.KeeperInterval)
	defer ticker.Stop()
	for {
		keeperTick(ctx, a)
		select {
		case <-ctx.Done():
			a.logger.Info("keeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func keeperTick(ctx context.Context, a *app) {
	start := time.Now()
	var out []amm.RefreshOutcome
	err := a.withState(ctx, func(ctx context.Context) error {
		var err error
		out, err = a.svc.RefreshAll(ctx, a.cfg.Owner)
		return err
	})
	if err != nil {
		a.logger.Warn("refresh round had failures", zap.Error(err))
	}
	failed, skipped := 0, 0
	for _, o := range out {
		switch {
		case o.Err != nil:
			failed++
		case o.Result.Skipped:
			skipped++
		}
	}
	a.logger.Info("refresh round",
		zap.Int("pools", len(out)),
		zap.Int("failed", failed),
		zap.Int("paused", skipped),
		zap.Duration("elapsed", time.Since(start)),
	)
}
