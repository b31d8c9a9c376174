package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// AssetResolver answers token decimals from configured overrides, then from
// its cache, then over RPC with retries.
type AssetResolver struct {
	caller       Caller
	logger       *zap.Logger
	maxRetries   int
	retryBackoff time.Duration

	mu   sync.RWMutex
	data map[common.Address]uint8
}

// NewAssetResolver builds a resolver. caller may be nil when every asset is
// covered by overrides.
func NewAssetResolver(caller Caller, overrides map[common.Address]uint8, maxRetries int, retryBackoff time.Duration, logger *zap.Logger) *AssetResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	data := make(map[common.Address]uint8, len(overrides))
	for k, v := range overrides {
		data[k] = v
	}
	return &AssetResolver{
		caller:       caller,
		logger:       logger,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		data:         data,
	}
}

func (r *AssetResolver) Decimals(ctx context.Context, mint common.Address) (uint8, error) {
	r.mu.RLock()
	d, ok := r.data[mint]
	r.mu.RUnlock()
	if ok {
		return d, nil
	}
	if r.caller == nil {
		return 0, fmt.Errorf("decimals for %s: no override and no rpc configured", mint.Hex())
	}

	var decimals uint8
	err := withRetry(ctx, r.maxRetries, r.retryBackoff, func(ctx context.Context) error {
		meta, err := FetchAssetMeta(ctx, r.caller, mint, r.logger)
		if err != nil {
			r.logger.Warn("asset metadata fetch failed", zap.String("mint", mint.Hex()), zap.Error(err))
			return err
		}
		decimals = meta.Decimals
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("decimals for %s: %w", mint.Hex(), err)
	}

	r.mu.Lock()
	r.data[mint] = decimals
	r.mu.Unlock()
	return decimals, nil
}

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
