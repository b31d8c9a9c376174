package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"openamm/internal/model"
)

// ErrPoolNotFound is returned by Load when no record exists.
var ErrPoolNotFound = errors.New("pool not found")

// PoolStore persists pool records keyed by pool address.
type PoolStore interface {
	Load(ctx context.Context, addr common.Address) (model.Pool, error)
	Save(ctx context.Context, pool model.Pool) error
	List(ctx context.Context) ([]common.Address, error)
}

// Journal is an append-only sink for liquidity events.
type Journal interface {
	Append(ctx context.Context, events ...model.LiquidityEvent) error
}

// NopJournal discards events.
type NopJournal struct{}

func (NopJournal) Append(context.Context, ...model.LiquidityEvent) error { return nil }

// ErrLockHeld is returned when another holder owns a lock.
var ErrLockHeld = errors.New("lock held")

// Locker grants exclusive access to a key. The returned func releases the
// lock and is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
