package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"openamm/internal/config"
	"openamm/internal/ledger"
)

var (
	testMint   = common.HexToAddress("0xb1")
	testHolder = common.HexToAddress("0xd1")
)

func testApp(t *testing.T, dir string) *app {
	t.Helper()
	cfg := config.Config{
		DataDir: dir,
		Store:   config.StoreFile,
		Journal: filepath.Join(dir, "journal.jsonl"),
		LockTTL: time.Second,
	}
	a, err := newApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

// mint returns a withState body that mints amount to the test holder through
// whichever ledger a has loaded.
func mint(a *app, amount uint64) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return a.ledger.Apply(ctx, []ledger.Op{ledger.MintTo(testMint, testHolder, amount)})
	}
}

func balanceOf(t *testing.T, a *app) uint64 {
	t.Helper()
	var bal uint64
	require.NoError(t, a.withState(context.Background(), func(ctx context.Context) error {
		var err error
		bal, err = a.ledger.Balance(ctx, testHolder, testMint)
		return err
	}))
	return bal
}

func TestWithStateReloadsWritesFromOtherProcesses(t *testing.T) {
	dir := t.TempDir()
	first, second := testApp(t, dir), testApp(t, dir)
	ctx := context.Background()

	require.NoError(t, first.withState(ctx, mint(first, 100)))
	require.Equal(t, uint64(100), balanceOf(t, second))

	require.NoError(t, second.withState(ctx, mint(second, 50)))
	require.NoError(t, first.withState(ctx, mint(first, 1)))

	require.Equal(t, uint64(151), balanceOf(t, second))
	require.Equal(t, uint64(151), balanceOf(t, first))
}

func TestWithStateSavesOnFailure(t *testing.T) {
	dir := t.TempDir()
	a := testApp(t, dir)
	boom := errors.New("boom")

	err := a.withState(context.Background(), func(ctx context.Context) error {
		require.NoError(t, mint(a, 7)(ctx))
		return boom
	})
	require.ErrorIs(t, err, boom)

	l, err := ledger.LoadMemory(a.cfg.LedgerPath())
	require.NoError(t, err)
	bal, err := l.Balance(context.Background(), testHolder, testMint)
	require.NoError(t, err)
	require.Equal(t, uint64(7), bal)
}

func TestWithStateWaitsForDataDirLock(t *testing.T) {
	dir := t.TempDir()
	first, second := testApp(t, dir), testApp(t, dir)

	err := first.withState(context.Background(), func(context.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		err := second.withState(ctx, mint(second, 1))
		require.ErrorIs(t, err, context.DeadlineExceeded)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, second.withState(context.Background(), mint(second, 1)))
	require.Equal(t, uint64(1), balanceOf(t, first))
}
