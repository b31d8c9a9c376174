package amm

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"openamm/internal/chain"
	"openamm/internal/ledger"
	"openamm/internal/liquidity"
	"openamm/internal/metrics"
	"openamm/internal/model"
	"openamm/internal/stableswap"
	"openamm/internal/storage"
	"openamm/internal/venue"
)

var (
	marketAddr = common.HexToAddress("0xa1")
	otherMkt   = common.HexToAddress("0xa2")
	baseMint   = common.HexToAddress("0xb1")
	quoteMint  = common.HexToAddress("0xc1")
	owner      = common.HexToAddress("0xd1")
	keeper     = common.HexToAddress("0xd2")
	taker      = common.HexToAddress("0xd3")
)

const seed = 1_000_000_000

type fixture struct {
	svc     *Service
	ledger  *ledger.Memory
	paper   *venue.Paper
	store   *storage.FileStore
	journal string
	reg     *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	l := ledger.NewMemory()
	require.NoError(t, l.Apply(ctx, []ledger.Op{
		ledger.MintTo(baseMint, owner, 10*seed),
		ledger.MintTo(quoteMint, owner, 10*seed),
		ledger.MintTo(baseMint, taker, 10*seed),
		ledger.MintTo(quoteMint, taker, 10*seed),
	}))
	p := venue.NewPaper(l, nil)
	require.NoError(t, p.AddMarket(model.MarketInfo{
		Address: marketAddr, BaseMint: baseMint, QuoteMint: quoteMint, BaseLotSize: 1_000, QuoteLotSize: 1,
	}, 0))
	require.NoError(t, p.AddMarket(model.MarketInfo{
		Address: otherMkt, BaseMint: quoteMint, QuoteMint: baseMint, BaseLotSize: 1_000, QuoteLotSize: 1,
	}, 0))

	store := storage.NewFileStore(filepath.Join(dir, "pools"))
	journal := filepath.Join(dir, "journal.jsonl")
	reg := prometheus.NewRegistry()
	svc := NewService(Deps{
		Store:   store,
		Venue:   p,
		Ledger:  l,
		Assets:  chain.NewAssetResolver(nil, map[common.Address]uint8{baseMint: 9, quoteMint: 9}, 0, 0, nil),
		Journal: storage.NewJsonlJournal(journal),
		Locker:  storage.NewLocalLocker(),
		Metrics: metrics.New(reg),
		Now:     func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) },
	})
	return &fixture{svc: svc, ledger: l, paper: p, store: store, journal: journal, reg: reg}
}

func (f *fixture) create(t *testing.T, curve model.CurveType) model.Pool {
	t.Helper()
	res, err := f.svc.CreatePool(context.Background(), CreateRequest{
		Owner: owner, Market: marketAddr, Curve: curve,
		BaseMint: baseMint, QuoteMint: quoteMint,
		InitialBase: seed, InitialQuote: seed,
	})
	require.NoError(t, err)
	return res.Pool
}

func (f *fixture) balance(t *testing.T, holder, mint common.Address) uint64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), holder, mint)
	require.NoError(t, err)
	return b
}

func (f *fixture) book(t *testing.T, pool model.Pool) model.BookSnapshot {
	t.Helper()
	snap, err := f.paper.Snapshot(context.Background(), pool.Market, pool.OpenOrders)
	require.NoError(t, err)
	return snap
}

// requireCustodyMatches checks that the pool's vaults plus its venue
// balances hold exactly the reserves plus the unpaid refunds.
func (f *fixture) requireCustodyMatches(t *testing.T, pool model.Pool) {
	t.Helper()
	snap := f.book(t, pool)
	require.Equal(t, pool.BaseAmount+pool.RefundBaseAmount, f.balance(t, pool.BaseVault, baseMint)+snap.NativeBaseTotal)
	require.Equal(t, pool.QuoteAmount+pool.RefundQuoteAmount, f.balance(t, pool.QuoteVault, quoteMint)+snap.NativeQuoteTotal)
}

func TestCreatePoolPlacesLadder(t *testing.T) {
	f := newFixture(t)
	pool := f.create(t, model.CurveXYK)

	require.Equal(t, PoolAddress(marketAddr, model.CurveXYK), pool.Address)
	require.Equal(t, uint64(seed), pool.BaseAmount)
	require.Equal(t, uint64(seed), pool.QuoteAmount)
	require.True(t, pool.MMActive)
	require.Equal(t, uint64(20), pool.ClientOrderID)
	require.Equal(t, uint64(1_002), pool.PlacedAsks[0].LimitPrice)

	require.Equal(t, uint64(999_999_999), f.balance(t, owner, pool.LPMint))
	require.Equal(t, uint64(9*seed), f.balance(t, owner, baseMint))
	require.Len(t, f.book(t, pool).Orders, 19)
	f.requireCustodyMatches(t, pool)

	stored, err := f.store.Load(context.Background(), pool.Address)
	require.NoError(t, err)
	require.Equal(t, pool, stored)

	events, err := storage.ReadJournal(f.journal)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, model.EventCreate, events[0].Kind)
	require.Equal(t, uint64(999_999_999), events[0].EndLP)
}

func TestCreatePoolValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := CreateRequest{
		Owner: owner, Market: marketAddr, Curve: model.CurveXYK,
		BaseMint: baseMint, QuoteMint: quoteMint, InitialBase: seed, InitialQuote: seed,
	}

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
		want   error
	}{
		{"same mints", func(r *CreateRequest) { r.QuoteMint = r.BaseMint }, ErrInvalidPair},
		{"unknown market", func(r *CreateRequest) { r.Market = common.HexToAddress("0xdead") }, ErrWrongMarketAccount},
		{"base mismatch", func(r *CreateRequest) { r.Market = otherMkt }, ErrMarketBaseMintMismatch},
		{"quote mismatch", func(r *CreateRequest) { r.QuoteMint = common.HexToAddress("0xc2") }, ErrMarketQuoteMintMismatch},
		{"wrong open orders", func(r *CreateRequest) { r.OpenOrders = common.HexToAddress("0xee") }, ErrWrongOpenOrdersAccount},
		{"dust", func(r *CreateRequest) { r.InitialBase, r.InitialQuote = 10, 10 }, liquidity.ErrInsufficientLiquidity},
		{"underfunded", func(r *CreateRequest) { r.InitialBase = 11 * seed }, ErrInsufficientBalance},
		{"one-sided stable", func(r *CreateRequest) { r.Curve, r.InitialQuote = model.CurveStable, 0 }, stableswap.ErrInvariant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			_, err := f.svc.CreatePool(ctx, req)
			require.ErrorIs(t, err, tt.want)
		})
	}

	f.create(t, model.CurveXYK)
	_, err := f.svc.CreatePool(ctx, base)
	require.ErrorIs(t, err, ErrPoolExists)
}

func TestDepositMintsProportionalShare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.create(t, model.CurveXYK)

	res, err := f.svc.Deposit(ctx, DepositParams{
		Owner: owner, Pool: pool.Address,
		DepositRequest: liquidity.DepositRequest{DesiredBase: 100_000_000, DesiredQuote: 100_000_000},
	})
	require.NoError(t, err)
	require.False(t, res.Skipped)
	require.Equal(t, uint64(99_999_999), res.LP)
	require.Equal(t, uint64(1_100_000_000), res.Pool.BaseAmount)
	require.Equal(t, uint64(39), res.Pool.ClientOrderID)
	require.Len(t, f.book(t, res.Pool).Orders, 19, "previous ladder is replaced")
	f.requireCustodyMatches(t, res.Pool)

	w, err := f.svc.Withdraw(ctx, WithdrawParams{Owner: owner, Pool: pool.Address, LP: res.LP})
	require.NoError(t, err)
	require.InDelta(t, 100_000_000, w.Base, 1)
	require.InDelta(t, 100_000_000, w.Quote, 1)
	require.Equal(t, uint64(999_999_999), f.balance(t, owner, pool.LPMint))
	f.requireCustodyMatches(t, w.Pool)

	events, err := storage.ReadJournal(f.journal)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, model.EventWithdraw, events[2].Kind)
	require.Equal(t, events[1].EndLP, events[2].StartLP)

	n, err := testutil.GatherAndCount(f.reg, "openamm_pool_operations_total")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestDepositFailuresHaveNoEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.create(t, model.CurveXYK)
	before := f.book(t, pool)
	ownerBase := f.balance(t, owner, baseMint)

	tests := []struct {
		name string
		p    DepositParams
		want error
	}{
		{
			name: "base slippage",
			p: DepositParams{DepositRequest: liquidity.DepositRequest{
				DesiredBase: 100_000_000, DesiredQuote: 50_000_000, MinBase: 60_000_000,
			}},
			want: ErrSlippageBaseExceeded,
		},
		{
			name: "quote slippage",
			p: DepositParams{DepositRequest: liquidity.DepositRequest{
				DesiredBase: 50_000_000, DesiredQuote: 100_000_000, MinQuote: 60_000_000,
			}},
			want: ErrSlippageQuoteExceeded,
		},
		{
			name: "wrong market",
			p:    DepositParams{Accounts: model.MarketAccounts{Market: otherMkt}},
			want: ErrWrongMarketAccount,
		},
		{
			name: "wrong open orders",
			p:    DepositParams{Accounts: model.MarketAccounts{OpenOrders: owner}},
			want: ErrWrongOpenOrdersAccount,
		},
		{
			name: "insufficient balance",
			p: DepositParams{DepositRequest: liquidity.DepositRequest{
				DesiredBase: 20 * seed, DesiredQuote: 20 * seed,
			}},
			want: ErrInsufficientBalance,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.p.Owner, tt.p.Pool = owner, pool.Address
			_, err := f.svc.Deposit(ctx, tt.p)
			require.ErrorIs(t, err, tt.want)

			stored, err := f.store.Load(ctx, pool.Address)
			require.NoError(t, err)
			require.Equal(t, pool, stored)
			require.Equal(t, before.Orders, f.book(t, pool).Orders)
			require.Equal(t, ownerBase, f.balance(t, owner, baseMint))
		})
	}

	_, err := f.svc.Deposit(ctx, DepositParams{Owner: owner, Pool: common.HexToAddress("0x99")})
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func TestRefreshReconcilesFillsAndPaysRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.create(t, model.CurveXYK)

	took, err := f.paper.Take(ctx, marketAddr, taker, model.SideBid, 800)
	require.NoError(t, err)
	require.Equal(t, uint64(801_600), took.Quote)

	res, err := f.svc.RefreshOrders(ctx, pool.Address, keeper, model.MarketAccounts{})
	require.NoError(t, err)
	require.True(t, res.Reconcile.Filled())
	require.True(t, res.Pool.MMActive)
	require.Equal(t, uint64(seed-800_000), res.Pool.BaseAmount)
	require.Equal(t, uint64(seed+801_600-80), res.Pool.QuoteAmount)
	require.Equal(t, uint64(801_600), res.Pool.CumulativeQuoteVolume)
	require.Zero(t, res.Pool.RefundQuoteAmount)
	require.Equal(t, uint64(80), res.Quote)
	require.Equal(t, uint64(80), f.balance(t, keeper, quoteMint))
	require.Len(t, f.book(t, res.Pool).Orders, 19)
	f.requireCustodyMatches(t, res.Pool)

	events, err := storage.ReadJournal(f.journal)
	require.NoError(t, err)
	require.Equal(t, model.EventRefresh, events[len(events)-1].Kind)
}

func TestRefreshWithoutKeeperKeepsRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.create(t, model.CurveXYK)

	_, err := f.paper.Take(ctx, marketAddr, taker, model.SideAsk, 800)
	require.NoError(t, err)
	res, err := f.svc.RefreshOrders(ctx, pool.Address, common.Address{}, model.MarketAccounts{})
	require.NoError(t, err)
	require.Equal(t, uint64(80), res.Pool.RefundBaseAmount)
	f.requireCustodyMatches(t, res.Pool)
}

func TestEvictedOutermostOrderPausesPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.create(t, model.CurveXYK)

	require.NoError(t, f.paper.Evict(ctx, marketAddr, pool.OpenOrders, pool.PlacedAsks[model.MaxAsks-1].ClientOrderID))

	res, err := f.svc.RefreshOrders(ctx, pool.Address, keeper, model.MarketAccounts{})
	require.NoError(t, err)
	require.True(t, res.Skipped)
	require.True(t, res.Reconcile.Deactivated)
	require.False(t, res.Pool.MMActive)
	require.Empty(t, f.book(t, res.Pool).Orders)
	require.Zero(t, f.balance(t, keeper, quoteMint), "paused pools pay no refunds")

	_, err = f.svc.Deposit(ctx, DepositParams{
		Owner: owner, Pool: pool.Address,
		DepositRequest: liquidity.DepositRequest{DesiredBase: 1_000_000, DesiredQuote: 1_000_000},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(9*seed), f.balance(t, owner, baseMint), "skipped deposit moves nothing")

	restarted, err := f.svc.RestartMarketMaking(ctx, pool.Address, owner, model.MarketAccounts{})
	require.NoError(t, err)
	require.True(t, restarted.Pool.MMActive)
	require.Equal(t, uint64(seed), restarted.Pool.BaseAmount)
	require.Equal(t, seed-restarted.Pool.RefundQuoteAmount, restarted.Pool.QuoteAmount)
	require.NotEmpty(t, restarted.Orders)
	f.requireCustodyMatches(t, restarted.Pool)

	_, err = f.svc.RestartMarketMaking(ctx, pool.Address, owner, model.MarketAccounts{})
	require.ErrorIs(t, err, ErrMarketMakingAlreadyActive)
}

func TestRestartRequiresEmptyOpenOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.create(t, model.CurveXYK)

	pool.MMActive = false
	require.NoError(t, f.store.Save(ctx, pool))
	before := f.book(t, pool)

	_, err := f.svc.RestartMarketMaking(ctx, pool.Address, owner, model.MarketAccounts{})
	require.ErrorIs(t, err, ErrOpenOrdersTokensLocked)

	stored, err := f.store.Load(ctx, pool.Address)
	require.NoError(t, err)
	require.Equal(t, pool, stored)
	require.Equal(t, before.Orders, f.book(t, pool).Orders)
}

func TestRefreshAllCoversEveryPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	xyk := f.create(t, model.CurveXYK)
	stable := f.create(t, model.CurveStable)
	require.NotEqual(t, xyk.Address, stable.Address)

	out, err := f.svc.RefreshAll(ctx, keeper)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, o := range out {
		require.NoError(t, o.Err, o.Pool.Hex())
		require.True(t, o.Result.Pool.MMActive)
	}
}

func TestRefreshAllReportsFailingPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	healthy := f.create(t, model.CurveXYK)

	orphan := healthy
	orphan.Address = common.HexToAddress("0xe1")
	orphan.Market = common.HexToAddress("0xdead")
	require.NoError(t, f.store.Save(ctx, orphan))

	out, err := f.svc.RefreshAll(ctx, keeper)
	require.ErrorIs(t, err, venue.ErrUnknownMarket)
	require.Contains(t, err.Error(), orphan.Address.Hex())
	require.Len(t, out, 2)

	byPool := map[common.Address]RefreshOutcome{}
	for _, o := range out {
		byPool[o.Pool] = o
	}
	require.ErrorIs(t, byPool[orphan.Address].Err, venue.ErrUnknownMarket)
	require.NoError(t, byPool[healthy.Address].Err)
	require.True(t, byPool[healthy.Address].Result.Pool.MMActive)
	f.requireCustodyMatches(t, byPool[healthy.Address].Result.Pool)
}

func TestQuoteDoesNotCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.create(t, model.CurveXYK)

	pv, err := f.svc.Quote(ctx, pool.Address)
	require.NoError(t, err)
	require.Equal(t, uint64(999_999_999), pv.LPSupply)
	require.Len(t, pv.Ladder.Orders, 19)
	require.Equal(t, uint64(1_002), pv.Ladder.Orders[0].LimitPrice)

	stored, err := f.svc.Pool(ctx, pool.Address)
	require.NoError(t, err)
	require.Equal(t, pool, stored)
	require.Len(t, f.book(t, pool).Orders, 19)
}

func TestPoolAccountsAreDeterministic(t *testing.T) {
	a := PoolAccountsFor(marketAddr, model.CurveXYK, baseMint, quoteMint)
	b := PoolAccountsFor(marketAddr, model.CurveXYK, baseMint, quoteMint)
	require.Equal(t, a, b)
	require.NotEqual(t, a.Address, PoolAddress(marketAddr, model.CurveStable))
	require.NotEqual(t, a.BaseVault, a.QuoteVault)
}
