package amm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"openamm/internal/ladder"
	"openamm/internal/ledger"
	"openamm/internal/liquidity"
	"openamm/internal/model"
	"openamm/internal/numeric"
	"openamm/internal/reconcile"
	"openamm/internal/storage"
	"openamm/internal/venue"
)

// CreateRequest opens a pool on a venue market with its first liquidity.
type CreateRequest struct {
	Owner        common.Address
	Market       common.Address
	Curve        model.CurveType
	BaseMint     common.Address
	QuoteMint    common.Address
	InitialBase  uint64
	InitialQuote uint64
	// OpenOrders, when set, must match the derived open-orders account.
	OpenOrders common.Address
}

// CreatePool validates the market, derives the pool accounts, opens the
// pool's open-orders account, takes the initial deposit, mints LP to the
// owner and places the first ladder.
func (s *Service) CreatePool(ctx context.Context, req CreateRequest) (Result, error) {
	if req.BaseMint == req.QuoteMint {
		return Result{}, ErrInvalidPair
	}
	info, err := s.venue.Market(ctx, req.Market)
	if err != nil {
		if errors.Is(err, venue.ErrUnknownMarket) {
			return Result{}, fmt.Errorf("%w: %s", ErrWrongMarketAccount, req.Market.Hex())
		}
		return Result{}, fmt.Errorf("load market: %w", err)
	}
	if info.BaseMint != req.BaseMint {
		return Result{}, ErrMarketBaseMintMismatch
	}
	if info.QuoteMint != req.QuoteMint {
		return Result{}, ErrMarketQuoteMintMismatch
	}

	accounts := PoolAccountsFor(req.Market, req.Curve, req.BaseMint, req.QuoteMint)
	unlock, err := s.locker.Acquire(ctx, s.lockKey(accounts.Address), s.lockTTL)
	if err != nil {
		return Result{}, fmt.Errorf("lock pool %s: %w", accounts.Address.Hex(), err)
	}
	sess := &session{op: "create", unlock: unlock, started: s.now()}
	res, err := s.create(ctx, sess, req, accounts)
	s.end(sess, err)
	return res, err
}

func (s *Service) create(ctx context.Context, sess *session, req CreateRequest, accounts model.PoolAccounts) (Result, error) {
	if _, err := s.store.Load(ctx, accounts.Address); err == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrPoolExists, accounts.Address.Hex())
	} else if !errors.Is(err, storage.ErrPoolNotFound) {
		return Result{}, err
	}
	if req.OpenOrders != (common.Address{}) && req.OpenOrders != accounts.OpenOrders {
		return Result{}, ErrWrongOpenOrdersAccount
	}

	baseDecimals, err := s.assets.Decimals(ctx, req.BaseMint)
	if err != nil {
		return Result{}, fmt.Errorf("base decimals: %w", err)
	}
	quoteDecimals, err := s.assets.Decimals(ctx, req.QuoteMint)
	if err != nil {
		return Result{}, fmt.Errorf("quote decimals: %w", err)
	}
	pool := model.NewPool(accounts, req.Curve, baseDecimals, quoteDecimals)

	lp, err := liquidity.MintAmount(pool, 0, req.InitialBase, req.InitialQuote)
	if err != nil {
		return Result{}, err
	}
	if err := s.requireBalance(ctx, req.Owner, pool.BaseMint, req.InitialBase); err != nil {
		return Result{}, err
	}
	if err := s.requireBalance(ctx, req.Owner, pool.QuoteMint, req.InitialQuote); err != nil {
		return Result{}, err
	}

	err = s.venue.InitOpenOrders(ctx, pool.Market, pool.OpenOrders, pool.Address)
	if err != nil && !errors.Is(err, venue.ErrOpenOrdersExists) {
		return Result{}, fmt.Errorf("init open orders: %w", err)
	}
	book, err := s.venue.Snapshot(ctx, pool.Market, pool.OpenOrders)
	if err != nil {
		return Result{}, fmt.Errorf("venue snapshot: %w", err)
	}

	sess.stored, sess.reconciled, sess.work = pool, pool, pool
	sess.book = book.RecentOrders(pool.ClientOrderID, reconcile.RecentWindow)

	q := liquidity.DepositQuote{Base: req.InitialBase, Quote: req.InitialQuote, LP: lp}
	if err := liquidity.ApplyDeposit(&sess.work, q); err != nil {
		return Result{}, err
	}
	lad, err := s.buildLadder(sess)
	if err != nil {
		return Result{}, err
	}

	ev := s.newEvent(model.EventCreate, sess.work, req.Owner)
	ev.EndBase, ev.EndQuote, ev.EndLP = sess.work.BaseAmount, sess.work.QuoteAmount, lp

	err = s.commit(ctx, sess, plan{
		ops: []ledger.Op{
			ledger.Transfer(pool.BaseMint, req.Owner, pool.BaseVault, q.Base),
			ledger.Transfer(pool.QuoteMint, req.Owner, pool.QuoteVault, q.Quote),
			ledger.MintTo(pool.LPMint, req.Owner, lp),
		},
		ladder: lad,
		event:  ev,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Pool: sess.work, Orders: lad.Orders, LP: lp, Base: q.Base, Quote: q.Quote}, nil
}

// DepositParams adds liquidity to an existing pool.
type DepositParams struct {
	Owner    common.Address
	Pool     common.Address
	Accounts model.MarketAccounts
	liquidity.DepositRequest
}

// Deposit reconciles fills, sizes the deposit to the pool ratio, moves the
// owner's tokens into the vaults, mints LP and places a fresh ladder. A
// paused pool only reconciles and reports Skipped.
func (s *Service) Deposit(ctx context.Context, p DepositParams) (res Result, err error) {
	sess, err := s.begin(ctx, "deposit", p.Pool, p.Accounts, nil)
	if err != nil {
		return Result{}, err
	}
	defer func() { s.end(sess, err) }()

	if !sess.work.MMActive {
		return s.skip(ctx, sess)
	}
	pool := &sess.work
	supply, err := s.ledger.Supply(ctx, pool.LPMint)
	if err != nil {
		return Result{}, fmt.Errorf("lp supply: %w", err)
	}
	q, err := liquidity.QuoteDeposit(*pool, supply, p.DepositRequest)
	if err != nil {
		return Result{}, err
	}
	if err := s.requireBalance(ctx, p.Owner, pool.BaseMint, q.Base); err != nil {
		return Result{}, err
	}
	if err := s.requireBalance(ctx, p.Owner, pool.QuoteMint, q.Quote); err != nil {
		return Result{}, err
	}

	ev := s.newEvent(model.EventDeposit, *pool, p.Owner)
	ev.StartBase, ev.StartQuote, ev.StartLP = pool.BaseAmount, pool.QuoteAmount, supply
	if err := liquidity.ApplyDeposit(pool, q); err != nil {
		return Result{}, err
	}
	endLP, err := numeric.Add(supply, q.LP)
	if err != nil {
		return Result{}, fmt.Errorf("lp supply: %w", err)
	}
	ev.EndBase, ev.EndQuote, ev.EndLP = pool.BaseAmount, pool.QuoteAmount, endLP

	lad, err := s.buildLadder(sess)
	if err != nil {
		return Result{}, err
	}
	err = s.commit(ctx, sess, plan{
		ops: []ledger.Op{
			ledger.Transfer(pool.BaseMint, p.Owner, pool.BaseVault, q.Base),
			ledger.Transfer(pool.QuoteMint, p.Owner, pool.QuoteVault, q.Quote),
			ledger.MintTo(pool.LPMint, p.Owner, q.LP),
		},
		ladder: lad,
		event:  ev,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Pool: *pool, Reconcile: sess.rec, Orders: lad.Orders, LP: q.LP, Base: q.Base, Quote: q.Quote}, nil
}

// WithdrawParams burns LP for a pro-rata share of the reserves.
type WithdrawParams struct {
	Owner    common.Address
	Pool     common.Address
	Accounts model.MarketAccounts
	LP       uint64
}

// Withdraw reconciles fills, burns the owner's LP, pays out the pro-rata
// reserves and places a fresh ladder. A paused pool only reconciles.
func (s *Service) Withdraw(ctx context.Context, p WithdrawParams) (res Result, err error) {
	sess, err := s.begin(ctx, "withdraw", p.Pool, p.Accounts, nil)
	if err != nil {
		return Result{}, err
	}
	defer func() { s.end(sess, err) }()

	if !sess.work.MMActive {
		return s.skip(ctx, sess)
	}
	pool := &sess.work
	supply, err := s.ledger.Supply(ctx, pool.LPMint)
	if err != nil {
		return Result{}, fmt.Errorf("lp supply: %w", err)
	}
	q, err := liquidity.QuoteWithdraw(*pool, supply, p.LP)
	if err != nil {
		return Result{}, err
	}
	if err := s.requireBalance(ctx, p.Owner, pool.LPMint, p.LP); err != nil {
		return Result{}, err
	}

	ev := s.newEvent(model.EventWithdraw, *pool, p.Owner)
	ev.StartBase, ev.StartQuote, ev.StartLP = pool.BaseAmount, pool.QuoteAmount, supply
	if err := liquidity.ApplyWithdraw(pool, q); err != nil {
		return Result{}, err
	}
	ev.EndBase, ev.EndQuote, ev.EndLP = pool.BaseAmount, pool.QuoteAmount, supply-p.LP

	lad, err := s.buildLadder(sess)
	if err != nil {
		return Result{}, err
	}
	err = s.commit(ctx, sess, plan{
		ops: []ledger.Op{
			ledger.Burn(pool.LPMint, p.Owner, p.LP),
			ledger.Transfer(pool.BaseMint, pool.BaseVault, p.Owner, q.Base),
			ledger.Transfer(pool.QuoteMint, pool.QuoteVault, p.Owner, q.Quote),
		},
		ladder: lad,
		event:  ev,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Pool: *pool, Reconcile: sess.rec, Orders: lad.Orders, LP: p.LP, Base: q.Base, Quote: q.Quote}, nil
}

// RefreshOrders reconciles fills, pays the refund accumulators to keeper and
// replaces the ladder. A paused pool only reconciles. With a zero keeper
// address the refunds keep accruing.
func (s *Service) RefreshOrders(ctx context.Context, addr, keeper common.Address, accounts model.MarketAccounts) (res Result, err error) {
	sess, err := s.begin(ctx, "refresh", addr, accounts, nil)
	if err != nil {
		return Result{}, err
	}
	defer func() { s.end(sess, err) }()

	if !sess.work.MMActive {
		return s.skip(ctx, sess)
	}
	pool := &sess.work
	var ops []ledger.Op
	var paidBase, paidQuote uint64
	if keeper != (common.Address{}) {
		paidBase, paidQuote = pool.RefundBaseAmount, pool.RefundQuoteAmount
		ops = append(ops,
			ledger.Transfer(pool.BaseMint, pool.BaseVault, keeper, paidBase),
			ledger.Transfer(pool.QuoteMint, pool.QuoteVault, keeper, paidQuote),
		)
		pool.RefundBaseAmount, pool.RefundQuoteAmount = 0, 0
	}

	lad, err := s.buildLadder(sess)
	if err != nil {
		return Result{}, err
	}
	var ev *model.LiquidityEvent
	if sess.rec.Filled() {
		ev = s.newEvent(model.EventRefresh, *pool, keeper)
		ev.StartBase, ev.StartQuote = sess.stored.BaseAmount, sess.stored.QuoteAmount
		ev.EndBase, ev.EndQuote = pool.BaseAmount, pool.QuoteAmount
	}
	if err := s.commit(ctx, sess, plan{ops: ops, ladder: lad, event: ev}); err != nil {
		return Result{}, err
	}
	return Result{Pool: *pool, Reconcile: sess.rec, Orders: lad.Orders, Base: paidBase, Quote: paidQuote}, nil
}

// RestartMarketMaking reactivates a paused pool once the venue holds none of
// its tokens. Reserves are resynchronised to the vault balances net of the
// outstanding refunds before a new ladder is placed.
func (s *Service) RestartMarketMaking(ctx context.Context, addr, owner common.Address, accounts model.MarketAccounts) (res Result, err error) {
	sess, err := s.begin(ctx, "restart", addr, accounts, func(p model.Pool) error {
		if p.MMActive {
			return ErrMarketMakingAlreadyActive
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	defer func() { s.end(sess, err) }()

	if sess.book.NativeBaseTotal != 0 || sess.book.NativeQuoteTotal != 0 {
		return Result{}, fmt.Errorf("%w: base %d quote %d", ErrOpenOrdersTokensLocked,
			sess.book.NativeBaseTotal, sess.book.NativeQuoteTotal)
	}

	pool := &sess.work
	baseBal, err := s.ledger.Balance(ctx, pool.BaseVault, pool.BaseMint)
	if err != nil {
		return Result{}, fmt.Errorf("base vault balance: %w", err)
	}
	quoteBal, err := s.ledger.Balance(ctx, pool.QuoteVault, pool.QuoteMint)
	if err != nil {
		return Result{}, fmt.Errorf("quote vault balance: %w", err)
	}
	base, err := numeric.Sub(baseBal, pool.RefundBaseAmount)
	if err != nil {
		return Result{}, fmt.Errorf("base reserve: %w", err)
	}
	quote, err := numeric.Sub(quoteBal, pool.RefundQuoteAmount)
	if err != nil {
		return Result{}, fmt.Errorf("quote reserve: %w", err)
	}

	ev := s.newEvent(model.EventRestart, *pool, owner)
	ev.StartBase, ev.StartQuote = pool.BaseAmount, pool.QuoteAmount
	pool.BaseAmount, pool.QuoteAmount = base, quote
	pool.MMActive = true
	ev.EndBase, ev.EndQuote = base, quote

	lad, err := s.buildLadder(sess)
	if err != nil {
		return Result{}, err
	}
	if err := s.commit(ctx, sess, plan{ladder: lad, event: ev}); err != nil {
		return Result{}, err
	}
	s.logger.Info("market making restarted",
		zap.String("pool", pool.Address.Hex()),
		zap.Uint64("base_amount", base),
		zap.Uint64("quote_amount", quote),
	)
	return Result{Pool: *pool, Reconcile: sess.rec, Orders: lad.Orders}, nil
}

// skip commits the reconciliation of a paused pool and nothing else.
func (s *Service) skip(ctx context.Context, sess *session) (Result, error) {
	if err := s.commit(ctx, sess, plan{}); err != nil {
		return Result{}, err
	}
	s.logger.Info("pool paused, operation skipped",
		zap.String("pool", sess.work.Address.Hex()),
		zap.String("op", sess.op),
	)
	return Result{Pool: sess.work, Reconcile: sess.rec, Skipped: true}, nil
}

// RefreshOutcome is the result of refreshing one pool in RefreshAll.
type RefreshOutcome struct {
	Pool   common.Address
	Result Result
	Err    error
}

// RefreshAll refreshes every stored pool with bounded concurrency. A failing
// pool does not stop the others; its error is reported in its outcome and the
// first failure is returned alongside the full set of outcomes.
func (s *Service) RefreshAll(ctx context.Context, keeper common.Address) ([]RefreshOutcome, error) {
	addrs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	out := make([]RefreshOutcome, len(addrs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			res, err := s.RefreshOrders(ctx, addr, keeper, model.MarketAccounts{})
			out[i] = RefreshOutcome{Pool: addr, Result: res, Err: err}
			if err != nil {
				s.logger.Error("refresh failed", zap.String("pool", addr.Hex()), zap.Error(err))
				return fmt.Errorf("refresh pool %s: %w", addr.Hex(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}

// Preview is a read-only view of a pool after reconciling the current venue
// state, with the ladder a refresh would place.
type Preview struct {
	Pool      model.Pool
	Reconcile reconcile.Result
	Ladder    ladder.Result
	LPSupply  uint64
}

// Quote computes a Preview without locking or committing anything.
func (s *Service) Quote(ctx context.Context, addr common.Address) (Preview, error) {
	pool, err := s.store.Load(ctx, addr)
	if err != nil {
		return Preview{}, err
	}
	book, err := s.venue.Snapshot(ctx, pool.Market, pool.OpenOrders)
	if err != nil {
		return Preview{}, fmt.Errorf("venue snapshot: %w", err)
	}
	book = book.RecentOrders(pool.ClientOrderID, reconcile.RecentWindow)
	rec, err := reconcile.Reconcile(&pool, book)
	if err != nil {
		return Preview{}, err
	}
	supply, err := s.ledger.Supply(ctx, pool.LPMint)
	if err != nil {
		return Preview{}, fmt.Errorf("lp supply: %w", err)
	}
	pv := Preview{Pool: pool, Reconcile: rec, LPSupply: supply}
	if pool.MMActive {
		lad, err := ladder.Preview(pool, book)
		if err != nil {
			return Preview{}, err
		}
		pv.Ladder = lad
	}
	return pv, nil
}

// Pool returns the stored pool record.
func (s *Service) Pool(ctx context.Context, addr common.Address) (model.Pool, error) {
	return s.store.Load(ctx, addr)
}
