// Package amm runs pool operations: it threads one pool record through fill
// reconciliation, liquidity accounting and ladder construction, then commits
// the result to the venue, the token ledger and the pool store.
package amm

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"openamm/internal/ladder"
	"openamm/internal/ledger"
	"openamm/internal/metrics"
	"openamm/internal/model"
	"openamm/internal/reconcile"
	"openamm/internal/storage"
	"openamm/internal/venue"
)

const defaultLockTTL = 30 * time.Second

// AssetResolver reports the decimals of a token mint.
type AssetResolver interface {
	Decimals(ctx context.Context, mint common.Address) (uint8, error)
}

// Deps are the collaborators of a Service. Journal, Locker, Metrics and
// Logger are optional.
type Deps struct {
	Store   storage.PoolStore
	Venue   venue.Venue
	Ledger  ledger.Ledger
	Assets  AssetResolver
	Journal storage.Journal
	Locker  storage.Locker
	Metrics *metrics.Metrics
	Logger  *zap.Logger

	LockTTL time.Duration
	// RefreshConcurrency bounds RefreshAll; zero means 4.
	RefreshConcurrency int
	Now                func() time.Time
}

// Service executes pool operations.
type Service struct {
	store       storage.PoolStore
	venue       venue.Venue
	ledger      ledger.Ledger
	assets      AssetResolver
	journal     storage.Journal
	locker      storage.Locker
	metrics     *metrics.Metrics
	logger      *zap.Logger
	lockTTL     time.Duration
	concurrency int
	now         func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		store:       d.Store,
		venue:       d.Venue,
		ledger:      d.Ledger,
		assets:      d.Assets,
		journal:     d.Journal,
		locker:      d.Locker,
		metrics:     d.Metrics,
		logger:      d.Logger,
		lockTTL:     d.LockTTL,
		concurrency: d.RefreshConcurrency,
		now:         d.Now,
	}
	if s.journal == nil {
		s.journal = storage.NopJournal{}
	}
	if s.locker == nil {
		s.locker = storage.NewLocalLocker()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	if s.concurrency <= 0 {
		s.concurrency = 4
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Result describes a committed operation.
type Result struct {
	Pool model.Pool
	// Skipped is set when the pool is paused and the operation only
	// reconciled.
	Skipped   bool
	Reconcile reconcile.Result
	Orders    []model.OrderRequest
	LP        uint64
	Base      uint64
	Quote     uint64
}

// session is one operation in flight on a locked pool.
type session struct {
	op         string
	stored     model.Pool
	reconciled model.Pool
	work       model.Pool
	book       model.BookSnapshot
	rec        reconcile.Result
	unlock     func()
	started    time.Time
}

// plan is what an operation wants committed after the pool work is done.
type plan struct {
	ops    []ledger.Op
	ladder *ladder.Result
	event  *model.LiquidityEvent
}

func (s *Service) lockKey(addr common.Address) string {
	return "pool:" + addr.Hex()
}

// begin locks the pool, loads it, checks the caller's market accounts, reads
// the venue and reconciles fills on a working copy.
func (s *Service) begin(ctx context.Context, op string, addr common.Address, accounts model.MarketAccounts, check func(model.Pool) error) (*session, error) {
	unlock, err := s.locker.Acquire(ctx, s.lockKey(addr), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock pool %s: %w", addr.Hex(), err)
	}
	sess := &session{op: op, unlock: unlock, started: s.now()}
	fail := func(err error) (*session, error) {
		unlock()
		return nil, err
	}

	pool, err := s.store.Load(ctx, addr)
	if err != nil {
		return fail(err)
	}
	if err := checkAccounts(pool, accounts); err != nil {
		return fail(err)
	}
	if check != nil {
		if err := check(pool); err != nil {
			return fail(err)
		}
	}

	book, err := s.venue.Snapshot(ctx, pool.Market, pool.OpenOrders)
	if err != nil {
		return fail(fmt.Errorf("venue snapshot: %w", err))
	}
	book = book.RecentOrders(pool.ClientOrderID, reconcile.RecentWindow)

	work := pool
	rec, err := reconcile.Reconcile(&work, book)
	if err != nil {
		return fail(err)
	}

	sess.stored, sess.reconciled, sess.work = pool, work, work
	sess.book, sess.rec = book, rec
	s.observeReconcile(sess)
	return sess, nil
}

func checkAccounts(pool model.Pool, accounts model.MarketAccounts) error {
	if accounts.Market != (common.Address{}) && accounts.Market != pool.Market {
		return ErrWrongMarketAccount
	}
	if accounts.OpenOrders != (common.Address{}) && accounts.OpenOrders != pool.OpenOrders {
		return ErrWrongOpenOrdersAccount
	}
	return nil
}

func (s *Service) observeReconcile(sess *session) {
	pool := sess.work.Address.Hex()
	var base, quote uint64
	for _, f := range sess.rec.Fills {
		base += f.Base
		quote += f.Quote
	}
	if base != 0 || quote != 0 {
		s.metrics.Filled(pool, base, quote)
		s.logger.Info("fills reconciled",
			zap.String("pool", pool),
			zap.Int("orders", len(sess.rec.Fills)),
			zap.Uint64("base_moved", base),
			zap.Uint64("quote_moved", quote),
		)
	}
	if sess.rec.Deactivated {
		s.metrics.Deactivated(pool)
		s.logger.Warn("market making paused: outermost order missing",
			zap.String("pool", pool),
			zap.Uint64("client_order_id", sess.stored.ClientOrderID),
		)
	}
}

// end releases the pool lock and records the outcome.
func (s *Service) end(sess *session, err error) {
	sess.unlock()
	s.metrics.ObserveOperation(sess.op, err, s.now().Sub(sess.started))
}

// commit applies the session in a fixed order: cancel the previous ladder,
// checkpoint the reconciled pool, settle, move tokens, submit the new ladder
// and save the final pool. The venue cannot undo a cancel, so once it has
// run the reconciled pool is persisted and any later failure reverts the
// ledger batch and pulls whatever was submitted.
func (s *Service) commit(ctx context.Context, sess *session, p plan) error {
	pool := &sess.work
	log := s.logger.With(zap.String("pool", pool.Address.Hex()), zap.String("op", sess.op))

	if len(sess.rec.Cancels) > 0 {
		err := s.venue.Cancel(ctx, venue.CancelRequest{
			Market:     pool.Market,
			OpenOrders: pool.OpenOrders,
			Authority:  pool.Address,
			Orders:     sess.rec.Cancels,
		})
		if err != nil {
			log.Warn("cancel failed", zap.Int("orders", len(sess.rec.Cancels)), zap.Error(err))
		}
	}
	if len(sess.rec.Cancels) > 0 || sess.reconciled != sess.stored {
		if err := s.store.Save(ctx, sess.reconciled); err != nil {
			return fmt.Errorf("checkpoint pool: %w", err)
		}
	}
	if err := s.settle(ctx, pool); err != nil {
		return err
	}

	ops := ledger.Compact(p.ops)
	if len(ops) > 0 {
		if err := s.ledger.Apply(ctx, ops); err != nil {
			return fmt.Errorf("apply ledger batch: %w", err)
		}
	}

	var orders []model.OrderRequest
	if p.ladder != nil {
		orders = p.ladder.Orders
	}
	if len(orders) > 0 {
		err := s.venue.Submit(ctx, venue.SubmitRequest{
			Market:      pool.Market,
			OpenOrders:  pool.OpenOrders,
			Authority:   pool.Address,
			BaseWallet:  pool.BaseVault,
			QuoteWallet: pool.QuoteVault,
			Orders:      orders,
		})
		if err != nil {
			s.revertLedger(ctx, log, ops)
			return fmt.Errorf("submit ladder: %w", err)
		}
	}

	if err := s.store.Save(ctx, *pool); err != nil {
		if len(orders) > 0 {
			s.pullLadder(ctx, log, pool)
		}
		s.revertLedger(ctx, log, ops)
		return fmt.Errorf("save pool: %w", err)
	}

	if p.event != nil {
		if err := s.journal.Append(ctx, *p.event); err != nil {
			log.Warn("journal append failed", zap.String("event", p.event.ID), zap.Error(err))
		}
	}
	s.observeLadder(pool, p.ladder)
	s.metrics.SetReserves(pool.Address.Hex(), pool.BaseAmount, pool.QuoteAmount)
	log.Info("pool committed",
		zap.String("curve", pool.CurveType.String()),
		zap.Uint64("base_amount", pool.BaseAmount),
		zap.Uint64("quote_amount", pool.QuoteAmount),
		zap.Uint64("client_order_id", pool.ClientOrderID),
		zap.Int("orders", len(orders)),
		zap.Int("ledger_ops", len(ops)),
		zap.Bool("mm_active", pool.MMActive),
	)
	return nil
}

func (s *Service) settle(ctx context.Context, pool *model.Pool) error {
	err := s.venue.Settle(ctx, venue.SettleRequest{
		Market:      pool.Market,
		OpenOrders:  pool.OpenOrders,
		Authority:   pool.Address,
		BaseWallet:  pool.BaseVault,
		QuoteWallet: pool.QuoteVault,
	})
	if err != nil {
		return fmt.Errorf("settle: %w", err)
	}
	return nil
}

// pullLadder cancels every live order of the pool and settles, undoing a
// submission whose pool record could not be saved.
func (s *Service) pullLadder(ctx context.Context, log *zap.Logger, pool *model.Pool) {
	book, err := s.venue.Snapshot(ctx, pool.Market, pool.OpenOrders)
	if err != nil {
		log.Error("compensation snapshot failed", zap.Error(err))
		return
	}
	cancels := make([]model.CancelRequest, 0, len(book.Orders))
	for _, o := range book.Orders {
		cancels = append(cancels, model.CancelRequest{Side: o.Side, OrderID: o.OrderID})
	}
	if err := s.venue.Cancel(ctx, venue.CancelRequest{
		Market: pool.Market, OpenOrders: pool.OpenOrders, Authority: pool.Address, Orders: cancels,
	}); err != nil {
		log.Error("compensation cancel failed", zap.Error(err))
		return
	}
	if err := s.settle(ctx, pool); err != nil {
		log.Error("compensation settle failed", zap.Error(err))
	}
}

func (s *Service) revertLedger(ctx context.Context, log *zap.Logger, ops []ledger.Op) {
	if len(ops) == 0 {
		return
	}
	if err := s.ledger.Apply(ctx, ledger.Invert(ops)); err != nil {
		log.Error("ledger revert failed", zap.Int("ops", len(ops)), zap.Error(err))
	}
}

func (s *Service) observeLadder(pool *model.Pool, res *ladder.Result) {
	if res == nil {
		return
	}
	curve := pool.CurveType.String()
	for _, o := range res.Orders {
		s.metrics.OrderPlaced(curve, o.Side.String())
	}
	for _, sk := range res.Skips {
		s.metrics.LevelSkipped(curve, string(sk.Reason))
	}
	if len(res.Skips) > 0 {
		s.logger.Debug("ladder levels skipped",
			zap.String("pool", pool.Address.Hex()),
			zap.Int("skipped", len(res.Skips)),
		)
	}
}

// buildLadder prices a new ladder into the session's working pool.
func (s *Service) buildLadder(sess *session) (*ladder.Result, error) {
	res, err := ladder.Build(&sess.work, sess.book)
	if err != nil {
		return nil, fmt.Errorf("build ladder: %w", err)
	}
	for _, sk := range res.Skips {
		if sk.Reason == ladder.SkipNoCurve {
			s.logger.Warn("stable invariant unavailable, no ladder placed",
				zap.String("pool", sess.work.Address.Hex()),
				zap.Uint64("base_amount", sess.work.BaseAmount),
				zap.Uint64("quote_amount", sess.work.QuoteAmount),
			)
		}
	}
	return &res, nil
}

func (s *Service) newEvent(kind model.EventKind, pool model.Pool, owner common.Address) *model.LiquidityEvent {
	return &model.LiquidityEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Pool:      pool.Address,
		Owner:     owner,
		CurveType: pool.CurveType,
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
	}
}

// requireBalance fails before any side effect when holder cannot cover amount.
func (s *Service) requireBalance(ctx context.Context, holder, mint common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	bal, err := s.ledger.Balance(ctx, holder, mint)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	if bal < amount {
		return fmt.Errorf("%w: %s holds %d of %s, needs %d", ErrInsufficientBalance, holder.Hex(), bal, mint.Hex(), amount)
	}
	return nil
}
