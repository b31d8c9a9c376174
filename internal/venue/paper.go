package venue

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"openamm/internal/ledger"
	"openamm/internal/model"
	"openamm/internal/numeric"
)

// DefaultSideCapacity bounds how many orders rest on one side of a paper
// market before the worst-priced one is evicted.
const DefaultSideCapacity = 64

type restingOrder struct {
	ID            string         `json:"id"`
	Owner         common.Address `json:"owner"`
	Side          model.Side     `json:"side"`
	Price         uint64         `json:"price"`
	Qty           uint64         `json:"qty"`
	ClientOrderID uint64         `json:"client_order_id"`
	Seq           uint64         `json:"seq"`
	QuoteLocked   uint64         `json:"quote_locked"`
}

type openOrders struct {
	Address     common.Address `json:"address"`
	Market      common.Address `json:"market"`
	Owner       common.Address `json:"owner"`
	BaseLocked  uint64         `json:"base_locked"`
	BaseFree    uint64         `json:"base_free"`
	QuoteLocked uint64         `json:"quote_locked"`
	QuoteFree   uint64         `json:"quote_free"`
}

type market struct {
	Info     model.MarketInfo `json:"info"`
	Capacity int              `json:"capacity"`
	Seq      uint64           `json:"seq"`
	Orders   []*restingOrder  `json:"orders"`
}

// Paper is an in-memory order book. Funds are held in custody by the market
// address on the ledger, so every fill and settlement is visible there.
type Paper struct {
	mu         sync.Mutex
	ledger     ledger.Ledger
	logger     *zap.Logger
	markets    map[common.Address]*market
	openOrders map[common.Address]*openOrders
}

func NewPaper(l ledger.Ledger, logger *zap.Logger) *Paper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paper{
		ledger:     l,
		logger:     logger,
		markets:    make(map[common.Address]*market),
		openOrders: make(map[common.Address]*openOrders),
	}
}

// AddMarket registers a market. A capacity of zero uses DefaultSideCapacity.
func (p *Paper) AddMarket(info model.MarketInfo, capacity int) error {
	if info.BaseLotSize == 0 || info.QuoteLotSize == 0 {
		return fmt.Errorf("%w: lot sizes must be positive", ErrInvalidOrder)
	}
	if capacity <= 0 {
		capacity = DefaultSideCapacity
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.markets[info.Address]; ok {
		return ErrMarketExists
	}
	p.markets[info.Address] = &market{Info: info, Capacity: capacity}
	return nil
}

func (p *Paper) Market(_ context.Context, addr common.Address) (model.MarketInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.markets[addr]
	if !ok {
		return model.MarketInfo{}, ErrUnknownMarket
	}
	return m.Info, nil
}

func (p *Paper) InitOpenOrders(_ context.Context, marketAddr, account, owner common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.markets[marketAddr]; !ok {
		return ErrUnknownMarket
	}
	if _, ok := p.openOrders[account]; ok {
		return ErrOpenOrdersExists
	}
	p.openOrders[account] = &openOrders{Address: account, Market: marketAddr, Owner: owner}
	return nil
}

func (p *Paper) Snapshot(_ context.Context, marketAddr, account common.Address) (model.BookSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, oo, err := p.lookup(marketAddr, account)
	if err != nil {
		return model.BookSnapshot{}, err
	}

	snap := model.BookSnapshot{
		BaseLotSize:  m.Info.BaseLotSize,
		QuoteLotSize: m.Info.QuoteLotSize,
	}
	for _, o := range m.Orders {
		if o.Owner == account {
			snap.Orders = append(snap.Orders, model.CurrentOrder{
				Side:          o.Side,
				OrderID:       o.ID,
				ClientOrderID: o.ClientOrderID,
				LimitPrice:    o.Price,
				BaseQty:       o.Qty,
			})
			continue
		}
		switch o.Side {
		case model.SideBid:
			if o.Price > snap.BestBid {
				snap.BestBid = o.Price
			}
		case model.SideAsk:
			if snap.BestAsk == 0 || o.Price < snap.BestAsk {
				snap.BestAsk = o.Price
			}
		}
	}
	snap.NativeBaseFree = oo.BaseFree
	snap.NativeQuoteFree = oo.QuoteFree
	snap.NativeBaseTotal = oo.BaseFree + oo.BaseLocked
	snap.NativeQuoteTotal = oo.QuoteFree + oo.QuoteLocked
	return snap, nil
}

// Submit locks the funds for every accepted order in one ledger batch and
// rests the orders. Post-only orders that would cross are dropped.
func (p *Paper) Submit(ctx context.Context, req SubmitRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, oo, err := p.authorize(req.Market, req.OpenOrders, req.Authority)
	if err != nil {
		return err
	}

	type pending struct {
		order *restingOrder
		base  uint64
	}
	var (
		accepted         []pending
		baseNeed, qtNeed uint64
	)
	for _, o := range req.Orders {
		if o.LimitPrice == 0 || o.MaxBaseQty == 0 {
			return fmt.Errorf("%w: client id %d", ErrInvalidOrder, o.ClientOrderID)
		}
		if o.OrderType == model.OrderTypePostOnly && p.crosses(m, o.Side, o.LimitPrice) {
			p.logger.Debug("post-only order dropped",
				zap.String("market", req.Market.Hex()),
				zap.Stringer("side", o.Side),
				zap.Uint64("limit_price", o.LimitPrice),
				zap.Uint64("client_order_id", o.ClientOrderID),
			)
			continue
		}
		ro := &restingOrder{Owner: req.OpenOrders, Side: o.Side, Price: o.LimitPrice, Qty: o.MaxBaseQty, ClientOrderID: o.ClientOrderID}
		var base uint64
		switch o.Side {
		case model.SideAsk:
			if base, err = numeric.Mul(o.MaxBaseQty, m.Info.BaseLotSize); err != nil {
				return err
			}
			if baseNeed, err = numeric.Add(baseNeed, base); err != nil {
				return err
			}
		case model.SideBid:
			quote, err := numeric.Product([]uint64{o.MaxBaseQty, o.LimitPrice, m.Info.QuoteLotSize})
			if err != nil {
				return err
			}
			if o.MaxQuoteQtyInclFees != 0 && quote > o.MaxQuoteQtyInclFees {
				return fmt.Errorf("%w: bid %d needs %d quote, budget %d", ErrInvalidOrder, o.ClientOrderID, quote, o.MaxQuoteQtyInclFees)
			}
			ro.QuoteLocked = quote
			if qtNeed, err = numeric.Add(qtNeed, quote); err != nil {
				return err
			}
		}
		accepted = append(accepted, pending{order: ro, base: base})
	}

	ops := ledger.Compact([]ledger.Op{
		ledger.Transfer(m.Info.BaseMint, req.BaseWallet, m.Info.Address, baseNeed),
		ledger.Transfer(m.Info.QuoteMint, req.QuoteWallet, m.Info.Address, qtNeed),
	})
	if len(ops) > 0 {
		if err := p.ledger.Apply(ctx, ops); err != nil {
			return fmt.Errorf("lock order funds: %w", err)
		}
	}

	for _, a := range accepted {
		m.Seq++
		a.order.Seq = m.Seq
		a.order.ID = fmt.Sprintf("%d", m.Seq)
		oo.BaseLocked += a.base
		oo.QuoteLocked += a.order.QuoteLocked
		m.Orders = append(m.Orders, a.order)
		p.enforceCapacity(m, a.order.Side)
	}
	return nil
}

func (p *Paper) Cancel(_ context.Context, req CancelRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, _, err := p.authorize(req.Market, req.OpenOrders, req.Authority)
	if err != nil {
		return err
	}
	for _, c := range req.Orders {
		idx := m.index(c.OrderID)
		if idx < 0 || m.Orders[idx].Owner != req.OpenOrders {
			continue
		}
		p.remove(m, idx)
	}
	return nil
}

func (p *Paper) Settle(ctx context.Context, req SettleRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, oo, err := p.authorize(req.Market, req.OpenOrders, req.Authority)
	if err != nil {
		return err
	}
	ops := ledger.Compact([]ledger.Op{
		ledger.Transfer(m.Info.BaseMint, m.Info.Address, req.BaseWallet, oo.BaseFree),
		ledger.Transfer(m.Info.QuoteMint, m.Info.Address, req.QuoteWallet, oo.QuoteFree),
	})
	if len(ops) == 0 {
		return nil
	}
	if err := p.ledger.Apply(ctx, ops); err != nil {
		return fmt.Errorf("settle funds: %w", err)
	}
	oo.BaseFree, oo.QuoteFree = 0, 0
	return nil
}

// TakeResult summarizes a taker sweep.
type TakeResult struct {
	BaseLots uint64
	Quote    uint64
}

// Take sweeps the book with a market order of up to lots base lots. A bid
// buys from resting asks, an ask sells into resting bids. The taker pays
// from and receives into its own ledger balances.
func (p *Paper) Take(ctx context.Context, marketAddr, taker common.Address, side model.Side, lots uint64) (TakeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.markets[marketAddr]
	if !ok {
		return TakeResult{}, ErrUnknownMarket
	}

	makers := m.sorted(oppositeSide(side))
	type match struct {
		order *restingOrder
		lots  uint64
		quote uint64
	}
	var (
		matches []match
		res     TakeResult
	)
	remaining := lots
	for _, o := range makers {
		if remaining == 0 {
			break
		}
		q := numeric.Min(remaining, o.Qty)
		quote, err := numeric.Product([]uint64{q, o.Price, m.Info.QuoteLotSize})
		if err != nil {
			return TakeResult{}, err
		}
		matches = append(matches, match{order: o, lots: q, quote: quote})
		remaining -= q
		res.BaseLots += q
		if res.Quote, err = numeric.Add(res.Quote, quote); err != nil {
			return TakeResult{}, err
		}
	}
	if res.BaseLots == 0 {
		return res, nil
	}
	base, err := numeric.Mul(res.BaseLots, m.Info.BaseLotSize)
	if err != nil {
		return TakeResult{}, err
	}

	var ops []ledger.Op
	if side == model.SideBid {
		ops = []ledger.Op{
			ledger.Transfer(m.Info.QuoteMint, taker, m.Info.Address, res.Quote),
			ledger.Transfer(m.Info.BaseMint, m.Info.Address, taker, base),
		}
	} else {
		ops = []ledger.Op{
			ledger.Transfer(m.Info.BaseMint, taker, m.Info.Address, base),
			ledger.Transfer(m.Info.QuoteMint, m.Info.Address, taker, res.Quote),
		}
	}
	if err := p.ledger.Apply(ctx, ops); err != nil {
		return TakeResult{}, fmt.Errorf("settle take: %w", err)
	}

	for _, mt := range matches {
		oo := p.openOrders[mt.order.Owner]
		matchedBase := mt.lots * m.Info.BaseLotSize
		if mt.order.Side == model.SideAsk {
			oo.BaseLocked -= matchedBase
			oo.QuoteFree += mt.quote
		} else {
			oo.QuoteLocked -= mt.quote
			mt.order.QuoteLocked -= mt.quote
			oo.BaseFree += matchedBase
		}
		mt.order.Qty -= mt.lots
		if mt.order.Qty == 0 {
			// any quote left on a fully filled bid goes back to free
			oo.QuoteLocked -= mt.order.QuoteLocked
			oo.QuoteFree += mt.order.QuoteLocked
			idx := m.index(mt.order.ID)
			m.Orders = append(m.Orders[:idx], m.Orders[idx+1:]...)
		}
	}
	return res, nil
}

// Evict removes a resting order the way a venue does when a book is full.
// Its funds are returned to the owner's free balance.
func (p *Paper) Evict(_ context.Context, marketAddr, account common.Address, clientOrderID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.markets[marketAddr]
	if !ok {
		return ErrUnknownMarket
	}
	for i, o := range m.Orders {
		if o.Owner == account && o.ClientOrderID == clientOrderID {
			p.remove(m, i)
			return nil
		}
	}
	return ErrUnknownOrder
}

func (p *Paper) lookup(marketAddr, account common.Address) (*market, *openOrders, error) {
	m, ok := p.markets[marketAddr]
	if !ok {
		return nil, nil, ErrUnknownMarket
	}
	oo, ok := p.openOrders[account]
	if !ok || oo.Market != marketAddr {
		return nil, nil, ErrUnknownOpenOrders
	}
	return m, oo, nil
}

func (p *Paper) authorize(marketAddr, account, authority common.Address) (*market, *openOrders, error) {
	m, oo, err := p.lookup(marketAddr, account)
	if err != nil {
		return nil, nil, err
	}
	if oo.Owner != authority {
		return nil, nil, ErrUnauthorized
	}
	return m, oo, nil
}

func (p *Paper) crosses(m *market, side model.Side, price uint64) bool {
	for _, o := range m.Orders {
		if side == model.SideAsk && o.Side == model.SideBid && o.Price >= price {
			return true
		}
		if side == model.SideBid && o.Side == model.SideAsk && o.Price <= price {
			return true
		}
	}
	return false
}

// enforceCapacity evicts the worst-priced orders of side beyond capacity.
func (p *Paper) enforceCapacity(m *market, side model.Side) {
	for {
		book := m.sorted(side)
		if len(book) <= m.Capacity {
			return
		}
		worst := book[len(book)-1]
		p.logger.Debug("order evicted",
			zap.String("market", m.Info.Address.Hex()),
			zap.String("order_id", worst.ID),
			zap.Uint64("client_order_id", worst.ClientOrderID),
		)
		p.remove(m, m.index(worst.ID))
	}
}

// remove drops the order at idx and unlocks its funds.
func (p *Paper) remove(m *market, idx int) {
	o := m.Orders[idx]
	if oo, ok := p.openOrders[o.Owner]; ok {
		if o.Side == model.SideAsk {
			base := o.Qty * m.Info.BaseLotSize
			oo.BaseLocked -= base
			oo.BaseFree += base
		} else {
			oo.QuoteLocked -= o.QuoteLocked
			oo.QuoteFree += o.QuoteLocked
		}
	}
	m.Orders = append(m.Orders[:idx], m.Orders[idx+1:]...)
}

func (m *market) index(id string) int {
	for i, o := range m.Orders {
		if o.ID == id {
			return i
		}
	}
	return -1
}

// sorted returns one side in matching priority: best price first, then time.
func (m *market) sorted(side model.Side) []*restingOrder {
	var out []*restingOrder
	for _, o := range m.Orders {
		if o.Side == side {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			if side == model.SideBid {
				return out[i].Price > out[j].Price
			}
			return out[i].Price < out[j].Price
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func oppositeSide(s model.Side) model.Side {
	if s == model.SideBid {
		return model.SideAsk
	}
	return model.SideBid
}

var _ Venue = (*Paper)(nil)
