// Package reconcile folds venue fills of the previous ladder back into a
// pool's reserves.
package reconcile

import (
	"fmt"

	"openamm/internal/model"
	"openamm/internal/numeric"
)

// RefundDivisor sets the share of every fill skimmed into the refund
// accumulators: one part in 10,000.
const RefundDivisor = 10_000

// RecentWindow is how many client ids behind the pool counter a live order
// may be and still belong to the current ladder.
const RecentWindow = 2 * model.MaxAsks

// Fill is the accounting of one placed order.
type Fill struct {
	Side          model.Side
	ClientOrderID uint64
	// Missing is set when the order was no longer live on the venue.
	Missing bool
	// Base and Quote are the gross native amounts moved.
	Base   uint64
	Quote  uint64
	Refund uint64
}

// Result summarizes one reconciliation.
type Result struct {
	Fills       []Fill
	Cancels     []model.CancelRequest
	Deactivated bool
}

// Filled reports whether any order traded.
func (r Result) Filled() bool {
	for _, f := range r.Fills {
		if f.Base != 0 || f.Quote != 0 {
			return true
		}
	}
	return false
}

// Reconcile compares the pool's placed ladder with the live orders in book,
// credits fills to the reserves and volumes, skims refunds, and clears the
// ladder. Every live order in book is returned as a cancel request. When the
// outermost order of a side is gone the pool stops market making, since a
// fill that deep usually means the venue evicted the ladder.
//
// Overflow or underflow of reserves, volumes or refunds is returned as an
// error and the pool must be discarded.
func Reconcile(pool *model.Pool, book model.BookSnapshot) (Result, error) {
	if book.BaseLotSize == 0 {
		return Result{}, fmt.Errorf("reconcile: base lot size: %w", numeric.ErrDivideByZero)
	}

	var res Result
	last := lastNonEmpty(pool.PlacedAsks[:])
	for i, placed := range pool.PlacedAsks {
		if placed.Empty() {
			continue
		}
		fill, err := reconcileAsk(pool, placed, book)
		if err != nil {
			return Result{}, fmt.Errorf("reconcile ask %d: %w", placed.ClientOrderID, err)
		}
		if fill.Missing && i == last {
			res.Deactivated = true
		}
		res.Fills = append(res.Fills, fill)
	}

	last = lastNonEmpty(pool.PlacedBids[:])
	for i, placed := range pool.PlacedBids {
		if placed.Empty() {
			continue
		}
		fill, err := reconcileBid(pool, placed, book)
		if err != nil {
			return Result{}, fmt.Errorf("reconcile bid %d: %w", placed.ClientOrderID, err)
		}
		if fill.Missing && i == last {
			res.Deactivated = true
		}
		res.Fills = append(res.Fills, fill)
	}

	if res.Deactivated {
		pool.MMActive = false
	}
	pool.ResetPlacedOrders()

	for _, o := range book.Orders {
		res.Cancels = append(res.Cancels, model.CancelRequest{Side: o.Side, OrderID: o.OrderID})
	}
	return res, nil
}

// reconcileAsk sells base: base leaves the pool and quote arrives.
func reconcileAsk(pool *model.Pool, placed model.PlacedOrder, book model.BookSnapshot) (Fill, error) {
	fill := Fill{Side: model.SideAsk, ClientOrderID: placed.ClientOrderID}

	filledLots := placed.BaseQty
	if live, ok := book.Find(model.SideAsk, placed.ClientOrderID); ok {
		lots, err := numeric.Sub(placed.BaseQty, live.BaseQty)
		if err != nil {
			return fill, fmt.Errorf("live quantity above placement: %w", err)
		}
		filledLots = lots
	} else {
		fill.Missing = true
	}
	if filledLots == 0 {
		return fill, nil
	}

	lessBase, err := numeric.Mul(filledLots, book.BaseLotSize)
	if err != nil {
		return fill, err
	}
	moreQuote, err := numeric.Product([]uint64{lessBase, placed.LimitPrice, book.QuoteLotSize}, book.BaseLotSize)
	if err != nil {
		return fill, err
	}
	refund := moreQuote / RefundDivisor

	if pool.BaseAmount, err = numeric.Sub(pool.BaseAmount, lessBase); err != nil {
		return fill, fmt.Errorf("base reserve: %w", err)
	}
	if pool.QuoteAmount, err = numeric.Add(pool.QuoteAmount, moreQuote-refund); err != nil {
		return fill, fmt.Errorf("quote reserve: %w", err)
	}
	if pool.CumulativeQuoteVolume, err = numeric.Add(pool.CumulativeQuoteVolume, moreQuote); err != nil {
		return fill, fmt.Errorf("quote volume: %w", err)
	}
	if pool.RefundQuoteAmount, err = numeric.Add(pool.RefundQuoteAmount, refund); err != nil {
		return fill, fmt.Errorf("quote refund: %w", err)
	}

	fill.Base, fill.Quote, fill.Refund = lessBase, moreQuote, refund
	return fill, nil
}

// reconcileBid buys base: quote leaves the pool and base arrives. The placed
// quantity is capped by what the quote budget could buy at the limit price.
func reconcileBid(pool *model.Pool, placed model.PlacedOrder, book model.BookSnapshot) (Fill, error) {
	fill := Fill{Side: model.SideBid, ClientOrderID: placed.ClientOrderID}

	baseQty := placed.BaseQty
	if placed.LimitPrice != 0 {
		baseQty = numeric.Min(placed.MaxQuoteQtyInclFees/placed.LimitPrice, placed.BaseQty)
	}
	placedBase, err := numeric.Mul(baseQty, book.BaseLotSize)
	if err != nil {
		return fill, err
	}

	moreBase := placedBase
	if live, ok := book.Find(model.SideBid, placed.ClientOrderID); ok {
		liveBase, err := numeric.Mul(live.BaseQty, book.BaseLotSize)
		if err != nil {
			return fill, err
		}
		// a live remainder above the capped placement means nothing traded
		moreBase = 0
		if liveBase < placedBase {
			moreBase = placedBase - liveBase
		}
	} else {
		fill.Missing = true
	}
	if moreBase == 0 {
		return fill, nil
	}

	lessQuote, err := numeric.Product([]uint64{moreBase, placed.LimitPrice, book.QuoteLotSize}, book.BaseLotSize)
	if err != nil {
		return fill, err
	}
	refund := moreBase / RefundDivisor

	if pool.BaseAmount, err = numeric.Add(pool.BaseAmount, moreBase-refund); err != nil {
		return fill, fmt.Errorf("base reserve: %w", err)
	}
	if pool.QuoteAmount, err = numeric.Sub(pool.QuoteAmount, lessQuote); err != nil {
		return fill, fmt.Errorf("quote reserve: %w", err)
	}
	if pool.CumulativeBaseVolume, err = numeric.Add(pool.CumulativeBaseVolume, moreBase); err != nil {
		return fill, fmt.Errorf("base volume: %w", err)
	}
	if pool.RefundBaseAmount, err = numeric.Add(pool.RefundBaseAmount, refund); err != nil {
		return fill, fmt.Errorf("base refund: %w", err)
	}

	fill.Base, fill.Quote, fill.Refund = moreBase, lessQuote, refund
	return fill, nil
}

func lastNonEmpty(slots []model.PlacedOrder) int {
	last := -1
	for i, o := range slots {
		if !o.Empty() {
			last = i
		}
	}
	return last
}
