// Package ladder projects a pool's invariant onto a ladder of post-only limit
// orders. Each side walks the curve level by level: the size of a level is a
// fixed share of the reserves at the start of the refresh, and the price is
// the marginal quote for that size at the reserves left by the previous
// level, widened by the curve fee.
package ladder

import (
	"errors"
	"fmt"

	"openamm/internal/model"
	"openamm/internal/numeric"
)

// Proportions are the level sizes in parts per 10,000 of the reserves.
// Asks use all ten entries, bids the first nine.
var Proportions = [model.MaxAsks]uint64{8, 15, 30, 50, 125, 300, 500, 750, 1000, 1250}

const bpsDenominator = 10_000

// ErrInvalidLotSize is returned when the venue reports a zero lot size.
var ErrInvalidLotSize = errors.New("ladder: lot size must be positive")

// SkipReason explains why a level produced no order.
type SkipReason string

const (
	SkipExhausted  SkipReason = "reserve_exhausted"
	SkipUnsized    SkipReason = "solver_unsized"
	SkipZeroPrice  SkipReason = "zero_price"
	SkipZeroLots   SkipReason = "zero_lots"
	SkipZeroQuote  SkipReason = "zero_quote"
	SkipZeroAmount SkipReason = "zero_amount"
	SkipNoCurve    SkipReason = "invariant_unavailable"
)

// Skip records one level that was not placed.
type Skip struct {
	Side   model.Side
	Level  int
	Reason SkipReason
}

// Result is the outgoing batch of one ladder build.
type Result struct {
	Orders []model.OrderRequest
	Skips  []Skip
}

// level is one priced step of the walk before quantization checks.
type level struct {
	price     uint64
	lots      uint64
	quoteSize uint64
}

// Build prices a fresh ladder for pool and records every accepted level into
// the pool's placed slots, stamping client order ids from the pool counter.
// Reserves are not modified. The book supplies lot sizes and the best
// opposing prices used to keep post-only orders from crossing.
func Build(pool *model.Pool, book model.BookSnapshot) (Result, error) {
	if book.BaseLotSize == 0 || book.QuoteLotSize == 0 {
		return Result{}, ErrInvalidLotSize
	}
	pool.ResetPlacedOrders()

	var (
		asks, bids []stepResult
		err        error
	)
	switch pool.CurveType {
	case model.CurveXYK:
		asks, bids, err = walkXYK(pool, book)
	case model.CurveStable:
		asks, bids, err = walkStable(pool, book)
	default:
		return Result{}, fmt.Errorf("ladder: unknown curve %s", pool.CurveType)
	}
	if err != nil {
		return Result{}, err
	}

	var res Result
	for i, step := range asks {
		if step.skip != "" {
			res.Skips = append(res.Skips, Skip{Side: model.SideAsk, Level: i, Reason: step.skip})
			continue
		}
		lv := step.level
		if book.BestBid != 0 && lv.price <= book.BestBid {
			lv.price = book.BestBid + 1
		}
		if reason := reject(lv); reason != "" {
			res.Skips = append(res.Skips, Skip{Side: model.SideAsk, Level: i, Reason: reason})
			continue
		}
		order, err := stamp(pool, model.SideAsk, lv)
		if err != nil {
			return Result{}, err
		}
		pool.PlacedAsks[i] = placed(order)
		res.Orders = append(res.Orders, order)
	}
	for i, step := range bids {
		if step.skip != "" {
			res.Skips = append(res.Skips, Skip{Side: model.SideBid, Level: i, Reason: step.skip})
			continue
		}
		lv := step.level
		// a best ask of 1 clamps to 0 and the level is rejected below
		if book.BestAsk != 0 && lv.price >= book.BestAsk {
			lv.price = book.BestAsk - 1
		}
		if reason := reject(lv); reason != "" {
			res.Skips = append(res.Skips, Skip{Side: model.SideBid, Level: i, Reason: reason})
			continue
		}
		order, err := stamp(pool, model.SideBid, lv)
		if err != nil {
			return Result{}, err
		}
		pool.PlacedBids[i] = placed(order)
		res.Orders = append(res.Orders, order)
	}
	return res, nil
}

// Preview prices the ladder for a copy of pool without touching it.
func Preview(pool model.Pool, book model.BookSnapshot) (Result, error) {
	return Build(&pool, book)
}

type stepResult struct {
	level level
	skip  SkipReason
}

func reject(lv level) SkipReason {
	switch {
	case lv.price == 0:
		return SkipZeroPrice
	case lv.lots == 0:
		return SkipZeroLots
	case lv.quoteSize == 0:
		return SkipZeroQuote
	}
	return ""
}

func stamp(pool *model.Pool, side model.Side, lv level) (model.OrderRequest, error) {
	id := pool.ClientOrderID
	next, err := numeric.Add(id, 1)
	if err != nil {
		return model.OrderRequest{}, fmt.Errorf("client order id: %w", err)
	}
	pool.ClientOrderID = next
	return model.OrderRequest{
		Side:                side,
		LimitPrice:          lv.price,
		MaxBaseQty:          lv.lots,
		MaxQuoteQtyInclFees: lv.quoteSize,
		ClientOrderID:       id,
		OrderType:           model.OrderTypePostOnly,
		SelfTrade:           model.SelfTradeDecrementTake,
	}, nil
}

func placed(o model.OrderRequest) model.PlacedOrder {
	return model.PlacedOrder{
		LimitPrice:          o.LimitPrice,
		BaseQty:             o.MaxBaseQty,
		MaxQuoteQtyInclFees: o.MaxQuoteQtyInclFees,
		ClientOrderID:       o.ClientOrderID,
	}
}

// levelSize returns reserve*P[i]/10000.
func levelSize(reserve uint64, i int) (uint64, error) {
	return numeric.MulDiv(reserve, Proportions[i], bpsDenominator)
}
