package ladder

import (
	"fmt"

	"github.com/holiman/uint256"

	"openamm/internal/model"
	"openamm/internal/numeric"
)

// walkXYK prices both sides on x*y=k. Asks sell base: the quote owed for
// removing a base is k/(x-a) - y. Bids spend quote: the base bought with b
// quote is k/(y-b) - x.
func walkXYK(pool *model.Pool, book model.BookSnapshot) (asks, bids []stepResult, err error) {
	fee := pool.CurveType.FeeBps()

	lastB, lastQ := pool.BaseAmount, pool.QuoteAmount
	for i := 0; i < model.MaxAsks; i++ {
		a, err := levelSize(pool.BaseAmount, i)
		if err != nil {
			return nil, nil, fmt.Errorf("ask %d size: %w", i, err)
		}
		if a >= lastB {
			asks = append(asks, stepResult{skip: SkipExhausted})
			continue
		}
		if a == 0 {
			asks = append(asks, stepResult{skip: SkipZeroAmount})
			continue
		}
		endA := lastB - a
		endB, err := divK(lastB, lastQ, endA)
		if err != nil {
			return nil, nil, fmt.Errorf("ask %d: %w", i, err)
		}
		deltaB := endB - lastQ
		price, err := numeric.Product([]uint64{deltaB, book.BaseLotSize, bpsDenominator + fee}, a, book.QuoteLotSize, bpsDenominator)
		if err != nil {
			return nil, nil, fmt.Errorf("ask %d price: %w", i, err)
		}
		asks = append(asks, stepResult{level: level{price: price, lots: a / book.BaseLotSize, quoteSize: deltaB}})
		lastB, lastQ = endA, endB
	}

	lastB, lastQ = pool.BaseAmount, pool.QuoteAmount
	for i := 0; i < model.MaxBids; i++ {
		b, err := levelSize(pool.QuoteAmount, i)
		if err != nil {
			return nil, nil, fmt.Errorf("bid %d size: %w", i, err)
		}
		if b >= lastQ {
			bids = append(bids, stepResult{skip: SkipExhausted})
			continue
		}
		endB := lastQ - b
		endA, err := divK(lastB, lastQ, endB)
		if err != nil {
			return nil, nil, fmt.Errorf("bid %d: %w", i, err)
		}
		deltaA := endA - lastB
		if deltaA == 0 {
			bids = append(bids, stepResult{skip: SkipZeroAmount})
			continue
		}
		price, err := numeric.Product([]uint64{b, book.BaseLotSize, bpsDenominator - fee}, deltaA, book.QuoteLotSize, bpsDenominator)
		if err != nil {
			return nil, nil, fmt.Errorf("bid %d price: %w", i, err)
		}
		bids = append(bids, stepResult{level: level{price: price, lots: deltaA / book.BaseLotSize, quoteSize: b}})
		lastB, lastQ = endA, endB
	}
	return asks, bids, nil
}

// divK returns floor(x*y/end) with a 256-bit product.
func divK(x, y, end uint64) (uint64, error) {
	if end == 0 {
		return 0, numeric.ErrDivideByZero
	}
	k := new(uint256.Int).Mul(uint256.NewInt(x), uint256.NewInt(y))
	k.Div(k, uint256.NewInt(end))
	if !k.IsUint64() {
		return 0, numeric.ErrOverflow
	}
	return k.Uint64(), nil
}
