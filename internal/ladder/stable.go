package ladder

import (
	"fmt"

	"openamm/internal/model"
	"openamm/internal/numeric"
	"openamm/internal/stableswap"
)

// walkStable prices both sides on the Stableswap curve. Reserves are
// normalized to a common precision, D is solved once, and every level asks
// the solver how much of the other asset keeps D constant.
func walkStable(pool *model.Pool, book model.BookSnapshot) (asks, bids []stepResult, err error) {
	fee := pool.CurveType.FeeBps()
	baseFactor, quoteFactor, err := stableswap.DecimalFactors(pool.BaseDecimals, pool.QuoteDecimals)
	if err != nil {
		return nil, nil, err
	}
	nb, nq, err := stableswap.Normalize(pool.BaseAmount, pool.QuoteAmount, pool.BaseDecimals, pool.QuoteDecimals)
	if err != nil {
		return nil, nil, err
	}
	if nb == 0 || nq == 0 {
		return nil, nil, nil
	}
	d, ok := stableswap.CalcD(nb, nq, stableswap.AmpCoefficient)
	if !ok {
		return noCurve(), nil, nil
	}

	lastB, lastQ := nb, nq
	for i := 0; i < model.MaxAsks; i++ {
		a, err := levelSize(nb, i)
		if err != nil {
			return nil, nil, fmt.Errorf("ask %d size: %w", i, err)
		}
		if a >= lastB || a == 0 {
			asks = append(asks, stepResult{skip: SkipExhausted})
			continue
		}
		endA := lastB - a
		b, ok := stableswap.CalcDy(lastB, lastQ, stableswap.AmpCoefficient, d, a)
		if !ok {
			b = 0
		}
		endB, err := numeric.Add(lastQ, b)
		if err != nil {
			return nil, nil, fmt.Errorf("ask %d: %w", i, err)
		}
		lastB, lastQ = endA, endB

		step, err := stableLevel(a/baseFactor, b/quoteFactor, bpsDenominator+fee, book, ok)
		if err != nil {
			return nil, nil, fmt.Errorf("ask %d price: %w", i, err)
		}
		asks = append(asks, step)
	}

	lastB, lastQ = nb, nq
	for i := 0; i < model.MaxBids; i++ {
		b, err := levelSize(nq, i)
		if err != nil {
			return nil, nil, fmt.Errorf("bid %d size: %w", i, err)
		}
		if b >= lastQ || b == 0 {
			bids = append(bids, stepResult{skip: SkipExhausted})
			continue
		}
		endB := lastQ - b
		a, ok := stableswap.CalcDy(lastQ, lastB, stableswap.AmpCoefficient, d, b)
		if !ok {
			a = 0
		}
		endA, err := numeric.Add(lastB, a)
		if err != nil {
			return nil, nil, fmt.Errorf("bid %d: %w", i, err)
		}
		lastB, lastQ = endA, endB

		step, err := stableLevel(a/baseFactor, b/quoteFactor, bpsDenominator-fee, book, ok)
		if err != nil {
			return nil, nil, fmt.Errorf("bid %d price: %w", i, err)
		}
		bids = append(bids, step)
	}
	return asks, bids, nil
}

// stableLevel prices one level from native base and quote sizes.
func stableLevel(base, quote, feeFactor uint64, book model.BookSnapshot, sized bool) (stepResult, error) {
	if !sized {
		return stepResult{skip: SkipUnsized}, nil
	}
	if base == 0 {
		return stepResult{skip: SkipZeroAmount}, nil
	}
	price, err := numeric.Product([]uint64{quote, feeFactor, book.BaseLotSize}, base, bpsDenominator, book.QuoteLotSize)
	if err != nil {
		return stepResult{}, err
	}
	return stepResult{level: level{price: price, lots: base / book.BaseLotSize, quoteSize: quote}}, nil
}

func noCurve() []stepResult {
	return []stepResult{{skip: SkipNoCurve}}
}
