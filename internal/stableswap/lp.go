package stableswap

import (
	"errors"
	"fmt"

	"openamm/internal/numeric"
)

// ErrInvariant is returned when D cannot be computed for the given reserves,
// either because one side is empty or because D does not fit u64.
var ErrInvariant = errors.New("stableswap: invariant undefined for reserves")

// LPMinted sizes the LP tokens for a stable deposit. Reserves and deposits are
// compared on the normalized scale. With zero supply the new invariant D1 is
// minted; otherwise supply*(D1-D0)/D0.
func LPMinted(supply, reserveBase, reserveQuote, depositBase, depositQuote uint64, baseDecimals, quoteDecimals uint8) (uint64, error) {
	nrb, nrq, err := Normalize(reserveBase, reserveQuote, baseDecimals, quoteDecimals)
	if err != nil {
		return 0, err
	}
	ndb, ndq, err := Normalize(depositBase, depositQuote, baseDecimals, quoteDecimals)
	if err != nil {
		return 0, err
	}
	nb, err := numeric.Add(nrb, ndb)
	if err != nil {
		return 0, fmt.Errorf("post-deposit base: %w", err)
	}
	nq, err := numeric.Add(nrq, ndq)
	if err != nil {
		return 0, fmt.Errorf("post-deposit quote: %w", err)
	}

	d1, ok := CalcD(nb, nq, AmpCoefficient)
	if !ok {
		return 0, ErrInvariant
	}
	if supply == 0 {
		// D0 over empty reserves is 0/0; skip it.
		return d1, nil
	}

	d0, ok := CalcD(nrb, nrq, AmpCoefficient)
	if !ok {
		return 0, ErrInvariant
	}
	growth, err := numeric.Sub(d1, d0)
	if err != nil {
		return 0, fmt.Errorf("invariant shrank: %w", err)
	}
	return numeric.MulDiv(supply, growth, d0)
}
