package stableswap

import (
	"fmt"

	"openamm/internal/numeric"
)

// maxDecimalGap keeps 10^gap inside u64.
const maxDecimalGap = 19

// DecimalFactors returns the multipliers that bring base and quote amounts to
// the precision of whichever asset has more decimals. One of the two is
// always 1.
func DecimalFactors(baseDecimals, quoteDecimals uint8) (baseFactor, quoteFactor uint64, err error) {
	if baseDecimals > quoteDecimals {
		f, err := pow10(baseDecimals - quoteDecimals)
		return 1, f, err
	}
	f, err := pow10(quoteDecimals - baseDecimals)
	return f, 1, err
}

// Normalize scales base and quote amounts by their decimal factors.
func Normalize(base, quote uint64, baseDecimals, quoteDecimals uint8) (uint64, uint64, error) {
	bf, qf, err := DecimalFactors(baseDecimals, quoteDecimals)
	if err != nil {
		return 0, 0, err
	}
	nb, err := numeric.Mul(base, bf)
	if err != nil {
		return 0, 0, fmt.Errorf("normalize base: %w", err)
	}
	nq, err := numeric.Mul(quote, qf)
	if err != nil {
		return 0, 0, fmt.Errorf("normalize quote: %w", err)
	}
	return nb, nq, nil
}

func pow10(n uint8) (uint64, error) {
	if n > maxDecimalGap {
		return 0, fmt.Errorf("decimal gap %d: %w", n, numeric.ErrOverflow)
	}
	v := uint64(1)
	for i := uint8(0); i < n; i++ {
		v *= 10
	}
	return v, nil
}
