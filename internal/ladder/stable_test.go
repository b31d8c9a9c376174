package ladder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"openamm/internal/model"
)

func stablePool(base, quote uint64, baseDecimals, quoteDecimals uint8) model.Pool {
	p := model.NewPool(model.PoolAccounts{}, model.CurveStable, baseDecimals, quoteDecimals)
	p.BaseAmount, p.QuoteAmount = base, quote
	return p
}

func TestBuildStableBalanced(t *testing.T) {
	pool := stablePool(1_000_000_000_000, 1_000_000_000_000, 6, 6)
	res, err := Build(&pool, book(1_000_000, 1))
	require.NoError(t, err)
	asks, bids := split(res.Orders)
	require.Len(t, asks, model.MaxAsks)
	require.Len(t, bids, model.MaxBids)

	require.Equal(t, uint64(1_000_472), asks[0].LimitPrice)
	require.Equal(t, uint64(800), asks[0].MaxBaseQty)
	require.Equal(t, uint64(800_058_186), asks[0].MaxQuoteQtyInclFees)
	require.Equal(t, uint64(1_081_659), asks[9].LimitPrice)

	require.Equal(t, uint64(999_527), bids[0].LimitPrice)
	require.Equal(t, uint64(800), bids[0].MaxBaseQty)
	require.Equal(t, uint64(954_631), bids[8].LimitPrice)
	require.Equal(t, uint64(104_710), bids[8].MaxBaseQty)
}

func TestBuildStableMixedDecimals(t *testing.T) {
	// 1e3 base at 6 decimals against 1e3 quote at 9 decimals
	pool := stablePool(1_000_000_000, 1_000_000_000_000, 6, 9)
	res, err := Build(&pool, book(1_000, 1_000))
	require.NoError(t, err)
	asks, bids := split(res.Orders)
	require.Equal(t, uint64(1_000), asks[0].LimitPrice)
	require.Equal(t, uint64(800), asks[0].MaxBaseQty)
	require.Equal(t, uint64(1_081), asks[9].LimitPrice)
	require.Equal(t, uint64(999), bids[0].LimitPrice)
	require.Equal(t, uint64(954), bids[8].LimitPrice)
}
