package reconcile

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"openamm/internal/ladder"
	"openamm/internal/model"
)

// placedPool returns a balanced XYK pool with a freshly built ladder and the
// venue view of that ladder with every order untouched.
func placedPool(t *testing.T) (model.Pool, model.BookSnapshot) {
	t.Helper()
	pool := model.NewPool(model.PoolAccounts{}, model.CurveXYK, 6, 6)
	pool.BaseAmount, pool.QuoteAmount = 1_000_000_000, 1_000_000_000
	book := model.BookSnapshot{BaseLotSize: 1_000, QuoteLotSize: 1}
	res, err := ladder.Build(&pool, book)
	require.NoError(t, err)
	for _, o := range res.Orders {
		book.Orders = append(book.Orders, model.CurrentOrder{
			Side:          o.Side,
			OrderID:       fmt.Sprintf("o%d", o.ClientOrderID),
			ClientOrderID: o.ClientOrderID,
			LimitPrice:    o.LimitPrice,
			BaseQty:       o.MaxBaseQty,
		})
	}
	return pool, book
}

func withOrder(book model.BookSnapshot, clientID uint64, fn func(*model.CurrentOrder) bool) model.BookSnapshot {
	out := book
	out.Orders = nil
	for _, o := range book.Orders {
		if o.ClientOrderID == clientID {
			if !fn(&o) {
				continue
			}
		}
		out.Orders = append(out.Orders, o)
	}
	return out
}

func TestReconcileNoFills(t *testing.T) {
	pool, book := placedPool(t)
	res, err := Reconcile(&pool, book)
	require.NoError(t, err)
	require.False(t, res.Filled())
	require.False(t, res.Deactivated)
	require.Len(t, res.Cancels, 19)
	require.Equal(t, uint64(1_000_000_000), pool.BaseAmount)
	require.Equal(t, uint64(1_000_000_000), pool.QuoteAmount)
	asks, bids := pool.PlacedCount()
	require.Zero(t, asks)
	require.Zero(t, bids)
	require.True(t, pool.MMActive)
}

func TestReconcilePartialAskAndMissingBid(t *testing.T) {
	pool, book := placedPool(t)
	// ask 1 keeps 500 of 800 lots, bid 11 is gone
	book = withOrder(book, 1, func(o *model.CurrentOrder) bool { o.BaseQty = 500; return true })
	book = withOrder(book, 11, func(*model.CurrentOrder) bool { return false })

	res, err := Reconcile(&pool, book)
	require.NoError(t, err)
	require.False(t, res.Deactivated)
	require.True(t, pool.MMActive)
	require.Len(t, res.Cancels, 18)

	require.Equal(t, uint64(1_000_499_920), pool.BaseAmount)
	require.Equal(t, uint64(999_502_970), pool.QuoteAmount)
	require.Equal(t, uint64(300_600), pool.CumulativeQuoteVolume)
	require.Equal(t, uint64(800_000), pool.CumulativeBaseVolume)
	require.Equal(t, uint64(30), pool.RefundQuoteAmount)
	require.Equal(t, uint64(80), pool.RefundBaseAmount)

	var gotMissing bool
	for _, f := range res.Fills {
		if f.ClientOrderID == 11 {
			gotMissing = f.Missing
			require.Equal(t, uint64(800_000), f.Base)
			require.Equal(t, uint64(797_600), f.Quote)
		}
	}
	require.True(t, gotMissing)
}

func TestReconcileRefundConservation(t *testing.T) {
	pool, book := placedPool(t)
	for id := uint64(1); id <= 5; id++ {
		book = withOrder(book, id, func(o *model.CurrentOrder) bool { o.BaseQty /= 3; return true })
	}
	for id := uint64(11); id <= 14; id++ {
		book = withOrder(book, id, func(o *model.CurrentOrder) bool { o.BaseQty /= 7; return true })
	}
	startBase, startQuote := pool.BaseAmount, pool.QuoteAmount

	res, err := Reconcile(&pool, book)
	require.NoError(t, err)

	var askQuote, askRefund, bidBase, bidRefund, askBase, bidQuote uint64
	for _, f := range res.Fills {
		if f.Side == model.SideAsk {
			askQuote += f.Quote
			askRefund += f.Refund
			askBase += f.Base
		} else {
			bidBase += f.Base
			bidRefund += f.Refund
			bidQuote += f.Quote
		}
	}
	require.Equal(t, askRefund, pool.RefundQuoteAmount)
	require.Equal(t, bidRefund, pool.RefundBaseAmount)
	// retained credit plus refunds equals the gross amount moved
	require.Equal(t, askQuote, pool.QuoteAmount+bidQuote-startQuote+pool.RefundQuoteAmount)
	require.Equal(t, bidBase, pool.BaseAmount+askBase-startBase+pool.RefundBaseAmount)
	require.Equal(t, askQuote, pool.CumulativeQuoteVolume)
	require.Equal(t, bidBase, pool.CumulativeBaseVolume)
}

func TestReconcileDeactivatesWhenOutermostOrderMissing(t *testing.T) {
	pool, book := placedPool(t)
	book = withOrder(book, 10, func(*model.CurrentOrder) bool { return false })

	res, err := Reconcile(&pool, book)
	require.NoError(t, err)
	require.True(t, res.Deactivated)
	require.False(t, pool.MMActive)
}

func TestReconcileDeactivatesOnOutermostBid(t *testing.T) {
	pool, book := placedPool(t)
	book = withOrder(book, 19, func(*model.CurrentOrder) bool { return false })

	_, err := Reconcile(&pool, book)
	require.NoError(t, err)
	require.False(t, pool.MMActive)
}

func TestReconcileEmptyLadderCancelsStrays(t *testing.T) {
	pool := model.NewPool(model.PoolAccounts{}, model.CurveXYK, 6, 6)
	book := model.BookSnapshot{
		BaseLotSize: 1, QuoteLotSize: 1,
		Orders: []model.CurrentOrder{{Side: model.SideBid, OrderID: "stray", ClientOrderID: 99, BaseQty: 3}},
	}
	res, err := Reconcile(&pool, book)
	require.NoError(t, err)
	require.Empty(t, res.Fills)
	require.Equal(t, []model.CancelRequest{{Side: model.SideBid, OrderID: "stray"}}, res.Cancels)
	require.True(t, pool.MMActive)
}

func TestReconcileUnderflowIsFatal(t *testing.T) {
	pool, book := placedPool(t)
	pool.BaseAmount = 1_000 // far less than the sold ask
	book = withOrder(book, 1, func(*model.CurrentOrder) bool { return false })
	_, err := Reconcile(&pool, book)
	require.Error(t, err)
}
