package model

import "fmt"

// Side is the book side of an order.
type Side uint8

const (
	SideBid Side = iota
	SideAsk
)

func (s Side) String() string {
	if s == SideAsk {
		return "ask"
	}
	return "bid"
}

// ParseSide accepts bid/buy and ask/sell.
func ParseSide(s string) (Side, error) {
	switch s {
	case "bid", "buy":
		return SideBid, nil
	case "ask", "sell":
		return SideAsk, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

// OrderType controls how the venue treats an incoming limit order.
type OrderType uint8

const (
	OrderTypeLimit OrderType = iota
	OrderTypePostOnly
)

// SelfTradeBehavior controls what happens when an order meets one of the
// same owner's orders.
type SelfTradeBehavior uint8

const (
	SelfTradeDecrementTake SelfTradeBehavior = iota
	SelfTradeCancelProvide
)

// OrderRequest is one order handed to the venue. LimitPrice is quote lots per
// base lot, MaxBaseQty is in base lots and MaxQuoteQtyInclFees in native
// quote units.
type OrderRequest struct {
	Side                Side              `json:"side"`
	LimitPrice          uint64            `json:"limit_price"`
	MaxBaseQty          uint64            `json:"max_base_qty"`
	MaxQuoteQtyInclFees uint64            `json:"max_quote_qty_incl_fees"`
	ClientOrderID       uint64            `json:"client_order_id"`
	OrderType           OrderType         `json:"order_type"`
	SelfTrade           SelfTradeBehavior `json:"self_trade"`
}

// CurrentOrder is a live order read back from the venue. BaseQty is the
// remaining quantity in base lots.
type CurrentOrder struct {
	Side          Side   `json:"side"`
	OrderID       string `json:"order_id"`
	ClientOrderID uint64 `json:"client_order_id"`
	LimitPrice    uint64 `json:"limit_price"`
	BaseQty       uint64 `json:"base_qty"`
}

// CancelRequest identifies one live order to cancel.
type CancelRequest struct {
	Side    Side   `json:"side"`
	OrderID string `json:"order_id"`
}

// BookSnapshot is the venue state read at the start of an operation.
// BestBid and BestAsk exclude the pool's own orders; zero means absent.
// Native totals count everything the venue holds for the pool's open-orders
// account, locked or free.
type BookSnapshot struct {
	Orders       []CurrentOrder `json:"orders"`
	BestBid      uint64         `json:"best_bid"`
	BestAsk      uint64         `json:"best_ask"`
	BaseLotSize  uint64         `json:"base_lot_size"`
	QuoteLotSize uint64         `json:"quote_lot_size"`

	NativeBaseTotal  uint64 `json:"native_base_total"`
	NativeQuoteTotal uint64 `json:"native_quote_total"`
	NativeBaseFree   uint64 `json:"native_base_free"`
	NativeQuoteFree  uint64 `json:"native_quote_free"`
}

// Find returns the live order stamped with clientOrderID.
func (s BookSnapshot) Find(side Side, clientOrderID uint64) (CurrentOrder, bool) {
	for _, o := range s.Orders {
		if o.Side == side && o.ClientOrderID == clientOrderID {
			return o, true
		}
	}
	return CurrentOrder{}, false
}

// RecentOrders drops live orders whose client id is more than window ids
// behind next. Older orders belong to ladders that were already reconciled.
func (s BookSnapshot) RecentOrders(next, window uint64) BookSnapshot {
	var floor uint64
	if next > window {
		floor = next - window
	}
	out := s
	out.Orders = make([]CurrentOrder, 0, len(s.Orders))
	for _, o := range s.Orders {
		if o.ClientOrderID >= floor {
			out.Orders = append(out.Orders, o)
		}
	}
	return out
}
