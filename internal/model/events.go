package model

import "github.com/ethereum/go-ethereum/common"

// EventKind names a journaled liquidity operation.
type EventKind string

const (
	EventCreate   EventKind = "create"
	EventDeposit  EventKind = "deposit"
	EventWithdraw EventKind = "withdraw"
	EventRefresh  EventKind = "refresh"
	EventRestart  EventKind = "restart"
)

// LiquidityEvent captures pool reserves and LP supply around one operation.
type LiquidityEvent struct {
	ID         string         `json:"id"`
	Kind       EventKind      `json:"kind"`
	Pool       common.Address `json:"pool"`
	Owner      common.Address `json:"owner"`
	CurveType  CurveType      `json:"curve_type"`
	StartBase  uint64         `json:"start_base"`
	StartQuote uint64         `json:"start_quote"`
	StartLP    uint64         `json:"start_lp"`
	EndBase    uint64         `json:"end_base"`
	EndQuote   uint64         `json:"end_quote"`
	EndLP      uint64         `json:"end_lp"`
	Timestamp  string         `json:"timestamp"`
}
