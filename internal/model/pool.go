package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MaxAsks is the ask ladder capacity.
	MaxAsks = 10
	// MaxBids is the bid ladder capacity.
	MaxBids = 9
)

// CurveType selects the pricing invariant of a pool. It is fixed at creation.
type CurveType uint8

const (
	CurveXYK CurveType = iota
	CurveStable
)

func (c CurveType) String() string {
	switch c {
	case CurveXYK:
		return "xyk"
	case CurveStable:
		return "stable"
	default:
		return fmt.Sprintf("curve(%d)", uint8(c))
	}
}

// FeeBps returns the ladder spread in basis points.
func (c CurveType) FeeBps() uint64 {
	if c == CurveStable {
		return 4
	}
	return 20
}

// ParseCurveType accepts "xyk" or "stable" in any case.
func ParseCurveType(s string) (CurveType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xyk", "constant-product":
		return CurveXYK, nil
	case "stable", "stableswap":
		return CurveStable, nil
	default:
		return 0, fmt.Errorf("unknown curve type %q", s)
	}
}

// PlacedOrder records one ladder level as submitted. BaseQty zero marks an
// empty slot.
type PlacedOrder struct {
	LimitPrice          uint64 `json:"limit_price"`
	BaseQty             uint64 `json:"base_qty"`
	MaxQuoteQtyInclFees uint64 `json:"max_quote_qty_incl_fees"`
	ClientOrderID       uint64 `json:"client_order_id"`
}

// Empty reports whether the slot holds no order.
func (o PlacedOrder) Empty() bool { return o.BaseQty == 0 }

// Pool is the persistent record of one (market, curve) liquidity pool.
type Pool struct {
	Address    common.Address `json:"address"`
	Market     common.Address `json:"market"`
	OpenOrders common.Address `json:"open_orders"`
	BaseMint   common.Address `json:"base_mint"`
	QuoteMint  common.Address `json:"quote_mint"`
	BaseVault  common.Address `json:"base_vault"`
	QuoteVault common.Address `json:"quote_vault"`
	LPMint     common.Address `json:"lp_mint"`

	CurveType     CurveType `json:"curve_type"`
	BaseDecimals  uint8     `json:"base_decimals"`
	QuoteDecimals uint8     `json:"quote_decimals"`

	BaseAmount  uint64 `json:"base_amount"`
	QuoteAmount uint64 `json:"quote_amount"`

	CumulativeBaseVolume  uint64 `json:"cumulative_base_volume"`
	CumulativeQuoteVolume uint64 `json:"cumulative_quote_volume"`

	RefundBaseAmount  uint64 `json:"refund_base_amount"`
	RefundQuoteAmount uint64 `json:"refund_quote_amount"`

	ClientOrderID uint64 `json:"client_order_id"`

	PlacedAsks [MaxAsks]PlacedOrder `json:"placed_asks"`
	PlacedBids [MaxBids]PlacedOrder `json:"placed_bids"`

	MMActive bool `json:"mm_active"`
}

// PoolAccounts are the addresses a pool is bound to at creation.
type PoolAccounts struct {
	Address    common.Address
	Market     common.Address
	OpenOrders common.Address
	BaseMint   common.Address
	QuoteMint  common.Address
	BaseVault  common.Address
	QuoteVault common.Address
	LPMint     common.Address
}

// NewPool returns an active pool with empty ladders and the first client
// order id set to 1.
func NewPool(accounts PoolAccounts, curve CurveType, baseDecimals, quoteDecimals uint8) Pool {
	return Pool{
		Address:       accounts.Address,
		Market:        accounts.Market,
		OpenOrders:    accounts.OpenOrders,
		BaseMint:      accounts.BaseMint,
		QuoteMint:     accounts.QuoteMint,
		BaseVault:     accounts.BaseVault,
		QuoteVault:    accounts.QuoteVault,
		LPMint:        accounts.LPMint,
		CurveType:     curve,
		BaseDecimals:  baseDecimals,
		QuoteDecimals: quoteDecimals,
		ClientOrderID: 1,
		MMActive:      true,
	}
}

// ResetPlacedOrders empties both ladders.
func (p *Pool) ResetPlacedOrders() {
	p.PlacedAsks = [MaxAsks]PlacedOrder{}
	p.PlacedBids = [MaxBids]PlacedOrder{}
}

// PlacedCount returns the number of non-empty ask and bid slots.
func (p *Pool) PlacedCount() (asks, bids int) {
	for _, o := range p.PlacedAsks {
		if !o.Empty() {
			asks++
		}
	}
	for _, o := range p.PlacedBids {
		if !o.Empty() {
			bids++
		}
	}
	return asks, bids
}
