// Package venue defines the order-book venue the pools quote on, and a paper
// implementation that keeps the book in memory.
package venue

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"openamm/internal/model"
)

var (
	ErrUnknownMarket     = errors.New("venue: unknown market")
	ErrMarketExists      = errors.New("venue: market already registered")
	ErrUnknownOpenOrders = errors.New("venue: unknown open orders account")
	ErrOpenOrdersExists  = errors.New("venue: open orders account already exists")
	ErrUnauthorized      = errors.New("venue: authority does not own open orders account")
	ErrInvalidOrder      = errors.New("venue: invalid order")
	ErrUnknownOrder      = errors.New("venue: unknown order")
)

// SubmitRequest places a batch of orders for one open-orders account. Funds
// for asks come from BaseWallet and for bids from QuoteWallet.
type SubmitRequest struct {
	Market      common.Address
	OpenOrders  common.Address
	Authority   common.Address
	BaseWallet  common.Address
	QuoteWallet common.Address
	Orders      []model.OrderRequest
}

// CancelRequest cancels orders of one open-orders account. Orders that are no
// longer live are ignored.
type CancelRequest struct {
	Market     common.Address
	OpenOrders common.Address
	Authority  common.Address
	Orders     []model.CancelRequest
}

// SettleRequest releases every free balance of an open-orders account to the
// given wallets.
type SettleRequest struct {
	Market      common.Address
	OpenOrders  common.Address
	Authority   common.Address
	BaseWallet  common.Address
	QuoteWallet common.Address
}

// Venue is the central limit order book collaborator.
type Venue interface {
	Market(ctx context.Context, market common.Address) (model.MarketInfo, error)
	InitOpenOrders(ctx context.Context, market, account, owner common.Address) error
	Snapshot(ctx context.Context, market, openOrders common.Address) (model.BookSnapshot, error)
	Submit(ctx context.Context, req SubmitRequest) error
	Cancel(ctx context.Context, req CancelRequest) error
	Settle(ctx context.Context, req SettleRequest) error
}
