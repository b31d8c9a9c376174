package model

import "github.com/ethereum/go-ethereum/common"

// MarketInfo describes a venue market.
type MarketInfo struct {
	Address      common.Address `json:"address"`
	BaseMint     common.Address `json:"base_mint"`
	QuoteMint    common.Address `json:"quote_mint"`
	BaseLotSize  uint64         `json:"base_lot_size"`
	QuoteLotSize uint64         `json:"quote_lot_size"`
}

// MarketAccounts are the venue accounts a caller claims belong to a pool.
// Zero addresses are not checked.
type MarketAccounts struct {
	Market     common.Address `json:"market"`
	OpenOrders common.Address `json:"open_orders"`
}
