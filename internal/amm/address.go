package amm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"openamm/internal/model"
)

// PoolAddress derives the pool address for a market and curve. It doubles as
// the authority that owns the pool's vaults and open-orders account.
func PoolAddress(market common.Address, curve model.CurveType) common.Address {
	return derive(market.Bytes(), []byte{byte(curve)}, []byte("pool"))
}

// PoolAccountsFor derives every account a pool is bound to.
func PoolAccountsFor(market common.Address, curve model.CurveType, baseMint, quoteMint common.Address) model.PoolAccounts {
	pool := PoolAddress(market, curve)
	return model.PoolAccounts{
		Address:    pool,
		Market:     market,
		OpenOrders: derive(pool.Bytes(), []byte("open-orders")),
		BaseMint:   baseMint,
		QuoteMint:  quoteMint,
		BaseVault:  derive(pool.Bytes(), []byte("base-vault")),
		QuoteVault: derive(pool.Bytes(), []byte("quote-vault")),
		LPMint:     derive(pool.Bytes(), []byte("lp-mint")),
	}
}

func derive(parts ...[]byte) common.Address {
	return common.BytesToAddress(crypto.Keccak256(parts...))
}
