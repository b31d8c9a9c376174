package amm

import (
	"errors"

	"openamm/internal/ledger"
	"openamm/internal/liquidity"
	"openamm/internal/storage"
)

// Errors returned by pool operations. Each failed call returns exactly one of
// them, possibly wrapped; callers match with errors.Is.
var (
	ErrInvalidPair               = errors.New("invalid pair: base and quote mint are the same")
	ErrWrongOpenOrdersAccount    = errors.New("wrong open orders account")
	ErrWrongMarketAccount        = errors.New("wrong market account")
	ErrMarketBaseMintMismatch    = errors.New("market base mint mismatch")
	ErrMarketQuoteMintMismatch   = errors.New("market quote mint mismatch")
	ErrMarketMakingAlreadyActive = errors.New("market making already active")
	ErrOpenOrdersTokensLocked    = errors.New("open orders account still holds tokens")
	ErrPoolExists                = errors.New("pool already exists")

	ErrSlippageBaseExceeded  = liquidity.ErrSlippageBaseExceeded
	ErrSlippageQuoteExceeded = liquidity.ErrSlippageQuoteExceeded
	ErrPoolNotFound          = storage.ErrPoolNotFound
	ErrInsufficientBalance   = ledger.ErrInsufficientBalance
)
