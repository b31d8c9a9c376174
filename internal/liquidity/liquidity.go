// Package liquidity sizes deposits, withdrawals and LP token mint/burn
// amounts for both curves.
package liquidity

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"openamm/internal/model"
	"openamm/internal/numeric"
	"openamm/internal/stableswap"
)

// MinimumLiquidity is subtracted from the first XYK mint so that the LP
// supply can never be driven back to zero by rounding.
const MinimumLiquidity = 1_000

var (
	ErrSlippageBaseExceeded  = errors.New("slippage base exceeded")
	ErrSlippageQuoteExceeded = errors.New("slippage quote exceeded")
	ErrInsufficientLiquidity = errors.New("initial liquidity below minimum")
	ErrWithdrawExceedsSupply = errors.New("withdraw amount exceeds lp supply")
	ErrEmptySupply           = errors.New("lp supply is zero")
	ErrZeroReserveWithSupply = errors.New("reserve is zero while lp supply is not")
)

// DepositRequest carries the caller's budget and slippage floors.
type DepositRequest struct {
	DesiredBase  uint64
	DesiredQuote uint64
	MinBase      uint64
	MinQuote     uint64
}

// DepositQuote is the sized deposit.
type DepositQuote struct {
	Base  uint64
	Quote uint64
	LP    uint64
}

// WithdrawQuote is the sized withdrawal.
type WithdrawQuote struct {
	Base  uint64
	Quote uint64
}

// QuoteDeposit sizes a deposit against the pool's current reserves. When the
// pool holds both assets the deposit is trimmed to the reserve ratio,
// preferring to keep the full base amount. Reserves are not modified.
func QuoteDeposit(pool model.Pool, supply uint64, req DepositRequest) (DepositQuote, error) {
	base, quote := req.DesiredBase, req.DesiredQuote
	rb, rq := pool.BaseAmount, pool.QuoteAmount

	if rb != 0 && rq != 0 && !numeric.SameFraction(quote, base, rq, rb) {
		optQuote, err := numeric.MulDiv(base, rq, rb)
		if err != nil {
			return DepositQuote{}, fmt.Errorf("optimal quote: %w", err)
		}
		if optQuote <= quote {
			if optQuote < req.MinQuote {
				return DepositQuote{}, ErrSlippageQuoteExceeded
			}
			quote = optQuote
		} else {
			optBase, err := numeric.MulDiv(quote, rb, rq)
			if err != nil {
				return DepositQuote{}, fmt.Errorf("optimal base: %w", err)
			}
			if optBase > base || optBase < req.MinBase {
				return DepositQuote{}, ErrSlippageBaseExceeded
			}
			base = optBase
		}
	}

	lp, err := MintAmount(pool, supply, base, quote)
	if err != nil {
		return DepositQuote{}, err
	}
	return DepositQuote{Base: base, Quote: quote, LP: lp}, nil
}

// MintAmount returns the LP tokens owed for adding base and quote to pool
// with the given LP supply.
func MintAmount(pool model.Pool, supply, base, quote uint64) (uint64, error) {
	switch pool.CurveType {
	case model.CurveXYK:
		return mintXYK(pool, supply, base, quote)
	case model.CurveStable:
		return stableswap.LPMinted(supply, pool.BaseAmount, pool.QuoteAmount, base, quote, pool.BaseDecimals, pool.QuoteDecimals)
	default:
		return 0, fmt.Errorf("unknown curve %s", pool.CurveType)
	}
}

func mintXYK(pool model.Pool, supply, base, quote uint64) (uint64, error) {
	if supply == 0 {
		k := new(uint256.Int).Mul(uint256.NewInt(base), uint256.NewInt(quote))
		if k.LtUint64(MinimumLiquidity) {
			return 0, ErrInsufficientLiquidity
		}
		return numeric.Sqrt(k.Sub(k, uint256.NewInt(MinimumLiquidity))), nil
	}
	if pool.BaseAmount == 0 || pool.QuoteAmount == 0 {
		return 0, ErrZeroReserveWithSupply
	}
	byBase, err := numeric.MulDiv(supply, base, pool.BaseAmount)
	if err != nil {
		return 0, err
	}
	byQuote, err := numeric.MulDiv(supply, quote, pool.QuoteAmount)
	if err != nil {
		return 0, err
	}
	return numeric.Min(byBase, byQuote), nil
}

// QuoteWithdraw returns the reserves owed for burning lp out of supply.
// Both curves pay out pro rata.
func QuoteWithdraw(pool model.Pool, supply, lp uint64) (WithdrawQuote, error) {
	if supply == 0 {
		return WithdrawQuote{}, ErrEmptySupply
	}
	if lp > supply {
		return WithdrawQuote{}, ErrWithdrawExceedsSupply
	}
	base, err := numeric.MulDiv(lp, pool.BaseAmount, supply)
	if err != nil {
		return WithdrawQuote{}, err
	}
	quote, err := numeric.MulDiv(lp, pool.QuoteAmount, supply)
	if err != nil {
		return WithdrawQuote{}, err
	}
	return WithdrawQuote{Base: base, Quote: quote}, nil
}

// ApplyDeposit adds a sized deposit to the reserves.
func ApplyDeposit(pool *model.Pool, q DepositQuote) error {
	base, err := numeric.Add(pool.BaseAmount, q.Base)
	if err != nil {
		return fmt.Errorf("base reserve: %w", err)
	}
	quote, err := numeric.Add(pool.QuoteAmount, q.Quote)
	if err != nil {
		return fmt.Errorf("quote reserve: %w", err)
	}
	pool.BaseAmount, pool.QuoteAmount = base, quote
	return nil
}

// ApplyWithdraw removes a sized withdrawal from the reserves.
func ApplyWithdraw(pool *model.Pool, q WithdrawQuote) error {
	base, err := numeric.Sub(pool.BaseAmount, q.Base)
	if err != nil {
		return fmt.Errorf("base reserve: %w", err)
	}
	quote, err := numeric.Sub(pool.QuoteAmount, q.Quote)
	if err != nil {
		return fmt.Errorf("quote reserve: %w", err)
	}
	pool.BaseAmount, pool.QuoteAmount = base, quote
	return nil
}
