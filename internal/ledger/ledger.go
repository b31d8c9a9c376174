// Package ledger moves fungible token balances. Every batch is applied
// atomically: either all operations take effect or none do.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrBalanceOverflow     = errors.New("ledger: balance overflow")
)

// OpKind is the type of a ledger operation.
type OpKind uint8

const (
	OpTransfer OpKind = iota
	OpMint
	OpBurn
)

func (k OpKind) String() string {
	switch k {
	case OpTransfer:
		return "transfer"
	case OpMint:
		return "mint"
	case OpBurn:
		return "burn"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

// Op is one balance change. From is unused for mints, To for burns.
type Op struct {
	Kind   OpKind         `json:"kind"`
	Mint   common.Address `json:"mint"`
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

func Transfer(mint, from, to common.Address, amount uint64) Op {
	return Op{Kind: OpTransfer, Mint: mint, From: from, To: to, Amount: amount}
}

func MintTo(mint, to common.Address, amount uint64) Op {
	return Op{Kind: OpMint, Mint: mint, To: to, Amount: amount}
}

func Burn(mint, from common.Address, amount uint64) Op {
	return Op{Kind: OpBurn, Mint: mint, From: from, Amount: amount}
}

// Invert returns the batch that undoes ops, in reverse order.
func Invert(ops []Op) []Op {
	out := make([]Op, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		switch op.Kind {
		case OpTransfer:
			out = append(out, Transfer(op.Mint, op.To, op.From, op.Amount))
		case OpMint:
			out = append(out, Burn(op.Mint, op.To, op.Amount))
		case OpBurn:
			out = append(out, MintTo(op.Mint, op.From, op.Amount))
		}
	}
	return out
}

// Compact drops zero-amount operations.
func Compact(ops []Op) []Op {
	out := ops[:0:0]
	for _, op := range ops {
		if op.Amount != 0 {
			out = append(out, op)
		}
	}
	return out
}

// Ledger is the token ledger collaborator.
type Ledger interface {
	Balance(ctx context.Context, holder, mint common.Address) (uint64, error)
	Supply(ctx context.Context, mint common.Address) (uint64, error)
	Apply(ctx context.Context, ops []Op) error
}
