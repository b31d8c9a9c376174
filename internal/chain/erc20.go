package chain

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"openamm/internal/model"
)

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABIString      abi.ABI
	erc20ABIStringOnce  sync.Once
	erc20ABIStringErr   error
	erc20ABIBytes32     abi.ABI
	erc20ABIBytes32Once sync.Once
	erc20ABIBytes32Err  error
)

func erc20StringABI() (abi.ABI, error) {
	erc20ABIStringOnce.Do(func() {
		erc20ABIString, erc20ABIStringErr = abi.JSON(strings.NewReader(erc20ABIStringJSON))
	})
	return erc20ABIString, erc20ABIStringErr
}

func erc20Bytes32ABI() (abi.ABI, error) {
	erc20ABIBytes32Once.Do(func() {
		erc20ABIBytes32, erc20ABIBytes32Err = abi.JSON(strings.NewReader(erc20ABIBytes32JSON))
	})
	return erc20ABIBytes32, erc20ABIBytes32Err
}

func call(ctx context.Context, c Caller, token common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

// FetchAssetMeta loads decimals, symbol and name via ERC20 calls. Only
// decimals are required; symbol and name fall back to bytes32 encodings.
func FetchAssetMeta(ctx context.Context, c Caller, token common.Address, logger *zap.Logger) (model.AssetMeta, error) {
	meta := model.AssetMeta{Address: token.Hex()}
	if c == nil {
		return meta, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	stringABI, err := erc20StringABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}
	bytes32ABI, err := erc20Bytes32ABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := call(ctx, c, token, stringABI, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return meta, fmt.Errorf("decimals: unsupported type %T", values[0])
	}
	meta.Decimals = decimals

	meta.Symbol = fetchText(ctx, c, token, stringABI, bytes32ABI, "symbol", logger)
	meta.Name = fetchText(ctx, c, token, stringABI, bytes32ABI, "name", logger)
	return meta, nil
}

func fetchText(ctx context.Context, c Caller, token common.Address, stringABI, bytes32ABI abi.ABI, method string, logger *zap.Logger) string {
	if values, err := call(ctx, c, token, stringABI, method); err == nil {
		if s, ok := values[0].(string); ok {
			return s
		}
	}
	values, err := call(ctx, c, token, bytes32ABI, method)
	if err != nil {
		logger.Debug("erc20 text call failed", zap.String("token", token.Hex()), zap.String("method", method), zap.Error(err))
		return ""
	}
	if v, ok := values[0].([32]byte); ok {
		return string(bytes.TrimRight(v[:], "\x00"))
	}
	return ""
}

// BalanceOf returns the ERC20 balance of owner.
func BalanceOf(ctx context.Context, c Caller, token, owner common.Address) (*big.Int, error) {
	if c == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	parsed, err := erc20StringABI()
	if err != nil {
		return nil, err
	}
	values, err := call(ctx, c, token, parsed, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf: unsupported type %T", values[0])
	}
	return bal, nil
}
