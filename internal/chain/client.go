// Package chain reads ERC20 token metadata and balances over EVM JSON-RPC.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Caller is the subset of the RPC client used for contract reads.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client is a read-only eth_call client bound to one chain.
type Client struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	chainID *big.Int
}

// NewClient dials rpcURL and probes the chain id so that a bad endpoint
// fails at startup instead of on the first token lookup.
func NewClient(ctx context.Context, rpcURL string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rc, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	c := &Client{rpc: rc, eth: ethclient.NewClient(rc)}
	if c.chainID, err = c.eth.ChainID(ctx); err != nil {
		rc.Close()
		return nil, fmt.Errorf("probe chain id: %w", err)
	}
	logger.Info("rpc connected", zap.String("chain_id", c.chainID.String()))
	return c, nil
}

func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

// ChainID returns the id read at dial time.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, blockNumber)
}
