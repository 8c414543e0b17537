package EVMRPC

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Client talks to one EVM chain through an ordered list of RPC endpoints,
// falling over to the next endpoint when a call fails.
type Client struct {
	ChainID int64
	RPCList []string
	logger  *zap.Logger
}

func NewClient(chainID int64, rpcList []string, logger *zap.Logger) *Client {
	return &Client{ChainID: chainID, RPCList: rpcList, logger: logger}
}

func WithClient[T any](ctx context.Context, c *Client, f func(client *ethclient.Client) (T, error)) (res T, err error) {
	if len(c.RPCList) == 0 {
		err = errors.Errorf("no RPC endpoints for chain %d", c.ChainID)
		return
	}

	var client *ethclient.Client
	for _, url := range c.RPCList {
		client, err = ethclient.DialContext(ctx, url)
		if err != nil {
			c.logger.Sugar().Warnw("Error connecting to RPC", "chainId", c.ChainID, "url", url, "error", err)
			continue
		}

		res, err = f(client)
		client.Close()
		// a missing receipt is an answer, not an endpoint fault
		if err == nil || errors.Is(err, ethereum.NotFound) {
			return
		}
	}
	return
}

func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) (*ethtypes.Receipt, error) {
		return client.TransactionReceipt(ctx, hash)
	})
}

type txLookup struct {
	tx      *ethtypes.Transaction
	pending bool
}

func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error) {
	res, err := WithClient(ctx, c, func(client *ethclient.Client) (txLookup, error) {
		tx, pending, err := client.TransactionByHash(ctx, hash)
		return txLookup{tx, pending}, err
	})
	return res.tx, res.pending, err
}

func (c *Client) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) (uint64, error) {
		return client.NonceAt(ctx, account, blockNumber)
	})
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) ([]byte, error) {
		return client.CallContract(ctx, msg, blockNumber)
	})
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) (*big.Int, error) {
		return client.BalanceAt(ctx, account, blockNumber)
	})
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) (uint64, error) {
		return client.PendingNonceAt(ctx, account)
	})
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) (*big.Int, error) {
		return client.SuggestGasPrice(ctx)
	})
}

func (c *Client) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	_, err := WithClient(ctx, c, func(client *ethclient.Client) (struct{}, error) {
		return struct{}{}, client.SendTransaction(ctx, tx)
	})
	return err
}

func (c *Client) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return WithClient(ctx, c, func(client *ethclient.Client) ([]byte, error) {
		return client.CodeAt(ctx, account, blockNumber)
	})
}

// Chains indexes clients by chain id.
type Chains map[int64]*Client

func (c Chains) Lookup(chainID *big.Int) (*Client, bool) {
	if chainID == nil || !chainID.IsInt64() {
		return nil, false
	}
	client, ok := c[chainID.Int64()]
	return client, ok
}
