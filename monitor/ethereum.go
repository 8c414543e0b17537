package monitor

import (
	"context"
	"math/big"

	"sigresponder/serializer"
	"sigresponder/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const ReasonInvalidOutput = "invalid_output"

// EVMBackend is the read side of an EVM node used by the monitor.
type EVMBackend interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type EVMBackends func(chainID *big.Int) (EVMBackend, bool)

type EthereumChecker struct {
	backends EVMBackends
	logger   *zap.Logger
}

func NewEthereumChecker(backends EVMBackends, logger *zap.Logger) *EthereumChecker {
	return &EthereumChecker{backends: backends, logger: logger}
}

func (c *EthereumChecker) Check(ctx context.Context, p *types.PendingTransaction) types.MonitorResult {
	_, ref, err := types.ParseCAIP2(p.CAIP2ID)
	if err != nil {
		return types.Fatal(types.ReasonUnsupportedChain)
	}
	chainID, ok := new(big.Int).SetString(ref, 10)
	if !ok {
		return types.Fatal(types.ReasonUnsupportedChain)
	}
	backend, ok := c.backends(chainID)
	if !ok {
		return types.Fatal(types.ReasonUnsupportedChain)
	}

	hash := common.HexToHash(p.TxID)
	from := common.HexToAddress(p.FromAddress)

	receipt, err := backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		nonce, err := backend.NonceAt(ctx, from, nil)
		if err != nil {
			c.logger.Sugar().Debugw("Nonce lookup failed", "tx", p.TxID, "error", err)
			return types.Pending()
		}
		if nonce > p.Nonce {
			return types.Failed(types.ReasonReplaced)
		}
		return types.Pending()
	}
	if err != nil {
		c.logger.Sugar().Debugw("Receipt lookup failed", "tx", p.TxID, "error", err)
		return types.Pending()
	}

	if receipt.Status == ethtypes.ReceiptStatusFailed {
		return types.Failed(types.ReasonReverted)
	}

	if !expectsReturnValue(p.OutputSchema) {
		return types.Succeeded(types.NonFunctionCallSuccess())
	}

	tx, _, err := backend.TransactionByHash(ctx, hash)
	if err != nil {
		return types.Pending()
	}
	if tx.To() == nil || len(tx.Data()) == 0 {
		return types.Succeeded(types.NonFunctionCallSuccess())
	}

	// replay the call on the state it executed against
	var block *big.Int
	if receipt.BlockNumber != nil && receipt.BlockNumber.Sign() > 0 {
		block = new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1))
	}
	data, err := backend.CallContract(ctx, ethereum.CallMsg{
		From:  from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}, block)
	if err != nil {
		c.logger.Sugar().Debugw("Replay call failed", "tx", p.TxID, "error", err)
		return types.Pending()
	}

	fields, err := serializer.DecodeABI(p.OutputSchema.Raw, data)
	if err != nil {
		c.logger.Sugar().Errorw("Undecodable call output", "tx", p.TxID, "error", err)
		return types.Fatal(ReasonInvalidOutput)
	}
	return types.Succeeded(&types.ExecutionOutput{Success: true, IsFunctionCall: true, Fields: fields})
}

func expectsReturnValue(schema types.Schema) bool {
	if schema.Format != types.FormatABI {
		return false
	}
	args, err := serializer.ParseABISchema(schema.Raw)
	return err == nil && len(args) > 0
}
