package monitor

import (
	"context"

	"sigresponder/BTCRPC"
	"sigresponder/types"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MinConfirmations after which a Bitcoin transaction counts as executed.
const MinConfirmations = 1

type BitcoinChecker struct {
	backend BTCRPC.Backend
	logger  *zap.Logger
}

func NewBitcoinChecker(backend BTCRPC.Backend, logger *zap.Logger) *BitcoinChecker {
	return &BitcoinChecker{backend: backend, logger: logger}
}

func (c *BitcoinChecker) Check(ctx context.Context, p *types.PendingTransaction) types.MonitorResult {
	status, err := c.backend.GetTransaction(ctx, p.TxID)
	found := true
	if errors.Is(err, BTCRPC.ErrNotFound) {
		found = false
	} else if err != nil {
		c.logger.Sugar().Debugw("Bitcoin transaction lookup failed", "tx", p.TxID, "error", err)
		return types.Pending()
	}

	if found && status.Confirmations >= MinConfirmations {
		return types.Succeeded(types.NonFunctionCallSuccess())
	}

	for _, prev := range p.Prevouts {
		spent, spender, err := c.backend.IsPrevoutSpent(ctx, prev.TxID, prev.Vout)
		if err != nil {
			c.logger.Sugar().Debugw("Prevout lookup failed", "tx", p.TxID, "prevout", prev, "error", err)
			return types.Pending()
		}
		if !spent {
			continue
		}
		// a spender we cannot name only counts as a conflict when our own
		// transaction is gone
		if (spender != "" && spender != p.TxID) || (spender == "" && !found) {
			return types.Failed(types.ReasonInputsSpent)
		}
	}
	return types.Pending()
}
