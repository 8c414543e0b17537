package BTCRPC

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrNotFound    = errors.New("transaction not found")
	ErrUnsupported = errors.New("operation not supported by backend")
)

type TxStatus struct {
	Confirmed     bool
	Confirmations int64
	BlockHeight   int64
}

type UTXO struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  int64  `json:"value"`
	Height int64  `json:"height"`
}

// Backend is a Bitcoin destination chain. MineBlocks and FundAddress only
// work against private test networks.
type Backend interface {
	GetTransaction(ctx context.Context, txid string) (*TxStatus, error)
	GetCurrentBlockHeight(ctx context.Context) (int64, error)
	GetAddressUtxos(ctx context.Context, address string) ([]UTXO, error)
	// IsPrevoutSpent reports whether txid:vout is spent and, when the
	// backend knows it, by which transaction.
	IsPrevoutSpent(ctx context.Context, txid string, vout uint32) (bool, string, error)
	BroadcastTransaction(ctx context.Context, txHex string) (string, error)
	MineBlocks(ctx context.Context, n int, address string) ([]string, error)
	FundAddress(ctx context.Context, address string, amountBTC float64) (string, error)
}
