// Package handlers serves the responder's read-only status API.
package handlers

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"sigresponder/BTCRPC"
	"sigresponder/types"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// PendingSource is the registry view the handlers read.
type PendingSource interface {
	Snapshot() []types.PendingTransaction
}

// Balancer reads native balances on one EVM chain.
type Balancer interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// AddressEncoder renders a public key as a Bitcoin address.
type AddressEncoder interface {
	Address(pub *ecdsa.PublicKey) (string, error)
}

type API struct {
	Pending PendingSource
	// root public key, derived keys are computed from it without the secret
	RootPublicKey *ecdsa.PublicKey
	Bitcoin       AddressEncoder
	BitcoinRPC    BTCRPC.Backend
	// zero address disables /funding
	FundingAddress common.Address
	FundingChains  map[int64]Balancer
	Logger         *zap.Logger
}
