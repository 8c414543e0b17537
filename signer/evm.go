package signer

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync/atomic"
	"time"

	"sigresponder/metrics"
	"sigresponder/types"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// gas of a plain value transfer
const transferGas = 21000

// unsigned EIP-1559 payload, without the 0x02 type byte
type unsignedDynamicFeeTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Gas        uint64
	To         *common.Address `rlp:"nil"`
	Value      *big.Int
	Data       []byte
	AccessList ethtypes.AccessList
}

// unsigned legacy payload; EIP-155 appends chainId, 0, 0
type unsignedLegacyTx struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *common.Address `rlp:"nil"`
	Value    *big.Int
	Data     []byte
	ChainID  *big.Int `rlp:"optional"`
	Zero1    uint64   `rlp:"optional"`
	Zero2    uint64   `rlp:"optional"`
}

// EVMResult is what a signed EVM request hands back.
type EVMResult struct {
	Signature types.Signature
	SignedTx  []byte
	TxHash    common.Hash
	From      common.Address
	Nonce     uint64
	ChainID   *big.Int
}

// FundingBackend is the slice of an EVM client needed to top up a derived
// address and wait for the top-up to land.
type FundingBackend interface {
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}

// FundingBackends resolves the backend for a chain id.
type FundingBackends func(chainID *big.Int) (FundingBackend, bool)

type EVMAdapter struct {
	funder      *ecdsa.PrivateKey
	backends    FundingBackends
	waitTimeout time.Duration
	fundingDown atomic.Bool
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewEVMAdapter builds the adapter. A nil funder disables gas top-ups.
func NewEVMAdapter(funder *ecdsa.PrivateKey, backends FundingBackends, waitTimeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *EVMAdapter {
	return &EVMAdapter{
		funder:      funder,
		backends:    backends,
		waitTimeout: waitTimeout,
		metrics:     m,
		logger:      logger,
	}
}

// FundingDisabled reports whether the funding path tripped.
func (a *EVMAdapter) FundingDisabled() bool {
	return a.fundingDown.Load()
}

// Sign signs keccak256(unsigned) with key and assembles the signed transaction.
func (a *EVMAdapter) Sign(ctx context.Context, unsigned []byte, key *ecdsa.PrivateKey, caip2ID string) (*EVMResult, error) {
	ns, ref, err := types.ParseCAIP2(caip2ID)
	if err != nil {
		return nil, errors.Wrap(ErrUnsupportedInput, err.Error())
	}
	if ns != types.NamespaceEIP155 {
		return nil, errors.Wrapf(ErrUnsupportedInput, "namespace %s is not eip155", ns)
	}
	chainID, ok := new(big.Int).SetString(ref, 10)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedInput, "chain reference %q", ref)
	}

	tx, signer, err := decodeUnsigned(unsigned, chainID)
	if err != nil {
		return nil, err
	}

	digest := crypto.Keccak256Hash(unsigned)
	if signer.Hash(tx) != digest {
		return nil, errors.Wrap(ErrUnsupportedInput, "non-canonical transaction encoding")
	}

	sig, err := SignDigest(key, digest[:])
	if err != nil {
		return nil, err
	}

	signed, err := tx.WithSignature(signer, sig.RSV())
	if err != nil {
		return nil, errors.Wrap(err, "attach signature")
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "encode signed transaction")
	}

	from := crypto.PubkeyToAddress(key.PublicKey)
	if sender, err := ethtypes.Sender(signer, signed); err != nil || sender != from {
		return nil, errors.New("signed transaction does not recover to the derived address")
	}

	a.ensureFunded(ctx, chainID, from, signed.Cost())

	return &EVMResult{
		Signature: sig,
		SignedTx:  raw,
		TxHash:    signed.Hash(),
		From:      from,
		Nonce:     signed.Nonce(),
		ChainID:   chainID,
	}, nil
}

func decodeUnsigned(unsigned []byte, chainID *big.Int) (*ethtypes.Transaction, ethtypes.Signer, error) {
	if len(unsigned) == 0 {
		return nil, nil, errors.Wrap(ErrUnsupportedInput, "empty transaction")
	}

	if unsigned[0] == ethtypes.DynamicFeeTxType {
		var dyn unsignedDynamicFeeTx
		if err := rlp.DecodeBytes(unsigned[1:], &dyn); err != nil {
			return nil, nil, errors.Wrap(ErrUnsupportedInput, err.Error())
		}
		if dyn.ChainID == nil || dyn.ChainID.Cmp(chainID) != 0 {
			return nil, nil, errors.Wrapf(ErrUnsupportedInput, "transaction chain id %v does not match %v", dyn.ChainID, chainID)
		}
		tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:    dyn.ChainID,
			Nonce:      dyn.Nonce,
			GasTipCap:  dyn.GasTipCap,
			GasFeeCap:  dyn.GasFeeCap,
			Gas:        dyn.Gas,
			To:         dyn.To,
			Value:      dyn.Value,
			Data:       dyn.Data,
			AccessList: dyn.AccessList,
		})
		return tx, ethtypes.NewLondonSigner(chainID), nil
	}

	if unsigned[0] < 0xc0 {
		return nil, nil, errors.Wrapf(ErrUnsupportedInput, "transaction type 0x%02x", unsigned[0])
	}

	var legacy unsignedLegacyTx
	if err := rlp.DecodeBytes(unsigned, &legacy); err != nil {
		return nil, nil, errors.Wrap(ErrUnsupportedInput, err.Error())
	}
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    legacy.Nonce,
		GasPrice: legacy.GasPrice,
		Gas:      legacy.Gas,
		To:       legacy.To,
		Value:    legacy.Value,
		Data:     legacy.Data,
	})
	if legacy.ChainID == nil {
		return tx, ethtypes.HomesteadSigner{}, nil
	}
	if legacy.ChainID.Cmp(chainID) != 0 || legacy.Zero1 != 0 || legacy.Zero2 != 0 {
		return nil, nil, errors.Wrapf(ErrUnsupportedInput, "malformed EIP-155 fields for chain %v", chainID)
	}
	return tx, ethtypes.NewEIP155Signer(chainID), nil
}

// ensureFunded tops up addr when it cannot cover need. The first failure
// disables funding for the rest of the process; signing never waits on it.
func (a *EVMAdapter) ensureFunded(ctx context.Context, chainID *big.Int, addr common.Address, need *big.Int) {
	if a.funder == nil || a.backends == nil || a.fundingDown.Load() {
		return
	}
	backend, ok := a.backends(chainID)
	if !ok {
		return
	}

	funded, err := a.fund(ctx, backend, chainID, addr, need)
	if err != nil {
		a.metrics.FundingResult("failed")
		if a.fundingDown.CompareAndSwap(false, true) {
			a.logger.Sugar().Errorw("Funding provider failed, gas top-ups disabled", "chainId", chainID, "address", addr.Hex(), "error", err)
		}
		return
	}
	if funded {
		a.metrics.FundingResult("funded")
	}
}

func (a *EVMAdapter) fund(ctx context.Context, backend FundingBackend, chainID *big.Int, addr common.Address, need *big.Int) (bool, error) {
	balance, err := backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return false, errors.Wrap(err, "balance")
	}
	if balance.Cmp(need) >= 0 {
		return false, nil
	}
	amount := new(big.Int).Sub(need, balance)

	funderAddr := crypto.PubkeyToAddress(a.funder.PublicKey)
	nonce, err := backend.PendingNonceAt(ctx, funderAddr)
	if err != nil {
		return false, errors.Wrap(err, "funder nonce")
	}
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return false, errors.Wrap(err, "gas price")
	}

	tx, err := ethtypes.SignTx(ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      transferGas,
		To:       &addr,
		Value:    amount,
	}), ethtypes.NewEIP155Signer(chainID), a.funder)
	if err != nil {
		return false, errors.Wrap(err, "sign funding transaction")
	}
	if err := backend.SendTransaction(ctx, tx); err != nil {
		return false, errors.Wrap(err, "send funding transaction")
	}

	a.logger.Sugar().Infow("Funding derived address", "chainId", chainID, "address", addr.Hex(), "amount", amount, "tx", tx.Hash().Hex())

	waitCtx, cancel := context.WithTimeout(ctx, a.waitTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, backend, tx)
	if err != nil {
		return false, errors.Wrap(err, "wait for funding transaction")
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return false, errors.Errorf("funding transaction %s reverted", tx.Hash().Hex())
	}
	return true, nil
}
