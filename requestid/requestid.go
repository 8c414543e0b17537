// Package requestid computes the identifiers binding a signature to the
// exact request that asked for it. Origin programs compute the same ids on
// chain, so every encoding here is fixed.
package requestid

import (
	"encoding/binary"
	"math/big"

	"sigresponder/types"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

var (
	stringType, _  = abi.NewType("string", "", nil)
	bytesType, _   = abi.NewType("bytes", "", nil)
	uint32Type, _  = abi.NewType("uint32", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
)

func signArguments(chainIDType abi.Type) abi.Arguments {
	return abi.Arguments{
		{Type: stringType},  // sender
		{Type: bytesType},   // payload
		{Type: stringType},  // path
		{Type: uint32Type},  // key version
		{Type: chainIDType}, // chain id
		{Type: stringType},  // algo
		{Type: stringType},  // dest
		{Type: stringType},  // params
	}
}

var (
	numericArgs = signArguments(uint256Type)
	stringArgs  = signArguments(stringType)
)

// Numeric is the plain-sign id for EVM-style numeric chain ids.
func Numeric(sender string, payload []byte, path string, keyVersion uint32, chainID *big.Int, algo, dest, params string) (common.Hash, error) {
	if chainID == nil || chainID.Sign() < 0 {
		return common.Hash{}, errors.New("chain id must be a non-negative integer")
	}
	enc, err := numericArgs.Pack(sender, payload, path, keyVersion, chainID, algo, dest, params)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "abi encode")
	}
	return crypto.Keccak256Hash(enc), nil
}

// String is the plain-sign id with the chain id ABI-encoded as a string.
func String(sender string, payload []byte, path string, keyVersion uint32, chainID string, algo, dest, params string) (common.Hash, error) {
	enc, err := stringArgs.Pack(sender, payload, path, keyVersion, chainID, algo, dest, params)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "abi encode")
	}
	return crypto.Keccak256Hash(enc), nil
}

// ForSigningRequest picks the numeric variant when the chain id is a plain
// decimal number and the string variant otherwise.
func ForSigningRequest(r types.SigningRequest) (common.Hash, error) {
	if n, ok := decimal(r.ChainID); ok {
		return Numeric(r.Sender, r.Payload[:], r.Path, r.KeyVersion, n, r.Algo, r.Dest, r.Params)
	}
	return String(r.Sender, r.Payload[:], r.Path, r.KeyVersion, r.ChainID, r.Algo, r.Dest, r.Params)
}

func decimal(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return nil, false
		}
	}
	return new(big.Int).SetString(s, 10)
}

// SignRespond is keccak256 of the packed (unpadded) encoding of
// (string sender, bytes txData, string caip2Id, uint32 keyVersion,
// string path, string algo, string dest, string params).
func SignRespond(sender string, txData []byte, caip2ID string, keyVersion uint32, path, algo, dest, params string) common.Hash {
	var kv [4]byte
	binary.BigEndian.PutUint32(kv[:], keyVersion)

	return crypto.Keccak256Hash(
		[]byte(sender),
		txData,
		[]byte(caip2ID),
		kv[:],
		[]byte(path),
		[]byte(algo),
		[]byte(dest),
		[]byte(params),
	)
}

// ForBidirectional is the sign-respond id over the request's raw transaction.
func ForBidirectional(r types.BidirectionalRequest) common.Hash {
	return signRespondOver(r, r.SerializedTransaction)
}

// BitcoinTransaction is the sign-respond id over the txid in explorer byte
// order. This is the id a bip122 flow is answered under.
func BitcoinTransaction(r types.BidirectionalRequest, txid chainhash.Hash) common.Hash {
	return signRespondOver(r, displayBytes(txid))
}

// BitcoinInput folds the input index into the payload so each input's
// signature carries its own id.
func BitcoinInput(r types.BidirectionalRequest, txid chainhash.Hash, index uint32) common.Hash {
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], index)
	return signRespondOver(r, append(displayBytes(txid), idx[:]...))
}

func signRespondOver(r types.BidirectionalRequest, data []byte) common.Hash {
	return SignRespond(r.Sender, data, r.CAIP2ID, r.KeyVersion, r.Path, r.Algo, r.Dest, r.Params)
}

// chainhash stores hashes little-endian, explorers show them reversed
func displayBytes(h chainhash.Hash) []byte {
	out := make([]byte, chainhash.HashSize)
	for i := 0; i < chainhash.HashSize; i++ {
		out[i] = h[chainhash.HashSize-1-i]
	}
	return out
}
