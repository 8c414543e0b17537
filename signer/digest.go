// Package signer turns derived keys into chain-native signatures.
package signer

import (
	"crypto/ecdsa"
	"math/big"

	"sigresponder/types"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// ErrUnsupportedInput is returned for transactions or PSBTs the adapters
// refuse to sign.
var ErrUnsupportedInput = errors.New("unsupported signing input")

var (
	curveOrder = crypto.S256().Params().N
	halfOrder  = new(big.Int).Rsh(curveOrder, 1)
)

// SignDigest signs a 32-byte digest and returns the canonical low-S form.
func SignDigest(key *ecdsa.PrivateKey, digest []byte) (types.Signature, error) {
	if len(digest) != 32 {
		return types.Signature{}, errors.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	rsv, err := crypto.Sign(digest, key)
	if err != nil {
		return types.Signature{}, errors.Wrap(err, "sign digest")
	}
	return Canonical(rsv)
}

// Canonical converts r||s||v into a Signature, normalizing s to the lower
// half of the curve order and recovering the full R point.
func Canonical(rsv []byte) (types.Signature, error) {
	if len(rsv) != 65 {
		return types.Signature{}, errors.Errorf("signature must be 65 bytes, got %d", len(rsv))
	}
	recID := rsv[64]
	if recID > 1 {
		return types.Signature{}, errors.Errorf("unsupported recovery id %d", recID)
	}

	s, recID := NormalizeLowS(new(big.Int).SetBytes(rsv[32:64]), recID)

	var sig types.Signature
	copy(sig.BigR.X[:], rsv[:32])
	s.FillBytes(sig.S[:])
	sig.RecoveryID = recID

	// R's x is r since r < p - n is overwhelmingly likely; y parity is the recovery id
	r, err := btcec.ParsePubKey(append([]byte{0x02 + recID}, rsv[:32]...))
	if err != nil {
		return types.Signature{}, errors.Wrap(err, "recover R point")
	}
	copy(sig.BigR.Y[:], r.SerializeUncompressed()[33:])

	return sig, nil
}

// NormalizeLowS negates s when it exceeds n/2 and flips the recovery id to
// match the negated point.
func NormalizeLowS(s *big.Int, recID uint8) (*big.Int, uint8) {
	if s.Cmp(halfOrder) <= 0 {
		return s, recID
	}
	return new(big.Int).Sub(curveOrder, s), recID ^ 1
}

// Verify checks sig against pub for digest.
func Verify(pub *ecdsa.PublicKey, digest []byte, sig types.Signature) bool {
	rsv := sig.RSV()
	return crypto.VerifySignature(crypto.CompressPubkey(pub), digest, rsv[:64])
}

// Recover returns the public key that produced sig over digest.
func Recover(digest []byte, sig types.Signature) (*ecdsa.PublicKey, error) {
	return crypto.SigToPub(digest, sig.RSV())
}
