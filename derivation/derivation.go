// Package derivation maps a root secp256k1 key onto per-request child keys.
//
// The child offset ("epsilon") is the keccak-256 of
// "sig.network v1.0.0 epsilon derivation,<chainId>,<predecessor>,<path>"
// read as a big-endian integer. The private child is root+epsilon mod n and
// the public child is rootPub+epsilon*G, so both forms always agree.
package derivation

import (
	"crypto/ecdsa"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const epsilonPrefix = "sig.network v1.0.0 epsilon derivation"

// Epsilon returns the derivation offset reduced mod n.
func Epsilon(chainID, predecessor, path string) *btcec.ModNScalar {
	h := crypto.Keccak256([]byte(epsilonPrefix + "," + chainID + "," + predecessor + "," + path))
	var eps btcec.ModNScalar
	eps.SetByteSlice(h)
	return &eps
}

// DerivePrivateKey returns (root + epsilon) mod n.
func DerivePrivateKey(root *ecdsa.PrivateKey, chainID, predecessor, path string) (*ecdsa.PrivateKey, error) {
	if root == nil {
		return nil, errors.New("nil root key")
	}

	var k btcec.ModNScalar
	if overflow := k.SetByteSlice(math.PaddedBigBytes(root.D, 32)); overflow {
		return nil, errors.New("root key is not a valid scalar")
	}
	k.Add(Epsilon(chainID, predecessor, path))
	if k.IsZero() {
		return nil, errors.New("derived key is zero")
	}

	b := k.Bytes()
	return crypto.ToECDSA(b[:])
}

// DerivePublicKey returns rootPub + epsilon*G.
func DerivePublicKey(root *ecdsa.PublicKey, chainID, predecessor, path string) (*ecdsa.PublicKey, error) {
	if root == nil {
		return nil, errors.New("nil root public key")
	}

	rootPub, err := btcec.ParsePubKey(crypto.FromECDSAPub(root))
	if err != nil {
		return nil, errors.Wrap(err, "invalid root public key")
	}

	var rootJ, epsJ, sum btcec.JacobianPoint
	rootPub.AsJacobian(&rootJ)
	btcec.ScalarBaseMultNonConst(Epsilon(chainID, predecessor, path), &epsJ)
	btcec.AddNonConst(&rootJ, &epsJ, &sum)
	if (sum.X.IsZero() && sum.Y.IsZero()) || sum.Z.IsZero() {
		return nil, errors.New("derived point is at infinity")
	}
	sum.ToAffine()

	return crypto.UnmarshalPubkey(btcec.NewPublicKey(&sum.X, &sum.Y).SerializeUncompressed())
}
