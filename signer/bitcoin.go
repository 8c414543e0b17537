package signer

import (
	"bytes"
	"crypto/ecdsa"

	"sigresponder/types"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// BitcoinInput is the per-input signing material of a PSBT.
type BitcoinInput struct {
	Index    uint32
	Sighash  [32]byte
	HashType txscript.SigHashType
	Prevout  types.Prevout
	// witness program of the spent P2WPKH output
	PubKeyHash []byte
}

// BitcoinPrepared is a validated PSBT ready to be signed input by input.
type BitcoinPrepared struct {
	TxID   chainhash.Hash
	Tx     *wire.MsgTx
	Inputs []BitcoinInput
}

func (p *BitcoinPrepared) Prevouts() []types.Prevout {
	out := make([]types.Prevout, len(p.Inputs))
	for i, in := range p.Inputs {
		out[i] = in.Prevout
	}
	return out
}

type BitcoinAdapter struct {
	params *chaincfg.Params
}

// NewBitcoinAdapter accepts "testnet" or "regtest".
func NewBitcoinAdapter(network string) (*BitcoinAdapter, error) {
	params, err := NetworkParams(network)
	if err != nil {
		return nil, err
	}
	return &BitcoinAdapter{params: params}, nil
}

func NetworkParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	}
	return nil, errors.Errorf("unsupported bitcoin network %q", network)
}

// Address is the P2WPKH address of pub on the adapter's network.
func (a *BitcoinAdapter) Address(pub *ecdsa.PublicKey) (string, error) {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(crypto.CompressPubkey(pub)), a.params)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// Prepare parses a PSBT (binary or base64) and computes the BIP-143 sighash
// of every input. Only native SegWit v0 P2WPKH inputs with witness UTXO
// data are accepted.
func (a *BitcoinAdapter) Prepare(raw []byte) (*BitcoinPrepared, error) {
	packet, err := parsePSBT(raw)
	if err != nil {
		return nil, errors.Wrap(ErrUnsupportedInput, err.Error())
	}
	tx := packet.UnsignedTx
	if len(tx.TxIn) == 0 {
		return nil, errors.Wrap(ErrUnsupportedInput, "psbt has no inputs")
	}

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range packet.Inputs {
		if in.WitnessUtxo == nil {
			return nil, errors.Wrapf(ErrUnsupportedInput, "input %d has no witness utxo", i)
		}
		if !txscript.IsPayToWitnessPubKeyHash(in.WitnessUtxo.PkScript) {
			return nil, errors.Wrapf(ErrUnsupportedInput, "input %d is not P2WPKH", i)
		}
		fetcher.AddPrevOut(tx.TxIn[i].PreviousOutPoint, in.WitnessUtxo)
	}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	prepared := &BitcoinPrepared{TxID: tx.TxHash(), Tx: tx}
	for i, in := range packet.Inputs {
		program := in.WitnessUtxo.PkScript[2:22]
		scriptCode, err := p2pkhScript(program)
		if err != nil {
			return nil, err
		}

		hashType := txscript.SigHashAll
		if in.SighashType != 0 {
			hashType = in.SighashType
		}

		sighash, err := txscript.CalcWitnessSigHash(scriptCode, sigHashes, hashType, tx, i, in.WitnessUtxo.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "sighash of input %d", i)
		}

		outpoint := tx.TxIn[i].PreviousOutPoint
		bi := BitcoinInput{
			Index:      uint32(i),
			HashType:   hashType,
			Prevout:    types.Prevout{TxID: outpoint.Hash.String(), Vout: outpoint.Index},
			PubKeyHash: append([]byte{}, program...),
		}
		copy(bi.Sighash[:], sighash)
		prepared.Inputs = append(prepared.Inputs, bi)
	}

	return prepared, nil
}

// SignInputs produces one low-S signature per input, each over its own
// sighash. Inputs locked to a different key are rejected.
func (a *BitcoinAdapter) SignInputs(prepared *BitcoinPrepared, key *ecdsa.PrivateKey) ([]types.Signature, error) {
	pkh := btcutil.Hash160(crypto.CompressPubkey(&key.PublicKey))

	sigs := make([]types.Signature, 0, len(prepared.Inputs))
	for _, in := range prepared.Inputs {
		if !bytes.Equal(in.PubKeyHash, pkh) {
			return nil, errors.Wrapf(ErrUnsupportedInput, "input %d is not locked to the derived key", in.Index)
		}
		sig, err := SignDigest(key, in.Sighash[:])
		if err != nil {
			return nil, errors.Wrapf(err, "input %d", in.Index)
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// DER encodes sig for a witness stack, with the sighash type appended.
func DER(sig types.Signature, hashType txscript.SigHashType) []byte {
	var r, s btcec.ModNScalar
	r.SetBytes(&sig.BigR.X)
	s.SetBytes(&sig.S)
	return append(btcecdsa.NewSignature(&r, &s).Serialize(), byte(hashType))
}

// ApplyWitnesses fills the P2WPKH witness of every input of the prepared tx.
func ApplyWitnesses(prepared *BitcoinPrepared, sigs []types.Signature, pub *ecdsa.PublicKey) (*wire.MsgTx, error) {
	if len(sigs) != len(prepared.Inputs) {
		return nil, errors.Errorf("have %d signatures for %d inputs", len(sigs), len(prepared.Inputs))
	}
	tx := prepared.Tx.Copy()
	compressed := crypto.CompressPubkey(pub)
	for i, in := range prepared.Inputs {
		tx.TxIn[in.Index].Witness = wire.TxWitness{DER(sigs[i], in.HashType), compressed}
	}
	return tx, nil
}

func p2pkhScript(pubKeyHash []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(pubKeyHash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

var psbtBase64Magic = []byte("cHNidP")

func parsePSBT(raw []byte) (*psbt.Packet, error) {
	return psbt.NewFromRawBytes(bytes.NewReader(raw), bytes.HasPrefix(raw, psbtBase64Magic))
}
