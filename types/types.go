package types

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Origin is the chain a request was observed on, responses go back there
type Origin string

const (
	OriginSolana    Origin = "solana"
	OriginSubstrate Origin = "substrate"
)

// ChainNamespace is the CAIP-2 prefix of a destination chain
type ChainNamespace string

const (
	NamespaceEIP155 ChainNamespace = "eip155"
	NamespaceSolana ChainNamespace = "solana"
	NamespaceBIP122 ChainNamespace = "bip122"
)

var ErrUnsupportedNamespace = errors.New("unsupported chain namespace")

// ParseCAIP2 splits "namespace:reference" into its parts.
func ParseCAIP2(id string) (ChainNamespace, string, error) {
	ns, ref, ok := strings.Cut(id, ":")
	if !ok || ns == "" || ref == "" {
		return "", "", errors.Errorf("malformed CAIP-2 id %q", id)
	}
	return ChainNamespace(ns), ref, nil
}

// SigningParams are shared by plain and bidirectional requests
type SigningParams struct {
	KeyVersion uint32
	Path       string
	Algo       string
	Dest       string
	Params     string
}

// SigningRequest is a one-shot request to sign a 32-byte payload
type SigningRequest struct {
	SigningParams
	Sender  string
	Payload [32]byte
	ChainID string
}

type SerializationFormat uint8

const (
	FormatBorsh SerializationFormat = 0
	FormatABI   SerializationFormat = 1
)

// Schema is a serialization schema as shipped with a request
type Schema struct {
	Format SerializationFormat `json:"format"`
	Raw    []byte              `json:"raw"`
}

// BidirectionalRequest asks for a destination-chain transaction to be signed
// and, once executed, for its result to be reported back
type BidirectionalRequest struct {
	SigningParams
	Sender                string
	SerializedTransaction []byte
	CAIP2ID               string
	OutputSchema          Schema
	CallbackSchema        Schema
}

// Event is what origin feeds emit, one variant per request kind.
type Event interface {
	EventOrigin() Origin
}

type SignatureRequested struct {
	Origin  Origin
	Request SigningRequest
}

func (e SignatureRequested) EventOrigin() Origin { return e.Origin }

type BidirectionalRequested struct {
	Origin  Origin
	Request BidirectionalRequest
}

func (e BidirectionalRequested) EventOrigin() Origin { return e.Origin }

type AffinePoint struct {
	X [32]byte `json:"x"`
	Y [32]byte `json:"y"`
}

// Signature is the chain-agnostic shape every adapter emits
type Signature struct {
	BigR       AffinePoint `json:"bigR"`
	S          [32]byte    `json:"s"`
	RecoveryID uint8       `json:"recoveryId"`
}

// RSV returns the 65-byte r||s||v form used by go-ethereum.
func (s Signature) RSV() []byte {
	out := make([]byte, 0, 65)
	out = append(out, s.BigR.X[:]...)
	out = append(out, s.S[:]...)
	return append(out, s.RecoveryID)
}

type Prevout struct {
	TxID string `json:"txid"`
	Vout uint32 `json:"vout"`
}

// PendingTransaction tracks a signed destination transaction until it
// settles. Stored as JSON by the persistent registry stores.
type PendingTransaction struct {
	TxID           string         `json:"txId"`
	RequestID      common.Hash    `json:"requestId"`
	Namespace      ChainNamespace `json:"namespace"`
	CAIP2ID        string         `json:"caip2Id"`
	OutputSchema   Schema         `json:"outputSchema"`
	CallbackSchema Schema         `json:"callbackSchema"`
	Origin         Origin         `json:"origin"`
	Sender         string         `json:"sender"`
	FromAddress    string         `json:"fromAddress,omitempty"`
	Nonce          uint64         `json:"nonce,omitempty"`
	Prevouts       []Prevout      `json:"prevouts,omitempty"`
	CheckCount     int            `json:"checkCount"`
	TsCreated      int64          `json:"tsCreated"`
}

type MonitorStatus string

const (
	StatusPending    MonitorStatus = "pending"
	StatusSuccess    MonitorStatus = "success"
	StatusError      MonitorStatus = "error"
	StatusFatalError MonitorStatus = "fatal_error"
)

const (
	ReasonReverted         = "reverted"
	ReasonReplaced         = "replaced"
	ReasonInputsSpent      = "inputs_spent"
	ReasonUnsupportedChain = "unsupported_chain"
)

// ExecutionOutput is the decoded result of a destination transaction
type ExecutionOutput struct {
	Success        bool           `json:"success"`
	IsFunctionCall bool           `json:"isFunctionCall"`
	Fields         map[string]any `json:"fields,omitempty"`
}

// Lookup resolves a schema field name against the output.
func (o *ExecutionOutput) Lookup(name string) (any, bool) {
	switch name {
	case "success":
		return o.Success, true
	case "isFunctionCall":
		return o.IsFunctionCall, true
	}
	v, ok := o.Fields[name]
	return v, ok
}

type MonitorResult struct {
	Status MonitorStatus
	Output *ExecutionOutput
	Reason string
}

func Pending() MonitorResult { return MonitorResult{Status: StatusPending} }

func Failed(reason string) MonitorResult {
	return MonitorResult{Status: StatusError, Reason: reason}
}

func Fatal(reason string) MonitorResult {
	return MonitorResult{Status: StatusFatalError, Reason: reason}
}

func Succeeded(out *ExecutionOutput) MonitorResult {
	return MonitorResult{Status: StatusSuccess, Output: out}
}

// NonFunctionCallSuccess is reported when there is no return value to decode.
func NonFunctionCallSuccess() *ExecutionOutput {
	return &ExecutionOutput{Success: true, IsFunctionCall: false}
}

// ErrorResponse reports a request that cannot be served.
type ErrorResponse struct {
	RequestID common.Hash
	Message   string
}
