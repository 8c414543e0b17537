// Package solana is the program-style origin: it follows the signet program
// through its CPI events and answers through its respond instructions.
package solana

import (
	"bytes"
	"crypto/sha256"

	"sigresponder/borsh"
	"sigresponder/types"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// emit_cpi! prefixes every self-invoked event instruction with this tag
var eventIxTag = []byte{0xe4, 0x45, 0xa5, 0x2e, 0x51, 0xcb, 0x9a, 0x1d}

var (
	signatureRequestedDisc   = discriminator("event:SignatureRequestedEvent")
	signRespondRequestedDisc = discriminator("event:SignRespondRequestedEvent")

	respondDisc      = discriminator("global:respond")
	readRespondDisc  = discriminator("global:read_respond")
	respondErrorDisc = discriminator("global:respond_error")
)

var (
	ErrNotEvent       = errors.New("instruction is not a program event")
	ErrUnknownSlip44  = errors.New("no chain configured for slip44 id")
	ErrUnhandledEvent = errors.New("event is not a signing request")
)

func discriminator(name string) []byte {
	h := sha256.Sum256([]byte(name))
	return h[:8]
}

// Decoder turns program event instructions into request events.
type Decoder struct {
	// slip44 coin type to CAIP-2 id
	Slip44 map[uint32]string
}

// Decode parses the data of one self-invoked event instruction.
func (d *Decoder) Decode(data []byte) (types.Event, error) {
	if len(data) < 16 || !bytes.HasPrefix(data, eventIxTag) {
		return nil, ErrNotEvent
	}
	disc, body := data[8:16], data[16:]

	switch {
	case bytes.Equal(disc, signatureRequestedDisc):
		req, err := decodeSignatureRequested(body)
		if err != nil {
			return nil, errors.Wrap(err, "SignatureRequestedEvent")
		}
		return types.SignatureRequested{Origin: types.OriginSolana, Request: *req}, nil
	case bytes.Equal(disc, signRespondRequestedDisc):
		req, err := d.decodeSignRespondRequested(body)
		if err != nil {
			return nil, errors.Wrap(err, "SignRespondRequestedEvent")
		}
		return types.BidirectionalRequested{Origin: types.OriginSolana, Request: *req}, nil
	}
	return nil, ErrUnhandledEvent
}

// errReader keeps the first read error so field lists decode linearly.
type errReader struct {
	r   *borsh.Reader
	err error
}

func (e *errReader) fixed(n int) []byte {
	if e.err != nil {
		return nil
	}
	b, err := e.r.ReadFixed(n)
	e.err = err
	return b
}

func (e *errReader) u8() uint8 {
	if e.err != nil {
		return 0
	}
	v, err := e.r.ReadU8()
	e.err = err
	return v
}

func (e *errReader) u32() uint32 {
	if e.err != nil {
		return 0
	}
	v, err := e.r.ReadU32()
	e.err = err
	return v
}

func (e *errReader) u64() uint64 {
	if e.err != nil {
		return 0
	}
	v, err := e.r.ReadU64()
	e.err = err
	return v
}

func (e *errReader) bytes() []byte {
	if e.err != nil {
		return nil
	}
	v, err := e.r.ReadBytes()
	e.err = err
	return v
}

func (e *errReader) str() string {
	if e.err != nil {
		return ""
	}
	v, err := e.r.ReadString()
	e.err = err
	return v
}

func (e *errReader) pubkey() string {
	b := e.fixed(32)
	if e.err != nil {
		return ""
	}
	return solanago.PublicKeyFromBytes(b).String()
}

func decodeSignatureRequested(body []byte) (*types.SigningRequest, error) {
	r := &errReader{r: borsh.NewReader(body)}
	req := &types.SigningRequest{}
	req.Sender = r.pubkey()
	copy(req.Payload[:], r.fixed(32))
	req.KeyVersion = r.u32()
	r.u64() // deposit
	req.ChainID = r.str()
	req.Path = r.str()
	req.Algo = r.str()
	req.Dest = r.str()
	req.Params = r.str()
	// fee_payer is optional and unused
	if r.err != nil {
		return nil, r.err
	}
	return req, nil
}

func (d *Decoder) decodeSignRespondRequested(body []byte) (*types.BidirectionalRequest, error) {
	r := &errReader{r: borsh.NewReader(body)}
	req := &types.BidirectionalRequest{}
	req.Sender = r.pubkey()
	req.SerializedTransaction = r.bytes()
	slip44 := r.u32()
	req.KeyVersion = r.u32()
	r.u64() // deposit
	req.Path = r.str()
	req.Algo = r.str()
	req.Dest = r.str()
	req.Params = r.str()
	req.OutputSchema.Format = types.SerializationFormat(r.u8())
	req.OutputSchema.Raw = r.bytes()
	req.CallbackSchema.Format = types.SerializationFormat(r.u8())
	req.CallbackSchema.Raw = r.bytes()
	if r.err != nil {
		return nil, r.err
	}

	caip2, ok := d.Slip44[slip44]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSlip44, "%d", slip44)
	}
	req.CAIP2ID = caip2
	return req, nil
}
