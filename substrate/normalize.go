package substrate

import (
	"encoding/hex"
	"reflect"
	"strings"

	"sigresponder/types"

	"github.com/centrifuge/go-substrate-rpc-client/v4/registry"
	"github.com/pkg/errors"
	"github.com/vedhavyas/go-subkey/v2"
)

const (
	EventSignatureRequested   = "Signet.SignatureRequested"
	EventSignRespondRequested = "Signet.SignRespondRequested"
)

var (
	ErrMissingField  = errors.New("event field missing")
	ErrUnknownSlip44 = errors.New("no chain configured for slip44 id")
)

// Decoder normalizes decoded pallet events into request events.
type Decoder struct {
	Slip44 map[uint32]string
	// SS58 prefix used to render sender accounts
	SS58Format uint16
}

type fields map[string]any

func fieldMap(decoded registry.DecodedFields) fields {
	out := make(fields, len(decoded))
	for _, f := range decoded {
		out[f.Name] = f.Value
	}
	return out
}

func (f fields) bytes(name string) ([]byte, error) {
	v, ok := f[name]
	if !ok {
		return nil, errors.Wrap(ErrMissingField, name)
	}
	return toBytes(v)
}

// text reads a Vec<u8> that carries text, dropping a SCALE length prefix
// left in front of it.
func (f fields) text(name string) (string, error) {
	b, err := f.bytes(name)
	if err != nil {
		return "", err
	}
	return string(StripCompactPrefix(b)), nil
}

func (f fields) uint(name string) (uint64, error) {
	v, ok := f[name]
	if !ok {
		return 0, errors.Wrap(ErrMissingField, name)
	}
	return toUint(v)
}

func (d *Decoder) sender(f fields) (string, error) {
	b, err := f.bytes("sender")
	if err != nil {
		return "", err
	}
	if len(b) != 32 {
		return "", errors.Errorf("sender account has %d bytes", len(b))
	}
	return subkey.SS58Encode(b, d.SS58Format), nil
}

// Decode handles the two request events of the pallet; ok is false for any
// other event.
func (d *Decoder) Decode(name string, decoded registry.DecodedFields) (ev types.Event, ok bool, err error) {
	f := fieldMap(decoded)
	switch name {
	case EventSignatureRequested:
		req, err := d.signatureRequested(f)
		if err != nil {
			return nil, true, errors.Wrap(err, name)
		}
		return types.SignatureRequested{Origin: types.OriginSubstrate, Request: *req}, true, nil
	case EventSignRespondRequested:
		req, err := d.signRespondRequested(f)
		if err != nil {
			return nil, true, errors.Wrap(err, name)
		}
		return types.BidirectionalRequested{Origin: types.OriginSubstrate, Request: *req}, true, nil
	}
	return nil, false, nil
}

func (d *Decoder) params(f fields) (types.SigningParams, error) {
	var p types.SigningParams
	kv, err := f.uint("key_version")
	if err != nil {
		return p, err
	}
	p.KeyVersion = uint32(kv)
	if p.Path, err = f.text("path"); err != nil {
		return p, err
	}
	if p.Algo, err = f.text("algo"); err != nil {
		return p, err
	}
	if p.Dest, err = f.text("dest"); err != nil {
		return p, err
	}
	p.Params, err = f.text("params")
	return p, err
}

func (d *Decoder) signatureRequested(f fields) (*types.SigningRequest, error) {
	sender, err := d.sender(f)
	if err != nil {
		return nil, err
	}
	payload, err := f.bytes("payload")
	if err != nil {
		return nil, err
	}
	if len(payload) != 32 {
		return nil, errors.Errorf("payload has %d bytes", len(payload))
	}
	params, err := d.params(f)
	if err != nil {
		return nil, err
	}
	chainID, err := f.text("chain_id")
	if err != nil {
		return nil, err
	}

	req := &types.SigningRequest{SigningParams: params, Sender: sender, ChainID: chainID}
	copy(req.Payload[:], payload)
	return req, nil
}

func (d *Decoder) signRespondRequested(f fields) (*types.BidirectionalRequest, error) {
	sender, err := d.sender(f)
	if err != nil {
		return nil, err
	}
	params, err := d.params(f)
	if err != nil {
		return nil, err
	}
	txData, err := f.bytes("transaction_data")
	if err != nil {
		return nil, err
	}
	slip44, err := f.uint("slip44_chain_id")
	if err != nil {
		return nil, err
	}
	caip2, ok := d.Slip44[uint32(slip44)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSlip44, "%d", slip44)
	}

	req := &types.BidirectionalRequest{
		SigningParams:         params,
		Sender:                sender,
		SerializedTransaction: txData,
		CAIP2ID:               caip2,
	}
	if req.OutputSchema, err = schema(f, "explorer_deserialization_format", "explorer_deserialization_schema"); err != nil {
		return nil, err
	}
	if req.CallbackSchema, err = schema(f, "callback_serialization_format", "callback_serialization_schema"); err != nil {
		return nil, err
	}
	return req, nil
}

func schema(f fields, formatField, rawField string) (types.Schema, error) {
	format, err := f.uint(formatField)
	if err != nil {
		return types.Schema{}, err
	}
	raw, err := f.bytes(rawField)
	if err != nil {
		return types.Schema{}, err
	}
	return types.Schema{Format: types.SerializationFormat(format), Raw: StripCompactPrefix(raw)}, nil
}

// StripCompactPrefix drops a leading SCALE compact length when it matches
// the remaining length exactly.
func StripCompactPrefix(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	var n uint64
	var size int
	switch b[0] & 0x03 {
	case 0:
		n, size = uint64(b[0]>>2), 1
	case 1:
		if len(b) < 2 {
			return b
		}
		n, size = uint64(uint16(b[0])|uint16(b[1])<<8)>>2, 2
	case 2:
		if len(b) < 4 {
			return b
		}
		n, size = uint64(uint32(b[0])|uint32(b[1])<<8|uint32(b[2])<<16|uint32(b[3])<<24)>>2, 4
	default:
		return b
	}
	if uint64(len(b)-size) != n {
		return b
	}
	return b[size:]
}

// toBytes flattens the shapes the registry decoder produces for byte
// sequences: raw slices, fixed arrays, slices of small integers, hex strings
// and single-field wrappers such as AccountId32.
func toBytes(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, errors.New("nil value")
	case []byte:
		return t, nil
	case string:
		if strings.HasPrefix(t, "0x") {
			return hex.DecodeString(t[2:])
		}
		return []byte(t), nil
	case registry.DecodedFields:
		if len(t) == 1 {
			return toBytes(t[0].Value)
		}
		var out []byte
		for _, f := range t {
			b, err := toBytes(f.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil, errors.New("nil value")
		}
		return toBytes(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			out := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(out), rv)
			return out, nil
		}
		out := make([]byte, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			n, err := toUint(rv.Index(i).Interface())
			if err != nil || n > 0xff {
				return nil, errors.Errorf("element %d is not a byte", i)
			}
			out[i] = byte(n)
		}
		return out, nil
	case reflect.Struct:
		if rv.NumField() == 1 && rv.Field(0).CanInterface() {
			return toBytes(rv.Field(0).Interface())
		}
	}
	return nil, errors.Errorf("cannot read %T as bytes", v)
}

func toUint(v any) (uint64, error) {
	if f, ok := v.(registry.DecodedFields); ok && len(f) == 1 {
		return toUint(f[0].Value)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() < 0 {
			return 0, errors.Errorf("negative value %d", rv.Int())
		}
		return uint64(rv.Int()), nil
	case reflect.Ptr:
		if !rv.IsNil() {
			return toUint(rv.Elem().Interface())
		}
	}
	return 0, errors.Errorf("cannot read %T as integer", v)
}
