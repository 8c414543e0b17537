// Package serializer re-encodes destination execution results for the
// origin-chain callback, in Borsh (format 0) or ABI (format 1).
package serializer

import (
	"sigresponder/borsh"
	"sigresponder/types"

	"github.com/pkg/errors"
)

// ErrorPrefix marks failure payloads so callbacks can tell them apart from
// successes of the same shape.
var ErrorPrefix = []byte{0xde, 0xad, 0xbe, 0xef}

// NonFunctionCallString fills string fields when a transaction had no
// return value to decode.
const NonFunctionCallString = "non_function_call_success"

var (
	ErrMissingField      = errors.New("missing output field")
	ErrUnsupportedFormat = errors.New("unsupported serialization format")
)

// Serialize encodes out according to schema.
func Serialize(out *types.ExecutionOutput, schema types.Schema) ([]byte, error) {
	if out == nil {
		return nil, errors.New("nil execution output")
	}
	switch schema.Format {
	case types.FormatBorsh:
		return serializeBorsh(out, schema.Raw)
	case types.FormatABI:
		return serializeABI(out, schema.Raw)
	}
	return nil, errors.Wrapf(ErrUnsupportedFormat, "format %d", schema.Format)
}

// ValidateSchema checks that schema can be parsed, so a request whose
// callback could never be encoded is rejected before anything is signed.
func ValidateSchema(schema types.Schema) error {
	var err error
	switch schema.Format {
	case types.FormatBorsh:
		_, err = borsh.ParseSchema(schema.Raw)
	case types.FormatABI:
		_, err = ParseABISchema(schema.Raw)
	default:
		return errors.Wrapf(ErrUnsupportedFormat, "format %d", schema.Format)
	}
	return errors.Wrap(err, "schema")
}

// ErrorPayload is the magic prefix followed by {error: true} in the
// callback's format.
func ErrorPayload(format types.SerializationFormat) ([]byte, error) {
	var body []byte
	switch format {
	case types.FormatBorsh:
		body = []byte{1}
	case types.FormatABI:
		enc, err := abiBool.Pack(true)
		if err != nil {
			return nil, err
		}
		body = enc
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "format %d", format)
	}
	return append(append([]byte{}, ErrorPrefix...), body...), nil
}

// IsErrorPayload reports whether data carries the failure prefix.
func IsErrorPayload(data []byte) bool {
	if len(data) < len(ErrorPrefix) {
		return false
	}
	for i, b := range ErrorPrefix {
		if data[i] != b {
			return false
		}
	}
	return true
}

// Deserialize is the inverse of Serialize. "success" and "isFunctionCall"
// fields land on the typed flags, everything else in Fields.
func Deserialize(data []byte, schema types.Schema) (*types.ExecutionOutput, error) {
	if IsErrorPayload(data) {
		return nil, errors.New("payload is an error response")
	}

	var fields map[string]any
	var err error
	switch schema.Format {
	case types.FormatBorsh:
		fields, err = deserializeBorsh(data, schema.Raw)
	case types.FormatABI:
		fields, err = DecodeABI(schema.Raw, data)
	default:
		err = errors.Wrapf(ErrUnsupportedFormat, "format %d", schema.Format)
	}
	if err != nil {
		return nil, err
	}

	out := &types.ExecutionOutput{}
	for name, v := range fields {
		switch name {
		case "success":
			out.Success, _ = v.(bool)
		case "isFunctionCall":
			out.IsFunctionCall, _ = v.(bool)
		default:
			if out.Fields == nil {
				out.Fields = map[string]any{}
			}
			out.Fields[name] = v
		}
	}
	return out, nil
}
