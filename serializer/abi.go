package serializer

import (
	"encoding/json"
	"math/big"
	"reflect"
	"strings"

	"sigresponder/borsh"
	"sigresponder/types"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

var abiBool = func() abi.Arguments {
	t, _ := abi.NewType("bool", "", nil)
	return abi.Arguments{{Type: t}}
}()

// ParseABISchema reads a `[{"name": ..., "type": ...}]` schema.
func ParseABISchema(raw []byte) (abi.Arguments, error) {
	var fields []abi.ArgumentMarshaling
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.Wrap(err, "abi schema")
	}

	args := make(abi.Arguments, 0, len(fields))
	for _, f := range fields {
		t, err := abi.NewType(f.Type, f.InternalType, f.Components)
		if err != nil {
			return nil, errors.Wrapf(err, "abi schema field %s", f.Name)
		}
		args = append(args, abi.Argument{Name: f.Name, Type: t})
	}
	return args, nil
}

func serializeABI(out *types.ExecutionOutput, raw []byte) ([]byte, error) {
	args, err := ParseABISchema(raw)
	if err != nil {
		return nil, err
	}

	values := make([]any, 0, len(args))
	for _, arg := range args {
		v, ok := out.Lookup(arg.Name)
		if !ok {
			return nil, errors.Wrap(ErrMissingField, arg.Name)
		}
		cv, err := coerce(arg.Type, v)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", arg.Name)
		}
		values = append(values, cv.Interface())
	}

	return args.Pack(values...)
}

// DecodeABI unpacks data by schema into a name-keyed map.
func DecodeABI(raw, data []byte) (map[string]any, error) {
	args, err := ParseABISchema(raw)
	if err != nil {
		return nil, err
	}
	values, err := args.Unpack(data)
	if err != nil {
		return nil, errors.Wrap(err, "abi decode")
	}
	out := make(map[string]any, len(values))
	for i, arg := range args {
		out[arg.Name] = values[i]
	}
	return out, nil
}

// coerce builds the exact Go type abi.Arguments.Pack expects for t.
func coerce(t abi.Type, v any) (reflect.Value, error) {
	target := t.GetType()
	if v != nil && reflect.TypeOf(v) == target {
		return reflect.ValueOf(v), nil
	}

	switch t.T {
	case abi.BoolTy:
		b, ok := v.(bool)
		if !ok {
			return reflect.Value{}, errors.Errorf("expected bool, got %T", v)
		}
		return reflect.ValueOf(b), nil
	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return reflect.Value{}, errors.Errorf("expected string, got %T", v)
		}
		return reflect.ValueOf(s), nil
	case abi.IntTy, abi.UintTy:
		n, err := borsh.ToBigInt(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return integer(target, n)
	case abi.AddressTy:
		switch a := v.(type) {
		case string:
			if !common.IsHexAddress(a) {
				return reflect.Value{}, errors.Errorf("invalid address %q", a)
			}
			return reflect.ValueOf(common.HexToAddress(a)), nil
		case []byte:
			return reflect.ValueOf(common.BytesToAddress(a)), nil
		}
	case abi.BytesTy:
		b, err := toBytes(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil
	case abi.FixedBytesTy:
		b, err := toBytes(v)
		if err != nil {
			return reflect.Value{}, err
		}
		if len(b) != t.Size {
			return reflect.Value{}, errors.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		arr := reflect.New(target).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr, nil
	case abi.SliceTy, abi.ArrayTy:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return reflect.Value{}, errors.Errorf("expected sequence, got %T", v)
		}
		var seq reflect.Value
		if t.T == abi.SliceTy {
			seq = reflect.MakeSlice(target, rv.Len(), rv.Len())
		} else {
			if rv.Len() != t.Size {
				return reflect.Value{}, errors.Errorf("expected %d elements, got %d", t.Size, rv.Len())
			}
			seq = reflect.New(target).Elem()
		}
		for i := 0; i < rv.Len(); i++ {
			ev, err := coerce(*t.Elem, rv.Index(i).Interface())
			if err != nil {
				return reflect.Value{}, errors.Wrapf(err, "element %d", i)
			}
			seq.Index(i).Set(ev)
		}
		return seq, nil
	case abi.TupleTy:
		m, ok := v.(map[string]any)
		if !ok {
			return reflect.Value{}, errors.Errorf("expected tuple map, got %T", v)
		}
		tuple := reflect.New(target).Elem()
		for i, name := range t.TupleRawNames {
			fv, ok := m[name]
			if !ok {
				return reflect.Value{}, errors.Wrap(ErrMissingField, name)
			}
			ev, err := coerce(*t.TupleElems[i], fv)
			if err != nil {
				return reflect.Value{}, errors.Wrapf(err, "tuple field %s", name)
			}
			tuple.Field(i).Set(ev)
		}
		return tuple, nil
	}
	return reflect.Value{}, errors.Errorf("cannot encode %T as %s", v, t.String())
}

func integer(target reflect.Type, n *big.Int) (reflect.Value, error) {
	if target == reflect.TypeOf(&big.Int{}) {
		return reflect.ValueOf(n), nil
	}
	out := reflect.New(target).Elem()
	switch target.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n.Sign() < 0 || !n.IsUint64() || out.OverflowUint(n.Uint64()) {
			return reflect.Value{}, errors.Errorf("%s overflows %s", n, target)
		}
		out.SetUint(n.Uint64())
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if !n.IsInt64() || out.OverflowInt(n.Int64()) {
			return reflect.Value{}, errors.Errorf("%s overflows %s", n, target)
		}
		out.SetInt(n.Int64())
	default:
		return reflect.Value{}, errors.Errorf("unexpected integer type %s", target)
	}
	return out, nil
}

func toBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		if strings.HasPrefix(b, "0x") {
			return hexutil.Decode(b)
		}
		return []byte(b), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		out := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(out), rv)
		return out, nil
	}
	return nil, errors.Errorf("expected bytes, got %T", v)
}
