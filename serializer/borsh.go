package serializer

import (
	"fmt"
	"reflect"

	"sigresponder/borsh"
	"sigresponder/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

const scalarField = "value"

func serializeBorsh(out *types.ExecutionOutput, raw []byte) ([]byte, error) {
	schema, err := borsh.ParseSchema(raw)
	if err != nil {
		return nil, err
	}

	var value any
	if schema.Kind == borsh.KindStruct {
		m := make(map[string]any, len(schema.Fields))
		for _, f := range schema.Fields {
			v, err := fieldValue(out, f.Name, f.Schema)
			if err != nil {
				return nil, err
			}
			m[f.Name] = v
		}
		value = m
	} else {
		value, err = scalarValue(out, schema)
		if err != nil {
			return nil, err
		}
	}

	return borsh.Encode(schema, value)
}

// a bare scalar schema takes the single decoded value, or the success flag
func scalarValue(out *types.ExecutionOutput, schema *borsh.Schema) (any, error) {
	if v, ok := out.Fields[scalarField]; ok {
		return normalize(schema, v)
	}
	if len(out.Fields) == 1 {
		for _, v := range out.Fields {
			return normalize(schema, v)
		}
	}
	if schema.Kind == borsh.KindBool {
		return out.Success, nil
	}
	if !out.IsFunctionCall {
		return defaultValue(schema)
	}
	return nil, errors.Wrap(ErrMissingField, scalarField)
}

func fieldValue(out *types.ExecutionOutput, name string, schema *borsh.Schema) (any, error) {
	if v, ok := out.Lookup(name); ok {
		return normalize(schema, v)
	}
	if !out.IsFunctionCall {
		return defaultValue(schema)
	}
	return nil, errors.Wrap(ErrMissingField, name)
}

func defaultValue(schema *borsh.Schema) (any, error) {
	switch {
	case schema.Kind == borsh.KindBool:
		return true, nil
	case schema.Kind == borsh.KindString:
		return NonFunctionCallString, nil
	case schema.IsInteger():
		return 0, nil
	case schema.Kind == borsh.KindOption:
		return nil, nil
	case schema.Kind == borsh.KindVec:
		return []any{}, nil
	case schema.Kind == borsh.KindArray:
		items := make([]any, schema.Len)
		for i := range items {
			v, err := defaultValue(schema.Elem)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil
	case schema.Kind == borsh.KindStruct:
		m := make(map[string]any, len(schema.Fields))
		for _, f := range schema.Fields {
			v, err := defaultValue(f.Schema)
			if err != nil {
				return nil, err
			}
			m[f.Name] = v
		}
		return m, nil
	}
	return nil, errors.New("no default for enum field")
}

// normalize maps ABI-decoded Go values onto the shapes borsh.Encode expects.
func normalize(schema *borsh.Schema, v any) (any, error) {
	switch schema.Kind {
	case borsh.KindString:
		switch s := v.(type) {
		case string:
			return s, nil
		case common.Address:
			return s.Hex(), nil
		case []byte:
			return hexutil.Encode(s), nil
		case fmt.Stringer:
			return s.String(), nil
		}
	case borsh.KindOption:
		if v == nil {
			return nil, nil
		}
		return normalize(schema.Elem, v)
	case borsh.KindVec, borsh.KindArray:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Array || rv.Kind() == reflect.Slice {
			items := make([]any, rv.Len())
			for i := range items {
				item, err := normalize(schema.Elem, rv.Index(i).Interface())
				if err != nil {
					return nil, err
				}
				items[i] = item
			}
			return items, nil
		}
	case borsh.KindStruct:
		if m, ok := v.(map[string]any); ok {
			out := make(map[string]any, len(m))
			for _, f := range schema.Fields {
				fv, ok := m[f.Name]
				if !ok {
					return nil, errors.Wrap(ErrMissingField, f.Name)
				}
				nv, err := normalize(f.Schema, fv)
				if err != nil {
					return nil, err
				}
				out[f.Name] = nv
			}
			return out, nil
		}
	}
	return v, nil
}

func deserializeBorsh(data, raw []byte) (map[string]any, error) {
	schema, err := borsh.ParseSchema(raw)
	if err != nil {
		return nil, err
	}
	v, err := borsh.Decode(schema, data)
	if err != nil {
		return nil, err
	}
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	if schema.Kind == borsh.KindBool {
		return map[string]any{"success": v}, nil
	}
	return map[string]any{scalarField: v}, nil
}
