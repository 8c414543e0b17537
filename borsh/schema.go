// Package borsh encodes and decodes Borsh data driven by a runtime schema in
// the JSON dialect used by borsh-js, e.g.
//
//	{"struct": {"success": "bool", "amount": "u128", "memo": {"option": "string"}}}
package borsh

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindBool Kind = iota
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindI8
	KindI16
	KindI32
	KindI64
	KindI128
	KindString
	KindStruct
	KindOption
	KindVec
	KindArray
	KindEnum
)

var primitives = map[string]Kind{
	"bool":   KindBool,
	"u8":     KindU8,
	"u16":    KindU16,
	"u32":    KindU32,
	"u64":    KindU64,
	"u128":   KindU128,
	"i8":     KindI8,
	"i16":    KindI16,
	"i32":    KindI32,
	"i64":    KindI64,
	"i128":   KindI128,
	"string": KindString,
}

type Field struct {
	Name   string
	Schema *Schema
}

// Schema is a parsed borsh-js schema. Struct fields and enum variants keep
// their declaration order since Borsh is positional.
type Schema struct {
	Kind     Kind
	Fields   []Field
	Elem     *Schema
	Len      int
	Variants []Field
}

func (s *Schema) IsInteger() bool {
	return s.Kind >= KindU8 && s.Kind <= KindI128
}

// ParseSchema reads a borsh-js JSON schema.
func ParseSchema(raw []byte) (*Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	s, err := parseValue(dec)
	if err != nil {
		return nil, errors.Wrap(err, "borsh schema")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("borsh schema: trailing data")
	}
	return s, nil
}

func parseValue(dec *json.Decoder) (*Schema, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case string:
		k, ok := primitives[t]
		if !ok {
			return nil, errors.Errorf("unsupported type %q", t)
		}
		return &Schema{Kind: k}, nil
	case json.Delim:
		if t != '{' {
			return nil, errors.Errorf("unexpected %v", t)
		}
	default:
		return nil, errors.Errorf("unexpected token %v", tok)
	}

	key, err := dec.Token()
	if err != nil {
		return nil, err
	}

	var s *Schema
	switch key {
	case "struct":
		fields, err := parseFields(dec)
		if err != nil {
			return nil, err
		}
		s = &Schema{Kind: KindStruct, Fields: fields}
	case "option":
		elem, err := parseValue(dec)
		if err != nil {
			return nil, err
		}
		s = &Schema{Kind: KindOption, Elem: elem}
	case "array":
		s, err = parseArray(dec)
		if err != nil {
			return nil, err
		}
	case "enum":
		variants, err := parseVariants(dec)
		if err != nil {
			return nil, err
		}
		s = &Schema{Kind: KindEnum, Variants: variants}
	default:
		return nil, errors.Errorf("unsupported schema key %v", key)
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return s, nil
}

func parseFields(dec *json.Decoder) ([]Field, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var fields []Field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, errors.Errorf("field name expected, got %v", tok)
		}
		fs, err := parseValue(dec)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", name)
		}
		fields = append(fields, Field{Name: name, Schema: fs})
	}
	return fields, expectDelim(dec, '}')
}

// {"type": T} is a vec, {"type": T, "len": n} a fixed array
func parseArray(dec *json.Decoder) (*Schema, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	s := &Schema{Kind: KindVec}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch tok {
		case "type":
			if s.Elem, err = parseValue(dec); err != nil {
				return nil, err
			}
		case "len":
			lt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			n, ok := lt.(json.Number)
			if !ok {
				return nil, errors.New("array len must be a number")
			}
			l, err := n.Int64()
			if err != nil || l < 0 {
				return nil, errors.Errorf("invalid array len %v", n)
			}
			s.Kind, s.Len = KindArray, int(l)
		default:
			return nil, errors.Errorf("unsupported array key %v", tok)
		}
	}
	if s.Elem == nil {
		return nil, errors.New("array without type")
	}
	return s, expectDelim(dec, '}')
}

// [{"struct": {"Variant": T}}, ...]
func parseVariants(dec *json.Decoder) ([]Field, error) {
	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}
	var variants []Field
	for dec.More() {
		v, err := parseValue(dec)
		if err != nil {
			return nil, err
		}
		if v.Kind != KindStruct || len(v.Fields) != 1 {
			return nil, errors.New("enum variant must be a single-field struct")
		}
		variants = append(variants, v.Fields[0])
	}
	return variants, expectDelim(dec, ']')
}

func expectDelim(dec *json.Decoder, d json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok != d {
		return errors.Errorf("expected %v, got %v", d, tok)
	}
	return nil
}
