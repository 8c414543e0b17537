package borsh

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"math/big"

	"github.com/pkg/errors"
)

// Writer appends little-endian Borsh primitives.
type Writer struct {
	buf bytes.Buffer
}

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

func (w *Writer) WriteU8(v uint8) { w.buf.WriteByte(v) }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *Writer) WriteU16(v uint16) { w.buf.Write(binary.LittleEndian.AppendUint16(nil, v)) }
func (w *Writer) WriteU32(v uint32) { w.buf.Write(binary.LittleEndian.AppendUint32(nil, v)) }
func (w *Writer) WriteU64(v uint64) { w.buf.Write(binary.LittleEndian.AppendUint64(nil, v)) }

// WriteFixed writes raw bytes without a length prefix, for [u8; N].
func (w *Writer) WriteFixed(b []byte) { w.buf.Write(b) }

// WriteBytes writes a Vec<u8>.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteU32(uint32(len(b)))
	w.buf.Write(b)
}

func (w *Writer) WriteString(s string) { w.WriteBytes([]byte(s)) }

// writeInt writes a two's complement little-endian integer of size bytes.
func (w *Writer) writeInt(v *big.Int, size int, signed bool) error {
	bits := uint(size * 8)
	min, max := new(big.Int), new(big.Int).Lsh(big.NewInt(1), bits)
	if signed {
		max.Rsh(max, 1)
		min.Neg(max)
	}
	if v.Cmp(min) < 0 || v.Cmp(max) >= 0 {
		return errors.Errorf("value %s out of range for %d-byte integer", v, size)
	}

	u := new(big.Int).Set(v)
	if u.Sign() < 0 {
		u.Add(u, new(big.Int).Lsh(big.NewInt(1), bits))
	}
	be := u.FillBytes(make([]byte, size))
	for i := len(be) - 1; i >= 0; i-- {
		w.buf.WriteByte(be[i])
	}
	return nil
}

// Reader consumes Borsh primitives.
type Reader struct {
	data []byte
	pos  int
}

func NewReader(data []byte) *Reader { return &Reader{data: data} }

func (r *Reader) Remaining() int { return len(r.data) - r.pos }

func (r *Reader) ReadFixed(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, errors.Errorf("borsh: need %d bytes, have %d", n, r.Remaining())
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.ReadFixed(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadU8()
	if err != nil {
		return false, err
	}
	if b > 1 {
		return false, errors.Errorf("borsh: invalid bool %d", b)
	}
	return b == 1, nil
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.ReadFixed(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.ReadFixed(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.ReadFixed(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	return r.ReadFixed(int(n))
}

func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	return string(b), err
}

func (r *Reader) readInt(size int, signed bool) (*big.Int, error) {
	le, err := r.ReadFixed(size)
	if err != nil {
		return nil, err
	}
	be := make([]byte, size)
	for i := range le {
		be[size-1-i] = le[i]
	}
	v := new(big.Int).SetBytes(be)
	if signed && be[0]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(size*8)))
	}
	return v, nil
}

var intSizes = map[Kind]struct {
	size   int
	signed bool
}{
	KindU8: {1, false}, KindU16: {2, false}, KindU32: {4, false}, KindU64: {8, false}, KindU128: {16, false},
	KindI8: {1, true}, KindI16: {2, true}, KindI32: {4, true}, KindI64: {8, true}, KindI128: {16, true},
}

// Encode serializes value according to s. Structs are map[string]any, vecs
// and arrays []any (or []byte for u8 elements), options nil or the value,
// enums a single-key map naming the variant.
func Encode(s *Schema, value any) ([]byte, error) {
	var w Writer
	if err := encode(&w, s, value); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func encode(w *Writer, s *Schema, value any) error {
	switch s.Kind {
	case KindBool:
		b, ok := value.(bool)
		if !ok {
			return errors.Errorf("expected bool, got %T", value)
		}
		w.WriteBool(b)
	case KindString:
		str, ok := value.(string)
		if !ok {
			return errors.Errorf("expected string, got %T", value)
		}
		w.WriteString(str)
	case KindStruct:
		m, ok := value.(map[string]any)
		if !ok {
			return errors.Errorf("expected struct map, got %T", value)
		}
		for _, f := range s.Fields {
			v, ok := m[f.Name]
			if !ok {
				return errors.Errorf("missing field %s", f.Name)
			}
			if err := encode(w, f.Schema, v); err != nil {
				return errors.Wrapf(err, "field %s", f.Name)
			}
		}
	case KindOption:
		if value == nil {
			w.WriteU8(0)
			return nil
		}
		w.WriteU8(1)
		return encode(w, s.Elem, value)
	case KindVec, KindArray:
		items, err := sequence(s, value)
		if err != nil {
			return err
		}
		if s.Kind == KindArray && len(items) != s.Len {
			return errors.Errorf("expected %d elements, got %d", s.Len, len(items))
		}
		if s.Kind == KindVec {
			w.WriteU32(uint32(len(items)))
		}
		for i, item := range items {
			if err := encode(w, s.Elem, item); err != nil {
				return errors.Wrapf(err, "element %d", i)
			}
		}
	case KindEnum:
		m, ok := value.(map[string]any)
		if !ok || len(m) != 1 {
			return errors.New("enum value must be a single-key map")
		}
		for i, v := range s.Variants {
			if inner, ok := m[v.Name]; ok {
				w.WriteU8(uint8(i))
				return encode(w, v.Schema, inner)
			}
		}
		return errors.New("unknown enum variant")
	default:
		spec, ok := intSizes[s.Kind]
		if !ok {
			return errors.Errorf("unsupported kind %d", s.Kind)
		}
		n, err := ToBigInt(value)
		if err != nil {
			return err
		}
		return w.writeInt(n, spec.size, spec.signed)
	}
	return nil
}

func sequence(s *Schema, value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case []byte:
		if s.Elem.Kind != KindU8 {
			return nil, errors.New("byte slice for non-u8 sequence")
		}
		items := make([]any, len(v))
		for i, b := range v {
			items[i] = b
		}
		return items, nil
	}
	return nil, errors.Errorf("expected sequence, got %T", value)
}

// Decode is the inverse of Encode. Integers come back as their exact Go
// width (uint8..uint64, int8..int64) and *big.Int for 128-bit kinds.
func Decode(s *Schema, data []byte) (any, error) {
	r := NewReader(data)
	v, err := decode(r, s)
	if err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, errors.Errorf("borsh: %d trailing bytes", r.Remaining())
	}
	return v, nil
}

func decode(r *Reader, s *Schema) (any, error) {
	switch s.Kind {
	case KindBool:
		return r.ReadBool()
	case KindString:
		return r.ReadString()
	case KindStruct:
		out := make(map[string]any, len(s.Fields))
		for _, f := range s.Fields {
			v, err := decode(r, f.Schema)
			if err != nil {
				return nil, errors.Wrapf(err, "field %s", f.Name)
			}
			out[f.Name] = v
		}
		return out, nil
	case KindOption:
		tag, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		if tag == 0 {
			return nil, nil
		}
		return decode(r, s.Elem)
	case KindVec, KindArray:
		n := s.Len
		if s.Kind == KindVec {
			l, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			n = int(l)
		}
		// the length prefix is untrusted; only preallocate what the input can hold
		capacity := n
		if capacity > r.Remaining() {
			capacity = r.Remaining()
		}
		items := make([]any, 0, capacity)
		for i := 0; i < n; i++ {
			v, err := decode(r, s.Elem)
			if err != nil {
				return nil, errors.Wrapf(err, "element %d", i)
			}
			items = append(items, v)
		}
		return items, nil
	case KindEnum:
		idx, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		if int(idx) >= len(s.Variants) {
			return nil, errors.Errorf("borsh: enum index %d out of range", idx)
		}
		v := s.Variants[idx]
		inner, err := decode(r, v.Schema)
		if err != nil {
			return nil, err
		}
		return map[string]any{v.Name: inner}, nil
	}

	spec, ok := intSizes[s.Kind]
	if !ok {
		return nil, errors.Errorf("unsupported kind %d", s.Kind)
	}
	n, err := r.readInt(spec.size, spec.signed)
	if err != nil {
		return nil, err
	}
	switch s.Kind {
	case KindU8:
		return uint8(n.Uint64()), nil
	case KindU16:
		return uint16(n.Uint64()), nil
	case KindU32:
		return uint32(n.Uint64()), nil
	case KindU64:
		return n.Uint64(), nil
	case KindI8:
		return int8(n.Int64()), nil
	case KindI16:
		return int16(n.Int64()), nil
	case KindI32:
		return int32(n.Int64()), nil
	case KindI64:
		return n.Int64(), nil
	}
	return n, nil
}

// ToBigInt coerces the integer representations found in decoded outputs.
func ToBigInt(value any) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, errors.New("nil integer")
		}
		return new(big.Int).Set(v), nil
	case int:
		return big.NewInt(int64(v)), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case uint:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint8:
		return big.NewInt(int64(v)), nil
	case uint16:
		return big.NewInt(int64(v)), nil
	case uint32:
		return big.NewInt(int64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return nil, errors.Errorf("non-integer value %v", v)
		}
		n, _ := big.NewFloat(v).Int(nil)
		return n, nil
	case json.Number:
		return parseDecimal(v.String())
	case string:
		return parseDecimal(v)
	}
	return nil, errors.Errorf("expected integer, got %T", value)
}

func parseDecimal(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, errors.Errorf("invalid integer %q", s)
	}
	return n, nil
}
