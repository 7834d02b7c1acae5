package typetree

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind tags the concrete type of a Value.
type Kind uint8

const (
	KindInt Kind = iota + 1
	KindUint
	KindFloat
	KindBool
	KindString
	KindBytes
	KindArray
	KindMap
	KindStruct
)

// Value is a decoded field value. The set of implementations is closed:
// Int, Uint, Float, Bool, String, Bytes, *Array, *Map and *Struct.
type Value interface {
	Kind() Kind
}

// Int is a signed integer of Bits width.
type Int struct {
	V    int64
	Bits uint8
}

// Uint is an unsigned integer of Bits width.
type Uint struct {
	V    uint64
	Bits uint8
}

// Float is a 32- or 64-bit float.
type Float struct {
	V    float64
	Bits uint8
}

type Bool bool

type String string

// Bytes is a byte array; it aliases the object's backing buffer.
type Bytes []byte

// Array is a homogeneous sequence.
type Array struct {
	Type  string // element type name
	Elems []Value
}

// Pair is one key/value entry of a Map.
type Pair struct {
	Key   Value
	Value Value
}

// Map keeps key/value pairs in their serialized order.
type Map struct {
	Pairs []Pair
}

// Field is a named member of a Struct.
type Field struct {
	Name  string
	Path  string // dotted path from the object root
	Value Value
}

// Struct is an ordered set of fields.
type Struct struct {
	Type   string
	Path   string
	Fields []Field
}

func (Int) Kind() Kind     { return KindInt }
func (Uint) Kind() Kind    { return KindUint }
func (Float) Kind() Kind   { return KindFloat }
func (Bool) Kind() Kind    { return KindBool }
func (String) Kind() Kind  { return KindString }
func (Bytes) Kind() Kind   { return KindBytes }
func (*Array) Kind() Kind  { return KindArray }
func (*Map) Kind() Kind    { return KindMap }
func (*Struct) Kind() Kind { return KindStruct }

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.Elems) }

// Get returns the first field named name.
func (s *Struct) Get(name string) (Value, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return s.Fields[i].Value, true
		}
	}
	return nil, false
}

// Lookup follows a dotted path of field names, e.g. "m_StreamData.path".
func (s *Struct) Lookup(path string) (Value, bool) {
	cur := s
	parts := strings.Split(path, ".")
	for i, p := range parts {
		v, ok := cur.Get(p)
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(*Struct)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

// Struct returns the nested struct at path.
func (s *Struct) Struct(path string) (*Struct, bool) {
	v, ok := s.Lookup(path)
	if !ok {
		return nil, false
	}
	out, ok := v.(*Struct)
	return out, ok
}

// Array returns the array at path.
func (s *Struct) Array(path string) (*Array, bool) {
	v, ok := s.Lookup(path)
	if !ok {
		return nil, false
	}
	out, ok := v.(*Array)
	return out, ok
}

// Int returns the integer at path, converting unsigned and boolean values.
func (s *Struct) Int(path string) (int64, bool) {
	v, ok := s.Lookup(path)
	if !ok {
		return 0, false
	}
	return AsInt(v)
}

// Float returns the number at path as float64.
func (s *Struct) Float(path string) (float64, bool) {
	v, ok := s.Lookup(path)
	if !ok {
		return 0, false
	}
	return AsFloat(v)
}

// String returns the string at path.
func (s *Struct) String(path string) (string, bool) {
	v, ok := s.Lookup(path)
	if !ok {
		return "", false
	}
	out, ok := v.(String)
	return string(out), ok
}

// Bytes returns the byte array at path.
func (s *Struct) Bytes(path string) ([]byte, bool) {
	v, ok := s.Lookup(path)
	if !ok {
		return nil, false
	}
	out, ok := v.(Bytes)
	return []byte(out), ok
}

// AsInt converts integer-like values.
func AsInt(v Value) (int64, bool) {
	switch x := v.(type) {
	case Int:
		return x.V, true
	case Uint:
		return int64(x.V), true
	case Bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// AsFloat converts numeric values.
func AsFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case Float:
		return x.V, true
	case Int:
		return float64(x.V), true
	case Uint:
		return float64(x.V), true
	}
	return 0, false
}

// MarshalJSON encodes 64-bit integers as strings so identifiers survive
// consumers limited to double precision.
func (i Int) MarshalJSON() ([]byte, error) {
	s := strconv.FormatInt(i.V, 10)
	if i.Bits == 64 {
		return []byte(strconv.Quote(s)), nil
	}
	return []byte(s), nil
}

func (u Uint) MarshalJSON() ([]byte, error) {
	s := strconv.FormatUint(u.V, 10)
	if u.Bits == 64 {
		return []byte(strconv.Quote(s)), nil
	}
	return []byte(s), nil
}

// MarshalJSON writes non-finite values as strings; JSON has no literal for them.
func (f Float) MarshalJSON() ([]byte, error) {
	switch {
	case math.IsNaN(f.V):
		return []byte(`"NaN"`), nil
	case math.IsInf(f.V, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(f.V, -1):
		return []byte(`"-Infinity"`), nil
	}
	bits := 64
	if f.Bits == 32 {
		bits = 32
	}
	return strconv.AppendFloat(nil, f.V, 'g', -1, bits), nil
}

// MarshalJSON encodes bytes as base64 with their length.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Binary bool   `json:"_binary"`
		Size   int    `json:"size"`
		Data   string `json:"data"`
	}{true, len(b), base64.StdEncoding.EncodeToString(b)})
}

func (a *Array) MarshalJSON() ([]byte, error) {
	if a.Elems == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a.Elems)
}

// MarshalJSON encodes the map as a list of [key, value] pairs.
func (m *Map) MarshalJSON() ([]byte, error) {
	pairs := make([][2]Value, len(m.Pairs))
	for i, p := range m.Pairs {
		pairs[i] = [2]Value{p.Key, p.Value}
	}
	return json.Marshal(pairs)
}

// MarshalJSON encodes the struct as an object with field order preserved.
func (s *Struct) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
