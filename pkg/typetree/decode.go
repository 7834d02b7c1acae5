package typetree

import (
	"encoding/binary"
	"fmt"

	"github.com/EchoTools/hhhFileTools/pkg/stream"
)

// Decode reads one object's bytes against its class schema. The walk must
// consume data exactly; anything else is reported as stream.ErrSchemaMismatch.
func Decode(root *Node, data []byte, order binary.ByteOrder) (*Struct, error) {
	if root == nil {
		return nil, stream.ErrUnknownSchema
	}

	d := decoder{r: stream.NewReader(data, order)}
	out, err := d.readStruct(root, "")
	if err != nil {
		return nil, &stream.Error{
			Op:     "decode " + root.Type,
			Offset: d.r.Pos(),
			Err:    fmt.Errorf("%w: %w", stream.ErrSchemaMismatch, err),
		}
	}
	if rem := d.r.Remaining(); rem != 0 {
		return nil, &stream.Error{
			Op:     "decode " + root.Type,
			Offset: d.r.Pos(),
			Err:    fmt.Errorf("%w: %d of %d bytes left unread", stream.ErrSchemaMismatch, rem, len(data)),
		}
	}
	return out, nil
}

type decoder struct {
	r *stream.Reader
}

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func (d *decoder) readStruct(n *Node, path string) (*Struct, error) {
	s := &Struct{Type: n.Type, Path: path, Fields: make([]Field, 0, len(n.Children))}
	for _, c := range n.Children {
		p := join(path, c.Name)
		v, err := d.readValue(c, p)
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, Field{Name: c.Name, Path: p, Value: v})
	}
	return s, nil
}

func (d *decoder) readValue(n *Node, path string) (Value, error) {
	align := n.Aligned()

	v, ok, err := d.readPrimitive(n.Type)
	switch {
	case err != nil:
		return nil, err
	case ok:
		// primitive

	case n.Type == "string":
		if len(n.Children) > 0 && n.Children[0].Aligned() {
			align = true
		}
		size, err := d.count(1)
		if err != nil {
			return nil, err
		}
		b, err := d.r.Bytes(size)
		if err != nil {
			return nil, err
		}
		v = String(b)

	case n.Type == "TypelessData":
		size, err := d.count(1)
		if err != nil {
			return nil, err
		}
		b, err := d.r.Bytes(size)
		if err != nil {
			return nil, err
		}
		v = Bytes(b)

	case n.Type == "map":
		if len(n.Children) == 0 || len(n.Children[0].Children) < 2 || len(n.Children[0].Children[1].Children) < 2 {
			return nil, fmt.Errorf("map %s has no pair schema", path)
		}
		arr := n.Children[0]
		if arr.Aligned() {
			align = true
		}
		pair := arr.Children[1]
		size, err := d.count(1)
		if err != nil {
			return nil, err
		}
		m := &Map{Pairs: make([]Pair, 0, size)}
		for i := range size {
			p := fmt.Sprintf("%s[%d]", path, i)
			k, err := d.readValue(pair.Children[0], p+".first")
			if err != nil {
				return nil, err
			}
			val, err := d.readValue(pair.Children[1], p+".second")
			if err != nil {
				return nil, err
			}
			m.Pairs = append(m.Pairs, Pair{Key: k, Value: val})
		}
		v = m

	case n.IsArray():
		v, err = d.readArray(n, path)
		if err != nil {
			return nil, err
		}

	case len(n.Children) > 0 && n.Children[0].IsArray():
		arr := n.Children[0]
		if arr.Aligned() {
			align = true
		}
		v, err = d.readArray(arr, path)
		if err != nil {
			return nil, err
		}

	case len(n.Children) == 0 && n.ByteSize > 0:
		return nil, fmt.Errorf("unknown primitive %q at %s", n.Type, path)

	default:
		v, err = d.readStruct(n, path)
		if err != nil {
			return nil, err
		}
	}

	if align {
		if err := d.r.Align(4); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// readArray reads an Array node: a 32-bit count followed by that many
// elements of its second child.
func (d *decoder) readArray(arr *Node, path string) (Value, error) {
	if len(arr.Children) < 2 {
		return nil, fmt.Errorf("array %s has no element schema", path)
	}
	elem := arr.Children[1]

	minSize := 1
	if elem.ByteSize > 0 && len(elem.Children) == 0 {
		minSize = int(elem.ByteSize)
	}
	size, err := d.count(minSize)
	if err != nil {
		return nil, err
	}

	if isByteType(elem.Type) && len(elem.Children) == 0 {
		b, err := d.r.Bytes(size)
		if err != nil {
			return nil, err
		}
		return Bytes(b), nil
	}

	a := &Array{Type: elem.Type, Elems: make([]Value, 0, size)}
	for i := range size {
		v, err := d.readValue(elem, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		a.Elems = append(a.Elems, v)
	}
	return a, nil
}

// count reads an element count and rejects counts that cannot fit in the
// remaining bytes at elemSize bytes each.
func (d *decoder) count(elemSize int) (int, error) {
	at := d.r.Pos()
	n, err := d.r.I32()
	if err != nil {
		return 0, err
	}
	if n < 0 || int64(n)*int64(elemSize) > d.r.Remaining() {
		return 0, fmt.Errorf("count %d at offset %d exceeds %d remaining bytes", n, at, d.r.Remaining())
	}
	return int(n), nil
}

func isByteType(t string) bool {
	switch t {
	case "UInt8", "SInt8", "char":
		return true
	}
	return false
}

func (d *decoder) readPrimitive(t string) (Value, bool, error) {
	var (
		v   Value
		err error
	)
	switch t {
	case "bool":
		var b bool
		b, err = d.r.Bool()
		v = Bool(b)
	case "SInt8":
		var x int8
		x, err = d.r.I8()
		v = Int{V: int64(x), Bits: 8}
	case "UInt8", "char":
		var x uint8
		x, err = d.r.U8()
		v = Uint{V: uint64(x), Bits: 8}
	case "SInt16", "short":
		var x int16
		x, err = d.r.I16()
		v = Int{V: int64(x), Bits: 16}
	case "UInt16", "unsigned short":
		var x uint16
		x, err = d.r.U16()
		v = Uint{V: uint64(x), Bits: 16}
	case "SInt32", "int":
		var x int32
		x, err = d.r.I32()
		v = Int{V: int64(x), Bits: 32}
	case "UInt32", "unsigned int", "Type*":
		var x uint32
		x, err = d.r.U32()
		v = Uint{V: uint64(x), Bits: 32}
	case "SInt64", "long long", "FileSize":
		var x int64
		x, err = d.r.I64()
		v = Int{V: x, Bits: 64}
	case "UInt64", "unsigned long long":
		var x uint64
		x, err = d.r.U64()
		v = Uint{V: x, Bits: 64}
	case "float":
		var x float32
		x, err = d.r.F32()
		v = Float{V: float64(x), Bits: 32}
	case "double":
		var x float64
		x, err = d.r.F64()
		v = Float{V: x, Bits: 64}
	default:
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}
