package testutil

import (
	"encoding/binary"
)

// Node describes one type tree node for fixtures.
type Node struct {
	Type     string
	Name     string
	Size     int32
	Align    bool
	Array    bool
	Children []Node
}

// Leaf returns a primitive node.
func Leaf(typ, name string, size int32) Node {
	return Node{Type: typ, Name: name, Size: size}
}

// StringNode returns the standard string schema: string > Array > (size, data).
func StringNode(name string) Node {
	return Node{Type: "string", Name: name, Size: -1, Children: []Node{{
		Type: "Array", Name: "Array", Size: -1, Align: true, Array: true,
		Children: []Node{Leaf("int", "size", 4), Leaf("char", "data", 1)},
	}}}
}

// VectorNode returns vector > Array > (size, elem).
func VectorNode(name string, elem Node, align bool) Node {
	elem.Name = "data"
	return Node{Type: "vector", Name: name, Size: -1, Children: []Node{{
		Type: "Array", Name: "Array", Size: -1, Align: align, Array: true,
		Children: []Node{Leaf("int", "size", 4), elem},
	}}}
}

// MapNode returns map > Array > (size, pair > (first, second)).
func MapNode(name string, key, value Node) Node {
	key.Name, value.Name = "first", "second"
	return Node{Type: "map", Name: name, Size: -1, Children: []Node{{
		Type: "Array", Name: "Array", Size: -1, Align: true, Array: true,
		Children: []Node{
			Leaf("int", "size", 4),
			{Type: "pair", Name: "data", Size: -1, Children: []Node{key, value}},
		},
	}}}
}

// PPtrNode returns a PPtr<T> struct with m_FileID and m_PathID.
func PPtrNode(target, name string) Node {
	return Node{Type: "PPtr<" + target + ">", Name: name, Size: 12, Children: []Node{
		Leaf("int", "m_FileID", 4),
		Leaf("SInt64", "m_PathID", 8),
	}}
}

type flatNode struct {
	node  Node
	level uint8
}

func (n Node) flatten(level uint8, out []flatNode) []flatNode {
	out = append(out, flatNode{node: n, level: level})
	for _, c := range n.Children {
		out = c.flatten(level+1, out)
	}
	return out
}

// Blob encodes the tree in the node-array form used by format versions 12+.
func (n Node) Blob(order binary.ByteOrder, version uint32) []byte {
	flat := n.flatten(0, nil)

	strings := NewWriter(order)
	offsets := map[string]uint32{}
	offset := func(s string) uint32 {
		if off, ok := offsets[s]; ok {
			return off
		}
		off := uint32(strings.Len())
		strings.CString(s)
		offsets[s] = off
		return off
	}

	nodes := NewWriter(order)
	for i, f := range flat {
		var meta int32
		if f.node.Align {
			meta = 0x4000
		}
		var typeFlags uint8
		if f.node.Array {
			typeFlags = 1
		}
		nodes.U16(1).U8(f.level).U8(typeFlags).
			U32(offset(f.node.Type)).U32(offset(f.node.Name)).
			I32(f.node.Size).I32(int32(i)).I32(meta)
		if version >= 19 {
			nodes.U64(0)
		}
	}

	w := NewWriter(order)
	w.I32(int32(len(flat))).I32(int32(strings.Len()))
	w.Raw(nodes.Bytes()).Raw(strings.Bytes())
	return w.Bytes()
}

// Legacy encodes the tree in the recursive form used by format versions
// before 12, except 10.
func (n Node) Legacy(order binary.ByteOrder, version uint32) []byte {
	w := NewWriter(order)
	var index int32
	n.writeLegacy(w, version, &index)
	return w.Bytes()
}

func (n Node) writeLegacy(w *Writer, version uint32, index *int32) {
	w.CString(n.Type).CString(n.Name).I32(n.Size)
	if version == 2 {
		w.I32(0) // variable count
	}
	if version != 3 {
		w.I32(*index)
	}
	*index++
	var typeFlags int32
	if n.Array {
		typeFlags = 1
	}
	w.I32(typeFlags).I32(1)
	if version != 3 {
		var meta int32
		if n.Align {
			meta = 0x4000
		}
		w.I32(meta)
	}
	w.I32(int32(len(n.Children)))
	for _, c := range n.Children {
		c.writeLegacy(w, version, index)
	}
}

func (n Node) schema(order binary.ByteOrder, version uint32) []byte {
	if version >= 12 || version == 10 {
		return n.Blob(order, version)
	}
	return n.Legacy(order, version)
}

// Type is one class entry of a serialized file.
type Type struct {
	ClassID int32
	Root    *Node
}

// Object is one object of a serialized file.
type Object struct {
	PathID    int64
	TypeIndex int32
	Data      []byte
	Destroyed bool // written by versions before 11
	Stripped  bool // written by versions 15 and 16
}

// ScriptType is one entry of the script type table.
type ScriptType struct {
	FileIndex int32
	PathID    int64
}

// SerializedFile builds a serialized object file. Version selects the format
// version and defaults to 22.
type SerializedFile struct {
	Version      uint32
	BigEndian    bool
	BigID        bool // 64-bit path IDs in versions 7 to 13
	UnityVersion string
	Platform     int32
	NoTypeTree   bool // only honoured from version 13
	Types        []Type
	Objects      []Object
	ScriptTypes  []ScriptType
	Externals    []string
}

// LatestVersion is the format version written when none is set.
const LatestVersion = 22

func (f SerializedFile) version() uint32 {
	if f.Version == 0 {
		return LatestVersion
	}
	return f.Version
}

func (f SerializedFile) order() binary.ByteOrder {
	if f.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// headerSize returns the bytes before the metadata. Versions before 9 keep
// the metadata at the tail, after a 16-byte header.
func headerSize(v uint32) int {
	switch {
	case v >= 22:
		return 48
	case v >= 9:
		return 20
	default:
		return 16
	}
}

// Bytes encodes the file.
func (f SerializedFile) Bytes() []byte {
	v := f.version()
	order := f.order()
	hs := headerSize(v)

	// Object byte ranges are relative to the data region.
	starts := make([]int64, len(f.Objects))
	var data int64
	for i, o := range f.Objects {
		data = (data + 7) &^ 7
		starts[i] = data
		data += int64(len(o.Data))
	}

	meta := f.metadata(order, v, hs, starts)

	endian := uint8(0)
	if f.BigEndian {
		endian = 1
	}

	w := NewWriter(binary.BigEndian)
	if v < 9 {
		dataOffset := int64(hs)
		metaSize := 1 + meta.Len()
		fileSize := dataOffset + data + int64(metaSize)
		w.U32(uint32(metaSize)).U32(uint32(fileSize)).U32(v).U32(uint32(dataOffset))
		f.writeData(w, dataOffset, starts)
		for int64(w.Len()) < dataOffset+data {
			w.U8(0)
		}
		w.U8(endian)
		w.Raw(meta.Bytes())
		return w.Bytes()
	}

	dataOffset := (int64(hs+meta.Len()) + 15) &^ 15
	fileSize := dataOffset + data
	if v >= 22 {
		w.U32(0).U32(0).U32(v).U32(0)
	} else {
		w.U32(uint32(meta.Len())).U32(uint32(fileSize)).U32(v).U32(uint32(dataOffset))
	}
	w.U8(endian).Raw([]byte{0, 0, 0})
	if v >= 22 {
		w.U32(uint32(meta.Len())).I64(fileSize).I64(dataOffset).I64(0)
	}
	w.Raw(meta.Bytes())
	f.writeData(w, dataOffset, starts)
	return w.Bytes()
}

func (f SerializedFile) writeData(w *Writer, dataOffset int64, starts []int64) {
	for int64(w.Len()) < dataOffset {
		w.U8(0)
	}
	for i, o := range f.Objects {
		for int64(w.Len()) < dataOffset+starts[i] {
			w.U8(0)
		}
		w.Raw(o.Data)
	}
}

func (f SerializedFile) metadata(order binary.ByteOrder, v uint32, base int, starts []int64) *Writer {
	unityVersion := f.UnityVersion
	if unityVersion == "" {
		unityVersion = "2020.3.15f1"
	}
	trees := !f.NoTypeTree || v < 13

	meta := NewWriter(order)
	// Alignment is relative to the start of the file.
	alignFile := func() {
		for (base+meta.Len())%4 != 0 {
			meta.U8(0)
		}
	}

	if v >= 7 {
		meta.CString(unityVersion)
	}
	if v >= 8 {
		meta.I32(f.Platform)
	}
	if v >= 13 {
		meta.Bool(trees)
	}

	meta.I32(int32(len(f.Types)))
	for _, t := range f.Types {
		meta.I32(t.ClassID)
		if v >= 16 {
			meta.Bool(false)
		}
		if v >= 17 {
			meta.I16(-1)
		}
		if v >= 13 {
			if (v < 16 && t.ClassID < 0) || (v >= 16 && t.ClassID == 114) {
				meta.Raw(make([]byte, 16))
			}
			meta.Raw(make([]byte, 16))
		}
		if trees {
			root := Node{Type: "Object", Name: "Base"}
			if t.Root != nil {
				root = *t.Root
			}
			meta.Raw(root.schema(order, v))
			if v >= 21 {
				meta.I32(0) // type dependencies
			}
		}
	}

	if v >= 7 && v < 14 {
		if f.BigID {
			meta.I32(1)
		} else {
			meta.I32(0)
		}
	}

	meta.I32(int32(len(f.Objects)))
	for i, o := range f.Objects {
		switch {
		case f.BigID:
			meta.I64(o.PathID)
		case v < 14:
			meta.I32(int32(o.PathID))
		default:
			alignFile()
			meta.I64(o.PathID)
		}
		if v >= 22 {
			meta.I64(starts[i])
		} else {
			meta.U32(uint32(starts[i]))
		}
		meta.U32(uint32(len(o.Data)))
		if v < 16 {
			// Old formats match objects to schemas by class ID.
			classID := f.Types[o.TypeIndex].ClassID
			meta.I32(classID).U16(uint16(classID))
		} else {
			meta.I32(o.TypeIndex)
		}
		if v < 11 {
			if o.Destroyed {
				meta.U16(1)
			} else {
				meta.U16(0)
			}
		}
		if v >= 11 && v < 17 {
			meta.I16(-1)
		}
		if v == 15 || v == 16 {
			meta.Bool(o.Stripped)
		}
	}

	if v >= 11 {
		meta.I32(int32(len(f.ScriptTypes)))
		for _, st := range f.ScriptTypes {
			meta.I32(st.FileIndex)
			if v < 14 {
				meta.I32(int32(st.PathID))
			} else {
				alignFile()
				meta.I64(st.PathID)
			}
		}
	}

	meta.I32(int32(len(f.Externals)))
	for _, path := range f.Externals {
		if v >= 6 {
			meta.CString("")
		}
		if v >= 5 {
			meta.Raw(make([]byte, 16)).I32(0)
		}
		meta.CString(path)
	}
	if v >= 20 {
		meta.I32(0) // ref types
	}
	if v >= 5 {
		meta.CString("") // user information
	}
	return meta
}
