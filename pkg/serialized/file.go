// Package serialized parses serialized object files: a header, per-class
// type trees, and a flat index of objects with their byte ranges.
//
// Parsing only indexes objects. Object bytes are decoded on request with
// File.Decode, which walks the class's type tree.
package serialized

import (
	"encoding/binary"
	"fmt"
	"path"
	"strings"

	"github.com/EchoTools/hhhFileTools/pkg/stream"
	"github.com/EchoTools/hhhFileTools/pkg/typetree"
)

// Type is one class schema recorded in the file.
type Type struct {
	ClassID         int32
	IsStripped      bool
	ScriptTypeIndex int16
	ScriptID        [16]byte
	OldTypeHash     [16]byte
	Tree            *typetree.Node // nil when the file carries no type trees
	Dependencies    []int32

	// Set on managed reference types only.
	ClassName, Namespace, Assembly string
}

// Object is one entry of the object index.
type Object struct {
	PathID          int64
	ClassID         int32
	TypeIndex       int32 // index into File.Types, -1 when unmatched
	ByteStart       int64 // absolute offset within the file
	ByteSize        uint32
	ScriptTypeIndex int16
	Stripped        bool
	Destroyed       bool
}

// ScriptType identifies a script object by file index and path ID.
type ScriptType struct {
	FileIndex int32
	PathID    int64
}

// External is a reference to another serialized file. FileID n in a
// reference refers to Externals[n-1].
type External struct {
	GUID [16]byte
	Type int32
	Path string
}

// Name returns the lower-cased base name, which is how archives name entries.
func (e External) Name() string {
	return strings.ToLower(path.Base(strings.ReplaceAll(e.Path, "\\", "/")))
}

// File is a parsed serialized file.
type File struct {
	Name string
	Header

	UnityVersion    string
	Platform        int32
	TypeTreeEnabled bool
	BigIDEnabled    bool
	Types           []Type
	ScriptTypes     []ScriptType
	RefTypes        []Type
	UserInformation string

	objects   []Object
	externals []External
	index     map[int64]int
	data      []byte
}

// Parse indexes the serialized file held in data. name is used for error
// context and for resolving references to this file.
func Parse(name string, data []byte) (*File, error) {
	r := stream.NewReader(data, binary.BigEndian)
	f := &File{Name: name, data: data}

	wrap := func(err error) error {
		return &stream.Error{Op: "parse serialized file", Entry: name, Offset: r.Pos(), Err: err}
	}

	h, err := readHeader(r)
	if err != nil {
		return nil, wrap(err)
	}
	if err := h.Validate(int64(len(data))); err != nil {
		return nil, wrap(err)
	}
	f.Header = h

	if err := f.readMetadata(r); err != nil {
		return nil, wrap(err)
	}
	return f, nil
}

func (f *File) readMetadata(r *stream.Reader) error {
	v := f.Version
	var err error

	if v >= VersionUnknown7 {
		if f.UnityVersion, err = r.StringToNull(); err != nil {
			return err
		}
	}
	if v >= VersionUnknown8 {
		if f.Platform, err = r.I32(); err != nil {
			return err
		}
	}
	f.TypeTreeEnabled = true
	if v >= VersionHasTypeTreeHash {
		if f.TypeTreeEnabled, err = r.Bool(); err != nil {
			return err
		}
	}

	typeCount, err := f.count(r, "type")
	if err != nil {
		return err
	}
	f.Types = make([]Type, 0, typeCount)
	for i := range typeCount {
		t, err := f.readType(r, false)
		if err != nil {
			return fmt.Errorf("read type %d: %w", i, err)
		}
		f.Types = append(f.Types, t)
	}

	if v >= VersionUnknown7 && v < VersionUnknown14 {
		bigID, err := r.I32()
		if err != nil {
			return err
		}
		f.BigIDEnabled = bigID != 0
	}

	if err := f.readObjects(r); err != nil {
		return err
	}

	if v >= VersionHasScriptTypes {
		n, err := f.count(r, "script type")
		if err != nil {
			return err
		}
		f.ScriptTypes = make([]ScriptType, 0, n)
		for range n {
			var s ScriptType
			if s.FileIndex, err = r.I32(); err != nil {
				return err
			}
			if s.PathID, err = readScriptID(r, v); err != nil {
				return err
			}
			f.ScriptTypes = append(f.ScriptTypes, s)
		}
	}

	n, err := f.count(r, "external")
	if err != nil {
		return err
	}
	f.externals = make([]External, 0, n)
	for range n {
		var e External
		if v >= VersionUnknown6 {
			if _, err = r.StringToNull(); err != nil {
				return err
			}
		}
		if v >= VersionUnknown5 {
			guid, err := r.Bytes(16)
			if err != nil {
				return err
			}
			copy(e.GUID[:], guid)
			if e.Type, err = r.I32(); err != nil {
				return err
			}
		}
		if e.Path, err = r.StringToNull(); err != nil {
			return err
		}
		f.externals = append(f.externals, e)
	}

	if v >= VersionRefObjects {
		n, err := f.count(r, "ref type")
		if err != nil {
			return err
		}
		f.RefTypes = make([]Type, 0, n)
		for i := range n {
			t, err := f.readType(r, true)
			if err != nil {
				return fmt.Errorf("read ref type %d: %w", i, err)
			}
			f.RefTypes = append(f.RefTypes, t)
		}
	}

	if v >= VersionUnknown5 {
		if f.UserInformation, err = r.StringToNull(); err != nil {
			return err
		}
	}
	return nil
}

// count reads a 32-bit table length and rejects values that cannot fit.
func (f *File) count(r *stream.Reader, what string) (int, error) {
	n, err := r.I32()
	if err != nil {
		return 0, err
	}
	if n < 0 || int64(n) > r.Remaining() {
		return 0, fmt.Errorf("%w: %d %s entries with %d bytes left", stream.ErrMalformedHeader, n, what, r.Remaining())
	}
	return int(n), nil
}

// readPathID reads an object identifier in the width the version uses.
func (f *File) readPathID(r *stream.Reader) (int64, error) {
	switch {
	case f.BigIDEnabled:
		return r.I64()
	case f.Version < VersionUnknown14:
		id, err := r.I32()
		return int64(id), err
	default:
		if err := r.Align(4); err != nil {
			return 0, err
		}
		return r.I64()
	}
}

// readScriptID reads a script type's path ID. Unlike the object index it
// ignores BigIDEnabled: before version 14 it is always 32 bits.
func readScriptID(r *stream.Reader, v uint32) (int64, error) {
	if v < VersionUnknown14 {
		id, err := r.I32()
		return int64(id), err
	}
	if err := r.Align(4); err != nil {
		return 0, err
	}
	return r.I64()
}

func (f *File) readType(r *stream.Reader, isRef bool) (Type, error) {
	v := f.Version
	t := Type{ScriptTypeIndex: -1}
	var err error

	if t.ClassID, err = r.I32(); err != nil {
		return t, err
	}
	if v >= VersionRefactoredClass {
		if t.IsStripped, err = r.Bool(); err != nil {
			return t, err
		}
	}
	if v >= VersionRefactorTypeData {
		if t.ScriptTypeIndex, err = r.I16(); err != nil {
			return t, err
		}
	}
	if v >= VersionHasTypeTreeHash {
		hasScriptID := (isRef && t.ScriptTypeIndex >= 0) ||
			(v < VersionRefactoredClass && t.ClassID < 0) ||
			(v >= VersionRefactoredClass && t.ClassID == ClassMonoBehaviour)
		if hasScriptID {
			b, err := r.Bytes(16)
			if err != nil {
				return t, err
			}
			copy(t.ScriptID[:], b)
		}
		b, err := r.Bytes(16)
		if err != nil {
			return t, err
		}
		copy(t.OldTypeHash[:], b)
	}

	if !f.TypeTreeEnabled {
		return t, nil
	}

	if t.Tree, err = typetree.Read(r, v); err != nil {
		return t, err
	}

	if v >= VersionTypeDependencies {
		if isRef {
			if t.ClassName, err = r.StringToNull(); err != nil {
				return t, err
			}
			if t.Namespace, err = r.StringToNull(); err != nil {
				return t, err
			}
			if t.Assembly, err = r.StringToNull(); err != nil {
				return t, err
			}
		} else {
			n, err := f.count(r, "type dependency")
			if err != nil {
				return t, err
			}
			t.Dependencies = make([]int32, n)
			for i := range t.Dependencies {
				if t.Dependencies[i], err = r.I32(); err != nil {
					return t, err
				}
			}
		}
	}
	return t, nil
}

func (f *File) readObjects(r *stream.Reader) error {
	v := f.Version
	n, err := f.count(r, "object")
	if err != nil {
		return err
	}

	f.objects = make([]Object, 0, n)
	f.index = make(map[int64]int, n)
	for i := range n {
		o := Object{TypeIndex: -1, ScriptTypeIndex: -1}
		if o.PathID, err = f.readPathID(r); err != nil {
			return err
		}

		if v >= VersionLargeFiles {
			if o.ByteStart, err = r.I64(); err != nil {
				return err
			}
		} else {
			start, err := r.U32()
			if err != nil {
				return err
			}
			o.ByteStart = int64(start)
		}
		o.ByteStart += f.DataOffset

		if o.ByteSize, err = r.U32(); err != nil {
			return err
		}
		typeID, err := r.I32()
		if err != nil {
			return err
		}

		if v < VersionRefactoredClass {
			classID, err := r.U16()
			if err != nil {
				return err
			}
			o.ClassID = int32(classID)
			// typeID matches the schema's class ID rather than indexing Types.
			for j := range f.Types {
				if f.Types[j].ClassID == typeID {
					o.TypeIndex = int32(j)
					break
				}
			}
		} else {
			if typeID < 0 || int(typeID) >= len(f.Types) {
				return fmt.Errorf("%w: object %d has type index %d of %d", stream.ErrMalformedHeader, o.PathID, typeID, len(f.Types))
			}
			o.TypeIndex = typeID
			o.ClassID = f.Types[typeID].ClassID
		}

		if v < VersionHasScriptTypes {
			destroyed, err := r.U16()
			if err != nil {
				return err
			}
			o.Destroyed = destroyed != 0
		}
		if v >= VersionHasScriptTypes && v < VersionRefactorTypeData {
			if o.ScriptTypeIndex, err = r.I16(); err != nil {
				return err
			}
		}
		if v == VersionHasStripped || v == VersionRefactoredClass {
			stripped, err := r.U8()
			if err != nil {
				return err
			}
			o.Stripped = stripped != 0
		}

		if o.ByteStart < 0 || o.ByteStart+int64(o.ByteSize) > int64(len(f.data)) {
			return fmt.Errorf("%w: object %d spans [%d,%d) beyond %d bytes",
				stream.ErrMalformedHeader, o.PathID, o.ByteStart, o.ByteStart+int64(o.ByteSize), len(f.data))
		}
		if _, dup := f.index[o.PathID]; dup {
			return fmt.Errorf("%w: duplicate path ID %d", stream.ErrMalformedHeader, o.PathID)
		}
		f.index[o.PathID] = i
		f.objects = append(f.objects, o)
	}
	return nil
}

// Objects returns the object index in file order.
func (f *File) Objects() []Object { return f.objects }

// Externals returns the external file table.
func (f *File) Externals() []External { return f.externals }

// External returns the file referenced by fileID (1-based).
func (f *File) External(fileID int32) (External, bool) {
	if fileID < 1 || int(fileID) > len(f.externals) {
		return External{}, false
	}
	return f.externals[fileID-1], true
}

// Object looks up an object by path ID.
func (f *File) Object(pathID int64) (*Object, bool) {
	i, ok := f.index[pathID]
	if !ok {
		return nil, false
	}
	return &f.objects[i], true
}

// Type returns the schema entry of o, if any.
func (f *File) Type(o *Object) *Type {
	if o.TypeIndex < 0 || int(o.TypeIndex) >= len(f.Types) {
		return nil
	}
	return &f.Types[o.TypeIndex]
}

// TypeName returns the class name of o from its schema root, falling back to
// the well-known class table.
func (f *File) TypeName(o *Object) string {
	if t := f.Type(o); t != nil && t.Tree != nil {
		return t.Tree.Type
	}
	return ClassName(o.ClassID)
}

// Data returns the raw bytes of o without copying.
func (f *File) Data(o *Object) []byte {
	return f.data[o.ByteStart : o.ByteStart+int64(o.ByteSize)]
}

// Bytes returns the file's backing bytes.
func (f *File) Bytes() []byte { return f.data }

// GeneratorVersion returns the parsed generator version. Unparseable or stripped
// versions return the zero Version.
func (f *File) GeneratorVersion() Version {
	v, err := ParseVersion(f.UnityVersion)
	if err != nil {
		return Version{}
	}
	return v
}

// Decode decodes o against its class schema.
func (f *File) Decode(o *Object) (*typetree.Struct, error) {
	t := f.Type(o)
	if t == nil || t.Tree == nil {
		return nil, &stream.Error{
			Op:     "decode object",
			Entry:  f.Name,
			PathID: o.PathID,
			Offset: o.ByteStart,
			Err:    fmt.Errorf("%w: class %d (%s)", stream.ErrUnknownSchema, o.ClassID, ClassName(o.ClassID)),
		}
	}
	out, err := typetree.Decode(t.Tree, f.Data(o), f.Order())
	if err != nil {
		return nil, &stream.Error{Op: "decode object", Entry: f.Name, PathID: o.PathID, Offset: o.ByteStart, Err: err}
	}
	return out, nil
}
