// Package asset provides the cross-reference type that links objects.
//
// A reference (PPtr) is a pair of file index and path ID. File index 0 means
// the file holding the reference; n > 0 selects entry n-1 of that file's
// external table. References never own their target and may dangle.
package asset

import (
	"fmt"
	"strings"

	"github.com/EchoTools/hhhFileTools/pkg/typetree"
)

// Reference is a weak pointer to an object.
type Reference struct {
	FileID int32 `json:"file_id"`
	PathID int64 `json:"path_id,string"`
}

// IsNull reports whether the reference points nowhere.
func (r Reference) IsNull() bool { return r.PathID == 0 }

// IsLocal reports whether the target lives in the referencing file.
func (r Reference) IsLocal() bool { return r.FileID == 0 }

// String returns a human-readable representation.
func (r Reference) String() string {
	return fmt.Sprintf("PPtr[file=%d, path_id=%d]", r.FileID, r.PathID)
}

// IsReferenceType reports whether a type name denotes a reference.
func IsReferenceType(typeName string) bool {
	return strings.HasPrefix(typeName, "PPtr<")
}

// ReferenceFromValue reads a reference from a decoded m_FileID/m_PathID struct.
func ReferenceFromValue(v typetree.Value) (Reference, error) {
	s, ok := v.(*typetree.Struct)
	if !ok {
		return Reference{}, fmt.Errorf("reference: expected struct, got kind %d", kindOf(v))
	}
	fileID, ok := s.Int("m_FileID")
	if !ok {
		return Reference{}, fmt.Errorf("reference %s: missing m_FileID", s.Path)
	}
	pathID, ok := s.Int("m_PathID")
	if !ok {
		return Reference{}, fmt.Errorf("reference %s: missing m_PathID", s.Path)
	}
	return Reference{FileID: int32(fileID), PathID: pathID}, nil
}

// ReferenceAt reads the reference stored at a dotted field path.
func ReferenceAt(s *typetree.Struct, path string) (Reference, error) {
	v, ok := s.Lookup(path)
	if !ok {
		return Reference{}, fmt.Errorf("reference: no field %s", path)
	}
	return ReferenceFromValue(v)
}

// Collect returns every reference inside v in field order.
func Collect(v typetree.Value) []Reference {
	var out []Reference
	walk(v, func(s *typetree.Struct) bool {
		if !IsReferenceType(s.Type) {
			return true
		}
		if ref, err := ReferenceFromValue(s); err == nil {
			out = append(out, ref)
		}
		return false
	})
	return out
}

// StreamData locates payload bytes stored outside the object, usually in a
// .resS or .resource entry next to the serialized file.
type StreamData struct {
	Offset int64
	Size   int64
	Path   string
}

// IsZero reports whether the payload is stored inline.
func (d StreamData) IsZero() bool { return d.Path == "" || d.Size == 0 }

// StreamDataAt reads an m_StreamData struct at path. Missing or empty
// entries return the zero value.
func StreamDataAt(s *typetree.Struct, path string) StreamData {
	sd, ok := s.Struct(path)
	if !ok {
		return StreamData{}
	}
	var d StreamData
	d.Offset, _ = sd.Int("offset")
	d.Size, _ = sd.Int("size")
	d.Path, _ = sd.String("path")
	return d
}

// ResourceReader reads out-of-band payloads by resource path.
type ResourceReader interface {
	ReadResource(path string, offset, size int64) ([]byte, error)
}

// Read fetches the payload through r.
func (d StreamData) Read(r ResourceReader) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("stream data %s: no resource reader", d.Path)
	}
	return r.ReadResource(d.Path, d.Offset, d.Size)
}

func walk(v typetree.Value, visit func(*typetree.Struct) bool) {
	switch x := v.(type) {
	case *typetree.Struct:
		if !visit(x) {
			return
		}
		for _, f := range x.Fields {
			walk(f.Value, visit)
		}
	case *typetree.Array:
		for _, e := range x.Elems {
			walk(e, visit)
		}
	case *typetree.Map:
		for _, p := range x.Pairs {
			walk(p.Key, visit)
			walk(p.Value, visit)
		}
	}
}

func kindOf(v typetree.Value) typetree.Kind {
	if v == nil {
		return 0
	}
	return v.Kind()
}
