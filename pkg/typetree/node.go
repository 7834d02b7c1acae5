// Package typetree holds per-class field schemas and decodes object bytes
// against them.
//
// A schema is a tree of Nodes recorded in each serialized file. The layout of
// a class depends on the tool version that produced the file, so nothing here
// hard-codes field offsets: Decode walks the tree and reads whatever it
// describes.
package typetree

import (
	"fmt"

	"github.com/EchoTools/hhhFileTools/pkg/stream"
)

// Meta flags.
const (
	// AlignFlag marks a node whose value is followed by 4-byte alignment.
	AlignFlag = 0x4000
)

// Node is one field of a class schema.
type Node struct {
	Type        string
	Name        string
	ByteSize    int32 // -1 when variable
	Index       int32
	TypeFlags   int32 // bit 0: array
	Version     int32
	MetaFlag    int32
	Level       uint8
	RefTypeHash uint64
	Children    []*Node
}

// Aligned reports whether the node's value is padded to 4 bytes.
func (n *Node) Aligned() bool { return n.MetaFlag&AlignFlag != 0 }

// IsArray reports whether the node is an array container.
func (n *Node) IsArray() bool { return n.TypeFlags&1 != 0 || n.Type == "Array" }

// Child returns the first direct child named name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Count returns the number of nodes in the subtree.
func (n *Node) Count() int {
	total := 1
	for _, c := range n.Children {
		total += c.Count()
	}
	return total
}

// String returns a one-line description.
func (n *Node) String() string {
	return fmt.Sprintf("%s %s (size=%d flags=0x%x)", n.Type, n.Name, n.ByteSize, n.MetaFlag)
}

// Format versions that change the schema encoding.
const (
	versionBlobLegacy   = 10 // 10 uses the blob layout, 11 does not
	versionBlob         = 12
	versionRefTypeHash  = 19
	legacyNoIndex       = 3
	legacyVariableCount = 2
)

// UsesBlob reports whether the given serialized-file version stores schemas
// as a flat node array with a string buffer.
func UsesBlob(version uint32) bool {
	return version >= versionBlob || version == versionBlobLegacy
}

// Read parses one class schema in the encoding selected by version.
func Read(r *stream.Reader, version uint32) (*Node, error) {
	if UsesBlob(version) {
		return ReadBlob(r, version)
	}
	return readLegacy(r, version, 0)
}

// ReadBlob parses the flat node array form.
func ReadBlob(r *stream.Reader, version uint32) (*Node, error) {
	count, err := r.I32()
	if err != nil {
		return nil, err
	}
	strSize, err := r.I32()
	if err != nil {
		return nil, err
	}

	nodeSize := int64(24)
	if version >= versionRefTypeHash {
		nodeSize = 32
	}
	if count <= 0 || strSize < 0 || int64(count)*nodeSize+int64(strSize) > r.Remaining() {
		return nil, fmt.Errorf("%w: type tree with %d nodes and %d string bytes", stream.ErrMalformedHeader, count, strSize)
	}

	type rawNode struct {
		node           Node
		typeOff, nameO uint32
	}
	raw := make([]rawNode, count)
	for i := range raw {
		n := &raw[i]
		v, err := r.U16()
		if err != nil {
			return nil, err
		}
		n.node.Version = int32(v)
		if n.node.Level, err = r.U8(); err != nil {
			return nil, err
		}
		flags, err := r.U8()
		if err != nil {
			return nil, err
		}
		n.node.TypeFlags = int32(flags)
		if n.typeOff, err = r.U32(); err != nil {
			return nil, err
		}
		if n.nameO, err = r.U32(); err != nil {
			return nil, err
		}
		if n.node.ByteSize, err = r.I32(); err != nil {
			return nil, err
		}
		if n.node.Index, err = r.I32(); err != nil {
			return nil, err
		}
		if n.node.MetaFlag, err = r.I32(); err != nil {
			return nil, err
		}
		if version >= versionRefTypeHash {
			if n.node.RefTypeHash, err = r.U64(); err != nil {
				return nil, err
			}
		}
	}

	strs, err := r.Bytes(int(strSize))
	if err != nil {
		return nil, err
	}

	flat := make([]*Node, count)
	for i := range raw {
		n := raw[i].node
		n.Type = resolveString(strs, raw[i].typeOff)
		n.Name = resolveString(strs, raw[i].nameO)
		flat[i] = &n
	}
	return Build(flat)
}

// Build links a depth-first node list into a tree using each node's Level.
func Build(flat []*Node) (*Node, error) {
	if len(flat) == 0 {
		return nil, fmt.Errorf("%w: empty type tree", stream.ErrMalformedHeader)
	}
	root := flat[0]
	if root.Level != 0 {
		return nil, fmt.Errorf("%w: type tree root at level %d", stream.ErrMalformedHeader, root.Level)
	}

	parents := []*Node{root}
	for _, n := range flat[1:] {
		if n.Level == 0 || int(n.Level) > len(parents) {
			return nil, fmt.Errorf("%w: type tree node %q jumps to level %d", stream.ErrMalformedHeader, n.Name, n.Level)
		}
		parents = parents[:n.Level]
		parent := parents[len(parents)-1]
		parent.Children = append(parent.Children, n)
		parents = append(parents, n)
	}
	return root, nil
}

func readLegacy(r *stream.Reader, version uint32, level uint8) (*Node, error) {
	n := &Node{Level: level}
	var err error
	if n.Type, err = r.StringToNull(); err != nil {
		return nil, err
	}
	if n.Name, err = r.StringToNull(); err != nil {
		return nil, err
	}
	if n.ByteSize, err = r.I32(); err != nil {
		return nil, err
	}
	if version == legacyVariableCount {
		if _, err = r.I32(); err != nil {
			return nil, err
		}
	}
	if version != legacyNoIndex {
		if n.Index, err = r.I32(); err != nil {
			return nil, err
		}
	}
	if n.TypeFlags, err = r.I32(); err != nil {
		return nil, err
	}
	if n.Version, err = r.I32(); err != nil {
		return nil, err
	}
	if version != legacyNoIndex {
		if n.MetaFlag, err = r.I32(); err != nil {
			return nil, err
		}
	}

	count, err := r.I32()
	if err != nil {
		return nil, err
	}
	if count < 0 || int64(count) > r.Remaining() {
		return nil, fmt.Errorf("%w: node %q has %d children", stream.ErrMalformedHeader, n.Name, count)
	}
	n.Children = make([]*Node, 0, count)
	for range count {
		c, err := readLegacy(r, version, level+1)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, c)
	}
	return n, nil
}
