package mesh

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/EchoTools/hhhFileTools/pkg/typetree"
)

// ErrInvalidGeometry is returned by Validate when submeshes do not agree with
// the index and vertex buffers.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Topology is the primitive type of a submesh.
type Topology uint32

const (
	TopologyTriangles Topology = iota
	TopologyTriangleStrip
	TopologyQuads
	TopologyLines
	TopologyLineStrip
	TopologyPoints
)

func (t Topology) String() string {
	switch t {
	case TopologyTriangles:
		return "triangles"
	case TopologyTriangleStrip:
		return "triangle_strip"
	case TopologyQuads:
		return "quads"
	case TopologyLines:
		return "lines"
	case TopologyLineStrip:
		return "line_strip"
	case TopologyPoints:
		return "points"
	}
	return fmt.Sprintf("topology(%d)", uint32(t))
}

// MarshalText encodes the topology by name.
func (t Topology) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// AABB is an axis-aligned bounding box stored as centre and half extent.
type AABB struct {
	Center mgl32.Vec3 `json:"center"`
	Extent mgl32.Vec3 `json:"extent"`
}

// Min returns the minimum corner.
func (b AABB) Min() mgl32.Vec3 { return b.Center.Sub(b.Extent) }

// Max returns the maximum corner.
func (b AABB) Max() mgl32.Vec3 { return b.Center.Add(b.Extent) }

// Contains reports whether p lies inside the box, inclusive.
func (b AABB) Contains(p mgl32.Vec3) bool {
	lo, hi := b.Min(), b.Max()
	for i := range 3 {
		if p[i] < lo[i] || p[i] > hi[i] {
			return false
		}
	}
	return true
}

// SubMesh is a range of the shared index buffer drawn with one topology.
type SubMesh struct {
	FirstIndex  int      `json:"first_index"` // into Geometry.Indices
	IndexCount  int      `json:"index_count"`
	Topology    Topology `json:"topology"`
	BaseVertex  uint32   `json:"base_vertex"`
	FirstVertex uint32   `json:"first_vertex"`
	VertexCount uint32   `json:"vertex_count"`
	Bounds      AABB     `json:"bounds"`
}

// Attribute is one de-interleaved vertex attribute.
type Attribute struct {
	Dimension int       `json:"dimension"`
	Values    []float32 `json:"values"`
}

// Len returns the number of vertices the attribute covers.
func (a Attribute) Len() int {
	if a.Dimension == 0 {
		return 0
	}
	return len(a.Values) / a.Dimension
}

// Geometry is reconstructed, flat mesh data.
type Geometry struct {
	VertexCount int          `json:"vertex_count"`
	Positions   Attribute    `json:"positions"`
	Normals     Attribute    `json:"normals"`
	Tangents    Attribute    `json:"tangents"`
	Colors      Attribute    `json:"colors"`
	UV          [8]Attribute `json:"uv"`
	BoneWeights Attribute    `json:"bone_weights"`
	BoneIndices []uint32     `json:"bone_indices,omitempty"` // 4 per vertex
	Indices     []uint32     `json:"indices"`
	SubMeshes   []SubMesh    `json:"submeshes"`
	Bounds      AABB         `json:"bounds"`
}

// Validate checks that submeshes partition the index buffer and that every
// index, offset by the submesh's base vertex, falls inside the submesh's
// vertex range.
func (g *Geometry) Validate() error {
	total := 0
	for i, sm := range g.SubMeshes {
		if sm.FirstIndex < 0 || sm.IndexCount < 0 || sm.FirstIndex+sm.IndexCount > len(g.Indices) {
			return fmt.Errorf("%w: submesh %d indices [%d,%d) of %d", ErrInvalidGeometry, i, sm.FirstIndex, sm.FirstIndex+sm.IndexCount, len(g.Indices))
		}
		total += sm.IndexCount

		limit := uint64(sm.FirstVertex) + uint64(sm.VertexCount)
		for _, idx := range g.Indices[sm.FirstIndex : sm.FirstIndex+sm.IndexCount] {
			if v := uint64(idx) + uint64(sm.BaseVertex); v >= limit {
				return fmt.Errorf("%w: submesh %d index %d with base vertex %d exceeds vertex range %d",
					ErrInvalidGeometry, i, idx, sm.BaseVertex, limit)
			}
		}
		if limit > uint64(g.VertexCount) && g.VertexCount > 0 {
			return fmt.Errorf("%w: submesh %d vertex range %d exceeds %d vertices", ErrInvalidGeometry, i, limit, g.VertexCount)
		}
	}
	if len(g.SubMeshes) > 0 && total != len(g.Indices) {
		return fmt.Errorf("%w: submeshes cover %d of %d indices", ErrInvalidGeometry, total, len(g.Indices))
	}
	return nil
}

// Triangles expands submesh i into a triangle list. Strips are unrolled with
// alternating winding and degenerate triangles dropped; quads are split.
func (g *Geometry) Triangles(i int) ([]uint32, error) {
	if i < 0 || i >= len(g.SubMeshes) {
		return nil, fmt.Errorf("submesh %d of %d", i, len(g.SubMeshes))
	}
	sm := g.SubMeshes[i]
	idx := g.Indices[sm.FirstIndex : sm.FirstIndex+sm.IndexCount]
	out := make([]uint32, 0, len(idx))
	switch sm.Topology {
	case TopologyTriangles:
		out = append(out, idx[:len(idx)/3*3]...)
	case TopologyTriangleStrip:
		for j := 0; j+2 < len(idx); j++ {
			a, b, c := idx[j], idx[j+1], idx[j+2]
			if a == b || b == c || a == c {
				continue
			}
			if j%2 == 1 {
				a, b = b, a
			}
			out = append(out, a, b, c)
		}
	case TopologyQuads:
		for j := 0; j+3 < len(idx); j += 4 {
			out = append(out, idx[j], idx[j+1], idx[j+2], idx[j], idx[j+2], idx[j+3])
		}
	default:
		return nil, fmt.Errorf("submesh %d: %s has no triangles", i, sm.Topology)
	}
	return out, nil
}

func vec3At(s *typetree.Struct, path string) mgl32.Vec3 {
	var v mgl32.Vec3
	if st, ok := s.Struct(path); ok {
		for i, c := range [3]string{"x", "y", "z"} {
			f, _ := st.Float(c)
			v[i] = float32(f)
		}
	}
	return v
}

func aabbAt(s *typetree.Struct, path string) AABB {
	return AABB{
		Center: vec3At(s, path+".m_Center"),
		Extent: vec3At(s, path+".m_Extent"),
	}
}
