// Package mesh reconstructs geometry from decoded Mesh objects.
//
// A View reads the fields a Mesh carries, whatever the generator version.
// Reconstruct then produces flat attribute arrays from either the explicit
// interleaved vertex data or the quantized m_CompressedMesh streams, plus the
// index buffer partitioned by submesh.
package mesh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/EchoTools/hhhFileTools/pkg/asset"
	"github.com/EchoTools/hhhFileTools/pkg/serialized"
	"github.com/EchoTools/hhhFileTools/pkg/stream"
	"github.com/EchoTools/hhhFileTools/pkg/typetree"
)

// SubMeshInfo is a submesh record as stored, indexing the raw index buffer
// by byte.
type SubMeshInfo struct {
	FirstByte   uint32
	IndexCount  uint32
	Topology    Topology
	BaseVertex  uint32
	FirstVertex uint32
	VertexCount uint32
	Bounds      AABB
}

// Compressed holds the quantized streams of m_CompressedMesh.
type Compressed struct {
	Vertices     PackedFloat
	UV           PackedFloat
	Normals      PackedFloat
	Tangents     PackedFloat
	Weights      PackedInt
	NormalSigns  PackedInt
	TangentSigns PackedInt
	FloatColors  PackedFloat
	Colors       PackedInt // before 5.0, RGBA32 per item
	BoneIndices  PackedInt
	Triangles    PackedInt
	UVInfo       uint32
}

// View is the typed reading of a Mesh object.
type View struct {
	Name    string
	Version serialized.Version
	Order   binary.ByteOrder

	SubMeshes   []SubMeshInfo
	Use16Bit    bool
	IndexBuffer []byte

	VertexCount int
	Channels    []Channel
	Streams     []Stream
	VertexData  []byte
	StreamData  asset.StreamData

	Compressed Compressed
	Bounds     AABB

	skin []skinWeight
}

type skinWeight struct {
	weight [4]float32
	index  [4]uint32
}

// FromObject reads a decoded Mesh. order is the byte order of the
// serialized file; nil means little-endian.
func FromObject(obj *typetree.Struct, version serialized.Version, order binary.ByteOrder) (*View, error) {
	if obj == nil {
		return nil, errors.New("mesh: nil object")
	}
	if order == nil {
		order = binary.LittleEndian
	}
	v := &View{Version: version, Order: order, Use16Bit: true}
	v.Name, _ = obj.String("m_Name")
	v.Bounds = aabbAt(obj, "m_LocalAABB")

	if err := v.readSubMeshes(obj); err != nil {
		return nil, err
	}

	if f, ok := obj.Int("m_IndexFormat"); ok {
		v.Use16Bit = f == 0
	} else if u, ok := obj.Int("m_Use16BitIndices"); ok {
		v.Use16Bit = u != 0
	}
	v.IndexBuffer, _ = obj.Bytes("m_IndexBuffer")

	if err := v.readVertexData(obj); err != nil {
		return nil, err
	}
	v.StreamData = asset.StreamDataAt(obj, "m_StreamData")
	v.readCompressed(obj)
	v.readSkin(obj)
	return v, nil
}

func (v *View) readSubMeshes(obj *typetree.Struct) error {
	arr, ok := obj.Array("m_SubMeshes")
	if !ok {
		return nil
	}
	v.SubMeshes = make([]SubMeshInfo, 0, arr.Len())
	for i, e := range arr.Elems {
		s, ok := e.(*typetree.Struct)
		if !ok {
			return fmt.Errorf("mesh %s: submesh %d is not a struct", v.Name, i)
		}
		var sm SubMeshInfo
		firstByte, _ := s.Int("firstByte")
		indexCount, _ := s.Int("indexCount")
		baseVertex, _ := s.Int("baseVertex")
		firstVertex, _ := s.Int("firstVertex")
		vertexCount, _ := s.Int("vertexCount")
		sm.FirstByte, sm.IndexCount = uint32(firstByte), uint32(indexCount)
		sm.BaseVertex, sm.FirstVertex, sm.VertexCount = uint32(baseVertex), uint32(firstVertex), uint32(vertexCount)
		if t, ok := s.Int("topology"); ok {
			sm.Topology = Topology(t)
		} else if strip, ok := s.Int("isTriStrip"); ok && strip != 0 {
			sm.Topology = TopologyTriangleStrip
		}
		sm.Bounds = aabbAt(s, "localAABB")
		v.SubMeshes = append(v.SubMeshes, sm)
	}
	return nil
}

func (v *View) readVertexData(obj *typetree.Struct) error {
	vd, ok := obj.Struct("m_VertexData")
	if !ok {
		return nil
	}
	n, _ := vd.Int("m_VertexCount")
	v.VertexCount = int(n)
	v.VertexData, _ = vd.Bytes("m_DataSize")

	if arr, ok := vd.Array("m_Channels"); ok {
		v.Channels = make([]Channel, 0, arr.Len())
		for slot, e := range arr.Elems {
			s, ok := e.(*typetree.Struct)
			if !ok {
				return fmt.Errorf("mesh %s: channel %d is not a struct", v.Name, slot)
			}
			streamIdx, _ := s.Int("stream")
			offset, _ := s.Int("offset")
			rawFormat, _ := s.Int("format")
			dim, _ := s.Int("dimension")

			c := Channel{Stream: uint8(streamIdx), Offset: uint8(offset), Dimension: uint8(dim) & 0xf}
			if c.Dimension > 0 {
				f, err := vertexFormat(uint8(rawFormat), v.Version)
				if err != nil {
					return fmt.Errorf("mesh %s channel %d: %w", v.Name, slot, err)
				}
				c.Format = f
				// Colour was declared as one packed component before 2018.
				if !v.Version.IsZero() && !v.Version.AtLeast(2018, 0) && slot == 2 && rawFormat == 2 {
					c.Dimension = 4
				}
			}
			v.Channels = append(v.Channels, c)
		}
	}

	if arr, ok := vd.Array("m_Streams"); ok && arr.Len() > 0 {
		v.Streams = make([]Stream, 0, arr.Len())
		for _, e := range arr.Elems {
			s, ok := e.(*typetree.Struct)
			if !ok {
				continue
			}
			mask, _ := s.Int("channelMask")
			offset, _ := s.Int("offset")
			stride, _ := s.Int("stride")
			v.Streams = append(v.Streams, Stream{ChannelMask: uint32(mask), Offset: int(offset), Stride: int(stride)})
		}
	} else {
		v.Streams = computeStreams(v.Channels, v.VertexCount)
	}
	return nil
}

func (v *View) readCompressed(obj *typetree.Struct) {
	cm, ok := obj.Struct("m_CompressedMesh")
	if !ok {
		return
	}
	c := &v.Compressed
	c.Vertices = packedFloatAt(cm, "m_Vertices")
	c.UV = packedFloatAt(cm, "m_UV")
	c.Normals = packedFloatAt(cm, "m_Normals")
	c.Tangents = packedFloatAt(cm, "m_Tangents")
	c.Weights = packedIntAt(cm, "m_Weights")
	c.NormalSigns = packedIntAt(cm, "m_NormalSigns")
	c.TangentSigns = packedIntAt(cm, "m_TangentSigns")
	c.FloatColors = packedFloatAt(cm, "m_FloatColors")
	c.Colors = packedIntAt(cm, "m_Colors")
	c.BoneIndices = packedIntAt(cm, "m_BoneIndices")
	c.Triangles = packedIntAt(cm, "m_Triangles")
	if info, ok := cm.Int("m_UVInfo"); ok {
		c.UVInfo = uint32(info)
	}
}

// readSkin reads the per-vertex bone weights stored outside the vertex data
// before 2018.
func (v *View) readSkin(obj *typetree.Struct) {
	arr, ok := obj.Array("m_Skin")
	if !ok {
		return
	}
	v.skin = make([]skinWeight, 0, arr.Len())
	for _, e := range arr.Elems {
		s, ok := e.(*typetree.Struct)
		if !ok {
			continue
		}
		var w skinWeight
		for j := range 4 {
			f, _ := s.Float(fmt.Sprintf("weight[%d]", j))
			i, _ := s.Int(fmt.Sprintf("boneIndex[%d]", j))
			w.weight[j], w.index[j] = float32(f), uint32(i)
		}
		v.skin = append(v.skin, w)
	}
}

// IsCompressed reports whether geometry comes from m_CompressedMesh.
func (v *View) IsCompressed() bool {
	return v.Compressed.Vertices.NumItems > 0
}

// Reconstruct decodes the view into flat geometry. res supplies vertex data
// stored out of band; it may be nil when the mesh has none.
func (v *View) Reconstruct(res asset.ResourceReader) (*Geometry, error) {
	g := &Geometry{VertexCount: v.VertexCount, Bounds: v.Bounds}

	if err := v.readChannels(g, res); err != nil {
		return nil, err
	}
	v.applySkin(g)
	if err := v.decompress(g); err != nil {
		return nil, fmt.Errorf("mesh %s: %w", v.Name, err)
	}
	if err := v.readIndices(g); err != nil {
		return nil, fmt.Errorf("mesh %s: %w", v.Name, err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("mesh %s: %w", v.Name, err)
	}
	return g, nil
}

func (v *View) readChannels(g *Geometry, res asset.ResourceReader) error {
	if v.VertexCount == 0 || len(v.Channels) == 0 {
		return nil
	}
	data := v.VertexData
	if len(data) == 0 && !v.StreamData.IsZero() {
		var err error
		if data, err = v.StreamData.Read(res); err != nil {
			return fmt.Errorf("mesh %s vertex data: %w", v.Name, err)
		}
	}
	if len(data) == 0 {
		return nil
	}

	for slot, c := range v.Channels {
		if c.Dimension == 0 {
			continue
		}
		sem, ok := semantic(slot, v.Version)
		if !ok {
			continue
		}
		if int(c.Stream) >= len(v.Streams) {
			return fmt.Errorf("%w: mesh %s channel %d uses stream %d of %d",
				stream.ErrUnsupportedMeshEncoding, v.Name, slot, c.Stream, len(v.Streams))
		}
		values, err := readChannel(data, v.Order, v.Streams[c.Stream], c, v.VertexCount)
		if err != nil {
			return fmt.Errorf("mesh %s channel %d: %w", v.Name, slot, err)
		}
		attr := Attribute{Dimension: int(c.Dimension), Values: values}

		switch {
		case sem == SemanticPosition:
			g.Positions = attr
		case sem == SemanticNormal:
			g.Normals = attr
		case sem == SemanticTangent:
			g.Tangents = attr
		case sem == SemanticColor:
			g.Colors = attr
		case sem >= SemanticUV0 && sem <= SemanticUV7:
			g.UV[sem-SemanticUV0] = attr
		case sem == SemanticBlendWeight:
			g.BoneWeights = attr
		case sem == SemanticBlendIndices:
			g.BoneIndices = widen4(values, attr.Dimension)
		}
	}
	return nil
}

// widen4 pads per-vertex integer tuples to four components.
func widen4(values []float32, dim int) []uint32 {
	n := len(values) / dim
	out := make([]uint32, n*4)
	for i := range n {
		for j := range min(dim, 4) {
			out[i*4+j] = uint32(values[i*dim+j])
		}
	}
	return out
}

func (v *View) applySkin(g *Geometry) {
	if len(v.skin) == 0 || len(g.BoneWeights.Values) > 0 {
		return
	}
	g.BoneWeights = Attribute{Dimension: 4, Values: make([]float32, 0, len(v.skin)*4)}
	g.BoneIndices = make([]uint32, 0, len(v.skin)*4)
	for _, w := range v.skin {
		g.BoneWeights.Values = append(g.BoneWeights.Values, w.weight[:]...)
		g.BoneIndices = append(g.BoneIndices, w.index[:]...)
	}
}

const (
	uvInfoBits      = 4
	uvDimensionMask = 3
	uvChannelExists = 4
	weightScale     = 31
)

// decompress fills g from m_CompressedMesh, overriding explicit channels.
func (v *View) decompress(g *Geometry) error {
	c := &v.Compressed
	if c.Vertices.NumItems > 0 {
		g.VertexCount = int(c.Vertices.NumItems / 3)
		values, err := c.Vertices.Unpack(0, g.VertexCount*3)
		if err != nil {
			return fmt.Errorf("vertices: %w", err)
		}
		g.Positions = Attribute{Dimension: 3, Values: values}
	}
	n := g.VertexCount

	if c.UV.NumItems > 0 {
		if err := v.decompressUV(g, n); err != nil {
			return err
		}
	}

	if c.Normals.NumItems > 0 {
		normals, err := unpackDirections(c.Normals, c.NormalSigns, false)
		if err != nil {
			return fmt.Errorf("normals: %w", err)
		}
		g.Normals = Attribute{Dimension: 3, Values: normals}
	}
	if c.Tangents.NumItems > 0 {
		tangents, err := unpackDirections(c.Tangents, c.TangentSigns, true)
		if err != nil {
			return fmt.Errorf("tangents: %w", err)
		}
		g.Tangents = Attribute{Dimension: 4, Values: tangents}
	}

	switch {
	case c.FloatColors.NumItems > 0:
		colors, err := c.FloatColors.Unpack(0, -1)
		if err != nil {
			return fmt.Errorf("colors: %w", err)
		}
		g.Colors = Attribute{Dimension: 4, Values: colors}
	case c.Colors.NumItems > 0:
		// Each item is RGBA32; read it as four 8-bit channels.
		packed := PackedInt{NumItems: c.Colors.NumItems * 4, BitSize: c.Colors.BitSize / 4, Data: c.Colors.Data}
		raw, err := packed.Unpack(0, -1)
		if err != nil {
			return fmt.Errorf("colors: %w", err)
		}
		colors := make([]float32, len(raw))
		for i, x := range raw {
			colors[i] = float32(x) / 255
		}
		g.Colors = Attribute{Dimension: 4, Values: colors}
	}

	if c.Weights.NumItems > 0 {
		if err := decompressSkin(g, c.Weights, c.BoneIndices, n); err != nil {
			return err
		}
	}
	return nil
}

func (v *View) decompressUV(g *Geometry, n int) error {
	c := &v.Compressed
	if c.UVInfo == 0 {
		uv0, err := c.UV.Unpack(0, n*2)
		if err != nil {
			return fmt.Errorf("uv0: %w", err)
		}
		g.UV[0] = Attribute{Dimension: 2, Values: uv0}
		if int(c.UV.NumItems) >= n*4 {
			uv1, err := c.UV.Unpack(n*2, n*2)
			if err != nil {
				return fmt.Errorf("uv1: %w", err)
			}
			g.UV[1] = Attribute{Dimension: 2, Values: uv1}
		}
		return nil
	}

	offset := 0
	for uv := range len(g.UV) {
		bits := (c.UVInfo >> (uv * uvInfoBits)) & (1<<uvInfoBits - 1)
		if bits&uvChannelExists == 0 {
			continue
		}
		dim := 1 + int(bits&uvDimensionMask)
		values, err := c.UV.Unpack(offset, dim*n)
		if err != nil {
			return fmt.Errorf("uv%d: %w", uv, err)
		}
		g.UV[uv] = Attribute{Dimension: dim, Values: values}
		offset += dim * n
	}
	return nil
}

// unpackDirections rebuilds unit vectors stored as (x, y) pairs plus a sign
// stream for z. Tangents carry a second sign per item for w.
func unpackDirections(p PackedFloat, signs PackedInt, withW bool) ([]float32, error) {
	items := int(p.NumItems / 2)
	xy, err := p.Unpack(0, items*2)
	if err != nil {
		return nil, err
	}
	s, err := signs.Unpack(0, -1)
	if err != nil {
		return nil, err
	}
	perItem := 1
	dim := 3
	if withW {
		perItem, dim = 2, 4
	}
	if len(s) < items*perItem {
		return nil, fmt.Errorf("%w: %d signs for %d items", stream.ErrTruncatedInput, len(s), items)
	}

	out := make([]float32, items*dim)
	for i := range items {
		x, y := xy[i*2], xy[i*2+1]
		var z float32
		if zsq := 1 - x*x - y*y; zsq >= 0 {
			z = float32(math.Sqrt(float64(zsq)))
		} else if n := (mgl32.Vec3{x, y, 0}); n.Len() > 0 {
			n = n.Normalize()
			x, y = n[0], n[1]
		}
		if s[i*perItem] == 0 {
			z = -z
		}
		out[i*dim], out[i*dim+1], out[i*dim+2] = x, y, z
		if withW {
			w := float32(-1)
			if s[i*2+1] > 0 {
				w = 1
			}
			out[i*dim+3] = w
		}
	}
	return out, nil
}

// decompressSkin expands the variable-length weight stream. Weights are
// quantized to 1/31; a vertex ends when its weights sum to 31 or after three
// weights, in which case the fourth takes the remainder.
func decompressSkin(g *Geometry, weights, indices PackedInt, n int) error {
	w, err := weights.Unpack(0, -1)
	if err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	idx, err := indices.Unpack(0, -1)
	if err != nil {
		return fmt.Errorf("bone indices: %w", err)
	}

	outW := make([]float32, n*4)
	outI := make([]uint32, n*4)
	nextIndex := func() (uint32, error) {
		if len(idx) == 0 {
			return 0, fmt.Errorf("%w: bone index stream exhausted", stream.ErrTruncatedInput)
		}
		x := idx[0]
		idx = idx[1:]
		return x, nil
	}

	vertex, j, sum := 0, 0, uint32(0)
	for _, x := range w {
		if vertex >= n {
			return fmt.Errorf("%w: skin data for more than %d vertices", ErrInvalidGeometry, n)
		}
		bone, err := nextIndex()
		if err != nil {
			return err
		}
		outW[vertex*4+j] = float32(x) / weightScale
		outI[vertex*4+j] = bone
		j++
		sum += x

		switch {
		case sum >= weightScale:
			vertex, j, sum = vertex+1, 0, 0
		case j == 3:
			bone, err := nextIndex()
			if err != nil {
				return err
			}
			outW[vertex*4+3] = float32(weightScale-sum) / weightScale
			outI[vertex*4+3] = bone
			vertex, j, sum = vertex+1, 0, 0
		}
	}
	g.BoneWeights = Attribute{Dimension: 4, Values: outW}
	g.BoneIndices = outI
	return nil
}

// readIndices decodes the index buffer and lays submeshes out back to back.
func (v *View) readIndices(g *Geometry) error {
	size := 2
	if !v.Use16Bit {
		size = 4
	}

	var buf []uint32
	if v.Compressed.Triangles.NumItems > 0 {
		var err error
		if buf, err = v.Compressed.Triangles.Unpack(0, -1); err != nil {
			return fmt.Errorf("triangles: %w", err)
		}
	} else {
		buf = make([]uint32, len(v.IndexBuffer)/size)
		for i := range buf {
			if size == 2 {
				buf[i] = uint32(v.Order.Uint16(v.IndexBuffer[i*2:]))
			} else {
				buf[i] = v.Order.Uint32(v.IndexBuffer[i*4:])
			}
		}
	}

	if len(v.SubMeshes) == 0 {
		g.Indices = buf
		return nil
	}

	g.SubMeshes = make([]SubMesh, len(v.SubMeshes))
	g.Indices = make([]uint32, 0, len(buf))
	for i, sm := range v.SubMeshes {
		first := int(sm.FirstByte) / size
		count := int(sm.IndexCount)
		if first+count > len(buf) {
			return fmt.Errorf("%w: submesh %d indices [%d,%d) of %d", ErrInvalidGeometry, i, first, first+count, len(buf))
		}
		g.SubMeshes[i] = SubMesh{
			FirstIndex:  len(g.Indices),
			IndexCount:  count,
			Topology:    sm.Topology,
			BaseVertex:  sm.BaseVertex,
			FirstVertex: sm.FirstVertex,
			VertexCount: sm.VertexCount,
			Bounds:      sm.Bounds,
		}
		g.Indices = append(g.Indices, buf[first:first+count]...)
	}
	return nil
}
