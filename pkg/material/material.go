// Package material reads Material objects.
//
// A material's saved properties are three name-keyed tables: colors, floats
// and texture environments. Depending on the generator version each table is
// stored either as a map or as a vector of pairs, and the key is either a
// plain string or a FastPropertyName struct. View flattens all of these into
// ordered slices, keeping the stored order.
package material

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/EchoTools/hhhFileTools/pkg/asset"
	"github.com/EchoTools/hhhFileTools/pkg/typetree"
)

// MainColor is the conventional name of a material's base color.
const MainColor = "_Color"

// TexEnv is one texture slot.
type TexEnv struct {
	Texture asset.Reference `json:"texture"`
	Scale   mgl32.Vec2      `json:"scale"`
	Offset  mgl32.Vec2      `json:"offset"`
}

type ColorProperty struct {
	Name  string `json:"name"`
	Value Color  `json:"value"`
}

type FloatProperty struct {
	Name  string  `json:"name"`
	Value float32 `json:"value"`
}

type IntProperty struct {
	Name  string `json:"name"`
	Value int32  `json:"value"`
}

type TexEnvProperty struct {
	Name string `json:"name"`
	TexEnv
}

// View is the typed reading of a Material object.
type View struct {
	Name        string          `json:"name"`
	Shader      asset.Reference `json:"shader"`
	Keywords    []string        `json:"keywords,omitempty"`
	RenderQueue int32           `json:"render_queue"`

	Colors  []ColorProperty  `json:"colors,omitempty"`
	Floats  []FloatProperty  `json:"floats,omitempty"`
	Ints    []IntProperty    `json:"ints,omitempty"`
	TexEnvs []TexEnvProperty `json:"tex_envs,omitempty"`
}

// FromObject reads a decoded Material. Properties whose values do not have
// the expected shape are skipped.
func FromObject(obj *typetree.Struct) (*View, error) {
	props, ok := obj.Struct("m_SavedProperties")
	if !ok {
		return nil, fmt.Errorf("material: missing m_SavedProperties")
	}

	v := &View{}
	v.Name, _ = obj.String("m_Name")
	if ref, err := asset.ReferenceAt(obj, "m_Shader"); err == nil {
		v.Shader = ref
	}
	if q, ok := obj.Int("m_CustomRenderQueue"); ok {
		v.RenderQueue = int32(q)
	}
	v.Keywords = keywords(obj)

	for _, p := range pairs(props, "m_Colors") {
		if c, ok := colorFromValue(p.value); ok {
			v.Colors = append(v.Colors, ColorProperty{Name: p.name, Value: c})
		}
	}
	for _, p := range pairs(props, "m_Floats") {
		if f, ok := typetree.AsFloat(p.value); ok {
			v.Floats = append(v.Floats, FloatProperty{Name: p.name, Value: float32(f)})
		}
	}
	for _, p := range pairs(props, "m_Ints") {
		if i, ok := typetree.AsInt(p.value); ok {
			v.Ints = append(v.Ints, IntProperty{Name: p.name, Value: int32(i)})
		}
	}
	for _, p := range pairs(props, "m_TexEnvs") {
		env, ok := p.value.(*typetree.Struct)
		if !ok {
			continue
		}
		te := TexEnvProperty{Name: p.name}
		te.Texture, _ = asset.ReferenceAt(env, "m_Texture")
		te.Scale = vec2At(env, "m_Scale")
		te.Offset = vec2At(env, "m_Offset")
		v.TexEnvs = append(v.TexEnvs, te)
	}
	return v, nil
}

// Color returns the named color property.
func (v *View) Color(name string) (Color, bool) {
	for _, p := range v.Colors {
		if p.Name == name {
			return p.Value, true
		}
	}
	return Color{}, false
}

// Float returns the named float property.
func (v *View) Float(name string) (float32, bool) {
	for _, p := range v.Floats {
		if p.Name == name {
			return p.Value, true
		}
	}
	return 0, false
}

// Int returns the named integer property.
func (v *View) Int(name string) (int32, bool) {
	for _, p := range v.Ints {
		if p.Name == name {
			return p.Value, true
		}
	}
	return 0, false
}

// TexEnv returns the named texture slot.
func (v *View) TexEnv(name string) (TexEnv, bool) {
	for _, p := range v.TexEnvs {
		if p.Name == name {
			return p.TexEnv, true
		}
	}
	return TexEnv{}, false
}

// Texture returns the texture referenced by the named slot. Empty slots hold
// a null reference.
func (v *View) Texture(name string) (asset.Reference, bool) {
	te, ok := v.TexEnv(name)
	return te.Texture, ok
}

// CSS renders the color properties as CSS custom properties. The prefix is
// lower-cased with underscores replaced by dashes.
func (v *View) CSS(prefix string) string {
	prefix = strings.ToLower(strings.ReplaceAll(prefix, "_", "-"))

	var sb strings.Builder
	sb.WriteString(":root {\n")
	for _, p := range v.Colors {
		name := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(p.Name, "_"), "_", "-"))
		varName := fmt.Sprintf("--%s-%s", prefix, name)
		fmt.Fprintf(&sb, "  %-40s %s;\n", varName+":", p.Value.CSS())
	}
	sb.WriteString("}\n")
	return sb.String()
}

type property struct {
	name  string
	value typetree.Value
}

// pairs reads a property table stored as a map or as a vector of
// first/second structs.
func pairs(props *typetree.Struct, field string) []property {
	v, ok := props.Get(field)
	if !ok {
		return nil
	}
	var out []property
	switch t := v.(type) {
	case *typetree.Map:
		for _, p := range t.Pairs {
			if name, ok := propertyName(p.Key); ok {
				out = append(out, property{name, p.Value})
			}
		}
	case *typetree.Array:
		for _, e := range t.Elems {
			s, ok := e.(*typetree.Struct)
			if !ok {
				continue
			}
			key, _ := s.Get("first")
			val, ok := s.Get("second")
			if !ok {
				continue
			}
			if name, ok := propertyName(key); ok {
				out = append(out, property{name, val})
			}
		}
	}
	return out
}

// propertyName accepts a plain string key or a FastPropertyName struct.
func propertyName(v typetree.Value) (string, bool) {
	switch k := v.(type) {
	case typetree.String:
		return string(k), true
	case *typetree.Struct:
		return k.String("name")
	}
	return "", false
}

func keywords(obj *typetree.Struct) []string {
	if arr, ok := obj.Array("m_ValidKeywords"); ok {
		var out []string
		for _, e := range arr.Elems {
			if s, ok := e.(typetree.String); ok {
				out = append(out, string(s))
			}
		}
		return out
	}
	if s, ok := obj.String("m_ShaderKeywords"); ok && s != "" {
		return strings.Fields(s)
	}
	return nil
}

func vec2At(s *typetree.Struct, path string) mgl32.Vec2 {
	var v mgl32.Vec2
	if st, ok := s.Struct(path); ok {
		x, _ := st.Float("x")
		y, _ := st.Float("y")
		v = mgl32.Vec2{float32(x), float32(y)}
	}
	return v
}
