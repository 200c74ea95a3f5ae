package rhi

import "fmt"

// VertexAttributeFormat is the shape of one vertex attribute. The set
// covers every field shape the engine's vertex records use; a matrix4
// occupies four consecutive locations on the wire, one per column.
type VertexAttributeFormat int

const (
	AttribFloat32 VertexAttributeFormat = iota
	AttribFloat32Vector2
	AttribFloat32Vector3
	AttribFloat32Vector4
	AttribUint32
	AttribFloat32Matrix4
)

var attribBytes = map[VertexAttributeFormat]uint32{
	AttribFloat32:        4,
	AttribFloat32Vector2: 8,
	AttribFloat32Vector3: 12,
	AttribFloat32Vector4: 16,
	AttribUint32:         4,
	AttribFloat32Matrix4: 64,
}

var attribNames = map[VertexAttributeFormat]string{
	AttribFloat32:        "Float32",
	AttribFloat32Vector2: "Float32Vector2",
	AttribFloat32Vector3: "Float32Vector3",
	AttribFloat32Vector4: "Float32Vector4",
	AttribUint32:         "Uint32",
	AttribFloat32Matrix4: "Float32Matrix4",
}

// Bytes returns the attribute's size in the vertex record.
func (f VertexAttributeFormat) Bytes() uint32 {
	return attribBytes[f]
}

// Locations returns how many shader input locations the attribute
// occupies. Only matrix attributes span more than one.
func (f VertexAttributeFormat) Locations() uint32 {
	if f == AttribFloat32Matrix4 {
		return 4
	}
	return 1
}

func (f VertexAttributeFormat) String() string {
	if n, ok := attribNames[f]; ok {
		return n
	}
	return fmt.Sprintf("VertexAttributeFormat(%d)", int(f))
}

// VertexAttribute declares one attribute of a vertex record: its shader
// location, shape and byte offset within the record.
type VertexAttribute struct {
	Name     string
	Location uint32
	Format   VertexAttributeFormat
	Offset   uint32
}

// VertexLayout is the declarative wire layout of one vertex record type.
// It replaces any runtime inspection of the record: the layout is written
// next to the type and validated once at registration.
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

// NewVertexLayout builds and validates a layout. Violations are
// programmer error and panic immediately: an invalid layout can never
// produce a working pipeline, and it is caught at init, not per frame.
func NewVertexLayout(stride uint32, attributes ...VertexAttribute) *VertexLayout {
	vl := &VertexLayout{
		Stride:     stride,
		Attributes: attributes,
	}
	vl.validate()
	return vl
}

func (vl *VertexLayout) validate() {
	if vl.Stride == 0 {
		panic("rhi: vertex layout has zero stride")
	}
	if len(vl.Attributes) == 0 {
		panic("rhi: vertex layout has no attributes")
	}
	usedLocations := map[uint32]string{}
	for _, attr := range vl.Attributes {
		size, known := attribBytes[attr.Format]
		if !known {
			panic(fmt.Sprintf("rhi: vertex attribute %q has unsupported format %d", attr.Name, attr.Format))
		}
		if attr.Offset+size > vl.Stride {
			panic(fmt.Sprintf("rhi: vertex attribute %q (%s at offset %d) overruns stride %d",
				attr.Name, attr.Format, attr.Offset, vl.Stride))
		}
		for l := attr.Location; l < attr.Location+attr.Format.Locations(); l++ {
			if prev, taken := usedLocations[l]; taken {
				panic(fmt.Sprintf("rhi: vertex attributes %q and %q both claim location %d", prev, attr.Name, l))
			}
			usedLocations[l] = attr.Name
		}
	}
}

// ExpandedAttributes returns the layout with matrix attributes broken
// into per-column vector attributes, which is the only form the wire
// format accepts.
func (vl *VertexLayout) ExpandedAttributes() []VertexAttribute {
	out := make([]VertexAttribute, 0, len(vl.Attributes))
	for _, attr := range vl.Attributes {
		if attr.Format != AttribFloat32Matrix4 {
			out = append(out, attr)
			continue
		}
		for col := uint32(0); col < 4; col++ {
			out = append(out, VertexAttribute{
				Name:     fmt.Sprintf("%s[%d]", attr.Name, col),
				Location: attr.Location + col,
				Format:   AttribFloat32Vector4,
				Offset:   attr.Offset + col*16,
			})
		}
	}
	return out
}
