package rhi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVertexLayout(t *testing.T) {
	vl := NewVertexLayout(32,
		VertexAttribute{Name: "position", Location: 0, Format: AttribFloat32Vector2, Offset: 0},
		VertexAttribute{Name: "texcoord", Location: 1, Format: AttribFloat32Vector2, Offset: 8},
		VertexAttribute{Name: "colour", Location: 2, Format: AttribFloat32Vector4, Offset: 16},
	)

	assert.EqualValues(t, 32, vl.Stride)
	assert.Len(t, vl.Attributes, 3)
}

func TestNewVertexLayoutPanics(t *testing.T) {
	cases := []struct {
		name   string
		stride uint32
		attrs  []VertexAttribute
	}{
		{
			name:   "zero stride",
			stride: 0,
			attrs:  []VertexAttribute{{Name: "position", Location: 0, Format: AttribFloat32Vector2}},
		},
		{
			name:   "no attributes",
			stride: 16,
		},
		{
			name:   "unknown format",
			stride: 16,
			attrs:  []VertexAttribute{{Name: "position", Location: 0, Format: VertexAttributeFormat(99)}},
		},
		{
			name:   "attribute overruns stride",
			stride: 16,
			attrs:  []VertexAttribute{{Name: "colour", Location: 0, Format: AttribFloat32Vector4, Offset: 8}},
		},
		{
			name:   "duplicate location",
			stride: 16,
			attrs: []VertexAttribute{
				{Name: "a", Location: 0, Format: AttribFloat32Vector2, Offset: 0},
				{Name: "b", Location: 0, Format: AttribFloat32Vector2, Offset: 8},
			},
		},
		{
			name:   "matrix spans into taken location",
			stride: 80,
			attrs: []VertexAttribute{
				{Name: "model", Location: 0, Format: AttribFloat32Matrix4, Offset: 0},
				{Name: "colour", Location: 2, Format: AttribFloat32Vector4, Offset: 64},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Panics(t, func() {
				NewVertexLayout(tc.stride, tc.attrs...)
			})
		})
	}
}

func TestAttributeFormatSizes(t *testing.T) {
	assert.EqualValues(t, 4, AttribFloat32.Bytes())
	assert.EqualValues(t, 8, AttribFloat32Vector2.Bytes())
	assert.EqualValues(t, 12, AttribFloat32Vector3.Bytes())
	assert.EqualValues(t, 16, AttribFloat32Vector4.Bytes())
	assert.EqualValues(t, 4, AttribUint32.Bytes())
	assert.EqualValues(t, 64, AttribFloat32Matrix4.Bytes())

	assert.EqualValues(t, 1, AttribFloat32Vector4.Locations())
	assert.EqualValues(t, 4, AttribFloat32Matrix4.Locations())
}

func TestMatrixAttributeExpansion(t *testing.T) {
	vl := NewVertexLayout(80,
		VertexAttribute{Name: "colour", Location: 0, Format: AttribFloat32Vector4, Offset: 0},
		VertexAttribute{Name: "model", Location: 1, Format: AttribFloat32Matrix4, Offset: 16},
	)

	expanded := vl.ExpandedAttributes()
	require.Len(t, expanded, 5)

	assert.Equal(t, "colour", expanded[0].Name)
	for col := 0; col < 4; col++ {
		attr := expanded[1+col]
		assert.Equal(t, AttribFloat32Vector4, attr.Format, "column %d", col)
		assert.EqualValues(t, 1+col, attr.Location, "column %d", col)
		assert.EqualValues(t, 16+col*16, attr.Offset, "column %d", col)
	}
}

func TestExpansionLeavesScalarLayoutsAlone(t *testing.T) {
	vl := NewVertexLayout(20,
		VertexAttribute{Name: "position", Location: 0, Format: AttribFloat32Vector3, Offset: 0},
		VertexAttribute{Name: "id", Location: 1, Format: AttribUint32, Offset: 12},
		VertexAttribute{Name: "weight", Location: 2, Format: AttribFloat32, Offset: 16},
	)

	assert.Equal(t, vl.Attributes, vl.ExpandedAttributes())
}
