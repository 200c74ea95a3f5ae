package systems

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"

	"github.com/ember-engine/ember/engine/math"
	"github.com/ember-engine/ember/engine/rhi"
)

// Sprite is one textured quad in screen pixels. UVMin/UVMax select the
// atlas region; full texture when both are zero value and one.
type Sprite struct {
	Position math.Vec2
	Size     math.Vec2
	UVMin    math.Vec2
	UVMax    math.Vec2
	Colour   math.Vec4
}

// vertex2DLayout is the wire layout of math.Vertex2D, shared by every
// 2D streaming client.
func vertex2DLayout() *rhi.VertexLayout {
	return rhi.NewVertexLayout(uint32(unsafe.Sizeof(math.Vertex2D{})),
		rhi.VertexAttribute{Name: "position", Location: 0, Format: rhi.AttribFloat32Vector2, Offset: 0},
		rhi.VertexAttribute{Name: "texcoord", Location: 1, Format: rhi.AttribFloat32Vector2, Offset: 8},
		rhi.VertexAttribute{Name: "colour", Location: 2, Format: rhi.AttribFloat32Vector4, Offset: 16},
	)
}

// mat4Bytes views a column-major matrix as the 64-byte push constant
// blob the shaders expect.
func mat4Bytes(m *math.Mat4) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&m.Data[0])), 64)
}

// quadIndices is the two-triangle index pattern of every quad push.
var quadIndices = []uint32{0, 1, 2, 2, 3, 0}

// SpriteBatch streams textured quads through a persistent-mapped ring
// and draws them in one alpha-blended pass against a single atlas. The
// batch is restarted every frame; sprites are pushed in draw order.
type SpriteBatch struct {
	rhi    *rhi.RHI
	stream *rhi.Stream[math.Vertex2D]

	setLayout *rhi.DescriptorSetLayout
	layout    *rhi.PipelineLayout
	pipeline  *rhi.Pipeline
	set       *rhi.DescriptorSet

	atlas           *rhi.Texture
	atlasGeneration uint32

	projection math.Mat4
}

// NewSpriteBatch compiles the sprite pipeline against the main pass and
// creates a stream sized for maxSprites quads per frame.
func NewSpriteBatch(r *rhi.RHI, vertexCode, fragmentCode []byte, maxSprites uint32) (*SpriteBatch, error) {
	if maxSprites == 0 {
		return nil, cerrors.New("systems: sprite batch needs a non-zero capacity")
	}
	sb := &SpriteBatch{rhi: r}

	stream, err := rhi.NewStream[math.Vertex2D](r, "sprites", maxSprites*4, maxSprites*6)
	if err != nil {
		return nil, err
	}
	sb.stream = stream

	setLayout, err := r.CreateDescriptorSetLayout([]rhi.DescriptorBinding{
		{Binding: 0, Type: rhi.DescriptorCombinedImageSampler, Count: 1, Stages: rhi.ShaderStageFragment},
	})
	if err != nil {
		sb.Destroy()
		return nil, err
	}
	sb.setLayout = setLayout

	layout, err := r.CreatePipelineLayout([]*rhi.DescriptorSetLayout{setLayout}, []rhi.PushConstantRange{
		{Stages: rhi.ShaderStageVertex, Offset: 0, Size: 64},
	})
	if err != nil {
		sb.Destroy()
		return nil, err
	}
	sb.layout = layout

	pipeline, err := r.CreateGraphicsPipeline(&rhi.GraphicsPipelineDesc{
		Name: "sprites",
		Stages: []rhi.ShaderStageDesc{
			{Stage: rhi.ShaderStageVertex, Code: vertexCode, EntryPoint: "main"},
			{Stage: rhi.ShaderStageFragment, Code: fragmentCode, EntryPoint: "main"},
		},
		Layout:       layout,
		RenderPass:   r.Frames().MainRenderPass(),
		VertexLayout: vertex2DLayout(),
		Topology:     rhi.TopologyTriangleList,
		CullMode:     rhi.CullModeNone,
		Blend:        rhi.BlendAlpha,
	})
	if err != nil {
		sb.Destroy()
		return nil, err
	}
	sb.pipeline = pipeline

	set, err := r.AllocateDescriptorSet(nil, setLayout)
	if err != nil {
		sb.Destroy()
		return nil, err
	}
	sb.set = set

	width, height := r.Frames().Extent()
	sb.Resize(width, height)
	return sb, nil
}

// SetAtlas points the batch at a texture. The descriptor rewrite is
// deferred to Begin so a mid-frame swap never touches a bound set.
func (sb *SpriteBatch) SetAtlas(atlas *rhi.Texture) {
	sb.atlas = atlas
	// Force a rewrite even if the generations happen to match.
	sb.atlasGeneration = atlas.Generation + 1
}

// Resize rebuilds the pixel-space projection, top-left origin.
func (sb *SpriteBatch) Resize(width, height uint32) {
	sb.projection = math.NewMat4Orthographic(0, float32(width), float32(height), 0, -1, 1)
}

// Begin starts the batch for the given frame-in-flight slot and
// refreshes the atlas descriptor if the texture was swapped or hot
// reloaded since last frame.
func (sb *SpriteBatch) Begin(slot uint32) error {
	sb.stream.BeginFrame(slot)
	if sb.atlas != nil && sb.atlasGeneration != sb.atlas.Generation {
		err := sb.rhi.UpdateDescriptorSet(sb.set, []rhi.DescriptorWrite{{
			Binding: 0,
			Type:    rhi.DescriptorCombinedImageSampler,
			Image:   &rhi.ImageBinding{Image: sb.atlas.Image(), Sampler: sb.atlas.Sampler()},
		}})
		if err != nil {
			return cerrors.Wrap(err, "updating sprite atlas descriptor")
		}
		sb.atlasGeneration = sb.atlas.Generation
	}
	return nil
}

// Push appends one sprite quad.
func (sb *SpriteBatch) Push(cb rhi.CommandBuffer, s *Sprite) error {
	uvMax := s.UVMax
	if uvMax == (math.Vec2{}) {
		uvMax = math.NewVec2(1, 1)
	}
	x0, y0 := s.Position.X, s.Position.Y
	x1, y1 := x0+s.Size.X, y0+s.Size.Y

	vertices := []math.Vertex2D{
		{Position: math.NewVec2(x0, y0), Texcoord: math.NewVec2(s.UVMin.X, s.UVMin.Y), Colour: s.Colour},
		{Position: math.NewVec2(x1, y0), Texcoord: math.NewVec2(uvMax.X, s.UVMin.Y), Colour: s.Colour},
		{Position: math.NewVec2(x1, y1), Texcoord: math.NewVec2(uvMax.X, uvMax.Y), Colour: s.Colour},
		{Position: math.NewVec2(x0, y1), Texcoord: math.NewVec2(s.UVMin.X, uvMax.Y), Colour: s.Colour},
	}
	return sb.stream.Push(cb, vertices, quadIndices)
}

// End binds the pipeline state and draws everything pushed this frame.
func (sb *SpriteBatch) End(cb rhi.CommandBuffer) {
	if sb.atlas == nil {
		return
	}
	cb.BindPipeline(sb.pipeline.Handle())
	cb.BindDescriptorSet(sb.layout.Handle(), 0, sb.set.Handle(), nil)
	cb.PushConstants(sb.layout.Handle(), rhi.ShaderStageVertex, 0, mat4Bytes(&sb.projection))
	sb.stream.Flush(cb)
}

// Destroy releases the pipeline objects and the stream. Safe on a
// partially constructed batch.
func (sb *SpriteBatch) Destroy() {
	if sb.pipeline != nil {
		sb.rhi.DestroyPipeline(sb.pipeline)
		sb.pipeline = nil
	}
	if sb.layout != nil {
		sb.rhi.DestroyPipelineLayout(sb.layout)
		sb.layout = nil
	}
	if sb.setLayout != nil {
		sb.rhi.DestroyDescriptorSetLayout(sb.setLayout)
		sb.setLayout = nil
	}
	if sb.stream != nil {
		sb.stream.Destroy()
		sb.stream = nil
	}
}
