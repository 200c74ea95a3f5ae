package systems

import (
	"path/filepath"

	cerrors "github.com/cockroachdb/errors"

	"github.com/ember-engine/ember/engine/assets"
	"github.com/ember-engine/ember/engine/core"
	"github.com/ember-engine/ember/engine/math"
	"github.com/ember-engine/ember/engine/rhi"
)

// glyphQuad is one laid-out character cell: screen rectangle plus the
// atlas region it samples.
type glyphQuad struct {
	x0, y0, x1, y1 float32
	u0, v0, u1, v1 float32
}

// layoutGlyphs turns a string into positioned glyph quads starting at
// the pen position (x, y) being the baseline-left of the first line.
// Kerning pairs adjust advances; '\n' drops one line height. Glyphs the
// font lacks are skipped, matching bitmap-font tooling behaviour.
func layoutGlyphs(font *assets.BitmapFont, text string, x, y float32) []glyphQuad {
	quads := make([]glyphQuad, 0, len(text))
	penX := x
	penY := y - float32(font.Baseline)

	var prev rune
	for _, r := range text {
		if r == '\n' {
			penX = x
			penY += float32(font.LineHeight)
			prev = 0
			continue
		}
		glyph, ok := font.Glyphs[r]
		if !ok {
			prev = r
			continue
		}
		penX += float32(font.Kerning(prev, r))

		gx := penX + float32(glyph.XOffset)
		gy := penY + float32(glyph.YOffset)
		w := float32(glyph.Width)
		h := float32(glyph.Height)

		quads = append(quads, glyphQuad{
			x0: gx, y0: gy, x1: gx + w, y1: gy + h,
			u0: float32(glyph.X) / float32(font.AtlasW),
			v0: float32(glyph.Y) / float32(font.AtlasH),
			u1: float32(glyph.X+glyph.Width) / float32(font.AtlasW),
			v1: float32(glyph.Y+glyph.Height) / float32(font.AtlasH),
		})

		penX += float32(glyph.XAdvance)
		prev = r
	}
	return quads
}

// measureText returns the pixel width of the longest line and the total
// height of the laid-out string.
func measureText(font *assets.BitmapFont, text string) (float32, float32) {
	var width, lineWidth float32
	lines := 1
	var prev rune
	for _, r := range text {
		if r == '\n' {
			if lineWidth > width {
				width = lineWidth
			}
			lineWidth = 0
			lines++
			prev = 0
			continue
		}
		if glyph, ok := font.Glyphs[r]; ok {
			lineWidth += float32(font.Kerning(prev, r)) + float32(glyph.XAdvance)
		}
		prev = r
	}
	if lineWidth > width {
		width = lineWidth
	}
	return width, float32(lines) * float32(font.LineHeight)
}

// TextRenderer draws dynamic strings as per-glyph quads streamed from a
// bitmap font atlas. Content changes cost nothing between frames; every
// frame re-pushes the current strings into the ring.
type TextRenderer struct {
	rhi  *rhi.RHI
	font *assets.BitmapFont

	atlas  *rhi.Texture
	stream *rhi.Stream[math.Vertex2D]

	setLayout *rhi.DescriptorSetLayout
	layout    *rhi.PipelineLayout
	pipeline  *rhi.Pipeline
	set       *rhi.DescriptorSet

	projection math.Mat4
}

// NewTextRenderer loads the font's first atlas page as a texture and
// compiles the glyph pipeline. maxGlyphs sizes the per-frame ring; text
// beyond it still draws through forced flushes, at the cost of extra
// draw calls.
func NewTextRenderer(r *rhi.RHI, am *assets.Manager, fontPath string, vertexCode, fragmentCode []byte, maxGlyphs uint32) (*TextRenderer, error) {
	font, err := assets.LoadBitmapFont(am.Path(fontPath))
	if err != nil {
		return nil, err
	}
	tr := &TextRenderer{rhi: r, font: font}

	// Page files are referenced relative to the descriptor.
	pagePath := filepath.Join(filepath.Dir(am.Path(fontPath)), font.Pages[0].File)
	img, err := assets.LoadImage(pagePath)
	if err != nil {
		return nil, cerrors.Wrapf(err, "loading font atlas page %q", pagePath)
	}
	atlas, err := r.CreateTexture(&rhi.TextureDesc{
		Name:    "font." + font.Face,
		Width:   img.Width,
		Height:  img.Height,
		Format:  rhi.FormatR8G8B8A8Unorm,
		Filter:  rhi.FilterLinear,
		Address: rhi.AddressClampToEdge,
	}, img.Pixels)
	if err != nil {
		return nil, cerrors.Wrap(err, "creating font atlas texture")
	}
	tr.atlas = atlas

	stream, err := rhi.NewStream[math.Vertex2D](r, "text", maxGlyphs*4, maxGlyphs*6)
	if err != nil {
		tr.Destroy()
		return nil, err
	}
	tr.stream = stream

	setLayout, err := r.CreateDescriptorSetLayout([]rhi.DescriptorBinding{
		{Binding: 0, Type: rhi.DescriptorCombinedImageSampler, Count: 1, Stages: rhi.ShaderStageFragment},
	})
	if err != nil {
		tr.Destroy()
		return nil, err
	}
	tr.setLayout = setLayout

	layout, err := r.CreatePipelineLayout([]*rhi.DescriptorSetLayout{setLayout}, []rhi.PushConstantRange{
		{Stages: rhi.ShaderStageVertex, Offset: 0, Size: 64},
	})
	if err != nil {
		tr.Destroy()
		return nil, err
	}
	tr.layout = layout

	pipeline, err := r.CreateGraphicsPipeline(&rhi.GraphicsPipelineDesc{
		Name: "text",
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
		tr.Destroy()
		return nil, err
	}
	tr.pipeline = pipeline

	set, err := r.AllocateDescriptorSet(nil, setLayout)
	if err != nil {
		tr.Destroy()
		return nil, err
	}
	tr.set = set
	err = r.UpdateDescriptorSet(set, []rhi.DescriptorWrite{{
		Binding: 0,
		Type:    rhi.DescriptorCombinedImageSampler,
		Image:   &rhi.ImageBinding{Image: atlas.Image(), Sampler: atlas.Sampler()},
	}})
	if err != nil {
		tr.Destroy()
		return nil, cerrors.Wrap(err, "updating font atlas descriptor")
	}

	width, height := r.Frames().Extent()
	tr.Resize(width, height)

	core.LogInfo("text renderer ready: face %q, %d glyphs, atlas %dx%d",
		font.Face, len(font.Glyphs), img.Width, img.Height)
	return tr, nil
}

// Font exposes the loaded descriptor for layout queries.
func (tr *TextRenderer) Font() *assets.BitmapFont {
	return tr.font
}

// Measure returns the pixel extent of text at the font's native size.
func (tr *TextRenderer) Measure(text string) (float32, float32) {
	return measureText(tr.font, text)
}

// Resize rebuilds the pixel-space projection, top-left origin.
func (tr *TextRenderer) Resize(width, height uint32) {
	tr.projection = math.NewMat4Orthographic(0, float32(width), float32(height), 0, -1, 1)
}

// Begin binds the glyph pipeline state for this frame's slot. Draw
// calls between Begin and End may flush mid-string when the ring is
// smaller than the frame's glyph count, so the state is bound up front.
func (tr *TextRenderer) Begin(cb rhi.CommandBuffer, slot uint32) {
	tr.stream.BeginFrame(slot)
	cb.BindPipeline(tr.pipeline.Handle())
	cb.BindDescriptorSet(tr.layout.Handle(), 0, tr.set.Handle(), nil)
	cb.PushConstants(tr.layout.Handle(), rhi.ShaderStageVertex, 0, mat4Bytes(&tr.projection))
}

// Draw pushes one string's glyph quads at the given baseline origin.
func (tr *TextRenderer) Draw(cb rhi.CommandBuffer, text string, x, y float32, colour math.Vec4) error {
	for _, q := range layoutGlyphs(tr.font, text, x, y) {
		vertices := []math.Vertex2D{
			{Position: math.NewVec2(q.x0, q.y0), Texcoord: math.NewVec2(q.u0, q.v0), Colour: colour},
			{Position: math.NewVec2(q.x1, q.y0), Texcoord: math.NewVec2(q.u1, q.v0), Colour: colour},
			{Position: math.NewVec2(q.x1, q.y1), Texcoord: math.NewVec2(q.u1, q.v1), Colour: colour},
			{Position: math.NewVec2(q.x0, q.y1), Texcoord: math.NewVec2(q.u0, q.v1), Colour: colour},
		}
		if err := tr.stream.Push(cb, vertices, quadIndices); err != nil {
			return cerrors.Wrap(err, "pushing glyph quad")
		}
	}
	return nil
}

// End draws everything pushed since the last flush.
func (tr *TextRenderer) End(cb rhi.CommandBuffer) {
	tr.stream.Flush(cb)
}

// Destroy releases the pipeline objects, the stream and the atlas. Safe
// on partial construction.
func (tr *TextRenderer) Destroy() {
	if tr.pipeline != nil {
		tr.rhi.DestroyPipeline(tr.pipeline)
		tr.pipeline = nil
	}
	if tr.layout != nil {
		tr.rhi.DestroyPipelineLayout(tr.layout)
		tr.layout = nil
	}
	if tr.setLayout != nil {
		tr.rhi.DestroyDescriptorSetLayout(tr.setLayout)
		tr.setLayout = nil
	}
	if tr.stream != nil {
		tr.stream.Destroy()
		tr.stream = nil
	}
	if tr.atlas != nil {
		tr.rhi.DestroyTexture(tr.atlas)
		tr.atlas = nil
	}
}
