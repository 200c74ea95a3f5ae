package systems

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"

	"github.com/ember-engine/ember/engine/math"
	"github.com/ember-engine/ember/engine/rhi"
)

const (
	debugInitialLines     = 4096
	debugInitialTriangles = 1024
)

// DebugDraw accumulates unbatched lines and solid triangles on the CPU
// each frame and streams them in End. Counts are unbounded between
// frames, so the streams grow on demand instead of forcing callers to
// size them up front.
type DebugDraw struct {
	rhi *rhi.RHI

	lines     *rhi.Stream[math.ColorVertex3D]
	triangles *rhi.Stream[math.ColorVertex3D]

	layout       *rhi.PipelineLayout
	linePipeline *rhi.Pipeline
	triPipeline  *rhi.Pipeline

	lineVertices []math.ColorVertex3D
	triVertices  []math.ColorVertex3D

	slot uint32
}

// NewDebugDraw compiles the line and triangle pipelines against the
// main pass. Both share one push-constant-only layout carrying the
// view-projection matrix.
func NewDebugDraw(r *rhi.RHI, vertexCode, fragmentCode []byte) (*DebugDraw, error) {
	dd := &DebugDraw{rhi: r}

	lines, err := rhi.NewStream[math.ColorVertex3D](r, "debug.lines", debugInitialLines*2, debugInitialLines*2)
	if err != nil {
		return nil, err
	}
	dd.lines = lines

	triangles, err := rhi.NewStream[math.ColorVertex3D](r, "debug.triangles", debugInitialTriangles*3, debugInitialTriangles*3)
	if err != nil {
		dd.Destroy()
		return nil, err
	}
	dd.triangles = triangles

	layout, err := r.CreatePipelineLayout(nil, []rhi.PushConstantRange{
		{Stages: rhi.ShaderStageVertex, Offset: 0, Size: 64},
	})
	if err != nil {
		dd.Destroy()
		return nil, err
	}
	dd.layout = layout

	vertexLayout := rhi.NewVertexLayout(uint32(unsafe.Sizeof(math.ColorVertex3D{})),
		rhi.VertexAttribute{Name: "position", Location: 0, Format: rhi.AttribFloat32Vector3, Offset: 0},
		rhi.VertexAttribute{Name: "colour", Location: 1, Format: rhi.AttribFloat32Vector4, Offset: 12},
	)

	stages := []rhi.ShaderStageDesc{
		{Stage: rhi.ShaderStageVertex, Code: vertexCode, EntryPoint: "main"},
		{Stage: rhi.ShaderStageFragment, Code: fragmentCode, EntryPoint: "main"},
	}

	linePipeline, err := r.CreateGraphicsPipeline(&rhi.GraphicsPipelineDesc{
		Name:         "debug.lines",
		Stages:       stages,
		Layout:       layout,
		RenderPass:   r.Frames().MainRenderPass(),
		VertexLayout: vertexLayout,
		Topology:     rhi.TopologyLineList,
		CullMode:     rhi.CullModeNone,
		DepthTest:    true,
	})
	if err != nil {
		dd.Destroy()
		return nil, err
	}
	dd.linePipeline = linePipeline

	triPipeline, err := r.CreateGraphicsPipeline(&rhi.GraphicsPipelineDesc{
		Name:         "debug.triangles",
		Stages:       stages,
		Layout:       layout,
		RenderPass:   r.Frames().MainRenderPass(),
		VertexLayout: vertexLayout,
		Topology:     rhi.TopologyTriangleList,
		CullMode:     rhi.CullModeNone,
		DepthTest:    true,
		Blend:        rhi.BlendAlpha,
	})
	if err != nil {
		dd.Destroy()
		return nil, err
	}
	dd.triPipeline = triPipeline

	return dd, nil
}

// Begin resets this frame's accumulation for the given slot.
func (dd *DebugDraw) Begin(slot uint32) {
	dd.slot = slot
	dd.lineVertices = dd.lineVertices[:0]
	dd.triVertices = dd.triVertices[:0]
}

// AddLine queues one world-space line segment.
func (dd *DebugDraw) AddLine(from, to math.Vec3, colour math.Vec4) {
	dd.lineVertices = append(dd.lineVertices,
		math.ColorVertex3D{Position: from, Colour: colour},
		math.ColorVertex3D{Position: to, Colour: colour})
}

// AddTriangle queues one solid world-space triangle.
func (dd *DebugDraw) AddTriangle(a, b, c math.Vec3, colour math.Vec4) {
	dd.triVertices = append(dd.triVertices,
		math.ColorVertex3D{Position: a, Colour: colour},
		math.ColorVertex3D{Position: b, Colour: colour},
		math.ColorVertex3D{Position: c, Colour: colour})
}

// AddBox queues the twelve edges of an axis-aligned box.
func (dd *DebugDraw) AddBox(min, max math.Vec3, colour math.Vec4) {
	corners := [8]math.Vec3{
		{X: min.X, Y: min.Y, Z: min.Z}, {X: max.X, Y: min.Y, Z: min.Z},
		{X: max.X, Y: max.Y, Z: min.Z}, {X: min.X, Y: max.Y, Z: min.Z},
		{X: min.X, Y: min.Y, Z: max.Z}, {X: max.X, Y: min.Y, Z: max.Z},
		{X: max.X, Y: max.Y, Z: max.Z}, {X: min.X, Y: max.Y, Z: max.Z},
	}
	edges := [12][2]int{
		{0, 1}, {1, 2}, {2, 3}, {3, 0},
		{4, 5}, {5, 6}, {6, 7}, {7, 4},
		{0, 4}, {1, 5}, {2, 6}, {3, 7},
	}
	for _, e := range edges {
		dd.AddLine(corners[e[0]], corners[e[1]], colour)
	}
}

// End grows the streams to this frame's counts, pushes everything
// queued and issues the two draws. Growth stalls behind a device-idle
// wait, which for a debug layer is an accepted hitch.
func (dd *DebugDraw) End(cb rhi.CommandBuffer, viewProjection *math.Mat4) error {
	if len(dd.lineVertices) > 0 {
		count := uint32(len(dd.lineVertices))
		if err := dd.lines.EnsureCapacity(count, count); err != nil {
			return cerrors.Wrap(err, "growing debug line stream")
		}
		dd.lines.BeginFrame(dd.slot)

		indices := sequentialIndices(count)
		if err := dd.lines.Push(cb, dd.lineVertices, indices); err != nil {
			return cerrors.Wrap(err, "pushing debug lines")
		}
		cb.BindPipeline(dd.linePipeline.Handle())
		cb.PushConstants(dd.layout.Handle(), rhi.ShaderStageVertex, 0, mat4Bytes(viewProjection))
		dd.lines.Flush(cb)
	}

	if len(dd.triVertices) > 0 {
		count := uint32(len(dd.triVertices))
		if err := dd.triangles.EnsureCapacity(count, count); err != nil {
			return cerrors.Wrap(err, "growing debug triangle stream")
		}
		dd.triangles.BeginFrame(dd.slot)

		indices := sequentialIndices(count)
		if err := dd.triangles.Push(cb, dd.triVertices, indices); err != nil {
			return cerrors.Wrap(err, "pushing debug triangles")
		}
		cb.BindPipeline(dd.triPipeline.Handle())
		cb.PushConstants(dd.layout.Handle(), rhi.ShaderStageVertex, 0, mat4Bytes(viewProjection))
		dd.triangles.Flush(cb)
	}
	return nil
}

func sequentialIndices(count uint32) []uint32 {
	indices := make([]uint32, count)
	for i := range indices {
		indices[i] = uint32(i)
	}
	return indices
}

// Destroy releases pipelines and streams. Safe on partial construction.
func (dd *DebugDraw) Destroy() {
	if dd.linePipeline != nil {
		dd.rhi.DestroyPipeline(dd.linePipeline)
		dd.linePipeline = nil
	}
	if dd.triPipeline != nil {
		dd.rhi.DestroyPipeline(dd.triPipeline)
		dd.triPipeline = nil
	}
	if dd.layout != nil {
		dd.rhi.DestroyPipelineLayout(dd.layout)
		dd.layout = nil
	}
	if dd.lines != nil {
		dd.lines.Destroy()
		dd.lines = nil
	}
	if dd.triangles != nil {
		dd.triangles.Destroy()
		dd.triangles = nil
	}
}
