package rhi

import (
	cerrors "github.com/cockroachdb/errors"
)

// Pipelines hold only dynamic viewport/scissor state, so the maximum
// push-constant window is the one hard limit validated up front.
const maxPushConstantRanges = 32

// PipelineLayout is the binding interface of one or more pipelines.
type PipelineLayout struct {
	handle PipelineLayoutHandle
}

// Handle exposes the backend handle for command recording.
func (l *PipelineLayout) Handle() PipelineLayoutHandle {
	return l.handle
}

// Pipeline is a compiled graphics pipeline and the layout it was built
// against.
type Pipeline struct {
	Name   string
	handle PipelineHandle
	layout *PipelineLayout
}

// Handle exposes the backend handle for command recording.
func (p *Pipeline) Handle() PipelineHandle {
	return p.handle
}

// Layout returns the layout the pipeline binds through.
func (p *Pipeline) Layout() *PipelineLayout {
	return p.layout
}

// RenderPass is a backend render pass handle with its creation desc.
type RenderPass struct {
	Name   string
	handle RenderPassHandle
	desc   RenderPassDesc
}

// Handle exposes the backend handle for framebuffer creation and
// command recording.
func (rp *RenderPass) Handle() RenderPassHandle {
	return rp.handle
}

// HasDepth reports whether the pass carries a depth attachment.
func (rp *RenderPass) HasDepth() bool {
	return rp.desc.DepthFormat != FormatUnknown
}

// CreateRenderPass creates a render pass from its description.
func (r *RHI) CreateRenderPass(desc *RenderPassDesc) (*RenderPass, error) {
	handle, err := r.device.CreateRenderPass(desc)
	if err != nil {
		return nil, cerrors.Wrapf(err, "creating render pass %q", desc.Name)
	}
	return &RenderPass{Name: desc.Name, handle: handle, desc: *desc}, nil
}

// DestroyRenderPass releases the pass. Framebuffers and pipelines built
// against it must already be gone.
func (r *RHI) DestroyRenderPass(rp *RenderPass) {
	if rp == nil || rp.handle == nil {
		return
	}
	r.device.DestroyRenderPass(rp.handle)
	rp.handle = nil
}

// CreatePipelineLayout builds a pipeline layout from descriptor set
// layouts and push constant ranges. Ranges are validated against the
// device's push constant window before the backend sees them.
func (r *RHI) CreatePipelineLayout(layouts []*DescriptorSetLayout, pushRanges []PushConstantRange) (*PipelineLayout, error) {
	if len(pushRanges) > maxPushConstantRanges {
		return nil, cerrors.Newf("rhi: %d push constant ranges exceeds the maximum of %d",
			len(pushRanges), maxPushConstantRanges)
	}
	limit := r.device.Caps().MaxPushConstantSize
	for i, pr := range pushRanges {
		if pr.Size == 0 {
			return nil, cerrors.Newf("rhi: push constant range %d has zero size", i)
		}
		if pr.Offset%4 != 0 || pr.Size%4 != 0 {
			return nil, cerrors.Newf("rhi: push constant range %d (offset %d, size %d) is not 4-byte aligned",
				i, pr.Offset, pr.Size)
		}
		if pr.Offset+pr.Size > limit {
			return nil, cerrors.Newf("rhi: push constant range %d ends at %d, device limit is %d",
				i, pr.Offset+pr.Size, limit)
		}
	}

	handles := make([]DescriptorLayoutHandle, len(layouts))
	for i, l := range layouts {
		handles[i] = l.handle
	}
	handle, err := r.device.CreatePipelineLayout(handles, pushRanges)
	if err != nil {
		return nil, cerrors.Wrap(err, "creating pipeline layout")
	}
	return &PipelineLayout{handle: handle}, nil
}

// DestroyPipelineLayout releases the layout.
func (r *RHI) DestroyPipelineLayout(l *PipelineLayout) {
	if l == nil || l.handle == nil {
		return
	}
	r.device.DestroyPipelineLayout(l.handle)
	l.handle = nil
}

// GraphicsPipelineDesc is the frontend description of a graphics
// pipeline; it references frontend objects rather than raw handles.
type GraphicsPipelineDesc struct {
	Name         string
	Stages       []ShaderStageDesc
	Layout       *PipelineLayout
	RenderPass   *RenderPass
	VertexLayout *VertexLayout
	Topology     Topology
	CullMode     CullMode
	DepthTest    bool
	DepthWrite   bool
	Blend        BlendMode
}

// CreateGraphicsPipeline compiles a graphics pipeline. The vertex layout
// has already been validated at registration; here only the pipeline
// assembly itself is checked.
func (r *RHI) CreateGraphicsPipeline(desc *GraphicsPipelineDesc) (*Pipeline, error) {
	if len(desc.Stages) == 0 {
		return nil, cerrors.Newf("rhi: pipeline %q has no shader stages", desc.Name)
	}
	for _, stage := range desc.Stages {
		if len(stage.Code) == 0 {
			return nil, cerrors.Newf("rhi: pipeline %q has an empty shader stage blob", desc.Name)
		}
	}
	if desc.Layout == nil || desc.RenderPass == nil {
		return nil, cerrors.Newf("rhi: pipeline %q needs a layout and a render pass", desc.Name)
	}
	if desc.VertexLayout == nil {
		return nil, cerrors.Newf("rhi: pipeline %q has no vertex layout", desc.Name)
	}

	handle, err := r.device.CreateGraphicsPipeline(&PipelineDesc{
		Name:         desc.Name,
		Stages:       desc.Stages,
		Layout:       desc.Layout.handle,
		RenderPass:   desc.RenderPass.handle,
		VertexLayout: desc.VertexLayout,
		Topology:     desc.Topology,
		CullMode:     desc.CullMode,
		DepthTest:    desc.DepthTest,
		DepthWrite:   desc.DepthWrite,
		Blend:        desc.Blend,
	})
	if err != nil {
		return nil, cerrors.Wrapf(err, "creating pipeline %q", desc.Name)
	}
	return &Pipeline{Name: desc.Name, handle: handle, layout: desc.Layout}, nil
}

// DestroyPipeline releases the pipeline. Its layout is owned separately.
func (r *RHI) DestroyPipeline(p *Pipeline) {
	if p == nil || p.handle == nil {
		return
	}
	r.device.DestroyPipeline(p.handle)
	p.handle = nil
}
