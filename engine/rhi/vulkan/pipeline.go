package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/ember-engine/ember/engine/rhi"
)

type pipelineLayoutHandle struct {
	layout vk.PipelineLayout
}

type pipelineHandle struct {
	pipeline vk.Pipeline
}

// CreatePipelineLayout builds a pipeline layout from set layouts and
// push constant ranges. Range validation happened in the frontend.
func (d *Device) CreatePipelineLayout(layouts []rhi.DescriptorLayoutHandle, pushRanges []rhi.PushConstantRange) (rhi.PipelineLayoutHandle, error) {
	vkLayouts := make([]vk.DescriptorSetLayout, len(layouts))
	for i, l := range layouts {
		vkLayouts[i] = l.(*descriptorLayoutHandle).layout
	}
	vkRanges := make([]vk.PushConstantRange, len(pushRanges))
	for i, r := range pushRanges {
		vkRanges[i] = vk.PushConstantRange{
			StageFlags: convertShaderStages(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}

	createInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(vkLayouts)),
		PSetLayouts:            vkLayouts,
		PushConstantRangeCount: uint32(len(vkRanges)),
		PPushConstantRanges:    vkRanges,
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(d.logical, &createInfo, d.allocator, &layout); res != vk.Success {
		return nil, fmt.Errorf("vulkan: vkCreatePipelineLayout failed with %s", resultString(res))
	}
	return &pipelineLayoutHandle{layout: layout}, nil
}

// DestroyPipelineLayout releases the layout.
func (d *Device) DestroyPipelineLayout(layout rhi.PipelineLayoutHandle) {
	l, ok := layout.(*pipelineLayoutHandle)
	if !ok || l == nil || l.layout == vk.NullPipelineLayout {
		return
	}
	vk.DestroyPipelineLayout(d.logical, l.layout, d.allocator)
	l.layout = vk.NullPipelineLayout
}

// CreateGraphicsPipeline compiles the shader stage blobs into modules,
// assembles fixed-function state from the desc and builds the pipeline.
// Viewport, scissor and line width are dynamic, so one pipeline serves
// any render-target size. The temporary shader modules are destroyed
// before returning.
func (d *Device) CreateGraphicsPipeline(desc *rhi.PipelineDesc) (rhi.PipelineHandle, error) {
	layout := desc.Layout.(*pipelineLayoutHandle)
	pass := desc.RenderPass.(*renderPassHandle)

	modules := make([]vk.ShaderModule, 0, len(desc.Stages))
	defer func() {
		for _, m := range modules {
			vk.DestroyShaderModule(d.logical, m, d.allocator)
		}
	}()

	stages := make([]vk.PipelineShaderStageCreateInfo, len(desc.Stages))
	for i, stage := range desc.Stages {
		moduleInfo := vk.ShaderModuleCreateInfo{
			SType:    vk.StructureTypeShaderModuleCreateInfo,
			CodeSize: uint64(len(stage.Code)),
			PCode:    repackUint32(stage.Code),
		}
		var module vk.ShaderModule
		if res := vk.CreateShaderModule(d.logical, &moduleInfo, d.allocator, &module); res != vk.Success {
			return nil, fmt.Errorf("vulkan: creating shader module for pipeline %q failed with %s",
				desc.Name, resultString(res))
		}
		modules = append(modules, module)

		entry := stage.EntryPoint
		if entry == "" {
			entry = "main"
		}
		stages[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFlagBits(convertShaderStages(stage.Stage)),
			Module: module,
			PName:  safeString(entry),
		}
	}

	// Matrix attributes arrive pre-expanded into column vectors.
	attributes := desc.VertexLayout.ExpandedAttributes()
	vkAttributes := make([]vk.VertexInputAttributeDescription, len(attributes))
	for i, attr := range attributes {
		vkAttributes[i] = vk.VertexInputAttributeDescription{
			Location: attr.Location,
			Binding:  0,
			Format:   convertVertexFormat(attr.Format),
			Offset:   attr.Offset,
		}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                         vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount: 1,
		PVertexBindingDescriptions: []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    desc.VertexLayout.Stride,
			InputRate: vk.VertexInputRateVertex,
		}},
		VertexAttributeDescriptionCount: uint32(len(vkAttributes)),
		PVertexAttributeDescriptions:    vkAttributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: convertTopology(desc.Topology),
	}

	// Counts only; the actual rects are set per frame.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		LineWidth:   1.0,
		CullMode:    convertCullMode(desc.CullMode),
		FrontFace:   vk.FrontFaceCounterClockwise,
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType: vk.StructureTypePipelineDepthStencilStateCreateInfo,
	}
	if desc.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLess
	}
	if desc.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	blendAttachment := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	switch desc.Blend {
	case rhi.BlendAlpha:
		blendAttachment.BlendEnable = vk.True
		blendAttachment.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		blendAttachment.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		blendAttachment.ColorBlendOp = vk.BlendOpAdd
		blendAttachment.SrcAlphaBlendFactor = vk.BlendFactorSrcAlpha
		blendAttachment.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		blendAttachment.AlphaBlendOp = vk.BlendOpAdd
	case rhi.BlendAdditive:
		blendAttachment.BlendEnable = vk.True
		blendAttachment.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		blendAttachment.DstColorBlendFactor = vk.BlendFactorOne
		blendAttachment.ColorBlendOp = vk.BlendOpAdd
		blendAttachment.SrcAlphaBlendFactor = vk.BlendFactorOne
		blendAttachment.DstAlphaBlendFactor = vk.BlendFactorOne
		blendAttachment.AlphaBlendOp = vk.BlendOpAdd
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{blendAttachment},
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
		vk.DynamicStateLineWidth,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              layout.layout,
		RenderPass:          pass.pass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(d.logical, vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{createInfo}, d.allocator, pipelines)
	if res != vk.Success {
		return nil, fmt.Errorf("vulkan: vkCreateGraphicsPipelines %q failed with %s", desc.Name, resultString(res))
	}
	return &pipelineHandle{pipeline: pipelines[0]}, nil
}

// DestroyPipeline releases the pipeline.
func (d *Device) DestroyPipeline(pipeline rhi.PipelineHandle) {
	p, ok := pipeline.(*pipelineHandle)
	if !ok || p == nil || p.pipeline == vk.NullPipeline {
		return
	}
	vk.DestroyPipeline(d.logical, p.pipeline, d.allocator)
	p.pipeline = vk.NullPipeline
}
