package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/ember-engine/ember/engine/rhi"
)

func convertFormat(f rhi.Format) vk.Format {
	switch f {
	case rhi.FormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case rhi.FormatR8G8B8A8Srgb:
		return vk.FormatR8g8b8a8Srgb
	case rhi.FormatB8G8R8A8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case rhi.FormatB8G8R8A8Srgb:
		return vk.FormatB8g8r8a8Srgb
	case rhi.FormatD32Sfloat:
		return vk.FormatD32Sfloat
	case rhi.FormatD24UnormS8Uint:
		return vk.FormatD24UnormS8Uint
	default:
		return vk.FormatUndefined
	}
}

func convertSurfaceFormat(f vk.Format) rhi.Format {
	switch f {
	case vk.FormatR8g8b8a8Unorm:
		return rhi.FormatR8G8B8A8Unorm
	case vk.FormatR8g8b8a8Srgb:
		return rhi.FormatR8G8B8A8Srgb
	case vk.FormatB8g8r8a8Unorm:
		return rhi.FormatB8G8R8A8Unorm
	case vk.FormatB8g8r8a8Srgb:
		return rhi.FormatB8G8R8A8Srgb
	default:
		return rhi.FormatUnknown
	}
}

// formatHasStencil reports whether the depth format carries a stencil
// aspect, which barriers and views must then include.
func formatHasStencil(f vk.Format) bool {
	return f == vk.FormatD24UnormS8Uint || f == vk.FormatD32SfloatS8Uint
}

func convertMemoryProperties(flags rhi.MemoryPropertyFlags) vk.MemoryPropertyFlags {
	var out vk.MemoryPropertyFlags
	if flags&rhi.MemoryDeviceLocal != 0 {
		out |= vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	}
	if flags&rhi.MemoryHostVisible != 0 {
		out |= vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	}
	if flags&rhi.MemoryHostCoherent != 0 {
		out |= vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	}
	return out
}

func convertBufferUsage(usage rhi.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlags
	if usage&rhi.BufferUsageVertex != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if usage&rhi.BufferUsageIndex != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if usage&rhi.BufferUsageUniform != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if usage&rhi.BufferUsageTransferSrc != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}
	if usage&rhi.BufferUsageTransferDst != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	return out
}

func convertImageUsage(usage rhi.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlags
	if usage&rhi.ImageUsageSampled != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if usage&rhi.ImageUsageColorAttachment != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	if usage&rhi.ImageUsageDepthStencilAttachment != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	}
	if usage&rhi.ImageUsageTransferSrc != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	}
	if usage&rhi.ImageUsageTransferDst != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}
	return out
}

func convertAspect(aspect rhi.ImageAspect, format vk.Format) vk.ImageAspectFlags {
	if aspect == rhi.ImageAspectDepth {
		out := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
		if formatHasStencil(format) {
			out |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
		}
		return out
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func convertShaderStages(stages rhi.ShaderStageFlags) vk.ShaderStageFlags {
	var out vk.ShaderStageFlags
	if stages&rhi.ShaderStageVertex != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	}
	if stages&rhi.ShaderStageFragment != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	return out
}

func convertDescriptorType(t rhi.DescriptorType) vk.DescriptorType {
	if t == rhi.DescriptorCombinedImageSampler {
		return vk.DescriptorTypeCombinedImageSampler
	}
	return vk.DescriptorTypeUniformBuffer
}

func convertTopology(t rhi.Topology) vk.PrimitiveTopology {
	if t == rhi.TopologyLineList {
		return vk.PrimitiveTopologyLineList
	}
	return vk.PrimitiveTopologyTriangleList
}

func convertCullMode(m rhi.CullMode) vk.CullModeFlags {
	if m == rhi.CullModeNone {
		return vk.CullModeFlags(vk.CullModeNone)
	}
	return vk.CullModeFlags(vk.CullModeBackBit)
}

func convertFilter(f rhi.Filter) vk.Filter {
	if f == rhi.FilterNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func convertAddressMode(m rhi.AddressMode) vk.SamplerAddressMode {
	if m == rhi.AddressClampToEdge {
		return vk.SamplerAddressModeClampToEdge
	}
	return vk.SamplerAddressModeRepeat
}

// convertVertexFormat maps an expanded attribute shape to its wire
// format. Matrix attributes never reach here; the layout expands them
// into per-column vectors first.
func convertVertexFormat(f rhi.VertexAttributeFormat) vk.Format {
	switch f {
	case rhi.AttribFloat32:
		return vk.FormatR32Sfloat
	case rhi.AttribFloat32Vector2:
		return vk.FormatR32g32Sfloat
	case rhi.AttribFloat32Vector3:
		return vk.FormatR32g32b32Sfloat
	case rhi.AttribFloat32Vector4:
		return vk.FormatR32g32b32a32Sfloat
	case rhi.AttribUint32:
		return vk.FormatR32Uint
	default:
		return vk.FormatUndefined
	}
}
