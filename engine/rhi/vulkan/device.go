// Package vulkan is the Vulkan rendering backend. It implements the
// rhi.Device contract and nothing above it: policy such as frame
// pacing, allocation strategy and resource lifecycles lives in the rhi
// frontend, which drives this package from a single thread.
package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/ember-engine/ember/engine/core"
	"github.com/ember-engine/ember/engine/rhi"
)

// SurfaceSource is the window-system half of device creation. The
// platform window implements it, keeping this package free of any
// windowing dependency.
type SurfaceSource interface {
	// ProcAddr returns the loader's vkGetInstanceProcAddr pointer.
	ProcAddr() unsafe.Pointer
	// InstanceExtensions lists the instance extensions the window
	// system requires for surface creation.
	InstanceExtensions() []string
	// CreateSurface creates a surface for the window on the given
	// instance and returns the raw handle.
	CreateSurface(instance interface{}) (uintptr, error)
}

// Config carries the backend options that cannot change after device
// creation.
type Config struct {
	ApplicationName string
	// Debug enables the validation layer and the debug report callback
	// when the loader provides them.
	Debug bool
}

const validationLayerName = "VK_LAYER_KHRONOS_validation"

// Device is the Vulkan implementation of rhi.Device. One instance owns
// the Vulkan instance, surface, logical device, queues and graphics
// command pool for the lifetime of the process.
type Device struct {
	caps rhi.DeviceCaps

	instance  vk.Instance
	allocator *vk.AllocationCallbacks
	debugCB   vk.DebugReportCallback
	surface   vk.Surface

	physical   vk.PhysicalDevice
	logical    vk.Device
	properties vk.PhysicalDeviceProperties
	memory     vk.PhysicalDeviceMemoryProperties

	graphicsQueueIndex int32
	presentQueueIndex  int32
	transferQueueIndex int32

	graphicsQueue vk.Queue
	presentQueue  vk.Queue
	transferQueue vk.Queue

	commandPool vk.CommandPool
	frameCBs    [rhi.MaxFramesInFlight]vk.CommandBuffer

	depthFormat vk.Format

	swapchain *swapchainState

	debug     bool
	validated bool
}

// New initializes the Vulkan loader, creates the instance and surface,
// selects a physical device, builds the logical device with its queues
// and command pool, and allocates the per-slot frame command buffers.
func New(source SurfaceSource, cfg *Config) (*Device, error) {
	if source == nil {
		return nil, fmt.Errorf("vulkan: nil surface source")
	}
	if cfg == nil {
		cfg = &Config{}
	}

	procAddr := source.ProcAddr()
	if procAddr == nil {
		return nil, fmt.Errorf("vulkan: loader proc address is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("vulkan: initializing loader: %w", err)
	}

	d := &Device{
		debug:              cfg.Debug,
		graphicsQueueIndex: -1,
		presentQueueIndex:  -1,
		transferQueueIndex: -1,
	}

	if err := d.createInstance(source, cfg.ApplicationName); err != nil {
		return nil, err
	}
	if d.debug && d.validated {
		if err := d.createDebugCallback(); err != nil {
			core.LogWarn("vulkan: debug callback unavailable: %v", err)
		}
	}

	raw, err := source.CreateSurface(d.instance)
	if err != nil {
		d.teardown()
		return nil, fmt.Errorf("vulkan: creating window surface: %w", err)
	}
	d.surface = vk.SurfaceFromPointer(raw)
	core.LogDebug("vulkan surface created")

	if err := d.selectPhysicalDevice(); err != nil {
		d.teardown()
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		d.teardown()
		return nil, err
	}
	if err := d.createCommandPool(); err != nil {
		d.teardown()
		return nil, err
	}
	if err := d.allocateFrameCommandBuffers(); err != nil {
		d.teardown()
		return nil, err
	}

	d.buildCaps()
	core.LogInfo("vulkan device initialized: %s", d.caps.Name)
	return d, nil
}

func (d *Device) createInstance(source SurfaceSource, appName string) error {
	if appName == "" {
		appName = "ember"
	}
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(appName),
		PEngineName:        safeString("Ember Engine"),
	}

	extensions := append([]string{"VK_KHR_surface"}, source.InstanceExtensions()...)
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= vk.InstanceCreateFlags(0x00000001)
	}
	if d.debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
	}
	extensions = dedupeStrings(extensions)
	for _, ext := range extensions {
		core.LogDebug("instance extension: %s", ext)
	}

	var layers []string
	if d.debug {
		if hasInstanceLayer(validationLayerName) {
			layers = []string{validationLayerName}
			d.validated = true
			core.LogDebug("validation layer enabled")
		} else {
			core.LogWarn("validation layer %s not present, continuing without it", validationLayerName)
		}
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = safeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = safeStrings(layers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, d.allocator, &instance); res != vk.Success {
		return fmt.Errorf("vulkan: vkCreateInstance failed with %s", resultString(res))
	}
	d.instance = instance
	if err := vk.InitInstance(d.instance); err != nil {
		return fmt.Errorf("vulkan: initializing instance functions: %w", err)
	}
	core.LogDebug("vulkan instance created")
	return nil
}

func hasInstanceLayer(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, layers); res != vk.Success {
		return false
	}
	for i := range layers {
		layers[i].Deref()
		if vk.ToString(layers[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func (d *Device) createDebugCallback() error {
	createInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: debugReportCallback,
	}
	var cb vk.DebugReportCallback
	if res := vk.CreateDebugReportCallback(d.instance, &createInfo, d.allocator, &cb); res != vk.Success {
		return fmt.Errorf("vkCreateDebugReportCallbackEXT failed with %s", resultString(res))
	}
	d.debugCB = cb
	return nil
}

func debugReportCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, layerPrefix string, message string, userData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] %s", layerPrefix, message)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0,
		flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("[%s] %s", layerPrefix, message)
	default:
		core.LogDebug("[%s] %s", layerPrefix, message)
	}
	return vk.Bool32(vk.False)
}

// queueFamilyInfo holds the selected family index per queue role, -1
// while unassigned.
type queueFamilyInfo struct {
	graphics int32
	present  int32
	transfer int32
}

func (q *queueFamilyInfo) complete() bool {
	return q.graphics >= 0 && q.present >= 0 && q.transfer >= 0
}

func (d *Device) selectPhysicalDevice() error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(d.instance, &count, nil); res != vk.Success {
		return fmt.Errorf("vulkan: vkEnumeratePhysicalDevices failed with %s", resultString(res))
	}
	if count == 0 {
		return fmt.Errorf("vulkan: no devices with Vulkan support found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(d.instance, &count, devices); res != vk.Success {
		return fmt.Errorf("vulkan: vkEnumeratePhysicalDevices failed with %s", resultString(res))
	}

	bestScore := -1
	for _, pd := range devices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &properties)
		properties.Deref()
		properties.Limits.Deref()

		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(pd, &features)
		features.Deref()

		queues, ok := d.probeQueueFamilies(pd)
		if !ok {
			core.LogDebug("device %q lacks a required queue family, skipping", vk.ToString(properties.DeviceName[:]))
			continue
		}
		if !deviceSupportsExtension(pd, vk.KhrSwapchainExtensionName) {
			core.LogDebug("device %q lacks %s, skipping", vk.ToString(properties.DeviceName[:]), vk.KhrSwapchainExtensionName)
			continue
		}
		if features.SamplerAnisotropy != vk.True {
			core.LogDebug("device %q lacks sampler anisotropy, skipping", vk.ToString(properties.DeviceName[:]))
			continue
		}
		support, err := querySwapchainSupport(pd, d.surface)
		if err != nil || len(support.formats) == 0 || len(support.presentModes) == 0 {
			core.LogDebug("device %q lacks swapchain support, skipping", vk.ToString(properties.DeviceName[:]))
			continue
		}

		score := 100
		switch properties.DeviceType {
		case vk.PhysicalDeviceTypeDiscreteGpu:
			score = 1000
		case vk.PhysicalDeviceTypeIntegratedGpu:
			score = 500
		}
		if score <= bestScore {
			continue
		}
		bestScore = score

		d.physical = pd
		d.properties = properties
		d.graphicsQueueIndex = queues.graphics
		d.presentQueueIndex = queues.present
		d.transferQueueIndex = queues.transfer

		vk.GetPhysicalDeviceMemoryProperties(pd, &d.memory)
		d.memory.Deref()
		for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
			d.memory.MemoryTypes[i].Deref()
		}
	}

	if d.physical == nil {
		return fmt.Errorf("vulkan: no physical device meets the requirements")
	}
	if !d.detectDepthFormat() {
		return fmt.Errorf("vulkan: no supported depth format found")
	}

	core.LogInfo("selected device: %s", vk.ToString(d.properties.DeviceName[:]))
	core.LogDebug("queue families: graphics=%d present=%d transfer=%d",
		d.graphicsQueueIndex, d.presentQueueIndex, d.transferQueueIndex)
	return nil
}

// probeQueueFamilies assigns a family per role. The transfer role
// prefers the family with the fewest capabilities, which on most
// hardware lands on a dedicated transfer queue.
func (d *Device) probeQueueFamilies(pd vk.PhysicalDevice) (queueFamilyInfo, bool) {
	info := queueFamilyInfo{graphics: -1, present: -1, transfer: -1}

	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, families)

	minTransferScore := 255
	for i := uint32(0); i < count; i++ {
		families[i].Deref()
		score := 0

		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			if info.graphics < 0 {
				info.graphics = int32(i)
			}
			score++
		}
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			score++
		}
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueTransferBit) != 0 {
			if score <= minTransferScore {
				minTransferScore = score
				info.transfer = int32(i)
			}
		}

		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(pd, i, d.surface, &supportsPresent); res != vk.Success {
			continue
		}
		if supportsPresent == vk.True && info.present < 0 {
			info.present = int32(i)
		}
	}
	return info, info.complete()
}

func deviceSupportsExtension(pd vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil); res != vk.Success {
		return false
	}
	if count == 0 {
		return false
	}
	extensions := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, extensions); res != vk.Success {
		return false
	}
	for i := range extensions {
		extensions[i].Deref()
		if vk.ToString(extensions[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

// detectDepthFormat picks the first depth format the device can use as
// an optimally tiled depth attachment. Only formats the frontend can
// name are candidates.
func (d *Device) detectDepthFormat() bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD24UnormS8Uint,
	}
	required := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.physical, candidate, &props)
		props.Deref()
		if props.OptimalTilingFeatures&required == required {
			d.depthFormat = candidate
			return true
		}
	}
	return false
}

func (d *Device) createLogicalDevice() error {
	// One queue per distinct family; shared indices must not be
	// requested twice.
	indices := []uint32{uint32(d.graphicsQueueIndex)}
	if d.presentQueueIndex != d.graphicsQueueIndex {
		indices = append(indices, uint32(d.presentQueueIndex))
	}
	if d.transferQueueIndex != d.graphicsQueueIndex && d.transferQueueIndex != d.presentQueueIndex {
		indices = append(indices, uint32(d.transferQueueIndex))
	}

	queuePriority := []float32{1.0}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, family := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: queuePriority,
		}
	}

	features := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: vk.True,
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	if deviceSupportsExtension(d.physical, "VK_KHR_portability_subset") {
		// Translation layers (MoltenVK) require this when they offer it.
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}

	var logical vk.Device
	if res := vk.CreateDevice(d.physical, &createInfo, d.allocator, &logical); res != vk.Success {
		return fmt.Errorf("vulkan: vkCreateDevice failed with %s", resultString(res))
	}
	d.logical = logical

	vk.GetDeviceQueue(d.logical, uint32(d.graphicsQueueIndex), 0, &d.graphicsQueue)
	vk.GetDeviceQueue(d.logical, uint32(d.presentQueueIndex), 0, &d.presentQueue)
	vk.GetDeviceQueue(d.logical, uint32(d.transferQueueIndex), 0, &d.transferQueue)

	core.LogDebug("logical device created, queues obtained")
	return nil
}

func (d *Device) createCommandPool() error {
	createInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(d.graphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(d.logical, &createInfo, d.allocator, &pool); res != vk.Success {
		return fmt.Errorf("vulkan: vkCreateCommandPool failed with %s", resultString(res))
	}
	d.commandPool = pool
	return nil
}

func (d *Device) allocateFrameCommandBuffers() error {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: rhi.MaxFramesInFlight,
	}
	cbs := make([]vk.CommandBuffer, rhi.MaxFramesInFlight)
	if res := vk.AllocateCommandBuffers(d.logical, &allocInfo, cbs); res != vk.Success {
		return fmt.Errorf("vulkan: allocating frame command buffers failed with %s", resultString(res))
	}
	copy(d.frameCBs[:], cbs)
	return nil
}

func (d *Device) buildCaps() {
	limits := d.properties.Limits
	d.caps = rhi.DeviceCaps{
		Name:                      vk.ToString(d.properties.DeviceName[:]),
		MinUniformBufferAlignment: uint64(limits.MinUniformBufferOffsetAlignment),
		DepthFormat:               convertSurfaceDepthFormat(d.depthFormat),
		MaxPushConstantSize:       limits.MaxPushConstantsSize,
		MaxSamplerAnisotropy:      limits.MaxSamplerAnisotropy,
	}
}

func convertSurfaceDepthFormat(f vk.Format) rhi.Format {
	if f == vk.FormatD24UnormS8Uint {
		return rhi.FormatD24UnormS8Uint
	}
	return rhi.FormatD32Sfloat
}

// Caps reports the device limits the frontend caches at startup.
func (d *Device) Caps() *rhi.DeviceCaps {
	return &d.caps
}

// WaitIdle blocks until the GPU drains all submitted work.
func (d *Device) WaitIdle() error {
	if res := vk.DeviceWaitIdle(d.logical); !resultIsSuccess(res) {
		return fmt.Errorf("vulkan: vkDeviceWaitIdle failed with %s", resultString(res))
	}
	return nil
}

// Destroy tears the device down in reverse creation order. The caller
// guarantees the GPU is idle and all resources are already released.
func (d *Device) Destroy() {
	if d.logical != nil {
		vk.DeviceWaitIdle(d.logical)
	}
	d.teardown()
	core.LogInfo("vulkan device destroyed")
}

func (d *Device) teardown() {
	if d.logical != nil {
		if d.commandPool != vk.NullCommandPool {
			// Frees the frame command buffers with it.
			vk.DestroyCommandPool(d.logical, d.commandPool, d.allocator)
			d.commandPool = vk.NullCommandPool
		}
		vk.DestroyDevice(d.logical, d.allocator)
		d.logical = nil
	}
	d.graphicsQueue = nil
	d.presentQueue = nil
	d.transferQueue = nil
	d.physical = nil

	if d.instance != nil {
		if d.surface != vk.NullSurface {
			vk.DestroySurface(d.instance, d.surface, d.allocator)
			d.surface = vk.NullSurface
		}
		if d.debugCB != vk.NullDebugReportCallback {
			vk.DestroyDebugReportCallback(d.instance, d.debugCB, d.allocator)
			d.debugCB = vk.NullDebugReportCallback
		}
		vk.DestroyInstance(d.instance, d.allocator)
		d.instance = nil
	}
}
