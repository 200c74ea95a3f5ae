// Package systems holds the renderer-facing subsystems built on the
// hardware layer: the texture cache and the streaming geometry clients
// (sprites, debug shapes, text). Each one is thin on purpose; resource
// lifetime and frame pacing stay in the hardware layer.
package systems

import (
	"path/filepath"
	"strings"

	cerrors "github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/ember-engine/ember/engine/assets"
	"github.com/ember-engine/ember/engine/core"
	"github.com/ember-engine/ember/engine/rhi"
)

// DefaultTextureName is the key of the built-in checkerboard.
const DefaultTextureName = "default"

const defaultTextureDim = 256

type textureEntry struct {
	texture     *rhi.Texture
	refCount    uint32
	autoRelease bool
	// path is the asset-root-relative source file, empty for
	// procedural and render-target textures.
	path string
}

// TextureSystem is the name-keyed texture cache. Lookups that fail fall
// back to the checkerboard default so a missing file never stalls the
// frame, and file changes under the asset root reload the affected
// texture in place with a bumped generation.
type TextureSystem struct {
	rhi    *rhi.RHI
	assets *assets.Manager
	bus    *core.EventBus

	defaultTexture *rhi.Texture
	entries        map[string]*textureEntry
	// byPath maps asset-relative paths back to cache names for reloads.
	byPath map[string]string
}

// NewTextureSystem builds the cache and its default texture and starts
// listening for asset changes.
func NewTextureSystem(r *rhi.RHI, am *assets.Manager, bus *core.EventBus) (*TextureSystem, error) {
	ts := &TextureSystem{
		rhi:     r,
		assets:  am,
		bus:     bus,
		entries: make(map[string]*textureEntry),
		byPath:  make(map[string]string),
	}

	pixels := checkerboardPixels(defaultTextureDim, 8)
	texture, err := r.CreateTexture(&rhi.TextureDesc{
		Name:         DefaultTextureName,
		Width:        defaultTextureDim,
		Height:       defaultTextureDim,
		Format:       rhi.FormatR8G8B8A8Unorm,
		GenerateMips: true,
		Filter:       rhi.FilterLinear,
		Address:      rhi.AddressRepeat,
	}, pixels)
	if err != nil {
		return nil, cerrors.Wrap(err, "creating default texture")
	}
	ts.defaultTexture = texture

	bus.Register(core.EVENT_CODE_ASSET_MODIFIED, ts, ts.onAssetModified)
	return ts, nil
}

// checkerboardPixels fills a dim x dim RGBA image with a magenta/black
// checker of cells x cells squares. Magenta because nothing ships
// magenta on purpose.
func checkerboardPixels(dim, cells uint32) []byte {
	pixels := make([]byte, dim*dim*4)
	cell := dim / cells
	for y := uint32(0); y < dim; y++ {
		for x := uint32(0); x < dim; x++ {
			i := (y*dim + x) * 4
			if ((x/cell)+(y/cell))%2 == 0 {
				pixels[i] = 255
				pixels[i+2] = 255
			}
			pixels[i+3] = 255
		}
	}
	return pixels
}

// Default returns the checkerboard texture. Never released through the
// cache.
func (ts *TextureSystem) Default() *rhi.Texture {
	return ts.defaultTexture
}

// Acquire returns the texture loaded from the asset-root-relative image
// path, loading it on first use and bumping a reference count on every
// subsequent one. On a load failure the default texture is returned
// alongside the error so the caller can draw anyway.
func (ts *TextureSystem) Acquire(path string, autoRelease bool) (*rhi.Texture, error) {
	if path == DefaultTextureName {
		return ts.defaultTexture, nil
	}
	name := cacheName(path)
	if entry, ok := ts.entries[name]; ok {
		entry.refCount++
		return entry.texture, nil
	}

	texture, err := ts.loadTexture(name, path)
	if err != nil {
		core.LogWarn("texture %q failed to load, serving default: %v", path, err)
		return ts.defaultTexture, err
	}
	ts.entries[name] = &textureEntry{
		texture:     texture,
		refCount:    1,
		autoRelease: autoRelease,
		path:        path,
	}
	ts.byPath[filepath.ToSlash(path)] = name
	return texture, nil
}

func (ts *TextureSystem) loadTexture(name, path string) (*rhi.Texture, error) {
	img, err := assets.LoadImage(ts.assets.Path(path))
	if err != nil {
		return nil, err
	}
	return ts.rhi.CreateTexture(&rhi.TextureDesc{
		Name:         name,
		Width:        img.Width,
		Height:       img.Height,
		Format:       rhi.FormatR8G8B8A8Srgb,
		GenerateMips: true,
		Filter:       rhi.FilterLinear,
		Address:      rhi.AddressRepeat,
	}, img.Pixels)
}

// Release drops one reference. The texture is destroyed when the count
// reaches zero and it was acquired auto-release.
func (ts *TextureSystem) Release(path string) {
	name := cacheName(path)
	entry, ok := ts.entries[name]
	if !ok {
		core.LogWarn("releasing unknown texture %q", path)
		return
	}
	if entry.refCount > 0 {
		entry.refCount--
	}
	if entry.refCount == 0 && entry.autoRelease {
		ts.evict(name, entry)
	}
}

func (ts *TextureSystem) evict(name string, entry *textureEntry) {
	ts.rhi.DestroyTexture(entry.texture)
	delete(ts.entries, name)
	if entry.path != "" {
		delete(ts.byPath, filepath.ToSlash(entry.path))
	}
}

// CreateRenderTarget creates a sampled colour render target in the
// swapchain's format. The name is generated; callers keep the returned
// texture and release it with DestroyRenderTarget.
func (ts *TextureSystem) CreateRenderTarget(width, height uint32) (*rhi.Texture, error) {
	name := "rt." + uuid.New().String()
	return ts.rhi.CreateRenderTarget(name, width, height, ts.rhi.Frames().SurfaceFormat())
}

// CreateDepthTarget creates a depth attachment in the device's depth
// format, uuid-named like colour targets.
func (ts *TextureSystem) CreateDepthTarget(width, height uint32) (*rhi.Texture, error) {
	name := "depth." + uuid.New().String()
	return ts.rhi.CreateDepthTexture(name, width, height)
}

// DestroyRenderTarget releases a target created by this system.
func (ts *TextureSystem) DestroyRenderTarget(t *rhi.Texture) {
	ts.rhi.DestroyTexture(t)
}

// onAssetModified reloads the texture backing a changed file. The old
// image is destroyed behind a device-idle wait and the entry's texture
// pointer is swapped with a bumped generation, so descriptor owners can
// compare generations and rewrite.
func (ts *TextureSystem) onAssetModified(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	path := filepath.ToSlash(context.Data.Str)
	name, ok := ts.byPath[path]
	if !ok {
		return false
	}
	entry := ts.entries[name]

	replacement, err := ts.loadTexture(name, entry.path)
	if err != nil {
		core.LogWarn("hot reload of texture %q failed, keeping previous contents: %v", path, err)
		return false
	}
	replacement.Generation = entry.texture.Generation + 1

	if err := ts.rhi.WaitIdle(); err != nil {
		core.LogError("device wait before texture reload failed: %v", err)
		ts.rhi.DestroyTexture(replacement)
		return false
	}
	ts.rhi.DestroyTexture(entry.texture)
	entry.texture = replacement

	core.LogInfo("texture %q reloaded, generation %d", path, replacement.Generation)
	return false
}

// Get returns the current texture for a previously acquired path, which
// may have been swapped by a hot reload. Nil when not resident.
func (ts *TextureSystem) Get(path string) *rhi.Texture {
	if entry, ok := ts.entries[cacheName(path)]; ok {
		return entry.texture
	}
	return nil
}

// Shutdown destroys every resident texture including the default.
func (ts *TextureSystem) Shutdown() {
	ts.bus.Unregister(core.EVENT_CODE_ASSET_MODIFIED, ts)
	for name, entry := range ts.entries {
		ts.evict(name, entry)
	}
	ts.rhi.DestroyTexture(ts.defaultTexture)
	ts.defaultTexture = nil
}

// cacheName strips directory and extension so "textures/brick.png" and
// a later "textures/brick.bmp" replacement share an identity.
func cacheName(path string) string {
	base := filepath.Base(filepath.ToSlash(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
