// Package testbed is the demo application: a sprite layer over the
// texture cache, a debug wire grid and a frame-stats text overlay. It
// exists to exercise every streaming path with real draw traffic.
package testbed

import (
	"fmt"

	cerrors "github.com/cockroachdb/errors"

	"github.com/ember-engine/ember/engine"
	"github.com/ember-engine/ember/engine/assets"
	"github.com/ember-engine/ember/engine/core"
	"github.com/ember-engine/ember/engine/math"
	"github.com/ember-engine/ember/engine/rhi"
	"github.com/ember-engine/ember/engine/systems"
)

type state struct {
	sprites *systems.SpriteBatch
	debug   *systems.DebugDraw
	text    *systems.TextRenderer

	camera math.Mat4
	spin   float64
}

// New builds the testbed game description.
func New() *engine.Game {
	s := &state{}
	return &engine.Game{
		State:        s,
		FnInitialize: s.initialize,
		FnUpdate:     s.update,
		FnRender:     s.render,
		FnOnResize:   s.onResize,
		FnShutdown:   s.shutdown,
	}
}

func loadShaderPair(am *assets.Manager, name string) (vert, frag []byte, err error) {
	vert, err = assets.LoadShaderBytecode(am.Path("shaders", name+".vert.spv"))
	if err != nil {
		return nil, nil, err
	}
	frag, err = assets.LoadShaderBytecode(am.Path("shaders", name+".frag.spv"))
	if err != nil {
		return nil, nil, err
	}
	return vert, frag, nil
}

func (s *state) initialize(e *engine.Engine) error {
	r := e.RHI()
	am := e.Assets()
	cfg := e.Config()

	vert, frag, err := loadShaderPair(am, "sprite")
	if err != nil {
		return cerrors.Wrap(err, "loading sprite shaders")
	}
	sprites, err := systems.NewSpriteBatch(r, vert, frag, cfg.Streams.MaxSprites)
	if err != nil {
		return cerrors.Wrap(err, "creating sprite batch")
	}
	s.sprites = sprites

	atlas, err := e.Textures().Acquire("textures/atlas.png", true)
	if err != nil {
		// The checkerboard default came back; keep going so the demo
		// still shows something.
		core.LogWarn("demo atlas missing, drawing with the default texture")
	}
	s.sprites.SetAtlas(atlas)

	vert, frag, err = loadShaderPair(am, "debug")
	if err != nil {
		return cerrors.Wrap(err, "loading debug shaders")
	}
	debug, err := systems.NewDebugDraw(r, vert, frag)
	if err != nil {
		return cerrors.Wrap(err, "creating debug renderer")
	}
	s.debug = debug

	vert, frag, err = loadShaderPair(am, "text")
	if err != nil {
		return cerrors.Wrap(err, "loading text shaders")
	}
	text, err := systems.NewTextRenderer(r, am, "fonts/ubuntu.fnt", vert, frag, cfg.Streams.MaxGlyphs)
	if err != nil {
		return cerrors.Wrap(err, "creating text renderer")
	}
	s.text = text

	width, height := r.Frames().Extent()
	s.rebuildCamera(width, height)
	return nil
}

func (s *state) rebuildCamera(width, height uint32) {
	aspect := float32(width) / float32(height)
	projection := math.NewMat4Perspective(45.0*3.14159265/180.0, aspect, 0.1, 1000.0)
	view := math.NewMat4Translation(math.NewVec3(0, -2, -10))
	s.camera = projection.Mul(view)
}

func (s *state) update(e *engine.Engine, deltaTime float64) error {
	s.spin += deltaTime
	return nil
}

func (s *state) render(e *engine.Engine, cb rhi.CommandBuffer, deltaTime float64) error {
	slot := e.RHI().Frames().FrameIndex()

	// World-space debug grid and a marker box.
	s.debug.Begin(slot)
	grid := math.NewVec4(0.3, 0.3, 0.3, 1)
	for i := -10; i <= 10; i++ {
		f := float32(i)
		s.debug.AddLine(math.NewVec3(f, 0, -10), math.NewVec3(f, 0, 10), grid)
		s.debug.AddLine(math.NewVec3(-10, 0, f), math.NewVec3(10, 0, f), grid)
	}
	s.debug.AddBox(math.NewVec3(-1, 0, -1), math.NewVec3(1, 2, 1), math.NewVec4(1, 0.6, 0, 1))
	if err := s.debug.End(cb, &s.camera); err != nil {
		return err
	}

	// Screen-space sprites.
	if err := s.sprites.Begin(slot); err != nil {
		return err
	}
	for i := 0; i < 8; i++ {
		offset := float32(i) * 70
		err := s.sprites.Push(cb, &systems.Sprite{
			Position: math.NewVec2(40+offset, 40+offset*0.5),
			Size:     math.NewVec2(64, 64),
			Colour:   math.NewVec4(1, 1, 1, 1),
		})
		if err != nil {
			return err
		}
	}
	s.sprites.End(cb)

	// Stats overlay.
	fps, frameTime := e.Metrics().Frame()
	overlay := fmt.Sprintf("%.0f fps\n%.2f ms", fps, frameTime)
	s.text.Begin(cb, slot)
	if err := s.text.Draw(cb, overlay, 16, 40, math.NewVec4(1, 1, 0.2, 1)); err != nil {
		return err
	}
	s.text.End(cb)

	return nil
}

func (s *state) onResize(e *engine.Engine, width, height uint32) error {
	s.rebuildCamera(width, height)
	s.sprites.Resize(width, height)
	s.text.Resize(width, height)
	return nil
}

func (s *state) shutdown(e *engine.Engine) error {
	if s.text != nil {
		s.text.Destroy()
	}
	if s.debug != nil {
		s.debug.Destroy()
	}
	if s.sprites != nil {
		s.sprites.Destroy()
	}
	return nil
}
