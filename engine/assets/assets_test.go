package assets

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-engine/ember/engine/core"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 50), G: uint8(y * 50), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestLoadImagePNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.png")
	writePNG(t, path, 4, 2)

	data, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), data.Width)
	assert.Equal(t, uint32(2), data.Height)
	assert.Len(t, data.Pixels, 4*2*4)
	// Pixel (1,0): R=50, G=0, B=128, A=255.
	assert.Equal(t, byte(50), data.Pixels[4])
	assert.Equal(t, byte(128), data.Pixels[6])
	assert.Equal(t, byte(255), data.Pixels[7])
}

func TestLoadImageUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.tga")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	_, err := LoadImage(path)
	assert.Error(t, err)
}

func TestLoadShaderBytecode(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "quad.vert.spv")
	require.NoError(t, os.WriteFile(good, []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0}, 0o644))
	code, err := LoadShaderBytecode(good)
	require.NoError(t, err)
	assert.Len(t, code, 8)

	truncated := filepath.Join(dir, "bad.spv")
	require.NoError(t, os.WriteFile(truncated, []byte{1, 2, 3}, 0o644))
	_, err = LoadShaderBytecode(truncated)
	assert.Error(t, err)

	_, err = LoadShaderBytecode(filepath.Join(dir, "missing.spv"))
	assert.Error(t, err)
}

const testFNT = `info face="TestFace" size=32 bold=0 italic=0 charset="" unicode=1 stretchH=100 smooth=1 aa=1 padding=0,0,0,0 spacing=1,1 outline=0
common lineHeight=36 base=29 scaleW=64 scaleH=64 pages=1 packed=0 alphaChnl=1 redChnl=0 greenChnl=0 blueChnl=0
page id=0 file="testface_0.png"
chars count=2
char id=65 x=0 y=0 width=20 height=24 xoffset=1 yoffset=2 xadvance=21 page=0 chnl=15
char id=86 x=20 y=0 width=19 height=24 xoffset=0 yoffset=2 xadvance=19 page=0 chnl=15
kernings count=1
kerning first=65 second=86 amount=-2
`

func TestLoadBitmapFont(t *testing.T) {
	dir := t.TempDir()
	fntPath := filepath.Join(dir, "testface.fnt")
	require.NoError(t, os.WriteFile(fntPath, []byte(testFNT), 0o644))
	writePNG(t, filepath.Join(dir, "testface_0.png"), 64, 64)

	font, err := LoadBitmapFont(fntPath)
	require.NoError(t, err)

	assert.Equal(t, "TestFace", font.Face)
	assert.Equal(t, uint32(32), font.Size)
	assert.Equal(t, int32(36), font.LineHeight)
	assert.Equal(t, int32(29), font.Baseline)
	assert.Equal(t, uint32(64), font.AtlasW)
	assert.Equal(t, uint32(64), font.AtlasH)

	require.Len(t, font.Pages, 1)
	assert.Equal(t, "testface_0.png", font.Pages[0].File)

	glyph, ok := font.Glyphs['A']
	require.True(t, ok)
	assert.Equal(t, uint16(20), glyph.Width)
	assert.Equal(t, uint16(24), glyph.Height)
	assert.Equal(t, int16(21), glyph.XAdvance)

	assert.Equal(t, int16(-2), font.Kerning('A', 'V'))
	assert.Equal(t, int16(0), font.Kerning('V', 'A'))
}

func TestManagerPumpFiresModifiedEvents(t *testing.T) {
	dir := t.TempDir()
	bus := core.NewEventBus()

	var modified []string
	bus.Register(core.EVENT_CODE_ASSET_MODIFIED, t, func(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
		modified = append(modified, context.Data.Str)
		return true
	})

	m, err := NewManager(dir, bus)
	require.NoError(t, err)
	defer m.Shutdown()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "albedo.png"), []byte{1, 2, 3, 4}, 0o644))

	// The watcher delivers asynchronously; poll until the change lands.
	deadline := time.Now().Add(2 * time.Second)
	for len(modified) == 0 && time.Now().Before(deadline) {
		m.Pump()
		time.Sleep(10 * time.Millisecond)
	}
	require.NotEmpty(t, modified)
	assert.Equal(t, "albedo.png", modified[0])
}
