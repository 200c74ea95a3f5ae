package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-engine/ember/engine/assets"
)

func testFont() *assets.BitmapFont {
	return &assets.BitmapFont{
		Face:       "Test",
		Size:       32,
		LineHeight: 36,
		Baseline:   29,
		AtlasW:     128,
		AtlasH:     128,
		Glyphs: map[rune]assets.Glyph{
			'A': {Codepoint: 'A', X: 0, Y: 0, Width: 20, Height: 24, XOffset: 1, YOffset: 2, XAdvance: 21},
			'V': {Codepoint: 'V', X: 20, Y: 0, Width: 19, Height: 24, XOffset: 0, YOffset: 2, XAdvance: 19},
		},
		Kernings: map[assets.KerningPair]int16{
			{First: 'A', Second: 'V'}: -3,
		},
		Pages: []assets.FontPage{{ID: 0, File: "test_0.png"}},
	}
}

func TestLayoutGlyphsAdvancesAndKerns(t *testing.T) {
	font := testFont()
	quads := layoutGlyphs(font, "AV", 10, 100)
	require.Len(t, quads, 2)

	// 'A': pen (10, 100-29) plus glyph offsets.
	assert.Equal(t, float32(11), quads[0].x0)
	assert.Equal(t, float32(73), quads[0].y0)
	assert.Equal(t, float32(31), quads[0].x1)

	// 'V' starts after A's advance and the AV kern of -3.
	assert.Equal(t, float32(10+21-3), quads[1].x0)
}

func TestLayoutGlyphsNewlineResetsPen(t *testing.T) {
	font := testFont()
	quads := layoutGlyphs(font, "A\nA", 0, 0)
	require.Len(t, quads, 2)

	assert.Equal(t, quads[0].x0, quads[1].x0)
	assert.Equal(t, quads[0].y0+float32(font.LineHeight), quads[1].y0)
}

func TestLayoutGlyphsSkipsUnknownRunes(t *testing.T) {
	quads := layoutGlyphs(testFont(), "A?A", 0, 0)
	assert.Len(t, quads, 2)
}

func TestLayoutGlyphsAtlasRegions(t *testing.T) {
	quads := layoutGlyphs(testFont(), "V", 0, 0)
	require.Len(t, quads, 1)

	assert.InDelta(t, 20.0/128.0, quads[0].u0, 1e-6)
	assert.InDelta(t, 39.0/128.0, quads[0].u1, 1e-6)
	assert.InDelta(t, 0.0, quads[0].v0, 1e-6)
	assert.InDelta(t, 24.0/128.0, quads[0].v1, 1e-6)
}

func TestMeasureText(t *testing.T) {
	font := testFont()

	w, h := measureText(font, "AV")
	assert.Equal(t, float32(21-3+19), w)
	assert.Equal(t, float32(36), h)

	w, h = measureText(font, "AVA\nA")
	assert.Equal(t, float32(21-3+19+21), w)
	assert.Equal(t, float32(72), h)

	w, h = measureText(font, "")
	assert.Equal(t, float32(0), w)
	assert.Equal(t, float32(36), h)
}
