package assets

import (
	"sort"

	cerrors "github.com/cockroachdb/errors"
	"github.com/fzipp/bmfont"
)

// Glyph is one character's cell in a bitmap font atlas, in pixels.
type Glyph struct {
	Codepoint rune
	X, Y      uint16
	Width     uint16
	Height    uint16
	XOffset   int16
	YOffset   int16
	XAdvance  int16
	Page      uint8
}

// KerningPair adjusts the advance between two adjacent codepoints.
type KerningPair struct {
	First  rune
	Second rune
}

// FontPage names one atlas texture of a bitmap font.
type FontPage struct {
	ID   uint8
	File string
}

// BitmapFont is a parsed AngelCode .fnt descriptor. The atlas pixels
// live in the page image files and are loaded separately.
type BitmapFont struct {
	Face       string
	Size       uint32
	LineHeight int32
	Baseline   int32
	AtlasW     uint32
	AtlasH     uint32
	Glyphs     map[rune]Glyph
	Kernings   map[KerningPair]int16
	Pages      []FontPage
}

// LoadBitmapFont parses an AngelCode .fnt descriptor file.
func LoadBitmapFont(path string) (*BitmapFont, error) {
	font, err := bmfont.Load(path)
	if err != nil {
		return nil, cerrors.Wrapf(err, "loading bitmap font %q", path)
	}
	desc := font.Descriptor

	out := &BitmapFont{
		Face:       desc.Info.Face,
		Size:       uint32(desc.Info.Size),
		LineHeight: int32(desc.Common.LineHeight),
		Baseline:   int32(desc.Common.Base),
		AtlasW:     uint32(desc.Common.ScaleW),
		AtlasH:     uint32(desc.Common.ScaleH),
		Glyphs:     make(map[rune]Glyph, len(desc.Chars)),
		Kernings:   make(map[KerningPair]int16, len(desc.Kerning)),
		Pages:      make([]FontPage, 0, len(desc.Pages)),
	}

	for _, c := range desc.Chars {
		out.Glyphs[c.ID] = Glyph{
			Codepoint: c.ID,
			X:         uint16(c.X),
			Y:         uint16(c.Y),
			Width:     uint16(c.Width),
			Height:    uint16(c.Height),
			XOffset:   int16(c.XOffset),
			YOffset:   int16(c.YOffset),
			XAdvance:  int16(c.XAdvance),
			Page:      uint8(c.Page),
		}
	}
	for pair, k := range desc.Kerning {
		out.Kernings[KerningPair{First: pair.First, Second: pair.Second}] = int16(k.Amount)
	}
	for _, p := range desc.Pages {
		out.Pages = append(out.Pages, FontPage{ID: uint8(p.ID), File: p.File})
	}
	sort.Slice(out.Pages, func(i, j int) bool { return out.Pages[i].ID < out.Pages[j].ID })

	if len(out.Pages) == 0 {
		return nil, cerrors.Newf("assets: font %q has no atlas pages", path)
	}
	return out, nil
}

// Kerning returns the advance adjustment between two codepoints, zero
// when the pair has none.
func (f *BitmapFont) Kerning(first, second rune) int16 {
	return f.Kernings[KerningPair{First: first, Second: second}]
}
