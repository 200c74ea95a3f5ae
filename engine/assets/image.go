package assets

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// ImageData is a decoded image in tightly packed 8-bit RGBA, the only
// pixel layout the texture path uploads.
type ImageData struct {
	Width  uint32
	Height uint32
	Pixels []byte
}

// LoadImage decodes a PNG or BMP file into RGBA pixels.
func LoadImage(path string) (*ImageData, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, cerrors.Wrapf(err, "opening image %q", path)
	}
	defer file.Close()

	var img image.Image
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		img, err = png.Decode(file)
	case ".bmp":
		img, err = bmp.Decode(file)
	default:
		return nil, cerrors.Newf("assets: unsupported image format %q", ext)
	}
	if err != nil {
		return nil, cerrors.Wrapf(err, "decoding image %q", path)
	}

	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || bounds.Min != (image.Point{}) {
		converted := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(converted, converted.Bounds(), img, bounds.Min, draw.Src)
		rgba = converted
	}

	return &ImageData{
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
		Pixels: rgba.Pix,
	}, nil
}
