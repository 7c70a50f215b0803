package asset

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/l1jgo/enginecore/internal/resource"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Texture is a decoded image in 8-bit RGBA, rows top to bottom.
type Texture struct {
	Width  int
	Height int
	Format string // source format as reported by image.Decode
	Pix    []byte
}

// DecodeImage decodes any registered image format into RGBA.
func DecodeImage(raw []byte) (resource.Payload, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("decode image: %w", resource.ErrUnsupportedFormat)
		}
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return &Texture{Width: b.Dx(), Height: b.Dy(), Format: format, Pix: rgba.Pix}, nil
}

// Downscale returns t shrunk so neither side exceeds limit, keeping the aspect
// ratio. Textures already within bounds are returned unchanged.
func (t *Texture) Downscale(limit int) *Texture {
	if limit <= 0 || (t.Width <= limit && t.Height <= limit) {
		return t
	}
	w, h := t.Width, t.Height
	if w >= h {
		w, h = limit, h*limit/w
	} else {
		w, h = w*limit/h, limit
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	src := &image.RGBA{Pix: t.Pix, Stride: 4 * t.Width, Rect: image.Rect(0, 0, t.Width, t.Height)}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return &Texture{Width: w, Height: h, Format: t.Format, Pix: dst.Pix}
}
