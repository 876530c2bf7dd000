package recognition

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"

	"github.com/adverant/nexus/furigana-worker/internal/geometry"
)

// Preprocessor prepares screen captures for OCR: grayscale, upscale by
// Scale, and binarize when Threshold is in 1..254.
type Preprocessor struct {
	Scale     float64
	Threshold int
}

// Prepared is a preprocessed image plus the factors needed to map boxes
// back to the original image.
type Prepared struct {
	Image  image.Image
	scaleX float64
	scaleY float64
	bounds geometry.Rect
}

// Apply runs the preprocessing chain.
func (p Preprocessor) Apply(img image.Image) Prepared {
	b := img.Bounds()
	out := Prepared{
		scaleX: 1,
		scaleY: 1,
		bounds: geometry.Rect{Width: b.Dx(), Height: b.Dy()},
	}

	var work image.Image = imaging.Grayscale(img)

	if p.Scale > 1 && b.Dx() > 0 && b.Dy() > 0 {
		w := int(math.Round(float64(b.Dx()) * p.Scale))
		h := int(math.Round(float64(b.Dy()) * p.Scale))
		work = imaging.Resize(work, w, h, imaging.Lanczos)
		out.scaleX = float64(w) / float64(b.Dx())
		out.scaleY = float64(h) / float64(b.Dy())
	}

	if p.Threshold > 0 && p.Threshold < 255 {
		work = segment.Threshold(work, uint8(p.Threshold))
	}

	out.Image = work
	return out
}

// MapBack converts a box found on the prepared image into original image
// coordinates, clamped to the original bounds.
func (p Prepared) MapBack(box geometry.Rect) geometry.Rect {
	left := int(math.Floor(float64(box.X) / p.scaleX))
	top := int(math.Floor(float64(box.Y) / p.scaleY))
	right := int(math.Ceil(float64(box.Right()) / p.scaleX))
	bottom := int(math.Ceil(float64(box.Bottom()) / p.scaleY))
	mapped := geometry.Rect{X: left, Y: top, Width: right - left, Height: bottom - top}
	if clipped, ok := mapped.Intersect(p.bounds); ok {
		return clipped
	}
	return geometry.Rect{}
}

// Bounds returns the original image bounds at origin.
func (p Prepared) Bounds() geometry.Rect { return p.bounds }

// PNG encodes the prepared image.
func (p Prepared) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, p.Image); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
