package capture

import (
	"context"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/adverant/nexus/furigana-worker/internal/geometry"
)

// MaskProvider returns screen rectangles that must not be recognized, such
// as the overlay's own popup.
type MaskProvider interface {
	MaskRegions() []geometry.Rect
}

// Masked wraps a Source and whitens the provider's rectangles in every
// captured image.
type Masked struct {
	src      Source
	provider MaskProvider
}

// WithMasks decorates src. A nil provider returns src unchanged.
func WithMasks(src Source, provider MaskProvider) Source {
	if provider == nil {
		return src
	}
	return &Masked{src: src, provider: provider}
}

// Capture delegates to the wrapped source, then applies the masks.
func (m *Masked) Capture(ctx context.Context, region geometry.Region) (image.Image, error) {
	img, err := m.src.Capture(ctx, region)
	if err != nil {
		return nil, err
	}
	return ApplyMasks(img, region, m.provider.MaskRegions()), nil
}

// IntersectRegions clips screen-space masks to region and converts them to
// image coordinates. Masks outside the region are dropped.
func IntersectRegions(region geometry.Region, masks []geometry.Rect) []geometry.Rect {
	out := make([]geometry.Rect, 0, len(masks))
	for _, m := range masks {
		clipped, ok := region.Rect().Intersect(m)
		if !ok {
			continue
		}
		out = append(out, region.ToRelative(clipped))
	}
	return out
}

// ApplyMasks paints the intersecting masks white. img is returned as is when
// nothing intersects.
func ApplyMasks(img image.Image, region geometry.Region, masks []geometry.Rect) image.Image {
	rel := IntersectRegions(region, masks)
	if len(rel) == 0 {
		return img
	}

	out := imaging.Clone(img)
	for _, r := range rel {
		patch := imaging.New(r.Width, r.Height, color.White)
		out = imaging.Paste(out, patch, image.Pt(r.X, r.Y))
	}
	return out
}
