package recognition

import (
	"context"
	"fmt"
	"image"

	"github.com/adverant/nexus/furigana-worker/internal/clients"
	"github.com/adverant/nexus/furigana-worker/internal/geometry"
)

// PaddleSource recognizes text through a PaddleOCR serving endpoint. The
// server returns line-level detections, so no word merging is applied.
type PaddleSource struct {
	client *clients.PaddleClient
	pre    Preprocessor
}

// NewPaddleSource creates a source for the serving endpoint at url.
func NewPaddleSource(url string, pre Preprocessor) *PaddleSource {
	return &PaddleSource{client: clients.NewPaddleClient(url), pre: pre}
}

// Name returns the engine name.
func (p *PaddleSource) Name() string { return "paddle" }

// Recognize posts the prepared image and converts the detections.
func (p *PaddleSource) Recognize(ctx context.Context, img image.Image) ([]RawSpan, error) {
	prepared := p.pre.Apply(img)
	data, err := prepared.PNG()
	if err != nil {
		return nil, err
	}

	detections, err := p.client.Detect(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("paddle OCR failed: %w", err)
	}

	spans := make([]RawSpan, 0, len(detections))
	for _, d := range detections {
		box := boxFromPoints(d.TextRegion)
		if box.Empty() {
			continue
		}
		spans = append(spans, RawSpan{
			Text:       d.Text,
			Box:        prepared.MapBack(box),
			Confidence: d.Confidence,
		})
	}
	return ReadingOrder(clean(spans, prepared.Bounds())), nil
}

// boxFromPoints returns the bounding rectangle of a detection polygon.
func boxFromPoints(points [][]float64) geometry.Rect {
	if len(points) == 0 {
		return geometry.Rect{}
	}
	var rects []geometry.Rect
	for _, pt := range points {
		if len(pt) < 2 {
			continue
		}
		rects = append(rects, geometry.Rect{X: int(pt[0]), Y: int(pt[1])})
	}
	if len(rects) == 0 {
		return geometry.Rect{}
	}
	return geometry.Union(rects...)
}
