/**
 * Recognition Sources - OCR engines behind one interface
 *
 * Engines return spans with boxes relative to the image they were given,
 * already sorted into reading order.
 */

package recognition

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/adverant/nexus/furigana-worker/internal/geometry"
)

// RawSpan is one recognized text fragment
type RawSpan struct {
	Text       string        `json:"text"`
	Box        geometry.Rect `json:"box"`
	Confidence float64       `json:"confidence"`
}

// Source extracts text spans from an image
type Source interface {
	Recognize(ctx context.Context, img image.Image) ([]RawSpan, error)
	Name() string
}

// Options configures the engines built by New
type Options struct {
	Language          string
	PageSegMode       int
	TessdataPrefix    string
	PaddleURL         string
	Scale             float64
	BinarizeThreshold int
	MergeWords        bool
}

// New builds the engine registered under name.
func New(name string, opts Options) (Source, error) {
	pre := Preprocessor{Scale: opts.Scale, Threshold: opts.BinarizeThreshold}

	switch strings.ToLower(name) {
	case "tesseract":
		return NewTesseractSource(TesseractConfig{
			Language:       opts.Language,
			PageSegMode:    opts.PageSegMode,
			TessdataPrefix: opts.TessdataPrefix,
			MergeWords:     opts.MergeWords,
		}, pre), nil
	case "paddle":
		if opts.PaddleURL == "" {
			return nil, fmt.Errorf("paddle engine requires a serving URL")
		}
		return NewPaddleSource(opts.PaddleURL, pre), nil
	default:
		return nil, fmt.Errorf("unknown OCR engine: %q", name)
	}
}

// clean drops spans with no visible text or no area and clamps boxes to
// the image bounds.
func clean(spans []RawSpan, bounds geometry.Rect) []RawSpan {
	out := spans[:0]
	for _, s := range spans {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		box, ok := s.Box.Intersect(bounds)
		if !ok {
			continue
		}
		s.Box = box
		s.Confidence = clampConfidence(s.Confidence)
		out = append(out, s)
	}
	return out
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
