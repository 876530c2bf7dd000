/**
 * Tesseract Recognition - local OCR through gosseract
 */

package recognition

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/furigana-worker/internal/geometry"
	"github.com/adverant/nexus/furigana-worker/internal/logging"
)

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Language       string
	PageSegMode    int
	TessdataPrefix string
	MergeWords     bool
}

// TesseractSource recognizes text with a fresh gosseract client per call
type TesseractSource struct {
	cfg    TesseractConfig
	pre    Preprocessor
	logger *logging.Logger
}

// NewTesseractSource creates a Tesseract-backed source
func NewTesseractSource(cfg TesseractConfig, pre Preprocessor) *TesseractSource {
	if cfg.Language == "" {
		cfg.Language = "jpn"
	}
	if cfg.PageSegMode == 0 {
		cfg.PageSegMode = int(gosseract.PSM_SINGLE_BLOCK)
	}
	return &TesseractSource{cfg: cfg, pre: pre, logger: logging.NewLogger("Tesseract")}
}

// Name returns the engine name.
func (t *TesseractSource) Name() string { return "tesseract" }

// Recognize runs word-level OCR. The cgo call cannot be interrupted; ctx
// is honoured before it starts.
func (t *TesseractSource) Recognize(ctx context.Context, img image.Image) ([]RawSpan, error) {
	startTime := time.Now()

	prepared := t.pre.Apply(img)
	data, err := prepared.PNG()
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if t.cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.cfg.TessdataPrefix); err != nil {
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(t.cfg.Language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(t.cfg.PageSegMode)); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	spans := make([]RawSpan, 0, len(boxes))
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		spans = append(spans, RawSpan{
			Text:       box.Word,
			Box:        prepared.MapBack(geometry.FromImageRect(box.Box)),
			Confidence: box.Confidence / 100.0,
		})
	}
	spans = clean(spans, prepared.Bounds())

	var ordered []RawSpan
	if t.cfg.MergeWords {
		ordered = MergeLines(GroupLines(spans))
	} else {
		ordered = ReadingOrder(spans)
	}

	t.logger.Debug("Tesseract recognition complete",
		"words", len(boxes),
		"spans", len(ordered),
		"duration", time.Since(startTime).String())

	return ordered, nil
}
