package recognition

import (
	"context"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adverant/nexus/furigana-worker/internal/geometry"
)

func span(text string, x, y, w, h int) RawSpan {
	return RawSpan{Text: text, Box: geometry.Rect{X: x, Y: y, Width: w, Height: h}, Confidence: 0.9}
}

func texts(spans []RawSpan) []string {
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Text
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReadingOrder(t *testing.T) {
	spans := []RawSpan{
		span("C", 10, 50, 20, 20), // second line
		span("B", 60, 12, 20, 20), // first line, slightly lower
		span("A", 10, 10, 20, 20),
		span("D", 60, 48, 20, 20),
	}

	got := texts(ReadingOrder(spans))
	want := []string{"A", "B", "C", "D"}
	if !equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestReadingOrderTieBrokenByTop(t *testing.T) {
	spans := []RawSpan{
		span("low", 10, 14, 20, 20),
		span("high", 10, 10, 20, 20),
	}
	got := texts(ReadingOrder(spans))
	if !equal(got, []string{"high", "low"}) {
		t.Errorf("order = %v", got)
	}
}

func TestGroupLinesTolerance(t *testing.T) {
	// median height 20, tolerance 10: a center 11px lower starts a new line
	spans := []RawSpan{
		span("a", 0, 0, 10, 20),
		span("b", 20, 11, 10, 20),
	}
	if n := len(GroupLines(spans)); n != 2 {
		t.Errorf("lines = %d, want 2", n)
	}
	spans[1].Box.Y = 10
	if n := len(GroupLines(spans)); n != 1 {
		t.Errorf("lines = %d, want 1", n)
	}
}

func TestMergeLines(t *testing.T) {
	lines := GroupLines([]RawSpan{
		span("日本", 0, 0, 40, 20),
		span("語", 45, 0, 20, 20),
		span("遠い", 200, 0, 40, 20), // gap larger than the line height
		span("next", 0, 40, 40, 20),
		span("line", 45, 40, 40, 20),
	})

	got := MergeLines(lines)
	want := []string{"日本語", "遠い", "next line"}
	if !equal(texts(got), want) {
		t.Fatalf("merged = %v, want %v", texts(got), want)
	}
	if got[0].Box != (geometry.Rect{X: 0, Y: 0, Width: 65, Height: 20}) {
		t.Errorf("merged box = %v", got[0].Box)
	}
}

func TestCleanDropsEmptyAndClamps(t *testing.T) {
	bounds := geometry.Rect{Width: 100, Height: 50}
	got := clean([]RawSpan{
		{Text: "  ", Box: geometry.Rect{Width: 10, Height: 10}},
		{Text: "x", Box: geometry.Rect{X: 90, Y: 40, Width: 30, Height: 30}, Confidence: 1.7},
		{Text: "gone", Box: geometry.Rect{X: 200, Y: 200, Width: 5, Height: 5}},
	}, bounds)

	if len(got) != 1 {
		t.Fatalf("spans = %v", got)
	}
	if got[0].Box != (geometry.Rect{X: 90, Y: 40, Width: 10, Height: 10}) {
		t.Errorf("box = %v", got[0].Box)
	}
	if got[0].Confidence != 1 {
		t.Errorf("confidence = %v", got[0].Confidence)
	}
}

func TestPreprocessorMapBack(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 40))
	prepared := Preprocessor{Scale: 2, Threshold: 128}.Apply(img)

	if b := prepared.Image.Bounds(); b.Dx() != 200 || b.Dy() != 80 {
		t.Fatalf("scaled bounds = %v", b)
	}
	if _, ok := prepared.Image.(*image.Gray); !ok {
		t.Errorf("binarized image type = %T, want *image.Gray", prepared.Image)
	}

	got := prepared.MapBack(geometry.Rect{X: 20, Y: 10, Width: 41, Height: 20})
	want := geometry.Rect{X: 10, Y: 5, Width: 21, Height: 10}
	if got != want {
		t.Errorf("MapBack = %v, want %v", got, want)
	}

	clamped := prepared.MapBack(geometry.Rect{X: 190, Y: 70, Width: 40, Height: 40})
	if clamped.Right() > 100 || clamped.Bottom() > 40 {
		t.Errorf("MapBack should clamp, got %v", clamped)
	}
}

func TestNewUnknownEngine(t *testing.T) {
	if _, err := New("easyocr", Options{}); err == nil {
		t.Error("expected error for unknown engine")
	}
	src, err := New("Tesseract", Options{})
	if err != nil || src.Name() != "tesseract" {
		t.Errorf("New(tesseract) = %v, %v", src, err)
	}
}

func TestPaddleSourceRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// detections on the 2x image, second line listed first
		w.Write([]byte(`{"status":"000","results":[[
			{"text":"下","confidence":0.8,"text_region":[[0,60],[40,60],[40,100],[0,100]]},
			{"text":"上","confidence":0.9,"text_region":[[0,0],[40,0],[40,40],[0,40]]}
		]]}`))
	}))
	defer srv.Close()

	img := image.NewRGBA(image.Rect(0, 0, 60, 60))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.Black)

	src := NewPaddleSource(srv.URL, Preprocessor{Scale: 2})
	spans, err := src.Recognize(context.Background(), img)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if !equal(texts(spans), []string{"上", "下"}) {
		t.Fatalf("spans = %v", texts(spans))
	}
	if spans[1].Box != (geometry.Rect{X: 0, Y: 30, Width: 20, Height: 20}) {
		t.Errorf("box = %v", spans[1].Box)
	}
}
