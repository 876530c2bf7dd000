package capture

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/adverant/nexus/furigana-worker/internal/geometry"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func testCapture(displays ...geometry.Rect) (*ScreenCapture, *int) {
	grabs := 0
	c := NewScreenCapture()
	c.displays = func() []geometry.Rect { return displays }
	c.grab = func(r image.Rectangle) (image.Image, error) {
		grabs++
		return solid(r.Dx(), r.Dy(), color.Black), nil
	}
	return c, &grabs
}

func TestCaptureRejectsOffScreenRegion(t *testing.T) {
	c, grabs := testCapture(geometry.Rect{Width: 1920, Height: 1080})

	_, err := c.Capture(context.Background(), geometry.MustRegion(5000, 5000, 100, 100))
	if err == nil {
		t.Fatal("expected error for off-screen region")
	}
	if *grabs != 0 {
		t.Error("grab should not run for off-screen regions")
	}
}

func TestCaptureOnSecondDisplay(t *testing.T) {
	c, _ := testCapture(
		geometry.Rect{Width: 1920, Height: 1080},
		geometry.Rect{X: 1920, Width: 1280, Height: 1024},
	)

	img, err := c.Capture(context.Background(), geometry.MustRegion(2000, 10, 300, 40))
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if img.Bounds().Dx() != 300 || img.Bounds().Dy() != 40 {
		t.Errorf("bounds = %v", img.Bounds())
	}
}

func TestCaptureHonorsCancelledContext(t *testing.T) {
	c, grabs := testCapture(geometry.Rect{Width: 100, Height: 100})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Capture(ctx, geometry.MustRegion(0, 0, 10, 10)); err == nil {
		t.Fatal("expected context error")
	}
	if *grabs != 0 {
		t.Error("cancelled capture should not grab")
	}
}

func TestIntersectRegions(t *testing.T) {
	region := geometry.MustRegion(100, 100, 200, 100)
	masks := []geometry.Rect{
		{X: 250, Y: 150, Width: 100, Height: 100}, // overlaps bottom-right corner
		{X: 0, Y: 0, Width: 50, Height: 50},       // outside
	}

	got := IntersectRegions(region, masks)
	if len(got) != 1 {
		t.Fatalf("got %d masks, want 1", len(got))
	}
	want := geometry.Rect{X: 150, Y: 50, Width: 50, Height: 50}
	if got[0] != want {
		t.Errorf("mask = %v, want %v", got[0], want)
	}
}

type staticMasks []geometry.Rect

func (s staticMasks) MaskRegions() []geometry.Rect { return s }

func TestMaskedSourceWhitensPopup(t *testing.T) {
	c, _ := testCapture(geometry.Rect{Width: 1000, Height: 1000})
	src := WithMasks(c, staticMasks{{X: 10, Y: 10, Width: 5, Height: 5}})

	img, err := src.Capture(context.Background(), geometry.MustRegion(0, 0, 20, 20))
	if err != nil {
		t.Fatal(err)
	}

	r, g, b, _ := img.At(12, 12).RGBA()
	if r != 0xffff || g != 0xffff || b != 0xffff {
		t.Errorf("masked pixel = %v,%v,%v, want white", r, g, b)
	}
	r, _, _, _ = img.At(2, 2).RGBA()
	if r != 0 {
		t.Error("unmasked pixel should stay black")
	}
}

func TestWithMasksNilProvider(t *testing.T) {
	c, _ := testCapture()
	if WithMasks(c, nil) != Source(c) {
		t.Error("nil provider should return the source unchanged")
	}
}
