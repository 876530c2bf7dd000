/**
 * Screen Capture Source
 *
 * Grabs the pixels of a Region from the active displays. Regions that do
 * not touch any display fail instead of returning a black image.
 */

package capture

import (
	"context"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"

	"github.com/adverant/nexus/furigana-worker/internal/geometry"
	"github.com/adverant/nexus/furigana-worker/internal/logging"
)

// Source produces an image of a screen region
type Source interface {
	Capture(ctx context.Context, region geometry.Region) (image.Image, error)
}

// Displays reports the bounds of the active displays.
type Displays func() []geometry.Rect

// ScreenCapture captures from the local display server
type ScreenCapture struct {
	displays Displays
	grab     func(image.Rectangle) (image.Image, error)
	logger   *logging.Logger
}

// NewScreenCapture creates a capture source backed by kbinani/screenshot
func NewScreenCapture() *ScreenCapture {
	return &ScreenCapture{
		displays: ActiveDisplays,
		grab: func(r image.Rectangle) (image.Image, error) {
			return screenshot.CaptureRect(r)
		},
		logger: logging.NewLogger("Capture"),
	}
}

// ActiveDisplays returns the bounds of every active display.
func ActiveDisplays() []geometry.Rect {
	n := screenshot.NumActiveDisplays()
	out := make([]geometry.Rect, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, geometry.FromImageRect(screenshot.GetDisplayBounds(i)))
	}
	return out
}

// Capture grabs region. ctx is checked before the grab; the grab itself is
// not interruptible, callers bound it with their own deadline.
func (c *ScreenCapture) Capture(ctx context.Context, region geometry.Region) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rect := region.Rect()
	if !OnScreen(rect, c.displays()) {
		return nil, fmt.Errorf("region %s does not intersect any active display", rect)
	}

	img, err := c.grab(rect.ImageRect())
	if err != nil {
		return nil, fmt.Errorf("screen grab failed: %w", err)
	}

	c.logger.Debug("Captured region", "region", rect.String(), "bounds", img.Bounds().String())
	return img, nil
}

// OnScreen reports whether rect overlaps at least one display.
func OnScreen(rect geometry.Rect, displays []geometry.Rect) bool {
	for _, d := range displays {
		if _, ok := rect.Intersect(d); ok {
			return true
		}
	}
	return false
}
