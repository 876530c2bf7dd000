package geometry

import (
	"encoding/json"
	"fmt"
)

// Region is the capture area in absolute screen coordinates. A Region is a
// value: re-selecting replaces it, nothing mutates it in place.
type Region struct {
	rect Rect
}

// NewRegion validates and builds a Region.
func NewRegion(x, y, width, height int) (Region, error) {
	if width <= 0 || height <= 0 {
		return Region{}, fmt.Errorf("region size must be positive, got %dx%d", width, height)
	}
	return Region{rect: Rect{X: x, Y: y, Width: width, Height: height}}, nil
}

// MustRegion is NewRegion for constant inputs; it panics on invalid sizes.
func MustRegion(x, y, width, height int) Region {
	r, err := NewRegion(x, y, width, height)
	if err != nil {
		panic(err)
	}
	return r
}

// Rect returns the region bounds.
func (r Region) Rect() Rect { return r.rect }

// Origin returns the top-left corner.
func (r Region) Origin() Point { return Point{X: r.rect.X, Y: r.rect.Y} }

// IsZero reports whether r is the unset Region.
func (r Region) IsZero() bool { return r.rect == Rect{} }

// ToAbsolute translates a rectangle relative to the captured image into
// screen coordinates.
func (r Region) ToAbsolute(rel Rect) Rect {
	return rel.Translate(r.rect.X, r.rect.Y)
}

// ToRelative translates a screen rectangle into image coordinates.
func (r Region) ToRelative(abs Rect) Rect {
	return abs.Translate(-r.rect.X, -r.rect.Y)
}

func (r Region) String() string { return r.rect.String() }

// MarshalJSON encodes the region as its rectangle.
func (r Region) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.rect)
}

// UnmarshalJSON decodes a rectangle and validates it as a region.
func (r *Region) UnmarshalJSON(data []byte) error {
	var rect Rect
	if err := json.Unmarshal(data, &rect); err != nil {
		return err
	}
	if rect == (Rect{}) {
		*r = Region{}
		return nil
	}
	parsed, err := NewRegion(rect.X, rect.Y, rect.Width, rect.Height)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
