/**
 * Overlay Layer - the visible annotation surface
 *
 * Holds the set last rendered, answers hit queries for pointer input and
 * tracks which annotation is hovered. Boxes are physical screen pixels;
 * pointer coordinates are logical and get scaled by the device pixel ratio.
 */

package overlay

import (
	"sync"
	"sync/atomic"

	"github.com/adverant/nexus/furigana-worker/internal/annotation"
	"github.com/adverant/nexus/furigana-worker/internal/geometry"
	"github.com/adverant/nexus/furigana-worker/internal/logging"
)

// HoverListener receives hover transitions
type HoverListener interface {
	HoverEnter(a annotation.Annotation)
	HoverExit(a annotation.Annotation)
}

// Layer is safe for concurrent use. Render is called from the pipeline
// loop; QueryHit and Hover come from the input loop.
type Layer struct {
	current atomic.Pointer[annotation.Set]
	ratio   float64
	renders atomic.Int64

	mu       sync.Mutex
	listener HoverListener
	hovered  *hoverState

	logger *logging.Logger
}

type hoverState struct {
	cycleID uint64
	index   int
	ann     annotation.Annotation
}

// NewLayer creates an empty layer. A ratio <= 0 is treated as 1.
func NewLayer(sessionID string, devicePixelRatio float64) *Layer {
	if devicePixelRatio <= 0 {
		devicePixelRatio = 1
	}
	l := &Layer{ratio: devicePixelRatio, logger: logging.NewLogger("Overlay")}
	l.current.Store(annotation.Empty(sessionID))
	return l
}

// SetHoverListener installs the listener for hover transitions.
func (l *Layer) SetHoverListener(h HoverListener) {
	l.mu.Lock()
	l.listener = h
	l.mu.Unlock()
}

// Render replaces the visible set. Rendering the set already shown is a no-op.
func (l *Layer) Render(set *annotation.Set) {
	if set == nil {
		return
	}
	if l.current.Load().Same(set) {
		return
	}
	l.current.Store(set)
	l.renders.Add(1)
	l.logger.Debug("Rendered", "cycle", set.CycleID, "annotations", set.Len())

	// The hovered annotation belongs to the old set
	l.mu.Lock()
	prev, listener := l.hovered, l.listener
	l.hovered = nil
	l.mu.Unlock()
	if prev != nil && listener != nil {
		listener.HoverExit(prev.ann)
	}
}

// Current returns the set on screen.
func (l *Layer) Current() *annotation.Set {
	return l.current.Load()
}

// Renders counts effective renders.
func (l *Layer) Renders() int64 {
	return l.renders.Load()
}

// QueryHit returns the annotation under the logical point p, or nil.
// Later annotations win on overlap.
func (l *Layer) QueryHit(p geometry.Point) *annotation.Annotation {
	set := l.current.Load()
	_, a := hit(set, l.toPhysical(p))
	return a
}

func hit(set *annotation.Set, p geometry.Point) (int, *annotation.Annotation) {
	if set == nil {
		return -1, nil
	}
	for i := len(set.Annotations) - 1; i >= 0; i-- {
		if set.Annotations[i].Box.Contains(p) {
			a := set.Annotations[i]
			return i, &a
		}
	}
	return -1, nil
}

func (l *Layer) toPhysical(p geometry.Point) geometry.Point {
	if l.ratio == 1 {
		return p
	}
	return geometry.Point{
		X: int(float64(p.X) * l.ratio),
		Y: int(float64(p.Y) * l.ratio),
	}
}

// Hover moves the pointer to p and returns the popup for the hovered
// annotation, or nil when nothing is under the pointer.
func (l *Layer) Hover(p geometry.Point) *Popup {
	set := l.current.Load()
	idx, a := hit(set, l.toPhysical(p))

	l.mu.Lock()
	prev := l.hovered
	var next *hoverState
	if a != nil {
		next = &hoverState{cycleID: set.CycleID, index: idx, ann: *a}
	}
	same := prev != nil && next != nil && prev.cycleID == next.cycleID && prev.index == next.index
	if !same {
		l.hovered = next
	}
	listener := l.listener
	l.mu.Unlock()

	if !same && listener != nil {
		if prev != nil {
			listener.HoverExit(prev.ann)
		}
		if next != nil {
			listener.HoverEnter(next.ann)
		}
	}

	if next == nil {
		return nil
	}
	popup := NewPopup(next.ann)
	return &popup
}

// Hovered returns the hovered annotation, if any.
func (l *Layer) Hovered() *annotation.Annotation {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hovered == nil {
		return nil
	}
	a := l.hovered.ann
	return &a
}

// MaskRegions returns the popup rectangle so capture can blank it out.
func (l *Layer) MaskRegions() []geometry.Rect {
	a := l.Hovered()
	if a == nil {
		return nil
	}
	return []geometry.Rect{NewPopup(*a).Bounds}
}
