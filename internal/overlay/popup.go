package overlay

import (
	"fmt"
	"strings"

	"github.com/adverant/nexus/furigana-worker/internal/annotation"
	"github.com/adverant/nexus/furigana-worker/internal/geometry"
)

// Popup layout, physical pixels
const (
	popupGap        = 12
	popupWidth      = 360
	popupPadding    = 8
	popupLineHeight = 20
)

// Popup is the detail card shown next to a hovered annotation
type Popup struct {
	Surface string
	Reading string
	Lines   []string
	Bounds  geometry.Rect
}

// NewPopup lays out the card to the right of a's box.
func NewPopup(a annotation.Annotation) Popup {
	p := Popup{Surface: a.Surface, Reading: a.Reading}
	for i, e := range a.Entries {
		head := e.Expression
		if e.Reading != "" && e.Reading != e.Expression {
			head = fmt.Sprintf("%s【%s】", e.Expression, e.Reading)
		}
		p.Lines = append(p.Lines, fmt.Sprintf("%d. %s %s", i+1, head, e.FormatGloss()))
	}
	if len(p.Lines) == 0 && a.Gloss != nil {
		p.Lines = append(p.Lines, *a.Gloss)
	}

	rows := 1 + len(p.Lines)
	p.Bounds = geometry.Rect{
		X:      a.Box.Right() + popupGap,
		Y:      a.Box.Y,
		Width:  popupWidth,
		Height: rows*popupLineHeight + 2*popupPadding,
	}
	return p
}

// Title is the first row: surface plus reading when there is one.
func (p Popup) Title() string {
	if p.Reading == "" {
		return p.Surface
	}
	return p.Surface + " (" + p.Reading + ")"
}

// String renders the card as plain text.
func (p Popup) String() string {
	var b strings.Builder
	b.WriteString(p.Title())
	for _, line := range p.Lines {
		b.WriteString("\n  ")
		b.WriteString(line)
	}
	return b.String()
}
