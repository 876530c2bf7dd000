package enrich

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/adverant/nexus/furigana-worker/internal/geometry"
)

// piece is a morpheme aligned to rune offsets of the span text
type piece struct {
	Morpheme
	start, end int
}

// align places morphemes onto text in order. Text the tokenizer skipped
// becomes gap pieces, so the pieces cover text exactly once.
func align(text string, morphemes []Morpheme) []piece {
	var out []piece
	byteCursor, runeCursor := 0, 0

	emitGap := func(upto int) {
		if upto <= byteCursor {
			return
		}
		gap := text[byteCursor:upto]
		n := utf8.RuneCountInString(gap)
		out = append(out, piece{Morpheme: Morpheme{Surface: gap}, start: runeCursor, end: runeCursor + n})
		byteCursor = upto
		runeCursor += n
	}

	for _, m := range morphemes {
		if m.Surface == "" {
			continue
		}
		idx := strings.Index(text[byteCursor:], m.Surface)
		if idx < 0 {
			continue
		}
		emitGap(byteCursor + idx)
		n := utf8.RuneCountInString(m.Surface)
		out = append(out, piece{Morpheme: m, start: runeCursor, end: runeCursor + n})
		byteCursor += len(m.Surface)
		runeCursor += n
	}
	emitGap(len(text))
	return out
}

func visibleRunes(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// splitBox divides box among weights along its major axis: horizontal when
// width >= height, vertical otherwise. Each part keeps at least 1px and
// stays inside box.
func splitBox(box geometry.Rect, weights []int) []geometry.Rect {
	out := make([]geometry.Rect, len(weights))
	total := 0
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		for i := range out {
			out[i] = box
		}
		return out
	}

	horizontal := box.Width >= box.Height
	length := box.Height
	origin := box.Y
	if horizontal {
		length = box.Width
		origin = box.X
	}
	limit := origin + length

	cum := 0
	for i, w := range weights {
		start := origin + int(math.Round(float64(length)*float64(cum)/float64(total)))
		cum += w
		end := origin + int(math.Round(float64(length)*float64(cum)/float64(total)))
		if start > limit-1 {
			start = limit - 1
		}
		if end <= start {
			end = start + 1
		}
		if end > limit {
			end = limit
		}
		if horizontal {
			out[i] = geometry.Rect{X: start, Y: box.Y, Width: end - start, Height: box.Height}
		} else {
			out[i] = geometry.Rect{X: box.X, Y: start, Width: box.Width, Height: end - start}
		}
	}
	return out
}
