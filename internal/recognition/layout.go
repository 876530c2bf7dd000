package recognition

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/adverant/nexus/furigana-worker/internal/geometry"
)

// medianHeight returns the median box height of spans.
func medianHeight(spans []RawSpan) float64 {
	if len(spans) == 0 {
		return 0
	}
	heights := make([]float64, len(spans))
	for i, s := range spans {
		heights[i] = float64(s.Box.Height)
	}
	sort.Float64s(heights)
	return stat.Quantile(0.5, stat.Empirical, heights, nil)
}

// GroupLines splits spans into visual lines. A span belongs to a line when
// its vertical center lies within half the median span height of the
// line's first span. Lines are ordered top to bottom and spans within a
// line left to right, ties broken by top.
func GroupLines(spans []RawSpan) [][]RawSpan {
	if len(spans) == 0 {
		return nil
	}

	sorted := make([]RawSpan, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Box.Y != sorted[j].Box.Y {
			return sorted[i].Box.Y < sorted[j].Box.Y
		}
		return sorted[i].Box.X < sorted[j].Box.X
	})

	tolerance := medianHeight(sorted) / 2
	var lines [][]RawSpan
	for _, s := range sorted {
		placed := false
		for i := range lines {
			d := s.Box.CenterY() - lines[i][0].Box.CenterY()
			if d < 0 {
				d = -d
			}
			if d <= tolerance {
				lines[i] = append(lines[i], s)
				placed = true
				break
			}
		}
		if !placed {
			lines = append(lines, []RawSpan{s})
		}
	}

	for _, line := range lines {
		sort.SliceStable(line, func(i, j int) bool {
			if line[i].Box.X != line[j].Box.X {
				return line[i].Box.X < line[j].Box.X
			}
			return line[i].Box.Y < line[j].Box.Y
		})
	}
	return lines
}

// ReadingOrder flattens GroupLines.
func ReadingOrder(spans []RawSpan) []RawSpan {
	out := make([]RawSpan, 0, len(spans))
	for _, line := range GroupLines(spans) {
		out = append(out, line...)
	}
	return out
}

// MergeLines joins horizontally adjacent spans of the same line into one
// span. Two neighbours merge when the gap between them is at most the
// line's median height. Japanese text carries no inter-word spaces, so
// texts are concatenated directly unless both sides are ASCII words.
func MergeLines(lines [][]RawSpan) []RawSpan {
	var out []RawSpan
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		maxGap := int(medianHeight(line))
		cur := line[0]
		weight := float64(len([]rune(cur.Text)))
		confSum := cur.Confidence * weight
		for _, next := range line[1:] {
			if next.Box.X-cur.Box.Right() > maxGap {
				cur.Confidence = confSum / weight
				out = append(out, cur)
				cur = next
				weight = float64(len([]rune(cur.Text)))
				confSum = cur.Confidence * weight
				continue
			}
			cur.Text = joinText(cur.Text, next.Text)
			cur.Box = geometry.Union(cur.Box, next.Box)
			n := float64(len([]rune(next.Text)))
			confSum += next.Confidence * n
			weight += n
		}
		if weight > 0 {
			cur.Confidence = confSum / weight
		}
		out = append(out, cur)
	}
	return out
}

func joinText(a, b string) string {
	if isASCIIWord(lastRune(a)) && isASCIIWord(firstRune(b)) {
		return a + " " + b
	}
	return a + b
}

func isASCIIWord(r rune) bool {
	return r < 0x80 && (r == '_' || ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z'))
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) == 0 {
		return 0
	}
	return r[len(r)-1]
}
