package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"
	"os"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/adverant/nexus/furigana-worker/internal/annotation"
	"github.com/adverant/nexus/furigana-worker/internal/geometry"
)

const (
	highlightAlpha = 72
	readingGap     = 2
)

// Snapshotter draws annotation sets onto transparent images
type Snapshotter struct {
	face font.Face
}

// NewSnapshotter loads the TTF/OTF font at fontPath for reading text.
// An empty path uses basicfont, which has no kana glyphs but keeps layout.
func NewSnapshotter(fontPath string, size float64) (*Snapshotter, error) {
	if fontPath == "" {
		return &Snapshotter{face: basicfont.Face7x13}, nil
	}
	if size <= 0 {
		size = 14
	}

	data, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font %s: %w", fontPath, err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font %s: %w", fontPath, err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return &Snapshotter{face: face}, nil
}

// Palette returns n distinct highlight colors. The same n always yields
// the same colors.
func Palette(n int) []colorful.Color {
	out := make([]colorful.Color, n)
	for i := range out {
		hue := math.Mod(float64(i)*137.508, 360)
		out[i] = colorful.Hcl(hue, 0.55, 0.75).Clamped()
	}
	return out
}

// Draw renders set. The canvas covers the set's region plus a top margin
// for the readings of the first line; its origin is the region origin
// shifted up by that margin.
func (s *Snapshotter) Draw(set *annotation.Set) *image.RGBA {
	area := canvasArea(set)
	margin := s.face.Metrics().Height.Ceil() + readingGap
	img := image.NewRGBA(image.Rect(0, 0, area.Width, area.Height+margin))
	if set == nil {
		return img
	}

	offset := geometry.Point{X: -area.X, Y: margin - area.Y}
	palette := Palette(set.Len())

	for i, a := range set.Annotations {
		box := a.Box.Translate(offset.X, offset.Y).ImageRect()
		r, g, b := palette[i].RGB255()

		fill := color.NRGBA{R: r, G: g, B: b, A: highlightAlpha}
		draw.Draw(img, box, image.NewUniform(fill), image.Point{}, draw.Over)
		outline(img, box, color.NRGBA{R: r, G: g, B: b, A: 255})

		if a.HasFurigana() {
			s.drawReading(img, box, a.Reading, color.NRGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return img
}

// drawReading centers text above box.
func (s *Snapshotter) drawReading(img *image.RGBA, box image.Rectangle, text string, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: s.face,
	}
	width := d.MeasureString(text)
	center := fixed.I(box.Min.X + box.Dx()/2)
	d.Dot = fixed.Point26_6{
		X: center - width/2,
		Y: fixed.I(box.Min.Y-readingGap) - s.face.Metrics().Descent,
	}
	d.DrawString(text)
}

func outline(img *image.RGBA, r image.Rectangle, col color.Color) {
	if r.Empty() {
		return
	}
	src := image.NewUniform(col)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1),
		image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y),
		image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e, src, image.Point{}, draw.Src)
	}
}

func canvasArea(set *annotation.Set) geometry.Rect {
	if set == nil {
		return geometry.Rect{Width: 1, Height: 1}
	}
	if !set.Region.IsZero() {
		return set.Region.Rect()
	}
	boxes := make([]geometry.Rect, 0, set.Len())
	for _, a := range set.Annotations {
		boxes = append(boxes, a.Box)
	}
	if area := geometry.Union(boxes...); !area.Empty() {
		return area
	}
	return geometry.Rect{Width: 1, Height: 1}
}

// WritePNG encodes the drawing of set to w.
func (s *Snapshotter) WritePNG(w io.Writer, set *annotation.Set) error {
	if err := imaging.Encode(w, s.Draw(set), imaging.PNG); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// Save writes the drawing of set to path as PNG.
func (s *Snapshotter) Save(path string, set *annotation.Set) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot %s: %w", path, err)
	}
	if err := s.WritePNG(f, set); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
