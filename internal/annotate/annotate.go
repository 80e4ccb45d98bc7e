// Package annotate draws detection boxes on frames and encodes them as JPEG.
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/yardwatch/yardwatch/internal/inference"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 90

const (
	lineWidth    = 2
	labelPadding = 2
)

var (
	boxColor   = color.RGBA{R: 0, G: 220, B: 0, A: 255}
	labelColor = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

// Label formats a detection caption, e.g. "helmet 0.85".
func Label(d inference.Detection) string {
	return fmt.Sprintf("%s %.2f", d.Class, d.Confidence)
}

// Draw returns a copy of img with a rectangle and caption per detection.
// The source image is left untouched.
func Draw(img image.Image, dets []inference.Detection) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)

	face := basicfont.Face7x13
	for _, d := range dets {
		r := image.Rect(int(d.Box.X1), int(d.Box.Y1), int(d.Box.X2), int(d.Box.Y2)).Intersect(b)
		if r.Empty() {
			continue
		}
		strokeRect(dst, r, boxColor)
		drawLabel(dst, face, r.Min, Label(d))
	}
	return dst
}

func strokeRect(dst *image.RGBA, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+lineWidth),
		image.Rect(r.Min.X, r.Max.Y-lineWidth, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+lineWidth, r.Max.Y),
		image.Rect(r.Max.X-lineWidth, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

// drawLabel writes text on a filled band above at, or inside the box when
// there is no room above.
func drawLabel(dst *image.RGBA, face font.Face, at image.Point, text string) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(labelColor), Face: face}
	width := d.MeasureString(text).Ceil()
	metrics := face.Metrics()
	height := (metrics.Ascent + metrics.Descent).Ceil()

	top := at.Y - height - 2*labelPadding
	if top < dst.Bounds().Min.Y {
		top = at.Y
	}
	band := image.Rect(at.X, top, at.X+width+2*labelPadding, top+height+2*labelPadding).Intersect(dst.Bounds())
	draw.Draw(dst, band, image.NewUniform(boxColor), image.Point{}, draw.Src)

	d.Dot = fixed.P(at.X+labelPadding, top+labelPadding+metrics.Ascent.Ceil())
	d.DrawString(text)
}

// Encode writes img as JPEG at quality (1-100; out of range uses DefaultQuality).
func Encode(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
