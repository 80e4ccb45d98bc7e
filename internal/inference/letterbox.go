package inference

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// Letterbox describes how a frame was fitted into a square model input.
type Letterbox struct {
	Scale  float64
	PadX   float64
	PadY   float64
	Size   int
	Canvas *image.RGBA
}

// NewLetterbox scales img to fit size x size keeping aspect ratio, padding
// with gray as YOLO exports expect.
func NewLetterbox(img image.Image, size int) *Letterbox {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	scale := min(float64(size)/w, float64(size)/h)
	nw, nh := int(w*scale), int(h*scale)
	padX, padY := (size-nw)/2, (size-nh)/2

	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.RGBA{R: 114, G: 114, B: 114, A: 255}}, image.Point{}, draw.Src)
	xdraw.BiLinear.Scale(canvas, image.Rect(padX, padY, padX+nw, padY+nh), img, b, xdraw.Over, nil)

	return &Letterbox{
		Scale:  scale,
		PadX:   float64(padX),
		PadY:   float64(padY),
		Size:   size,
		Canvas: canvas,
	}
}

// FillCHW writes normalized RGB values into dst in channel-first order.
func (l *Letterbox) FillCHW(dst []float32) {
	plane := l.Size * l.Size
	pix := l.Canvas.Pix
	for i := range plane {
		dst[i] = float32(pix[i*4]) / 255
		dst[plane+i] = float32(pix[i*4+1]) / 255
		dst[2*plane+i] = float32(pix[i*4+2]) / 255
	}
}

// FillHWC writes normalized RGB values into dst in channel-last order.
func (l *Letterbox) FillHWC(dst []float32) {
	plane := l.Size * l.Size
	pix := l.Canvas.Pix
	for i := range plane {
		dst[i*3] = float32(pix[i*4]) / 255
		dst[i*3+1] = float32(pix[i*4+1]) / 255
		dst[i*3+2] = float32(pix[i*4+2]) / 255
	}
}

// ToFrame maps a box in model input coordinates back to frame coordinates,
// clamped to the frame bounds.
func (l *Letterbox) ToFrame(box BBox, frame image.Rectangle) BBox {
	clamp := func(v, lo, hi float64) float64 { return max(lo, min(v, hi)) }
	fw, fh := float64(frame.Dx()), float64(frame.Dy())
	return BBox{
		X1: clamp((box.X1-l.PadX)/l.Scale, 0, fw),
		Y1: clamp((box.Y1-l.PadY)/l.Scale, 0, fh),
		X2: clamp((box.X2-l.PadX)/l.Scale, 0, fw),
		Y2: clamp((box.Y2-l.PadY)/l.Scale, 0, fh),
	}
}
