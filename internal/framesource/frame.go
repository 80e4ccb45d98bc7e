// Package framesource opens cameras, video files and local capture devices
// and yields decoded frames normalized to a fixed size.
package framesource

import (
	"image"
	"time"

	xdraw "golang.org/x/image/draw"
)

// Default frame geometry.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// Frame is one decoded image from a source.
type Frame struct {
	Image     *image.RGBA // normalized to the configured size
	JPEG      []byte      // encoded bytes as emitted by the source
	Seq       uint64
	Timestamp time.Time // UTC
	Width     int
	Height    int
}

// Normalize scales img to width x height with bilinear interpolation and
// returns an RGBA copy. An RGBA image already at the target size is
// returned as is.
func Normalize(img image.Image, width, height int) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds() == image.Rect(0, 0, width, height) {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}
