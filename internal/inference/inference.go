// Package inference defines the detector contract used by the detection
// loop and model-independent post-processing. Model runtimes live in
// subpackages.
package inference

import (
	"context"
	"fmt"
	"image"
	"math"
	"slices"

	"github.com/yardwatch/yardwatch/internal/errors"
)

// BBox is an axis-aligned box in frame pixel coordinates.
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// Center returns the box midpoint.
func (b BBox) Center() (x, y float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

func (b BBox) Area() float64 {
	return math.Max(0, b.X2-b.X1) * math.Max(0, b.Y2-b.Y1)
}

// IoU returns intersection over union of two boxes.
func (b BBox) IoU(o BBox) float64 {
	ix := math.Max(0, math.Min(b.X2, o.X2)-math.Max(b.X1, o.X1))
	iy := math.Max(0, math.Min(b.Y2, o.Y2)-math.Max(b.Y1, o.Y1))
	inter := ix * iy
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// String renders the box as "[x1, y1, x2, y2]" with two decimals. This
// is the stored incident bbox format.
func (b BBox) String() string {
	return fmt.Sprintf("[%.2f, %.2f, %.2f, %.2f]", b.X1, b.Y1, b.X2, b.Y2)
}

// CenterDistance is the Euclidean distance between two box centers.
func CenterDistance(a, b BBox) float64 {
	ax, ay := a.Center()
	bx, by := b.Center()
	return math.Hypot(ax-bx, ay-by)
}

// Detection is one raw model output.
type Detection struct {
	Class      string
	Confidence float64 // 0..1
	Box        BBox
}

// Detector runs a loaded model on frames. Model state is loaded once and
// reused for every frame of a job. Detect applies no rule thresholds.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
	Name() string
	Close() error
}

// FloorLowerer is implemented by detectors with a candidate floor. A job
// whose threshold sits below the floor lowers it so those detections reach
// the rules.
type FloorLowerer interface {
	LowerFloor(threshold float64)
}

// Loader opens a Detector for a model file.
type Loader interface {
	Load(ctx context.Context, modelPath string) (Detector, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, modelPath string) (Detector, error)

func (f LoaderFunc) Load(ctx context.Context, modelPath string) (Detector, error) {
	return f(ctx, modelPath)
}

// NewInferenceError wraps a model invocation failure.
func NewInferenceError(err error, model string) error {
	return errors.New(err).
		Component("inference").
		Category(errors.CategoryInference).
		Context("model", model).
		Build()
}

// NonMaxSuppression keeps the highest-scoring box among overlapping boxes
// of the same class. Boxes overlapping a kept box by more than iouThreshold
// are dropped. The result is ordered by descending confidence.
func NonMaxSuppression(dets []Detection, iouThreshold float64) []Detection {
	sorted := slices.Clone(dets)
	slices.SortStableFunc(sorted, func(a, b Detection) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})

	kept := make([]Detection, 0, len(sorted))
	for _, d := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.Class == d.Class && k.Box.IoU(d.Box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}
