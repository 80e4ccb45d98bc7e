package inference

import "fmt"

// YOLOOutput describes a YOLOv8-style detection head: per candidate
// cx, cy, w, h followed by one score per class.
type YOLOOutput struct {
	Data       []float32
	NumClasses int
	NumBoxes   int
	// ChannelMajor is true for the [1, 4+C, N] layout, false for [1, N, 4+C].
	ChannelMajor bool
	// Normalized is true when coordinates are 0..1 instead of input pixels.
	Normalized bool
	InputSize  int
}

// ParseYOLOShape derives the layout from the output tensor dimensions.
func ParseYOLOShape(dims []int, numClasses int) (numBoxes int, channelMajor bool, err error) {
	if len(dims) != 3 || dims[0] != 1 {
		return 0, false, fmt.Errorf("unexpected output shape %v", dims)
	}
	attrs := 4 + numClasses
	switch {
	case dims[1] == attrs:
		return dims[2], true, nil
	case dims[2] == attrs:
		return dims[1], false, nil
	default:
		return 0, false, fmt.Errorf("output shape %v does not match %d labels", dims, numClasses)
	}
}

func (o *YOLOOutput) at(box, attr int) float32 {
	if o.ChannelMajor {
		return o.Data[attr*o.NumBoxes+box]
	}
	return o.Data[box*(4+o.NumClasses)+attr]
}

// Decode returns the best class per candidate scoring at least floor, with
// boxes in model input pixel coordinates.
func (o *YOLOOutput) Decode(labels []string, floor float64) []Detection {
	scale := float32(1)
	if o.Normalized {
		scale = float32(o.InputSize)
	}

	var out []Detection
	for i := range o.NumBoxes {
		best, bestScore := -1, float32(0)
		for c := range o.NumClasses {
			if s := o.at(i, 4+c); s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 || float64(bestScore) < floor {
			continue
		}

		cx, cy := o.at(i, 0)*scale, o.at(i, 1)*scale
		w, h := o.at(i, 2)*scale, o.at(i, 3)*scale
		class := fmt.Sprintf("class_%d", best)
		if best < len(labels) {
			class = labels[best]
		}
		out = append(out, Detection{
			Class:      class,
			Confidence: float64(bestScore),
			Box: BBox{
				X1: float64(cx - w/2),
				Y1: float64(cy - h/2),
				X2: float64(cx + w/2),
				Y2: float64(cy + h/2),
			},
		})
	}
	return out
}
