// Package classifier turns raw detections into domain events. Each
// detection kind maps statically to one rule.
package classifier

import (
	"fmt"
	"slices"
	"strings"

	"github.com/yardwatch/yardwatch/internal/inference"
)

// DefaultConfidence applies when no recording, zone or plant threshold is set.
const DefaultConfidence = 0.75

// Kind selects the rule applied to a recording's detections.
type Kind int

const (
	KindPPE Kind = iota
	KindPalletDefect
	KindProximity
)

func (k Kind) String() string {
	switch k {
	case KindPPE:
		return "ppe"
	case KindPalletDefect:
		return "pallet"
	case KindProximity:
		return "proximity"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses the kind stored on a detection type.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ppe":
		return KindPPE, nil
	case "pallet", "pallet_defect":
		return KindPalletDefect, nil
	case "proximity":
		return KindProximity, nil
	default:
		return 0, fmt.Errorf("unknown detection kind %q", s)
	}
}

// Rules is the per-job context a classifier evaluates against.
type Rules struct {
	Threshold float64  // resolved confidence threshold, inclusive
	Required  []string // PPE checklist, lower-cased
}

// Classifier maps detections to a Result.
type Classifier interface {
	Classify(dets []inference.Detection, rules Rules) Result
}

// Params configure the classifiers.
type Params struct {
	Subject            string   // PPE and proximity subject class
	Hazard             string   // proximity hazard class
	DefectClasses      []string // pallet defect classes
	ProximityThreshold float64  // center distance in pixels
}

// DefaultParams returns the stock class names and distances.
func DefaultParams() Params {
	return Params{
		Subject:            "person",
		Hazard:             "forklift",
		DefectClasses:      []string{"pallet_bad", "Pallets_bad"},
		ProximityThreshold: 350,
	}
}

// ForKind returns the classifier for a detection kind.
func ForKind(kind Kind, p Params) (Classifier, error) {
	switch kind {
	case KindPPE:
		return &PPE{Subject: p.Subject}, nil
	case KindPalletDefect:
		return &PalletDefect{Classes: p.DefectClasses}, nil
	case KindProximity:
		return &Proximity{Subject: p.Subject, Hazard: p.Hazard, Threshold: p.ProximityThreshold}, nil
	default:
		return nil, fmt.Errorf("no classifier for %s", kind)
	}
}

// ResolveThreshold picks the first configured value in priority order:
// recording, zone, plant, then fallback. Nil means unset; an explicit 0 is
// a valid threshold.
func ResolveThreshold(recording, zone, plant *float64, fallback float64) float64 {
	for _, v := range []*float64{recording, zone, plant} {
		if v != nil {
			return *v
		}
	}
	return fallback
}

// Qualifying returns detections at or above threshold.
func Qualifying(dets []inference.Detection, threshold float64) []inference.Detection {
	out := make([]inference.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// PPE reports required items missing while a subject is in frame.
type PPE struct {
	Subject string
}

func (c *PPE) Classify(dets []inference.Detection, rules Rules) Result {
	detected := make(map[string]struct{})
	for _, d := range Qualifying(dets, rules.Threshold) {
		detected[strings.ToLower(d.Class)] = struct{}{}
	}

	// a missing item is meaningless without a person in frame
	if _, ok := detected[strings.ToLower(c.Subject)]; !ok {
		return NoEvent{}
	}

	var missing []string
	for _, item := range rules.Required {
		if _, ok := detected[strings.ToLower(item)]; !ok {
			missing = append(missing, item)
		}
	}
	if len(missing) == 0 {
		return NoEvent{}
	}
	return NewMissingItems(missing)
}

// PalletDefect flags the strongest qualifying defect detection.
type PalletDefect struct {
	Classes []string
}

func (c *PalletDefect) Classify(dets []inference.Detection, rules Rules) Result {
	var best *inference.Detection
	for i := range dets {
		d := &dets[i]
		if d.Confidence < rules.Threshold || !slices.ContainsFunc(c.Classes, func(name string) bool {
			return strings.EqualFold(name, d.Class)
		}) {
			continue
		}
		if best == nil || d.Confidence > best.Confidence {
			best = d
		}
	}
	if best == nil {
		return NoEvent{}
	}
	return DefectFlag{Class: best.Class, Confidence: best.Confidence, BBox: best.Box}
}

// Proximity fires when a subject box center is closer than Threshold to a
// hazard box center. The first qualifying pair wins.
type Proximity struct {
	Subject   string
	Hazard    string
	Threshold float64
}

func (c *Proximity) Classify(dets []inference.Detection, rules Rules) Result {
	var subjects, hazards []inference.BBox
	var classes []string
	for _, d := range Qualifying(dets, rules.Threshold) {
		classes = append(classes, d.Class)
		switch {
		case strings.EqualFold(d.Class, c.Subject):
			subjects = append(subjects, d.Box)
		case strings.EqualFold(d.Class, c.Hazard):
			hazards = append(hazards, d.Box)
		}
	}

	for _, s := range subjects {
		for _, h := range hazards {
			if dist := inference.CenterDistance(s, h); dist < c.Threshold {
				slices.Sort(classes)
				return ProximityEvent{
					Classes:  slices.Compact(classes),
					Distance: dist,
					Subject:  s,
					Hazard:   h,
				}
			}
		}
	}
	return NoEvent{}
}
