package classifier

import (
	"slices"
	"strings"

	"github.com/yardwatch/yardwatch/internal/inference"
)

// ProximityEventKey is the single event channel for proximity incidents.
const ProximityEventKey = "person_forklift_proximity"

// Result is the outcome of classifying one frame. It is one of NoEvent,
// MissingItems, DefectFlag or ProximityEvent.
type Result interface {
	// IsEvent reports whether the result should be considered for persistence.
	IsEvent() bool
	// EventKey identifies equivalent events for debouncing.
	EventKey() string
	// Score is the stored confidence; 0 for set-valued and proximity events.
	Score() float64
	// Box is the stored bounding box, nil when the event has none.
	Box() *inference.BBox
}

// NoEvent means nothing qualifying was found.
type NoEvent struct{}

func (NoEvent) IsEvent() bool        { return false }
func (NoEvent) EventKey() string     { return "" }
func (NoEvent) Score() float64       { return 0 }
func (NoEvent) Box() *inference.BBox { return nil }

// MissingItems lists required PPE items not seen on a person. Names are
// sorted and unique.
type MissingItems struct {
	Names []string
}

func NewMissingItems(names []string) MissingItems {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	return MissingItems{Names: slices.Compact(sorted)}
}

func (MissingItems) IsEvent() bool        { return true }
func (m MissingItems) EventKey() string   { return strings.Join(m.Names, ",") }
func (MissingItems) Score() float64       { return 0 }
func (MissingItems) Box() *inference.BBox { return nil }

// DefectFlag is a damaged pallet detection.
type DefectFlag struct {
	Class      string
	Confidence float64
	BBox       inference.BBox
}

func (DefectFlag) IsEvent() bool      { return true }
func (d DefectFlag) EventKey() string { return d.Class }
func (d DefectFlag) Score() float64   { return d.Confidence }
func (d DefectFlag) Box() *inference.BBox {
	b := d.BBox
	return &b
}

// ProximityEvent is a subject within the distance threshold of a hazard.
type ProximityEvent struct {
	Classes  []string // qualifying classes seen in the frame
	Distance float64
	Subject  inference.BBox
	Hazard   inference.BBox
}

func (ProximityEvent) IsEvent() bool        { return true }
func (ProximityEvent) EventKey() string     { return ProximityEventKey }
func (ProximityEvent) Score() float64       { return 0 }
func (ProximityEvent) Box() *inference.BBox { return nil }
