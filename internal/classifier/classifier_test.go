package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yardwatch/yardwatch/internal/inference"
)

func ptr(v float64) *float64 { return &v }

// boxAt returns a 20x20 box centered on (x, y).
func boxAt(x, y float64) inference.BBox {
	return inference.BBox{X1: x - 10, Y1: y - 10, X2: x + 10, Y2: y + 10}
}

func TestResolveThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                   string
		recording, zone, plant *float64
		want                   float64
	}{
		{"zone over plant", nil, ptr(0.6), ptr(0.5), 0.6},
		{"all unset", nil, nil, nil, DefaultConfidence},
		{"recording wins", ptr(0.9), ptr(0.6), ptr(0.5), 0.9},
		{"plant only", nil, nil, ptr(0.5), 0.5},
		{"explicit zero honoured", ptr(0), ptr(0.6), nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, ResolveThreshold(tt.recording, tt.zone, tt.plant, DefaultConfidence), 1e-9)
		})
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]Kind{"ppe": KindPPE, "Pallet": KindPalletDefect, "proximity": KindProximity} {
		got, err := ParseKind(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.NotEmpty(t, got.String())
	}
	_, err := ParseKind("run_ppe_detection")
	require.Error(t, err)
}

func TestForKind(t *testing.T) {
	t.Parallel()

	for _, kind := range []Kind{KindPPE, KindPalletDefect, KindProximity} {
		c, err := ForKind(kind, DefaultParams())
		require.NoError(t, err)
		assert.NotNil(t, c)
	}
	_, err := ForKind(Kind(42), DefaultParams())
	require.Error(t, err)
}

func TestPPENoSubject(t *testing.T) {
	t.Parallel()

	c, err := ForKind(KindPPE, DefaultParams())
	require.NoError(t, err)

	res := c.Classify([]inference.Detection{{Class: "hardhat", Confidence: 0.9}},
		Rules{Threshold: 0.75, Required: []string{"hardhat", "vest"}})
	assert.Equal(t, NoEvent{}, res)
	assert.False(t, res.IsEvent())
}

func TestPPEMissingItem(t *testing.T) {
	t.Parallel()

	c, err := ForKind(KindPPE, DefaultParams())
	require.NoError(t, err)

	res := c.Classify([]inference.Detection{
		{Class: "person", Confidence: 0.8},
		{Class: "hardhat", Confidence: 0.75}, // exactly at threshold qualifies
	}, Rules{Threshold: 0.75, Required: []string{"hardhat", "vest"}})

	missing, ok := res.(MissingItems)
	require.True(t, ok)
	assert.Equal(t, []string{"vest"}, missing.Names)
	assert.Equal(t, "vest", res.EventKey())
	assert.Zero(t, res.Score())
	assert.Nil(t, res.Box())
}

func TestPPEBelowThresholdCountsAsMissing(t *testing.T) {
	t.Parallel()

	c := &PPE{Subject: "person"}
	res := c.Classify([]inference.Detection{
		{Class: "person", Confidence: 0.9},
		{Class: "hardhat", Confidence: 0.74},
	}, Rules{Threshold: 0.75, Required: []string{"vest", "hardhat"}})

	assert.Equal(t, "hardhat,vest", res.EventKey(), "key is sorted and comma-joined")
}

func TestPPEAllPresent(t *testing.T) {
	t.Parallel()

	c := &PPE{Subject: "person"}
	res := c.Classify([]inference.Detection{
		{Class: "person", Confidence: 0.9},
		{Class: "Hardhat", Confidence: 0.9},
	}, Rules{Threshold: 0.5, Required: []string{"hardhat"}})
	assert.Equal(t, NoEvent{}, res)
}

func TestPalletDefect(t *testing.T) {
	t.Parallel()

	c, err := ForKind(KindPalletDefect, DefaultParams())
	require.NoError(t, err)

	best := inference.BBox{X1: 10, Y1: 20, X2: 30, Y2: 40}
	res := c.Classify([]inference.Detection{
		{Class: "pallet_good", Confidence: 0.99},
		{Class: "pallet_bad", Confidence: 0.8},
		{Class: "Pallets_bad", Confidence: 0.85, Box: best},
		{Class: "pallet_bad", Confidence: 0.5},
	}, Rules{Threshold: 0.75})

	flag, ok := res.(DefectFlag)
	require.True(t, ok)
	assert.Equal(t, "Pallets_bad", flag.Class)
	assert.Equal(t, "Pallets_bad", res.EventKey())
	assert.InDelta(t, 0.85, res.Score(), 1e-9)
	require.NotNil(t, res.Box())
	assert.Equal(t, best, *res.Box())

	res = c.Classify([]inference.Detection{{Class: "pallet_bad", Confidence: 0.7}}, Rules{Threshold: 0.75})
	assert.False(t, res.IsEvent())
}

func TestProximity(t *testing.T) {
	t.Parallel()

	near := []inference.Detection{
		{Class: "person", Confidence: 0.9, Box: boxAt(100, 100)},
		{Class: "forklift", Confidence: 0.9, Box: boxAt(120, 110)},
	}
	c := &Proximity{Subject: "person", Hazard: "forklift", Threshold: 50}
	res := c.Classify(near, Rules{Threshold: 0.5})

	event, ok := res.(ProximityEvent)
	require.True(t, ok)
	assert.InDelta(t, 22.36, event.Distance, 0.01)
	assert.Equal(t, ProximityEventKey, res.EventKey())
	assert.Equal(t, []string{"forklift", "person"}, event.Classes)
	assert.Zero(t, res.Score())

	far := []inference.Detection{
		{Class: "person", Confidence: 0.9, Box: boxAt(0, 0)},
		{Class: "forklift", Confidence: 0.9, Box: boxAt(400, 400)},
	}
	c.Threshold = 350
	assert.Equal(t, NoEvent{}, c.Classify(far, Rules{Threshold: 0.5}))
}

func TestProximityIgnoresLowConfidence(t *testing.T) {
	t.Parallel()

	c := &Proximity{Subject: "person", Hazard: "forklift", Threshold: 350}
	res := c.Classify([]inference.Detection{
		{Class: "person", Confidence: 0.9, Box: boxAt(100, 100)},
		{Class: "forklift", Confidence: 0.4, Box: boxAt(110, 100)},
	}, Rules{Threshold: 0.5})
	assert.False(t, res.IsEvent())
}

func TestClassNamesIgnoreCase(t *testing.T) {
	t.Parallel()

	prox := &Proximity{Subject: "person", Hazard: "forklift", Threshold: 350}
	res := prox.Classify([]inference.Detection{
		{Class: "Person", Confidence: 0.9, Box: boxAt(100, 100)},
		{Class: "FORKLIFT", Confidence: 0.9, Box: boxAt(110, 100)},
	}, Rules{Threshold: 0.5})
	assert.True(t, res.IsEvent())

	ppe := &PPE{Subject: "person"}
	res = ppe.Classify([]inference.Detection{
		{Class: "Person", Confidence: 0.9},
		{Class: "Vest", Confidence: 0.9},
	}, Rules{Threshold: 0.5, Required: []string{"Vest"}})
	assert.False(t, res.IsEvent())
}

func TestQualifying(t *testing.T) {
	t.Parallel()

	got := Qualifying([]inference.Detection{
		{Class: "a", Confidence: 0.5},
		{Class: "b", Confidence: 0.49},
	}, 0.5)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Class)
}
