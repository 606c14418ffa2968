package sentence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poly(n float64) Polygon {
	return Polygon{{n, n}, {n + 1, n}, {n + 1, n + 1}, {n, n + 1}}
}

// longSentence is 160 runes with no internal boundary.
func longSentence() string {
	return strings.Repeat("abcde ", 26) + "xyz."
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "two sentences",
			input:    "Hello world. It continues.",
			expected: []string{"Hello world.", "It continues."},
		},
		{
			name:     "mixed terminators",
			input:    "Wait!! Really? Yes.",
			expected: []string{"Wait!!", "Really?", "Yes."},
		},
		{
			name:     "trailing fragment kept",
			input:    "One. Two",
			expected: []string{"One.", "Two"},
		},
		{
			name:     "no boundary",
			input:    "just one fragment",
			expected: []string{"just one fragment"},
		},
		{
			name:     "empty",
			input:    "",
			expected: nil,
		},
		{
			name:     "abbreviation splits too",
			input:    "See Dr. Smith today.",
			expected: []string{"See Dr.", "Smith today."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Split(tt.input))
		})
	}
}

func TestRegionCandidatesPolygonAttribution(t *testing.T) {
	region := Region{Lines: []Line{
		{Text: "One line here.", Polygon: poly(1)},
		{Text: "Second thing.", Polygon: poly(2)},
	}}

	cands := regionCandidates(region)
	require.Len(t, cands, 2)

	assert.Equal(t, "One line here.", cands[0].Text)
	assert.Equal(t, []Polygon{poly(1)}, cands[0].Regions)

	// The joining space belongs to the second line, so the second
	// sentence must not drag in the first line's polygon.
	assert.Equal(t, "Second thing.", cands[1].Text)
	assert.Equal(t, []Polygon{poly(2)}, cands[1].Regions)
}

func TestRegionCandidatesSentenceAcrossLines(t *testing.T) {
	region := Region{Lines: []Line{
		{Text: "This sentence wraps", Polygon: poly(1)},
		{Text: "onto the next line.", Polygon: poly(2)},
	}}

	cands := regionCandidates(region)
	require.Len(t, cands, 1)
	assert.Equal(t, "This sentence wraps onto the next line.", cands[0].Text)
	assert.Equal(t, []Polygon{poly(1), poly(2)}, cands[0].Regions)
}

func TestRegionCandidatesBlankRegion(t *testing.T) {
	region := Region{Lines: []Line{{Text: "   ", Polygon: poly(1)}}}
	assert.Empty(t, regionCandidates(region))
}

func TestAggregateMergesShortFollowers(t *testing.T) {
	regions := []Region{{Lines: []Line{
		{Text: "Hello world.", Polygon: poly(1)},
		{Text: "It continues.", Polygon: poly(2)},
	}}}

	out := Aggregate(regions)
	require.Len(t, out, 1)
	assert.Equal(t, "Hello world. It continues.", out[0].Text)
	assert.Equal(t, []Polygon{poly(1), poly(2)}, out[0].Regions)
}

func TestAggregateFirstSentenceStandsAlone(t *testing.T) {
	long := longSentence()
	regions := []Region{{Lines: []Line{
		{Text: "Intro.", Polygon: poly(1)},
		{Text: long, Polygon: poly(2)},
		{Text: "End.", Polygon: poly(3)},
	}}}

	out := Aggregate(regions)
	require.Len(t, out, 2)

	// "Intro." is first, so it is never merged backward.
	assert.Equal(t, "Intro.", out[0].Text)
	assert.Equal(t, []Polygon{poly(1)}, out[0].Regions)

	// "End." is short and folds into the long sentence before it.
	assert.Equal(t, long+" End.", out[1].Text)
	assert.Equal(t, []Polygon{poly(2), poly(3)}, out[1].Regions)
}

func TestAggregateNeverCollapsesBelowOne(t *testing.T) {
	regions := []Region{{Lines: []Line{
		{Text: "Tiny.", Polygon: poly(1)},
	}}}

	out := Aggregate(regions)
	require.Len(t, out, 1)
	assert.Equal(t, "Tiny.", out[0].Text)
}

func TestAggregateSpansRegions(t *testing.T) {
	long := longSentence()
	regions := []Region{
		{Lines: []Line{{Text: long, Polygon: poly(1)}}},
		{Lines: []Line{{Text: "A short coda.", Polygon: poly(2)}}},
	}

	out := Aggregate(regions)
	require.Len(t, out, 1)
	assert.Equal(t, long+" A short coda.", out[0].Text)
	assert.Equal(t, []Polygon{poly(1), poly(2)}, out[0].Regions)
}

func TestAggregateEmpty(t *testing.T) {
	assert.Empty(t, Aggregate(nil))
	assert.Empty(t, Aggregate([]Region{{}}))
}
