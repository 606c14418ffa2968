// Package sentence groups recognized text lines into narratable sentences
// and carries each sentence's source polygons so the reader UI can highlight
// the exact regions being spoken.
package sentence

import (
	"strings"
	"unicode/utf8"
)

// MergeThreshold is the character count below which a sentence is folded
// into its predecessor. Short fragments produce choppy narration, so they
// ride along with the sentence before them.
const MergeThreshold = 150

// Polygon is a quadrilateral in page coordinates, four [x, y] corners.
type Polygon [4][2]float64

// Line is a single recognized text line with its bounding polygon.
type Line struct {
	Text    string  `json:"text"`
	Polygon Polygon `json:"polygon"`
}

// Region is an ordered run of lines belonging to one layout block.
type Region struct {
	Lines []Line `json:"lines"`
}

// Candidate is an aggregated sentence and the polygons of every line it
// draws text from, in reading order.
type Candidate struct {
	Text    string
	Regions []Polygon
}

// Aggregate turns the recognized regions of a page into sentence candidates.
// Lines within a region are concatenated with single spaces, split at
// sentence boundaries, and mapped back to the polygons of the lines each
// sentence intersects. Short sentences are then merged so every candidate
// except possibly the first reads as a substantial unit.
func Aggregate(regions []Region) []Candidate {
	var page []Candidate
	for _, region := range regions {
		page = append(page, regionCandidates(region)...)
	}
	return mergeShort(page)
}

// regionCandidates splits one region's concatenated text into sentences.
// A byte-to-line map tracks provenance; the joining space between two lines
// is attributed to the following line so a sentence starting right after a
// break still picks up the correct polygon.
func regionCandidates(region Region) []Candidate {
	var b strings.Builder
	var byteToLine []int
	for i, line := range region.Lines {
		if i > 0 {
			b.WriteByte(' ')
			byteToLine = append(byteToLine, i)
		}
		for j := 0; j < len(line.Text); j++ {
			byteToLine = append(byteToLine, i)
		}
		b.WriteString(line.Text)
	}

	text := b.String()
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []Candidate
	for _, sp := range spans(text) {
		s := strings.TrimSpace(text[sp[0]:sp[1]])
		if s == "" {
			continue
		}

		// byteToLine is non-decreasing, so comparing against the last
		// collected index yields distinct lines in reading order.
		var polys []Polygon
		last := -1
		for k := sp[0]; k < sp[1] && k < len(byteToLine); k++ {
			if li := byteToLine[k]; li != last {
				polys = append(polys, region.Lines[li].Polygon)
				last = li
			}
		}

		out = append(out, Candidate{Text: s, Regions: polys})
	}
	return out
}

// mergeShort folds short sentences into their predecessors. The first
// sentence always stands alone so there is something to fold into. After the
// forward pass, a short trailing sentence is folded backward, but only when
// at least two sentences were emitted; a page never collapses below one.
func mergeShort(cands []Candidate) []Candidate {
	var merged []Candidate
	for i, c := range cands {
		if i > 0 && utf8.RuneCountInString(c.Text) < MergeThreshold {
			last := &merged[len(merged)-1]
			last.Text += " " + c.Text
			last.Regions = append(last.Regions, c.Regions...)
			continue
		}
		merged = append(merged, Candidate{
			Text:    c.Text,
			Regions: append([]Polygon(nil), c.Regions...),
		})
	}

	if n := len(merged); n >= 2 && utf8.RuneCountInString(merged[n-1].Text) < MergeThreshold {
		prev := &merged[n-2]
		prev.Text += " " + merged[n-1].Text
		prev.Regions = append(prev.Regions, merged[n-1].Regions...)
		merged = merged[:n-1]
	}

	return merged
}
