package reflow

// SegmentKind tells paragraphs and blank-line separators apart.
type SegmentKind int

const (
	SegmentParagraph SegmentKind = iota
	SegmentSeparator
)

func (k SegmentKind) String() string {
	if k == SegmentSeparator {
		return "separator"
	}
	return "paragraph"
}

// Segment is one token of segmenter output. A paragraph holds a maximal run
// of non-blank lines; a separator holds exactly one blank line, verbatim.
type Segment struct {
	Kind  SegmentKind
	Lines []Line
}

// SplitParagraphs cuts lines into paragraphs and separators, in order.
// Concatenating the Lines of every segment reproduces the input.
func SplitParagraphs(lines []Line) []Segment {
	var segments []Segment
	var current []Line
	flush := func() {
		if len(current) > 0 {
			segments = append(segments, Segment{Kind: SegmentParagraph, Lines: current})
			current = nil
		}
	}
	for _, line := range lines {
		if line.IsBlank() {
			flush()
			segments = append(segments, Segment{Kind: SegmentSeparator, Lines: []Line{line}})
			continue
		}
		current = append(current, line)
	}
	flush()
	return segments
}
