package events

const KindSegmentSkipped Kind = "synthesis.segment_skipped"

// SegmentSkipped reports a segment left out of the response audio.
type SegmentSkipped struct {
	Base
	Index   int
	Segment string
	Err     error
}

func NewSegmentSkipped(turn Turn, index int, segment string, err error) SegmentSkipped {
	return SegmentSkipped{
		Base:    NewBase(KindSegmentSkipped, turn),
		Index:   index,
		Segment: segment,
		Err:     err,
	}
}
