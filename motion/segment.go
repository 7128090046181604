package motion

// MaxHWPeriod is the largest period the axis timers accept.  Longer step
// intervals are expressed by the postscale divider.
const MaxHWPeriod = 0xFFFF

// SegmentKind identifies what the stepper engine should do with a segment.
type SegmentKind uint8

const (
	SegMove SegmentKind = iota
	SegDwell
	SegHold
	SegResume
	SegEnd
)

// SegAxis is the per-axis share of one segment.
type SegAxis struct {
	Steps     uint16 // pulses to emit within the segment
	Dir       bool   // true = negative travel
	Period    uint32 // hardware timer period, <= MaxHWPeriod after normalization
	Postscale uint16 // software overflow count per step
}

// Segment is a fixed-duration slice of a block.  The executor produces
// segments, the stepper engine consumes them; the sum of per-axis steps
// over a block's segments equals the block's programmed step counts.
type Segment struct {
	Kind  SegmentKind
	Ticks uint32 // lifetime in timer ticks
	Axes  [NumAxes]SegAxis

	// Delta is this segment's signed step total, committed to machine
	// position when the segment completes.  Last marks the final segment
	// of its block.
	Last  bool
	Delta Steps
}

// Active reports whether the axis emits pulses in this segment.
func (s *Segment) Active(axis int) bool {
	return s.Axes[axis].Steps > 0
}
