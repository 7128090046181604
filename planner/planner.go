package planner

import (
	"math"

	"gostep/motion"
)

// cosEps is the collinearity window for junction classification.
const cosEps = 1e-6

// vEps absorbs floating point noise when comparing velocities.
const vEps = 1e-9

// SetJunctionDeviation sets the chordal tolerance used for cornering.
// Re-read at admission time only.
func (q *Queue) SetJunctionDeviation(mm float64) {
	q.junctionDeviation = mm
}

// junctionCapLocked computes the squared junction velocity between the
// block being admitted at slot idx and its predecessor in the ring.
//
// The cap derives from the centripetal-acceleration / junction-deviation
// relation v^2 = a * delta * sin(theta) / (1 - cos(theta)).  Nearly
// collinear junctions are unlimited (bounded by the cruise caps); a
// reversal forces a full stop.  A missing, control or dwell predecessor is
// a zero-velocity barrier.
func (q *Queue) junctionCapLocked(idx int, blk *motion.Block) float64 {
	if idx == q.head {
		return 0
	}
	prev := &q.blocks[q.prev(idx)]
	if !prev.Type.IsMotion() {
		return 0
	}

	cosTheta := 0.0
	for i := 0; i < motion.NumAxes; i++ {
		cosTheta += prev.Unit[i] * blk.Unit[i]
	}

	capV := math.Min(blk.FeedCap, prev.FeedCap)
	capV2 := capV * capV

	switch {
	case cosTheta >= 1-cosEps:
		return capV2
	case cosTheta <= cosEps-1:
		return 0
	}

	sinTheta := math.Sqrt(math.Max(0, 1-cosTheta*cosTheta))
	accel := math.Min(prev.Accel, blk.Accel)
	v2 := accel * q.junctionDeviation * sinTheta / (1 - cosTheta)
	return math.Min(v2, capV2)
}

// recomputeLocked runs the two-pass velocity matching over the queue.
// Must be called inside a critical section.
//
// Reverse pass: assuming the machine stops after the newest block, walk
// back propagating the entry each block needs so its successor remains
// reachable under the acceleration bound.  Forward pass: clamp entries to
// what the predecessor can actually deliver, restore junction equality
// (prev exit == entry) and mark blocks finalized once nothing ahead of
// them can raise their entry further.
func (q *Queue) recomputeLocked() {
	var ids [QueueDepth]int
	n := 0
	for i := q.head; i != q.tail; i = q.next(i) {
		ids[n] = i
		n++
	}
	if n == 0 {
		return
	}

	// Reverse pass, newest toward oldest.
	nextEntry := 0.0
	for k := n - 1; k >= 0; k-- {
		b := &q.blocks[ids[k]]
		if !b.Type.IsMotion() {
			// Barrier: the predecessor must come to a stop.
			nextEntry = 0
			continue
		}
		reach := math.Sqrt(b.EntryV*b.EntryV + 2*b.Accel*b.LengthMM)
		if b.Busy || b.Finalized {
			// Entry and cruise are immutable; only the exit tracks the
			// successor, and never beyond what the entry can reach.
			b.ExitV = math.Min(nextEntry, reach)
			nextEntry = b.EntryV
			continue
		}
		b.ExitV = nextEntry
		entry := math.Min(b.FeedCap, math.Sqrt(b.MaxJunctionV2))
		entry = math.Min(entry, math.Sqrt(b.ExitV*b.ExitV+2*b.Accel*b.LengthMM))
		b.EntryV = entry
		nextEntry = entry
	}

	// Forward pass, oldest toward newest.
	prevFinal := true
	prevReach := 0.0
	havePrev := false
	for k := 0; k < n; k++ {
		b := &q.blocks[ids[k]]
		if !b.Type.IsMotion() {
			// Motion resumes from rest after a barrier.
			prevFinal = prevFinal && (b.Busy || k == 0)
			prevReach = 0
			havePrev = true
			continue
		}
		if b.Busy || b.Finalized {
			prevFinal = true
			prevReach = math.Sqrt(b.EntryV*b.EntryV + 2*b.Accel*b.LengthMM)
			havePrev = true
			continue
		}

		entryMax := math.Min(b.FeedCap, math.Sqrt(b.MaxJunctionV2))
		if havePrev {
			if b.EntryV > prevReach {
				b.EntryV = prevReach
			}
			if prevReach < entryMax {
				entryMax = prevReach
			}
			// Junction equality with the predecessor.
			if prev := q.prevMotion(ids[k]); prev != nil {
				prev.ExitV = math.Min(prev.ExitV, b.EntryV)
			}
		} else {
			// Oldest block with no predecessor: motion starts from rest.
			b.EntryV = 0
			entryMax = 0
		}

		reach := math.Sqrt(b.EntryV*b.EntryV + 2*b.Accel*b.LengthMM)
		if b.ExitV > reach {
			b.ExitV = reach
		}

		if prevFinal && b.EntryV+vEps >= entryMax {
			b.Finalized = true
		}
		prevFinal = b.Finalized
		prevReach = reach
		havePrev = true
	}
}

// prevMotion returns the motion block immediately preceding idx in the
// ring, or nil when idx is the head or the predecessor is not a motion
// block.
func (q *Queue) prevMotion(idx int) *motion.Block {
	if idx == q.head {
		return nil
	}
	b := &q.blocks[q.prev(idx)]
	if !b.Type.IsMotion() {
		return nil
	}
	return b
}
