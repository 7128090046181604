package stepgen

import (
	"math"
	"sync/atomic"

	"gostep/core"
	"gostep/motion"
	"gostep/planner"
	"gostep/stepper"
)

// Executor turns planned blocks into fixed-duration segments.  It runs
// from the periodic exec timer, from the stepper's end-of-segment hook and
// from foreground kicks after admission; a compare-and-swap latch
// serializes the three, losers return without side effects.
type Executor struct {
	queue *planner.Queue
	pulse *stepper.Stepper
	buf   ring

	segSecs  float64
	segTicks uint32

	busy uint32 // reentrancy latch: 0 idle, 1 loading

	// Runtime of the block currently being sliced.
	blk       *motion.Block
	v         float64 // velocity at the current segment boundary, mm/s
	vCarry    float64 // velocity motion actually ended the last block with
	aCur      float64 // accel magnitude reached by the jerk ramp, mm/s^2
	braking   bool    // inside the braking window; aCur ramps down-slope
	done      float64 // mm already sliced off the block
	remaining float64
	emitted   [motion.NumAxes]int32 // per-axis emitted step magnitudes

	dwellLeft uint32
	holding   uint32 // atomic: feed hold parks the executor
	active    uint32 // atomic: a block or dwell is mid-slice

	// commit publishes a completed segment's signed steps to the machine
	// position.  Runs in interrupt context.
	commit func(delta motion.Steps, last bool)
}

// NewExecutor wires the executor between the queue and the pulse engine.
func NewExecutor(queue *planner.Queue, pulse *stepper.Stepper, cfg *motion.MachineConfig) *Executor {
	e := &Executor{
		queue:    queue,
		pulse:    pulse,
		segSecs:  cfg.SegmentSeconds,
		segTicks: core.TicksFromSeconds(cfg.SegmentSeconds),
	}
	pulse.SetSegmentDoneHook(e.OnSegmentDone)
	return e
}

// SetCommitHook installs the machine-position commit callback.
func (e *Executor) SetCommitHook(fn func(delta motion.Steps, last bool)) {
	e.commit = fn
}

// Holding reports whether a feed hold has parked the executor.
func (e *Executor) Holding() bool {
	return atomic.LoadUint32(&e.holding) != 0
}

// Busy reports whether a block or dwell is mid-slice or segments are
// pending in the ring or the pulse engine.
func (e *Executor) Busy() bool {
	return !e.pulse.Idle() || e.buf.count() != 0 || atomic.LoadUint32(&e.active) != 0
}

// Run produces as many segments as free ring slots allow and keeps the
// pulse engine loaded.  Safe to call from any priority level.
func (e *Executor) Run() {
	if !atomic.CompareAndSwapUint32(&e.busy, 0, 1) {
		return
	}
	defer atomic.StoreUint32(&e.busy, 0)

	for {
		progress := false
		if e.fillOne() {
			progress = true
		}
		if e.loadOne() {
			progress = true
		}
		if !progress {
			return
		}
	}
}

// OnSegmentDone is the stepper's segment-complete entry point.  Runs in
// interrupt context and may load the next segment.
func (e *Executor) OnSegmentDone(seg *motion.Segment) {
	if seg != nil && e.commit != nil {
		e.commit(seg.Delta, seg.Last)
	}
	e.buf.release()
	e.Run()
}

// ReleaseHold clears an in-effect feed hold.  It acts immediately rather
// than through the queue: queued motion behind the hold would otherwise
// stand between the parked executor and any queued release.  A no-op when
// no hold is in effect.
func (e *Executor) ReleaseHold() {
	if !atomic.CompareAndSwapUint32(&e.holding, 1, 0) {
		return
	}
	for !atomic.CompareAndSwapUint32(&e.busy, 0, 1) {
	}
	if slot := e.buf.reserve(); slot != nil {
		// Through the ring, so the stopped flag clears in segment order.
		*slot = motion.Segment{Kind: motion.SegResume}
		e.buf.publish()
	} else {
		e.pulse.Resume()
	}
	atomic.StoreUint32(&e.busy, 0)
	e.Run()
}

// Halt aborts everything: pulse engine shutdown, ring flush, queue clear,
// runtime reset.  Used by fatal faults and engine reset.
func (e *Executor) Halt() {
	for !atomic.CompareAndSwapUint32(&e.busy, 0, 1) {
	}
	defer atomic.StoreUint32(&e.busy, 0)

	e.pulse.Shutdown()
	e.buf.flush()
	e.queue.Clear()
	e.blk = nil
	e.dwellLeft = 0
	atomic.StoreUint32(&e.holding, 0)
	atomic.StoreUint32(&e.active, 0)
	e.v = 0
	e.vCarry = 0
	e.aCur = 0
	e.braking = false
}

// loadOne hands the oldest ring segment to the pulse engine if it is
// idle.  Control segments apply synchronously and recycle immediately.
func (e *Executor) loadOne() bool {
	if !e.pulse.Idle() {
		return false
	}
	seg := e.buf.peek()
	if seg == nil {
		return false
	}
	if e.pulse.LoadSegment(seg) {
		// Slot stays reserved until the completion interrupt.
		return true
	}
	e.buf.release()
	return true
}

// fillOne produces at most one segment.  Returns whether any progress was
// made (a segment produced or a block consumed).
func (e *Executor) fillOne() bool {
	slot := e.buf.reserve()
	if slot == nil {
		return false
	}

	if e.blk == nil && e.dwellLeft == 0 {
		if !e.takeNext(slot) {
			return false
		}
		if e.blk == nil && e.dwellLeft == 0 {
			// Control block consumed; segment may already be published.
			return true
		}
	}

	if e.dwellLeft > 0 {
		e.emitDwell(slot)
		return true
	}
	return e.emitMove(slot)
}

// takeNext consumes the queue head.  Control blocks publish their segment
// straight into slot; motion and dwell blocks set up the slicing runtime.
func (e *Executor) takeNext(slot *motion.Segment) bool {
	blk := e.queue.PeekHead()
	if blk == nil {
		return false
	}

	if e.Holding() && !blk.Type.IsControl() {
		// Parked: only a resume or end gets through.
		return false
	}

	switch blk.Type {
	case motion.BlockHold:
		e.queue.ReleaseHead()
		if e.Holding() {
			return true
		}
		atomic.StoreUint32(&e.holding, 1)
		*slot = motion.Segment{Kind: motion.SegHold}
		e.buf.publish()
		return true

	case motion.BlockResume:
		e.queue.ReleaseHead()
		if !e.Holding() {
			return true
		}
		atomic.StoreUint32(&e.holding, 0)
		*slot = motion.Segment{Kind: motion.SegResume}
		e.buf.publish()
		return true

	case motion.BlockEnd:
		e.queue.ReleaseHead()
		e.queue.Clear()
		atomic.StoreUint32(&e.holding, 0)
		atomic.StoreUint32(&e.active, 0)
		e.blk = nil
		e.dwellLeft = 0
		e.vCarry = 0
		*slot = motion.Segment{Kind: motion.SegEnd, Last: true}
		e.buf.publish()
		return true

	case motion.BlockDwell:
		e.queue.MarkHeadBusy()
		e.dwellLeft = blk.DwellTicks
		e.queue.ReleaseHead()
		e.vCarry = 0
		if e.dwellLeft > 0 {
			atomic.StoreUint32(&e.active, 1)
		}
		return true

	default:
		e.queue.MarkHeadBusy()
		e.blk = blk
		atomic.StoreUint32(&e.active, 1)
		// Physical continuity: never start faster than the machine is
		// actually moving, whatever the planner finalized since.
		e.v = math.Min(blk.EntryV, e.vCarry)
		e.aCur = 0
		e.braking = false
		e.done = 0
		e.remaining = blk.LengthMM
		for i := range e.emitted {
			e.emitted[i] = 0
		}
		return true
	}
}

// emitDwell slices the pending dwell into timebase segments with zero
// steps but a real tick lifetime.
func (e *Executor) emitDwell(slot *motion.Segment) {
	chunk := e.dwellLeft
	if chunk > e.segTicks {
		chunk = e.segTicks
	}
	e.dwellLeft -= chunk
	if e.dwellLeft == 0 {
		atomic.StoreUint32(&e.active, 0)
	}

	*slot = motion.Segment{Kind: motion.SegDwell, Ticks: chunk, Last: e.dwellLeft == 0}
	period := chunk
	postscale := uint32(1)
	for period > motion.MaxHWPeriod {
		period >>= 1
		postscale <<= 1
	}
	ax := &slot.Axes[stepper.TimebaseAxis]
	ax.Steps = 1
	ax.Period = period
	ax.Postscale = uint16(postscale)
	e.buf.publish()
}
