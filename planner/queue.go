// Package planner maintains the bounded queue of motion blocks and
// recomputes entry/exit velocities over it so that feed, acceleration and
// cornering constraints hold across the whole lookahead window.
package planner

import (
	"errors"

	"gostep/core"
	"gostep/motion"
)

// QueueDepth is the compile-time size of the block ring.  One slot stays
// unused to distinguish full from empty.
const QueueDepth = 16

var (
	// ErrQueueFull is cooperative backpressure, not a failure.
	ErrQueueFull = errors.New("planner: queue full")
	// ErrZeroLength marks a block with no travel; it is dropped.
	ErrZeroLength = errors.New("planner: zero-length block")
)

// Queue is the planner's block ring.  The producer appends at the tail
// from the foreground; the executor consumes the head from the mid
// priority level.  All mutation happens inside short critical sections.
type Queue struct {
	blocks [QueueDepth]motion.Block
	head   int // oldest block, executor side
	tail   int // next free slot, producer side

	junctionDeviation float64 // mm
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

func (q *Queue) next(i int) int { return (i + 1) % QueueDepth }
func (q *Queue) prev(i int) int { return (i + QueueDepth - 1) % QueueDepth }

func (q *Queue) empty() bool { return q.head == q.tail }
func (q *Queue) full() bool  { return q.next(q.tail) == q.head }

func (q *Queue) length() int {
	return (q.tail - q.head + QueueDepth) % QueueDepth
}

// Len returns the number of queued blocks.
func (q *Queue) Len() int {
	state := core.IrqDisable()
	defer core.IrqRestore(state)
	return q.length()
}

// FreeCount returns the number of free slots.
func (q *Queue) FreeCount() int {
	state := core.IrqDisable()
	defer core.IrqRestore(state)
	return QueueDepth - 1 - q.length()
}

// TryAppend admits a block.  Zero-length motion blocks are rejected with
// ErrZeroLength; a full ring returns ErrQueueFull and the producer retries
// later.  Control blocks are appended verbatim and act as zero-velocity
// barriers; motion and dwell blocks trigger the two-pass recompute.
func (q *Queue) TryAppend(blk *motion.Block) error {
	if blk.Type.IsMotion() && blk.LengthMM <= 0 {
		return ErrZeroLength
	}

	state := core.IrqDisable()
	defer core.IrqRestore(state)

	if q.full() {
		return ErrQueueFull
	}

	slot := &q.blocks[q.tail]
	*slot = *blk
	slot.Finalized = false
	slot.Busy = false

	if slot.Type.IsMotion() {
		slot.MaxJunctionV2 = q.junctionCapLocked(q.tail, slot)
		slot.EntryV = 0
		slot.ExitV = 0
		if slot.CruiseV > slot.FeedCap {
			slot.CruiseV = slot.FeedCap
		}
	} else {
		slot.EntryV = 0
		slot.ExitV = 0
	}

	q.tail = q.next(q.tail)
	q.recomputeLocked()
	return nil
}

// PeekHead returns the oldest block, or nil when the queue is empty.  The
// returned pointer stays valid until ReleaseHead.
func (q *Queue) PeekHead() *motion.Block {
	state := core.IrqDisable()
	defer core.IrqRestore(state)
	if q.empty() {
		return nil
	}
	return &q.blocks[q.head]
}

// MarkHeadBusy flags the head as taken by the executor.  From this point
// the planner only ever lowers its exit velocity.
func (q *Queue) MarkHeadBusy() {
	state := core.IrqDisable()
	defer core.IrqRestore(state)
	if !q.empty() {
		q.blocks[q.head].Busy = true
		q.blocks[q.head].Finalized = true
	}
}

// HeadExit returns the head's planned exit velocity together with the
// conservative flag: ok is false while no finalized successor exists, in
// which case the executor must treat the exit as zero.
func (q *Queue) HeadExit() (exit float64, ok bool) {
	state := core.IrqDisable()
	defer core.IrqRestore(state)
	if q.empty() {
		return 0, false
	}
	succ := q.next(q.head)
	if succ == q.tail {
		return 0, false
	}
	if !q.blocks[succ].Finalized && !q.blocks[succ].Type.IsControl() {
		return 0, false
	}
	return q.blocks[q.head].ExitV, true
}

// ReleaseHead frees the head slot after its last segment has been
// produced and replans the remainder.
func (q *Queue) ReleaseHead() {
	state := core.IrqDisable()
	defer core.IrqRestore(state)
	if q.empty() {
		return
	}
	q.blocks[q.head] = motion.Block{}
	q.head = q.next(q.head)
	if !q.empty() {
		// If the executor never saw a finalized successor it drained to a
		// stop, so an unfinalized new head must start from rest.
		nh := &q.blocks[q.head]
		if nh.Type.IsMotion() && !nh.Finalized && !nh.Busy {
			nh.MaxJunctionV2 = 0
		}
	}
	q.recomputeLocked()
}

// Clear drops every queued block.  Used by end blocks and fault recovery.
func (q *Queue) Clear() {
	state := core.IrqDisable()
	defer core.IrqRestore(state)
	for i := range q.blocks {
		q.blocks[i] = motion.Block{}
	}
	q.head = 0
	q.tail = 0
}

// snapshot copies the queue for tests and diagnostics (oldest first).
func (q *Queue) snapshot() []motion.Block {
	state := core.IrqDisable()
	defer core.IrqRestore(state)
	out := make([]motion.Block, 0, q.length())
	for i := q.head; i != q.tail; i = q.next(i) {
		out = append(out, q.blocks[i])
	}
	return out
}
