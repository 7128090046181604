// Package stepgen is the executor: it turns the head block of the planner
// queue into a stream of fixed-duration segments and keeps the segment
// ring non-empty whenever there is work and no hold.
package stepgen

import (
	"sync/atomic"

	"gostep/motion"
)

// BufferDepth is the compile-time size of the segment ring.
const BufferDepth = 4

// ring is the single-producer/single-consumer segment buffer between the
// executor (producer, mid priority) and the stepper engine (consumer, step
// interrupt).  The free-running indices are atomic; a slot's payload is
// fully written before the producer index is published.
type ring struct {
	slots [BufferDepth]motion.Segment
	prod  uint32
	cons  uint32
}

func (r *ring) count() uint32 {
	return atomic.LoadUint32(&r.prod) - atomic.LoadUint32(&r.cons)
}

func (r *ring) free() uint32 {
	return BufferDepth - r.count()
}

// reserve returns the next producer slot, or nil when the ring is full.
// The slot is not visible to the consumer until publish.
func (r *ring) reserve() *motion.Segment {
	if r.free() == 0 {
		return nil
	}
	return &r.slots[atomic.LoadUint32(&r.prod)%BufferDepth]
}

// publish makes the reserved slot visible to the consumer.
func (r *ring) publish() {
	atomic.AddUint32(&r.prod, 1)
}

// peek returns the oldest unconsumed segment, or nil when empty.
func (r *ring) peek() *motion.Segment {
	if r.count() == 0 {
		return nil
	}
	return &r.slots[atomic.LoadUint32(&r.cons)%BufferDepth]
}

// release recycles the slot returned by peek.
func (r *ring) release() {
	atomic.AddUint32(&r.cons, 1)
}

// flush drops everything in the ring.  Only legal with the stepper halted.
func (r *ring) flush() {
	atomic.StoreUint32(&r.cons, atomic.LoadUint32(&r.prod))
}
