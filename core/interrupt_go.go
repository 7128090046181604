//go:build !tinygo

package core

import (
	"runtime"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// State holds the previous interrupt state across a critical section.
type State uintptr

// On regular Go there is no interrupt mask to set, but the host harness
// runs the producer and the tick loop on separate goroutines, so the
// critical section has to be a real lock.  A spin lock keeps the calling
// convention identical to the tinygo build and never parks a goroutine
// that models an interrupt handler.  Sections nest the way masking does
// on hardware: re-entry from the owning goroutine just bumps a depth
// counter.
var (
	irqOwner int64 // goid of the goroutine inside the section
	irqDepth int32 // nesting depth, only touched by the owner
)

const maxBackoff = 32

// disableInterrupts enters the global critical section.
func disableInterrupts() State {
	g := goid.Get()
	if atomic.LoadInt64(&irqOwner) == g {
		irqDepth++
		return State(irqDepth)
	}
	backoff := 1
	for !atomic.CompareAndSwapInt64(&irqOwner, 0, g) {
		for i := 0; i < backoff; i++ {
			runtime.Gosched()
		}
		if backoff < maxBackoff {
			backoff <<= 1
		}
	}
	irqDepth = 1
	return State(1)
}

// restoreInterrupts leaves the global critical section.
func restoreInterrupts(_ State) {
	irqDepth--
	if irqDepth == 0 {
		atomic.StoreInt64(&irqOwner, 0)
	}
}
