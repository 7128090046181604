//go:build !tinygo

package core

import (
	"sync/atomic"

	"github.com/petermattis/goid"
)

// The host build models interrupt context as "the goroutine currently
// inside Scheduler.Dispatch".  The logger consults InIrq so that nothing
// is ever formatted from a timer handler.
var irqGoroutine int64

func enterIrq() {
	atomic.StoreInt64(&irqGoroutine, goid.Get())
}

func exitIrq() {
	atomic.StoreInt64(&irqGoroutine, 0)
}

// InIrq reports whether the calling goroutine is executing in interrupt
// context.
func InIrq() bool {
	return atomic.LoadInt64(&irqGoroutine) == goid.Get()
}
