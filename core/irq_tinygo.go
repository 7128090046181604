//go:build tinygo

package core

// Single-core target: interrupt context is simply "inside Dispatch".
var irqActive bool

func enterIrq() {
	irqActive = true
}

func exitIrq() {
	irqActive = false
}

// InIrq reports whether the caller is executing in interrupt context.
func InIrq() bool {
	return irqActive
}
