//go:build linux && !tinygo

// Package bbb drives axis step/dir/enable lines through the BeagleBone's
// memory-mapped GPIO banks.  The axis timer is a core.Timer on the shared
// scheduler; the tick loop that dispatches it is the caller's.
package bbb

import (
	"fmt"
	"strconv"
	"strings"

	bbhw "github.com/btittelbach/go-bbhw"

	"gostep/core"
)

// Driver is one axis on memory-mapped GPIO.  Enable lines on common
// stepper drivers are active low.
type Driver struct {
	sched  *core.Scheduler
	timer  core.Timer
	fn     func()
	period uint32
	armed  bool
	armSeq uint32

	stepPin   uint
	dirPin    uint
	enablePin uint

	step   *bbhw.MMappedGPIO
	dir    *bbhw.MMappedGPIO
	enable *bbhw.MMappedGPIO

	enableActiveLow bool
}

// NewDriver creates an axis driver on the given GPIO numbers.  Pins are
// claimed in Init.
func NewDriver(sched *core.Scheduler, stepPin, dirPin, enablePin uint, enableActiveLow bool) *Driver {
	d := &Driver{
		sched:           sched,
		stepPin:         stepPin,
		dirPin:          dirPin,
		enablePin:       enablePin,
		enableActiveLow: enableActiveLow,
	}
	d.timer.Handler = d.onTimer
	return d
}

// ParsePin turns a "gpio66" style pin name into a GPIO number.
func ParsePin(name string) (uint, error) {
	s := strings.TrimPrefix(strings.ToLower(name), "gpio")
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bbb: bad pin %q", name)
	}
	return uint(n), nil
}

func (d *Driver) Init() error {
	d.step = bbhw.NewMMappedGPIO(d.stepPin, bbhw.OUT)
	d.dir = bbhw.NewMMappedGPIO(d.dirPin, bbhw.OUT)
	d.enable = bbhw.NewMMappedGPIO(d.enablePin, bbhw.OUT)
	d.step.SetState(false)
	d.Disable()
	return nil
}

func (d *Driver) SetDirection(reverse bool) { d.dir.SetState(reverse) }

func (d *Driver) Enable()  { d.enable.SetState(!d.enableActiveLow) }
func (d *Driver) Disable() { d.enable.SetState(d.enableActiveLow) }

func (d *Driver) StepHigh() { d.step.SetState(true) }
func (d *Driver) StepLow()  { d.step.SetState(false) }

func (d *Driver) Arm(period uint32) {
	if d.armed {
		d.sched.Cancel(&d.timer)
	}
	d.period = period
	d.armed = true
	d.armSeq++
	d.timer.WakeTime = core.GetTime() + period
	d.sched.Schedule(&d.timer)
}

func (d *Driver) Disarm() {
	d.armed = false
	d.sched.Cancel(&d.timer)
}

func (d *Driver) BindHandler(fn func()) { d.fn = fn }

func (d *Driver) onTimer(t *core.Timer) uint8 {
	if !d.armed {
		return core.SF_DONE
	}
	seq := d.armSeq
	if d.fn != nil {
		d.fn()
	}
	if !d.armed || d.armSeq != seq {
		// A re-arm from the handler already scheduled the new wake.
		return core.SF_DONE
	}
	t.WakeTime += d.period
	return core.SF_RESCHEDULE
}
