package hal

import (
	"gostep/core"
)

// Pulse records one emitted step edge pair for test inspection.
type Pulse struct {
	Time    uint32 // tick of the rising edge
	Reverse bool   // direction line state at emission
}

// SimDriver is the host implementation of AxisDriver.  The axis timer is a
// core.Timer on the shared scheduler; a tick loop (or a test) advances the
// clock and dispatches it.  Every output transition is recorded so tests
// can check pulse counts, ordering and direction.
type SimDriver struct {
	sched  *core.Scheduler
	timer  core.Timer
	fn     func()
	period uint32
	armed  bool
	armSeq uint32

	stepLevel bool
	reverse   bool
	enabled   bool

	Pulses   []Pulse
	DirFlips int
}

// NewSimDriver creates a simulated axis driver on the given scheduler.
func NewSimDriver(sched *core.Scheduler) *SimDriver {
	d := &SimDriver{sched: sched}
	d.timer.Handler = d.onTimer
	return d
}

func (d *SimDriver) Init() error { return nil }

func (d *SimDriver) SetDirection(reverse bool) {
	if d.reverse != reverse {
		d.DirFlips++
	}
	d.reverse = reverse
}

func (d *SimDriver) Enable()  { d.enabled = true }
func (d *SimDriver) Disable() { d.enabled = false }

func (d *SimDriver) StepHigh() {
	if !d.stepLevel {
		d.Pulses = append(d.Pulses, Pulse{Time: core.GetTime(), Reverse: d.reverse})
	}
	d.stepLevel = true
}

func (d *SimDriver) StepLow() { d.stepLevel = false }

func (d *SimDriver) Arm(period uint32) {
	if d.armed {
		d.sched.Cancel(&d.timer)
	}
	d.period = period
	d.armed = true
	d.armSeq++
	d.timer.WakeTime = core.GetTime() + period
	d.sched.Schedule(&d.timer)
}

func (d *SimDriver) Disarm() {
	d.armed = false
	d.sched.Cancel(&d.timer)
}

func (d *SimDriver) BindHandler(fn func()) { d.fn = fn }

// onTimer models the per-axis timer overflow interrupt.
func (d *SimDriver) onTimer(t *core.Timer) uint8 {
	if !d.armed {
		return core.SF_DONE
	}
	seq := d.armSeq
	if d.fn != nil {
		d.fn()
	}
	if !d.armed || d.armSeq != seq {
		// Handler disarmed or re-armed the axis mid-dispatch; a re-arm
		// already scheduled the new wake itself.
		return core.SF_DONE
	}
	t.WakeTime += d.period
	return core.SF_RESCHEDULE
}

// Enabled reports the enable line state.
func (d *SimDriver) Enabled() bool { return d.enabled }

// StepCount returns the number of rising edges seen so far.
func (d *SimDriver) StepCount() int { return len(d.Pulses) }

// SimOutputs records spindle/coolant transitions.
type SimOutputs struct {
	SpindleOn  bool
	SpindleRPM float64
	CoolantOn  bool
}

func (o *SimOutputs) SetSpindle(on bool, rpm float64) {
	o.SpindleOn = on
	o.SpindleRPM = rpm
}

func (o *SimOutputs) SetCoolant(on bool) { o.CoolantOn = on }
