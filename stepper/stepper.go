// Package stepper is the pulse engine: it loads one segment at a time and
// emits the programmed step pulses on each active axis from the axis timer
// interrupt, then signals completion back to the executor.
package stepper

import (
	"sync/atomic"

	"gostep/core"
	"gostep/hal"
	"gostep/motion"
)

// TimebaseAxis carries the countdown for dwell segments.
const TimebaseAxis = motion.AxisX

type axisRuntime struct {
	counter   uint32 // steps remaining in the segment
	postscale uint16 // overflow countdown before the next step
	reload    uint16
	dwell     bool // advance the counter without pulsing
}

// Stepper drives up to NumAxes axes from their timer interrupts.  It owns
// the per-axis runtime counters and the step/direction pins; everything
// else reads it through the activeAxes mask.
type Stepper struct {
	drivers  [motion.NumAxes]hal.AxisDriver
	polarity [motion.NumAxes]bool
	idle     [motion.NumAxes]motion.IdlePolicy

	axes       [motion.NumAxes]axisRuntime
	activeAxes uint32 // bitmask, atomic
	stopped    uint32 // atomic flag: suppress pulses

	minPulseTicks uint32
	pulseWait     func(ticks uint32) // busy wait; nil on the host build

	seg *motion.Segment // segment currently loaded

	// onSegmentDone is the executor's segment-complete entry point.  It
	// runs in interrupt context and may load the next segment.
	onSegmentDone func(seg *motion.Segment)
}

// New creates a pulse engine over the given drivers.  cfg supplies
// direction polarity and idle-power policy per axis.
func New(drivers [motion.NumAxes]hal.AxisDriver, cfg *motion.MachineConfig) *Stepper {
	s := &Stepper{drivers: drivers}
	for i := 0; i < motion.NumAxes; i++ {
		s.polarity[i] = cfg.Axes[i].InvertDir
		s.idle[i] = cfg.Axes[i].IdlePolicy
	}
	s.minPulseTicks = core.TicksFromUS(uint32(cfg.PulseWidthUS))
	for i := 0; i < motion.NumAxes; i++ {
		if drivers[i] == nil {
			continue
		}
		axis := i
		drivers[i].BindHandler(func() { s.OnTimer(axis) })
	}
	return s
}

// SetSegmentDoneHook installs the executor's end-of-segment entry point.
func (s *Stepper) SetSegmentDoneHook(fn func(seg *motion.Segment)) {
	s.onSegmentDone = fn
}

// SetPulseWait installs the platform busy-wait used to hold the step line
// high.  The host build leaves it nil.
func (s *Stepper) SetPulseWait(fn func(ticks uint32)) {
	s.pulseWait = fn
}

// ActiveAxes returns the bitmask of axes whose timers are running.
func (s *Stepper) ActiveAxes() uint32 {
	return atomic.LoadUint32(&s.activeAxes)
}

// Idle reports whether no axis timer is running.
func (s *Stepper) Idle() bool {
	return s.ActiveAxes() == 0
}

// Stopped reports the pulse-suppression flag.
func (s *Stepper) Stopped() bool {
	return atomic.LoadUint32(&s.stopped) != 0
}

// LoadSegment programs the axis counters and timers for one segment.  It
// must only be called when ActiveAxes() == 0.  The return value reports
// whether any timer was armed; control segments apply their effect and
// return false.
func (s *Stepper) LoadSegment(seg *motion.Segment) bool {
	switch seg.Kind {
	case motion.SegHold:
		atomic.StoreUint32(&s.stopped, 1)
		return false
	case motion.SegResume:
		atomic.StoreUint32(&s.stopped, 0)
		return false
	case motion.SegEnd:
		s.Shutdown()
		return false
	}

	var mask uint32
	dwell := seg.Kind == motion.SegDwell
	for i := 0; i < motion.NumAxes; i++ {
		sa := &seg.Axes[i]
		if sa.Steps == 0 || s.drivers[i] == nil {
			continue
		}
		rt := &s.axes[i]
		rt.counter = uint32(sa.Steps)
		rt.reload = sa.Postscale
		rt.postscale = sa.Postscale
		rt.dwell = dwell
		if !dwell {
			s.drivers[i].SetDirection(sa.Dir != s.polarity[i])
			s.drivers[i].Enable()
		}
		mask |= 1 << uint(i)
	}
	if mask == 0 {
		return false
	}

	s.seg = seg

	// Arm all participating timers back to back so the cross-axis phase
	// skew is bounded by the arming loop alone.
	state := core.IrqDisable()
	atomic.StoreUint32(&s.activeAxes, mask)
	for i := 0; i < motion.NumAxes; i++ {
		if mask&(1<<uint(i)) != 0 {
			s.drivers[i].Arm(seg.Axes[i].Period)
		}
	}
	core.IrqRestore(state)
	return true
}

// OnTimer is the per-axis timer overflow handler.
func (s *Stepper) OnTimer(axis int) {
	if atomic.LoadUint32(&s.stopped) != 0 {
		return
	}
	rt := &s.axes[axis]

	// The postscale counter extends the 16-bit hardware period into an
	// effectively 32-bit step interval.
	if rt.reload != 0 {
		rt.postscale--
		if rt.postscale != 0 {
			return
		}
	}

	// The done hook below may load the next segment and rewrite rt; the
	// falling edge still belongs to this segment's pulse.
	dwell := rt.dwell

	if !dwell {
		s.drivers[axis].StepHigh()
	}

	rt.counter--
	if rt.counter == 0 {
		s.drivers[axis].Disarm()
		mask := atomic.LoadUint32(&s.activeAxes) &^ (1 << uint(axis))
		atomic.StoreUint32(&s.activeAxes, mask)
		if mask == 0 {
			seg := s.seg
			s.seg = nil
			if s.onSegmentDone != nil {
				s.onSegmentDone(seg)
			}
		}
	} else {
		rt.postscale = rt.reload
	}

	if !dwell {
		if s.pulseWait != nil && s.minPulseTicks > 0 {
			s.pulseWait(s.minPulseTicks)
		}
		s.drivers[axis].StepLow()
	}
}

// Resume clears the pulse-suppression flag without a segment.
func (s *Stepper) Resume() {
	atomic.StoreUint32(&s.stopped, 0)
}

// Shutdown disarms every axis timer, clears the runtime counters and
// powers down motors whose idle policy asks for it.  Used by end blocks
// and fatal faults.
func (s *Stepper) Shutdown() {
	state := core.IrqDisable()
	atomic.StoreUint32(&s.activeAxes, 0)
	atomic.StoreUint32(&s.stopped, 0)
	s.seg = nil
	for i := 0; i < motion.NumAxes; i++ {
		s.axes[i] = axisRuntime{}
		if s.drivers[i] == nil {
			continue
		}
		s.drivers[i].Disarm()
		if s.idle[i] == motion.IdlePowerDown {
			s.drivers[i].Disable()
		}
	}
	core.IrqRestore(state)
}
