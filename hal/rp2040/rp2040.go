//go:build rp2040

// Package rp2040 drives axes on the RP2040.  Step pulses go through a PIO
// state machine so their width and spacing are hardware-timed; direction
// and enable are plain GPIO.  The axis timer is a core.Timer dispatched
// from the hardware alarm loop.
package rp2040

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"gostep/core"
)

// pulseProgram emits one fixed-width step pulse per FIFO word.  The word
// payload is ignored; pulse width is 8 PIO cycles at the configured clock
// divider.
func pulseProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),                   // pull block
		asm.Set(rp2pio.SetDestPins, 1).Delay(7).Encode(), // step high, 8 cycles
		asm.Set(rp2pio.SetDestPins, 0).Encode(),          // step low
		// .wrap
	}
}

const pulseOrigin = 0

// Driver is one axis: PIO pulse channel plus dir/enable GPIO.
type Driver struct {
	sched  *core.Scheduler
	timer  core.Timer
	fn     func()
	period uint32
	armed  bool
	armSeq uint32

	pio *rp2pio.PIO
	sm  rp2pio.StateMachine

	stepPin   machine.Pin
	dirPin    machine.Pin
	enablePin machine.Pin

	enableActiveLow bool
}

// NewDriver creates an axis driver on the given PIO block and state
// machine.  Four axes fit on one PIO.
func NewDriver(sched *core.Scheduler, pioNum, smNum uint8, stepPin, dirPin, enablePin machine.Pin, enableActiveLow bool) *Driver {
	p := rp2pio.PIO0
	if pioNum != 0 {
		p = rp2pio.PIO1
	}
	d := &Driver{
		sched:           sched,
		pio:             p,
		sm:              p.StateMachine(smNum),
		stepPin:         stepPin,
		dirPin:          dirPin,
		enablePin:       enablePin,
		enableActiveLow: enableActiveLow,
	}
	d.timer.Handler = d.onTimer
	return d
}

func (d *Driver) Init() error {
	d.dirPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.enablePin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.Disable()

	d.sm.TryClaim()
	program := pulseProgram()
	offset, err := d.pio.AddProgram(program, pulseOrigin)
	if err != nil {
		return err
	}
	d.stepPin.Configure(machine.PinConfig{Mode: d.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(d.stepPin, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(1, 0)

	d.sm.Init(offset, cfg)
	d.sm.SetPindirsConsecutive(d.stepPin, 1, true)
	d.sm.SetPinsConsecutive(d.stepPin, 1, false)
	d.sm.SetEnabled(true)
	return nil
}

func (d *Driver) SetDirection(reverse bool) { d.dirPin.Set(reverse) }

func (d *Driver) Enable()  { d.enablePin.Set(!d.enableActiveLow) }
func (d *Driver) Disable() { d.enablePin.Set(d.enableActiveLow) }

// StepHigh queues one hardware-timed pulse; StepLow is a no-op because
// the PIO program drops the line itself.
func (d *Driver) StepHigh() {
	for d.sm.IsTxFIFOFull() {
	}
	d.sm.TxPut(1)
}

func (d *Driver) StepLow() {}

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
