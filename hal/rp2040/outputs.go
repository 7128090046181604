//go:build rp2040

package rp2040

import (
	"machine"

	"github.com/sparques/pwm"

	"gostep/hal"
)

// Outputs drives the spindle through a PWM channel and the coolant relay
// through plain GPIO.
type Outputs struct {
	spindlePin machine.Pin
	coolantPin machine.Pin
	group      pwm.Group
	ch         uint8
	maxRPM     float64
}

var _ hal.Outputs = (*Outputs)(nil)

// NewOutputs configures the spindle PWM at the given carrier period and
// full-scale RPM.
func NewOutputs(spindlePin, coolantPin machine.Pin, periodNS uint64, maxRPM float64) (*Outputs, error) {
	o := &Outputs{spindlePin: spindlePin, coolantPin: coolantPin, maxRPM: maxRPM}

	o.coolantPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	o.coolantPin.Set(false)

	o.spindlePin.Configure(machine.PinConfig{Mode: machine.PinPWM})
	o.group = pwm.Get(spindlePin)
	if err := o.group.Configure(machine.PWMConfig{Period: periodNS}); err != nil {
		return nil, err
	}
	ch, err := o.group.Channel(spindlePin)
	if err != nil {
		return nil, err
	}
	o.ch = ch
	o.group.Set(o.ch, 0)
	return o, nil
}

func (o *Outputs) SetSpindle(on bool, rpm float64) {
	if !on || o.maxRPM <= 0 {
		o.group.Set(o.ch, 0)
		return
	}
	frac := rpm / o.maxRPM
	if frac > 1 {
		frac = 1
	}
	if frac < 0 {
		frac = 0
	}
	o.group.Set(o.ch, uint32(float64(o.group.Top())*frac))
}

func (o *Outputs) SetCoolant(on bool) {
	o.coolantPin.Set(on)
}
