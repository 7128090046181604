// Package hal abstracts the per-axis step/dir/enable hardware and the axis
// timers.  Platform drivers register concrete implementations; core code
// only talks to the interfaces.
package hal

// AxisDriver drives one axis: its output pins and its step timer.  All
// methods except Init are infallible, constant-time and callable from any
// priority level.
type AxisDriver interface {
	// Init claims pins and the timer channel.  Configuration errors are
	// only possible here.
	Init() error

	// SetDirection drives the direction line.  reverse is the logical
	// travel direction; polarity inversion happens in the caller.
	SetDirection(reverse bool)

	// Enable and Disable drive the motor enable line.
	Enable()
	Disable()

	// StepHigh and StepLow drive the step line edges.
	StepHigh()
	StepLow()

	// Arm starts the axis timer with the given period in ticks and
	// enables its interrupt.  Disarm stops it.
	Arm(period uint32)
	Disarm()

	// BindHandler attaches the timer overflow handler.  Called once at
	// engine init, before the first Arm.
	BindHandler(fn func())
}

// Outputs drives the auxiliary outputs switched by control blocks.
type Outputs interface {
	SetSpindle(on bool, rpm float64)
	SetCoolant(on bool)
}

// NullOutputs discards auxiliary output changes.
type NullOutputs struct{}

func (NullOutputs) SetSpindle(bool, float64) {}
func (NullOutputs) SetCoolant(bool)          {}
