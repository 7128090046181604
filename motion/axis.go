package motion

import "math"

// NumAxes is the number of logical axes the core supports.
const NumAxes = 6

// Axis indices.
const (
	AxisX = 0
	AxisY = 1
	AxisZ = 2
	AxisA = 3
	AxisB = 4
	AxisC = 5
)

// AxisNames maps axis index to its letter.
var AxisNames = [NumAxes]string{"x", "y", "z", "a", "b", "c"}

// Vec is a position or direction in machine units (mm, or degrees for
// rotary axes).
type Vec [NumAxes]float64

// Steps is a signed per-axis step count.
type Steps [NumAxes]int32

// AxisMode selects how an axis participates in motion.
type AxisMode uint8

const (
	AxisDisabled  AxisMode = iota // axis does not exist
	AxisStandard                  // normal operation
	AxisInhibited                 // position tracked, no pulses emitted
	AxisRadius                    // rotary axis mapped through a radius
	AxisSlaved                    // mirrors another axis (gantry)
)

// IdlePolicy selects what happens to the motor winding when motion stops.
type IdlePolicy uint8

const (
	IdleKeepPowered IdlePolicy = iota
	IdlePowerDown
)

// AxisConfig holds the runtime-readable parameters for one axis.  The core
// re-reads these at block admission only, so live changes take effect on
// the next planned block.
type AxisConfig struct {
	Mode         AxisMode
	StepsPerUnit float64 // steps per mm (or per degree for rotary axes)
	MaxVelocity  float64 // mm/s, rapid traverse ceiling
	MaxFeed      float64 // mm/s, feed move ceiling
	MaxAccel     float64 // mm/s^2
	MaxJerk      float64 // mm/s^3
	TravelMin    float64 // mm
	TravelMax    float64 // mm
	InvertDir    bool
	Microsteps   int
	IdlePolicy   IdlePolicy
	RadiusMM     float64 // AxisRadius: effective rotary radius
	SlaveOf      int     // AxisSlaved: master axis index

	StepPin   string
	DirPin    string
	EnablePin string
}

// EffectiveStepsPerUnit returns the steps-per-unit used for step
// decomposition.  Radius-mapped rotary axes convert linear units to
// degrees through the configured radius.
func (a *AxisConfig) EffectiveStepsPerUnit() float64 {
	if a.Mode == AxisRadius && a.RadiusMM > 0 {
		return a.StepsPerUnit * 360.0 / (2.0 * math.Pi * a.RadiusMM)
	}
	return a.StepsPerUnit
}

// MachineConfig holds the full runtime configuration the core consumes.
type MachineConfig struct {
	Axes [NumAxes]AxisConfig

	JunctionDeviation float64 // mm
	MaxVelocity       float64 // mm/s, machine ceiling
	MaxAccel          float64 // mm/s^2, default block acceleration
	MaxJerk           float64 // mm/s^3, default block jerk
	DefaultFeed       float64 // mm/s

	SegmentSeconds float64 // target motion segment duration
	PulseWidthUS   float64 // minimum step pulse high time
	HardLimits     bool    // end-stop hit is a fatal fault
}
