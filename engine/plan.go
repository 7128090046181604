package engine

import (
	"errors"
	"fmt"
	"math"

	"gostep/core"
	"gostep/motion"
	"gostep/planner"
)

// PlanLine queues a straight move to the absolute target.  feed is the
// requested speed in machine units per second; rapid moves ignore it and
// run at the traverse ceiling.  A full queue surfaces as
// planner.ErrQueueFull and the caller retries; a sub-step move is
// silently absorbed into the next target.
func (e *Engine) PlanLine(target motion.Vec, feed float64, rapid bool) error {
	if e.fault != nil {
		return fmt.Errorf("engine: faulted: %w", e.fault)
	}

	tgtSteps, err := e.resolveTarget(target)
	if err != nil {
		return err
	}

	var blk motion.Block
	var deltaMM motion.Vec
	moving := false
	for i := 0; i < motion.NumAxes; i++ {
		ax := &e.cfg.Axes[i]
		d := tgtSteps[i] - e.planned[i]
		if d == 0 {
			continue
		}
		moving = true
		spu := ax.EffectiveStepsPerUnit()
		switch ax.Mode {
		case motion.AxisInhibited:
			// Position advances, pulses stay suppressed.
			deltaMM[i] = float64(d) / spu
		case motion.AxisSlaved:
			// Gantry follower: steps yes, geometry no.
			blk.Steps[i] = d
		default:
			blk.Steps[i] = d
			deltaMM[i] = float64(d) / spu
		}
	}
	if !moving {
		return nil
	}

	length := 0.0
	for i := 0; i < motion.NumAxes; i++ {
		length += deltaMM[i] * deltaMM[i]
	}
	length = math.Sqrt(length)
	if length <= 0 {
		// Only slaved steps moved; nothing to plan against.
		return nil
	}

	for i := 0; i < motion.NumAxes; i++ {
		blk.Unit[i] = deltaMM[i] / length
	}
	blk.LengthMM = length

	blk.FeedCap, blk.Accel, blk.Jerk = e.kinematicCaps(&blk.Unit, feed, rapid)
	blk.CruiseV = blk.FeedCap
	if rapid {
		blk.Type = motion.BlockRapid
	} else {
		blk.Type = motion.BlockFeed
	}

	if err := e.queue.TryAppend(&blk); err != nil {
		if errors.Is(err, planner.ErrZeroLength) {
			return nil
		}
		return err
	}
	e.planned = tgtSteps
	e.exec.Run()
	return nil
}

// resolveTarget turns an absolute target in machine units into absolute
// step counts, applying slaving, travel limits and disabled axes.
func (e *Engine) resolveTarget(target motion.Vec) (motion.Steps, error) {
	steps := e.planned
	for i := 0; i < motion.NumAxes; i++ {
		ax := &e.cfg.Axes[i]
		if ax.Mode == motion.AxisDisabled {
			continue
		}
		pos := target[i]
		if ax.Mode == motion.AxisSlaved {
			m := ax.SlaveOf
			if m < 0 || m >= motion.NumAxes || m == i {
				continue
			}
			pos = target[m]
		}
		if ax.TravelMax > ax.TravelMin {
			if pos < ax.TravelMin || pos > ax.TravelMax {
				if e.cfg.HardLimits {
					return steps, fmt.Errorf("%w: %s=%g outside [%g, %g]",
						ErrTravelLimit, motion.AxisNames[i], pos, ax.TravelMin, ax.TravelMax)
				}
				pos = math.Min(math.Max(pos, ax.TravelMin), ax.TravelMax)
			}
		}
		spu := ax.EffectiveStepsPerUnit()
		if spu <= 0 {
			continue
		}
		steps[i] = int32(math.Round(pos * spu))
	}
	return steps, nil
}

// kinematicCaps projects the per-axis velocity, acceleration and jerk
// limits onto the move direction and folds in the requested feed.
func (e *Engine) kinematicCaps(unit *motion.Vec, feed float64, rapid bool) (vmax, accel, jerk float64) {
	vmax = e.cfg.MaxVelocity
	accel = e.cfg.MaxAccel
	jerk = e.cfg.MaxJerk

	for i := 0; i < motion.NumAxes; i++ {
		u := math.Abs(unit[i])
		if u < 1e-12 {
			continue
		}
		ax := &e.cfg.Axes[i]
		axV := ax.MaxFeed
		if rapid {
			axV = ax.MaxVelocity
		}
		if axV > 0 {
			vmax = math.Min(vmax, axV/u)
		}
		if ax.MaxAccel > 0 {
			accel = math.Min(accel, ax.MaxAccel/u)
		}
		if ax.MaxJerk > 0 {
			jerk = math.Min(jerk, ax.MaxJerk/u)
		}
	}

	if !rapid {
		if feed <= 0 {
			feed = e.cfg.DefaultFeed
		}
		if feed > 0 {
			vmax = math.Min(vmax, feed)
		}
	}
	return vmax, accel, jerk
}

// PlanDwell queues a pause of the given duration.  Motion before it ramps
// to a stop; motion after it starts from rest.
func (e *Engine) PlanDwell(seconds float64) error {
	if e.fault != nil {
		return fmt.Errorf("engine: faulted: %w", e.fault)
	}
	if seconds <= 0 {
		return nil
	}
	blk := motion.Block{Type: motion.BlockDwell, DwellTicks: core.TicksFromSeconds(seconds)}
	if err := e.queue.TryAppend(&blk); err != nil {
		return err
	}
	e.exec.Run()
	return nil
}

// Hold queues a feed hold.  Preceding motion decelerates to a stop, then
// the executor parks until Resume.
func (e *Engine) Hold() error {
	return e.planControl(motion.BlockHold)
}

// Resume releases a feed hold.  It takes effect immediately rather than
// through the queue; with no hold in effect it does nothing.
func (e *Engine) Resume() error {
	if e.fault != nil {
		return fmt.Errorf("engine: faulted: %w", e.fault)
	}
	e.exec.ReleaseHold()
	return nil
}

// ProgramEnd queues an end marker: preceding motion completes, everything
// after it is discarded and the motors follow their idle policy.
func (e *Engine) ProgramEnd() error {
	if err := e.planControl(motion.BlockEnd); err != nil {
		return err
	}
	e.out.SetSpindle(false, 0)
	e.out.SetCoolant(false)
	return nil
}

func (e *Engine) planControl(t motion.BlockType) error {
	if e.fault != nil {
		return fmt.Errorf("engine: faulted: %w", e.fault)
	}
	blk := motion.Block{Type: t}
	if err := e.queue.TryAppend(&blk); err != nil {
		return err
	}
	e.exec.Run()
	return nil
}
