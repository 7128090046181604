package stepgen

import (
	"math"
	"sync/atomic"

	"gostep/core"
	"gostep/motion"
)

// brakeDist returns the distance needed to decelerate from v to exit at
// accel a.  Zero when v is already at or below exit.
func brakeDist(v, exit, a float64) float64 {
	if v <= exit || a <= 0 {
		return 0
	}
	return (v*v - exit*exit) / (2 * a)
}

// exitTarget returns the speed the machine may carry out of the current
// block.  While the successor is not yet finalized the planner may still
// lower the junction, so the executor plans to a full stop.
func (e *Executor) exitTarget() float64 {
	exit, ok := e.queue.HeadExit()
	if !ok {
		return 0
	}
	return math.Min(exit, e.blk.CruiseV)
}

// nextVelocity picks the speed at the end of the upcoming segment: ramp
// toward cruise under the jerk-limited acceleration, hold cruise, or
// decelerate so the exit speed is met exactly at the end of the block.
func (e *Executor) nextVelocity(exit float64) float64 {
	blk := e.blk
	a := blk.Accel
	ts := e.segSecs

	// The braking window opens early enough for the deceleration ramp to
	// build under the jerk bound before full braking is needed.
	margin := e.v * ts
	if blk.Jerk > 0 {
		margin += e.v * (a / blk.Jerk)
	}
	if e.remaining <= brakeDist(e.v, exit, a)+margin {
		// Deceleration ramps in under the jerk bound the same way the
		// acceleration side does.
		if !e.braking {
			e.braking = true
			e.aCur = 0
		}
		if blk.Jerk > 0 {
			e.aCur = math.Min(a, e.aCur+blk.Jerk*ts)
		} else {
			e.aCur = a
		}
		return math.Max(exit, e.v-e.aCur*ts)
	}
	e.braking = false

	var cand float64
	if e.v < blk.CruiseV {
		// Accelerating.  The acceleration itself ramps in under the jerk
		// bound so the velocity profile has no corner at the segment rate.
		if blk.Jerk > 0 {
			e.aCur = math.Min(a, e.aCur+blk.Jerk*ts)
		} else {
			e.aCur = a
		}
		cand = math.Min(blk.CruiseV, e.v+e.aCur*ts)
	} else {
		cand = blk.CruiseV
		e.aCur = 0
	}

	cand = e.capToBrake(cand, exit)

	// A block entered at rest must still make progress.
	if cand <= vEpsExec && exit <= vEpsExec && e.remaining > 0 {
		cand = math.Min(blk.CruiseV, math.Max(a*ts, e.remaining/ts))
	}
	return cand
}

// capToBrake lowers the candidate end-of-segment speed so that after the
// segment the remaining distance still covers the braking distance to
// exit.  Solves (v+x)/2*ts + (x^2-exit^2)/(2a) = remaining for x.
func (e *Executor) capToBrake(cand, exit float64) float64 {
	a := e.blk.Accel
	ts := e.segSecs

	dseg := (e.v + cand) / 2 * ts
	if e.remaining-dseg >= brakeDist(cand, exit, a) {
		return cand
	}

	qa := 1 / (2 * a)
	qb := ts / 2
	qc := e.v*ts/2 - exit*exit/(2*a) - e.remaining
	disc := qb*qb - 4*qa*qc
	if disc <= 0 {
		return exit
	}
	x := (-qb + math.Sqrt(disc)) / (2 * qa)
	return math.Max(exit, math.Min(cand, x))
}

const vEpsExec = 1e-9

// emitMove slices the next segment off the current motion block.  Returns
// true when progress was made; the slot is only published when at least
// one axis stepped or the block finished.
func (e *Executor) emitMove(slot *motion.Segment) bool {
	*slot = motion.Segment{}
	blk := e.blk
	exit := e.exitTarget()

	vNext := e.nextVelocity(exit)
	dseg := (e.v + vNext) / 2 * e.segSecs
	ticks := e.segTicks
	final := false

	if dseg >= e.remaining-1e-9 || e.remaining < 1e-9 {
		// Final slice: stretch or shrink the duration so the block ends
		// exactly on its programmed step counts at the exit speed.
		final = true
		vNext = exit
		vAvg := (e.v + exit) / 2
		if vAvg < vEpsExec {
			vAvg = math.Max(e.remaining/e.segSecs, vEpsExec)
		}
		dseg = e.remaining
		ticks = core.TicksFromSeconds(e.remaining / vAvg)
		if ticks == 0 {
			ticks = 1
		}
	}

	newDone := e.done + dseg
	ratio := 1.0
	if !final && blk.LengthMM > 0 {
		ratio = newDone / blk.LengthMM
	}

	var delta motion.Steps
	stepped := false
	for i := 0; i < motion.NumAxes; i++ {
		total := blk.Steps[i]
		if total == 0 {
			continue
		}
		mag := total
		if mag < 0 {
			mag = -mag
		}
		target := mag
		if !final {
			target = int32(ratio*float64(mag) + 0.5)
			if target > mag {
				target = mag
			}
		}
		n := target - e.emitted[i]
		if n <= 0 {
			continue
		}
		if n > math.MaxUint16 {
			n = math.MaxUint16
			target = e.emitted[i] + n
		}

		period := ticks / uint32(n)
		if period == 0 {
			// Faster than the timer can pulse; the steps stay owed and
			// surface in a later segment.
			continue
		}
		postscale := uint32(1)
		for period > motion.MaxHWPeriod {
			period >>= 1
			postscale <<= 1
		}

		ax := &slot.Axes[i]
		ax.Steps = uint16(n)
		ax.Dir = total < 0
		ax.Period = period
		ax.Postscale = uint16(postscale)

		e.emitted[i] = target
		if total < 0 {
			delta[i] = -n
		} else {
			delta[i] = n
		}
		stepped = true
	}

	e.v = vNext
	e.done = newDone
	e.remaining = blk.LengthMM - newDone
	if e.remaining < 0 {
		e.remaining = 0
	}

	if !stepped && !final {
		// Too slow for a whole step this slice; fold the time into the
		// next segment instead of arming an empty one.
		return true
	}

	slot.Kind = motion.SegMove
	slot.Ticks = ticks
	slot.Last = final
	slot.Delta = delta
	e.buf.publish()

	if final {
		e.vCarry = exit
		e.blk = nil
		atomic.StoreUint32(&e.active, 0)
		e.queue.ReleaseHead()
	}
	return true
}
