// Package engine assembles the motion pipeline: planner queue, executor,
// pulse engine and the shared scheduler, behind the producer-facing API
// the G-code layer and the console talk to.
package engine

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"gostep/core"
	"gostep/hal"
	"gostep/motion"
	"gostep/planner"
	"gostep/stepgen"
	"gostep/stepper"
)

var (
	// ErrNotIdle guards operations that require a quiet machine.
	ErrNotIdle = errors.New("engine: machine not idle")
	// ErrTravelLimit is returned when a hard-limited target leaves the
	// configured travel envelope.
	ErrTravelLimit = errors.New("engine: travel limit exceeded")
)

// Engine owns the pipeline and the machine position.  One engine per
// machine; all producer calls come from the foreground.
type Engine struct {
	cfg *motion.MachineConfig
	log *zap.SugaredLogger

	sched *core.Scheduler
	queue *planner.Queue
	pulse *stepper.Stepper
	exec  *stepgen.Executor
	out   hal.Outputs

	drivers [motion.NumAxes]hal.AxisDriver

	// pos is the committed machine position in steps, updated from the
	// segment-complete interrupt.  planned is the producer-side absolute
	// step target, so rounding never accumulates across moves.
	pos     motion.Steps
	planned motion.Steps

	fault error

	kick    core.Timer
	kickGap uint32
	running bool
}

// New wires the pipeline over the given drivers.  Drivers may be nil for
// absent axes; out may be nil.
func New(cfg *motion.MachineConfig, sched *core.Scheduler, drivers [motion.NumAxes]hal.AxisDriver, out hal.Outputs, log *zap.SugaredLogger) (*Engine, error) {
	if out == nil {
		out = hal.NullOutputs{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	e := &Engine{
		cfg:     cfg,
		log:     log,
		sched:   sched,
		queue:   planner.New(),
		out:     out,
		drivers: drivers,
	}
	e.queue.SetJunctionDeviation(cfg.JunctionDeviation)
	e.pulse = stepper.New(drivers, cfg)
	e.exec = stepgen.NewExecutor(e.queue, e.pulse, cfg)
	e.exec.SetCommitHook(e.commit)

	for i := 0; i < motion.NumAxes; i++ {
		if drivers[i] == nil {
			continue
		}
		if err := drivers[i].Init(); err != nil {
			return nil, fmt.Errorf("engine: init axis %s: %w", motion.AxisNames[i], err)
		}
	}

	e.kickGap = core.TicksFromSeconds(cfg.SegmentSeconds / 2)
	if e.kickGap == 0 {
		e.kickGap = 1
	}
	e.kick.Handler = func(t *core.Timer) uint8 {
		e.exec.Run()
		t.WakeTime += e.kickGap
		return core.SF_RESCHEDULE
	}
	return e, nil
}

// Start arms the periodic executor kick.
func (e *Engine) Start() {
	if e.running {
		return
	}
	e.running = true
	e.kick.WakeTime = core.GetTime() + e.kickGap
	e.sched.Schedule(&e.kick)
	e.log.Infow("engine started", "segment_s", e.cfg.SegmentSeconds, "tick_rate", core.TickRate)
}

// Stop cancels the executor kick.  Queued motion stays queued.
func (e *Engine) Stop() {
	if !e.running {
		return
	}
	e.running = false
	e.sched.Cancel(&e.kick)
}

// commit folds a completed segment into the machine position.  Runs in
// interrupt context.
func (e *Engine) commit(delta motion.Steps, last bool) {
	state := core.IrqDisable()
	for i := 0; i < motion.NumAxes; i++ {
		e.pos[i] += delta[i]
	}
	core.IrqRestore(state)
	_ = last
}

// MachinePosition returns the committed position in machine units.
func (e *Engine) MachinePosition() motion.Vec {
	state := core.IrqDisable()
	pos := e.pos
	core.IrqRestore(state)

	var out motion.Vec
	for i := 0; i < motion.NumAxes; i++ {
		spu := e.cfg.Axes[i].EffectiveStepsPerUnit()
		if spu > 0 {
			out[i] = float64(pos[i]) / spu
		}
	}
	return out
}

// SetMachinePosition redefines the current position.  Only legal while
// nothing is queued or moving.
func (e *Engine) SetMachinePosition(p motion.Vec) error {
	if e.IsBusy() {
		return ErrNotIdle
	}
	var steps motion.Steps
	for i := 0; i < motion.NumAxes; i++ {
		spu := e.cfg.Axes[i].EffectiveStepsPerUnit()
		if spu > 0 {
			steps[i] = int32(math.Round(p[i] * spu))
		}
	}
	state := core.IrqDisable()
	e.pos = steps
	core.IrqRestore(state)
	e.planned = steps
	return nil
}

// IsBusy reports whether any motion is queued or executing.
func (e *Engine) IsBusy() bool {
	return e.queue.Len() > 0 || e.exec.Busy()
}

// Holding reports whether a feed hold is in effect.
func (e *Engine) Holding() bool {
	return e.exec.Holding()
}

// QueueFreeCount returns how many more blocks the planner accepts.
func (e *Engine) QueueFreeCount() int {
	return e.queue.FreeCount()
}

// Fault latches a fatal fault: motion aborts, outputs switch off and every
// planning call fails until Reset.
func (e *Engine) Fault(err error) {
	if e.fault != nil {
		return
	}
	e.fault = err
	e.exec.Halt()
	e.out.SetSpindle(false, 0)
	e.out.SetCoolant(false)
	e.syncPlanned()
	e.log.Errorw("fault latched", "err", err)
}

// FaultErr returns the latched fault, or nil.
func (e *Engine) FaultErr() error {
	return e.fault
}

// Reset clears a latched fault and aborts anything still queued.  The
// committed position survives.
func (e *Engine) Reset() {
	e.exec.Halt()
	e.fault = nil
	e.syncPlanned()
	e.log.Infow("engine reset")
}

// syncPlanned realigns the producer-side target with the committed
// position after an abort.
func (e *Engine) syncPlanned() {
	state := core.IrqDisable()
	pos := e.pos
	core.IrqRestore(state)
	e.planned = pos
}

// SetSpindle switches the spindle output.
func (e *Engine) SetSpindle(on bool, rpm float64) {
	e.out.SetSpindle(on, rpm)
}

// SetCoolant switches the coolant output.
func (e *Engine) SetCoolant(on bool) {
	e.out.SetCoolant(on)
}

// Advance runs the simulated clock forward by ticks, dispatching every
// timer that comes due on the way.  Host builds only; on hardware the
// timer peripheral drives the scheduler.
func (e *Engine) Advance(ticks uint32) {
	target := core.GetTime() + ticks
	for {
		wake, ok := e.sched.NextWake()
		if !ok || int32(wake-target) > 0 {
			break
		}
		if int32(wake-core.GetTime()) > 0 {
			core.SetTime(wake)
		}
		e.sched.Dispatch(core.GetTime())
	}
	core.SetTime(target)
}

// AdvanceUntilIdle keeps advancing in segment-sized slices until the
// machine goes quiet or maxTicks elapse.  Returns whether it went idle.
func (e *Engine) AdvanceUntilIdle(maxTicks uint32) bool {
	slice := e.kickGap
	for spent := uint32(0); spent < maxTicks; spent += slice {
		if !e.IsBusy() {
			return true
		}
		e.Advance(slice)
	}
	return !e.IsBusy()
}
