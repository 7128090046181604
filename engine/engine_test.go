package engine

import (
	"errors"
	"math"
	"testing"

	"gostep/core"
	"gostep/hal"
	"gostep/motion"
	"gostep/planner"
)

func testConfig() *motion.MachineConfig {
	cfg := &motion.MachineConfig{
		JunctionDeviation: 0.05,
		MaxVelocity:       300,
		MaxAccel:          3000,
		DefaultFeed:       50,
		SegmentSeconds:    0.005,
		PulseWidthUS:      2,
	}
	for _, i := range []int{motion.AxisX, motion.AxisY, motion.AxisZ} {
		cfg.Axes[i] = motion.AxisConfig{
			Mode:         motion.AxisStandard,
			StepsPerUnit: 80,
			MaxVelocity:  300,
			MaxFeed:      200,
			MaxAccel:     3000,
		}
	}
	return cfg
}

func testEngine(t *testing.T, cfg *motion.MachineConfig) (*Engine, [motion.NumAxes]*hal.SimDriver, *hal.SimOutputs) {
	t.Helper()
	core.SetTime(0)
	sched := &core.Scheduler{}
	var sims [motion.NumAxes]*hal.SimDriver
	var drivers [motion.NumAxes]hal.AxisDriver
	for i := 0; i < motion.NumAxes; i++ {
		if cfg.Axes[i].Mode == motion.AxisDisabled {
			continue
		}
		sims[i] = hal.NewSimDriver(sched)
		drivers[i] = sims[i]
	}
	out := &hal.SimOutputs{}
	eng, err := New(cfg, sched, drivers, out, nil)
	if err != nil {
		t.Fatal(err)
	}
	eng.Start()
	return eng, sims, out
}

func TestSingleMove(t *testing.T) {
	eng, sims, _ := testEngine(t, testConfig())

	if err := eng.PlanLine(motion.Vec{10, 0, 0}, 50, false); err != nil {
		t.Fatal(err)
	}
	if !eng.AdvanceUntilIdle(core.TickRate * 5) {
		t.Fatal("move did not finish")
	}

	if got := sims[motion.AxisX].StepCount(); got != 800 {
		t.Errorf("x pulses = %d, want 800", got)
	}
	pos := eng.MachinePosition()
	if math.Abs(pos[motion.AxisX]-10) > 1.0/80 {
		t.Errorf("x position = %g, want 10", pos[motion.AxisX])
	}
}

func TestRoundTripReturnsToOrigin(t *testing.T) {
	eng, sims, _ := testEngine(t, testConfig())

	path := []motion.Vec{
		{10, 0, 0},
		{10, 10, 0},
		{0, 10, 0},
		{0, 0, 0},
	}
	for _, p := range path {
		if err := eng.PlanLine(p, 60, false); err != nil {
			t.Fatal(err)
		}
	}
	if !eng.AdvanceUntilIdle(core.TickRate * 10) {
		t.Fatal("path did not finish")
	}

	pos := eng.MachinePosition()
	for i := 0; i < motion.NumAxes; i++ {
		if pos[i] != 0 {
			t.Errorf("axis %s position = %g, want exactly 0", motion.AxisNames[i], pos[i])
		}
	}
	// Each axis saw 800 steps out and 800 back.
	if got := sims[motion.AxisX].StepCount(); got != 1600 {
		t.Errorf("x pulses = %d, want 1600", got)
	}
	if got := sims[motion.AxisY].StepCount(); got != 1600 {
		t.Errorf("y pulses = %d, want 1600", got)
	}
}

func TestRapidFasterThanFeed(t *testing.T) {
	eng, _, _ := testEngine(t, testConfig())

	if err := eng.PlanLine(motion.Vec{50, 0, 0}, 20, false); err != nil {
		t.Fatal(err)
	}
	start := core.GetTime()
	eng.AdvanceUntilIdle(core.TickRate * 20)
	feedTicks := core.GetTime() - start

	if err := eng.PlanLine(motion.Vec{0, 0, 0}, 0, true); err != nil {
		t.Fatal(err)
	}
	start = core.GetTime()
	eng.AdvanceUntilIdle(core.TickRate * 20)
	rapidTicks := core.GetTime() - start

	if rapidTicks >= feedTicks {
		t.Errorf("rapid (%d ticks) not faster than F20 feed (%d ticks)", rapidTicks, feedTicks)
	}
}

func TestHardTravelLimitRejects(t *testing.T) {
	cfg := testConfig()
	cfg.HardLimits = true
	cfg.Axes[motion.AxisX].TravelMin = 0
	cfg.Axes[motion.AxisX].TravelMax = 100
	eng, _, _ := testEngine(t, cfg)

	err := eng.PlanLine(motion.Vec{150, 0, 0}, 50, false)
	if !errors.Is(err, ErrTravelLimit) {
		t.Fatalf("err = %v, want ErrTravelLimit", err)
	}
	if eng.IsBusy() {
		t.Error("rejected move left the engine busy")
	}
}

func TestSoftTravelLimitClamps(t *testing.T) {
	cfg := testConfig()
	cfg.Axes[motion.AxisX].TravelMin = 0
	cfg.Axes[motion.AxisX].TravelMax = 100
	eng, _, _ := testEngine(t, cfg)

	if err := eng.PlanLine(motion.Vec{150, 0, 0}, 50, false); err != nil {
		t.Fatal(err)
	}
	if !eng.AdvanceUntilIdle(core.TickRate * 10) {
		t.Fatal("move did not finish")
	}
	pos := eng.MachinePosition()
	if math.Abs(pos[motion.AxisX]-100) > 1.0/80 {
		t.Errorf("x position = %g, want clamped to 100", pos[motion.AxisX])
	}
}

func TestQueueBackpressure(t *testing.T) {
	eng, _, _ := testEngine(t, testConfig())

	// Without time advancing, the pipeline can absorb only the queue plus
	// the segment ring before pushing back.
	sawFull := false
	x := 0.0
	for i := 0; i < 40; i++ {
		x += 0.5
		err := eng.PlanLine(motion.Vec{x, 0, 0}, 50, false)
		if errors.Is(err, planner.ErrQueueFull) {
			sawFull = true
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}
	if !sawFull {
		t.Fatal("never saw ErrQueueFull")
	}

	// Draining restores capacity.
	if !eng.AdvanceUntilIdle(core.TickRate * 30) {
		t.Fatal("backlog did not drain")
	}
	if err := eng.PlanLine(motion.Vec{x, 0, 0}, 50, false); err != nil {
		t.Fatalf("append after drain: %v", err)
	}
}

func TestHoldAndResume(t *testing.T) {
	eng, sims, _ := testEngine(t, testConfig())

	if err := eng.PlanLine(motion.Vec{5, 0, 0}, 50, false); err != nil {
		t.Fatal(err)
	}
	if err := eng.Hold(); err != nil {
		t.Fatal(err)
	}
	if err := eng.PlanLine(motion.Vec{10, 0, 0}, 50, false); err != nil {
		t.Fatal(err)
	}

	if eng.AdvanceUntilIdle(core.TickRate * 5) {
		t.Fatal("went idle through a feed hold")
	}
	if !eng.Holding() {
		t.Fatal("not holding")
	}
	if got := sims[motion.AxisX].StepCount(); got != 400 {
		t.Errorf("pulses at hold = %d, want 400", got)
	}

	if err := eng.Resume(); err != nil {
		t.Fatal(err)
	}
	if !eng.AdvanceUntilIdle(core.TickRate * 5) {
		t.Fatal("did not finish after resume")
	}
	if got := sims[motion.AxisX].StepCount(); got != 800 {
		t.Errorf("pulses after resume = %d, want 800", got)
	}
}

func TestProgramEndDiscardsAndSwitchesOutputsOff(t *testing.T) {
	eng, sims, out := testEngine(t, testConfig())

	eng.SetSpindle(true, 12000)
	eng.SetCoolant(true)

	if err := eng.PlanLine(motion.Vec{5, 0, 0}, 50, false); err != nil {
		t.Fatal(err)
	}
	if err := eng.ProgramEnd(); err != nil {
		t.Fatal(err)
	}
	if err := eng.PlanLine(motion.Vec{10, 0, 0}, 50, false); err != nil {
		t.Fatal(err)
	}

	if !eng.AdvanceUntilIdle(core.TickRate * 5) {
		t.Fatal("program end did not drain")
	}
	if got := sims[motion.AxisX].StepCount(); got != 400 {
		t.Errorf("pulses = %d, want 400 (post-end motion discarded)", got)
	}
	if out.SpindleOn || out.CoolantOn {
		t.Error("outputs still on after program end")
	}
}

func TestDwellBetweenMoves(t *testing.T) {
	eng, sims, _ := testEngine(t, testConfig())

	if err := eng.PlanLine(motion.Vec{2, 0, 0}, 50, false); err != nil {
		t.Fatal(err)
	}
	if err := eng.PlanDwell(0.1); err != nil {
		t.Fatal(err)
	}
	if err := eng.PlanLine(motion.Vec{4, 0, 0}, 50, false); err != nil {
		t.Fatal(err)
	}

	start := core.GetTime()
	if !eng.AdvanceUntilIdle(core.TickRate * 5) {
		t.Fatal("sequence did not finish")
	}
	if got := sims[motion.AxisX].StepCount(); got != 320 {
		t.Errorf("pulses = %d, want 320", got)
	}
	if elapsed := core.GetTime() - start; elapsed < core.TicksFromSeconds(0.1) {
		t.Errorf("sequence took %d ticks, dwell alone is %d", elapsed, core.TicksFromSeconds(0.1))
	}
}

func TestStepLineReleasedAfterDwell(t *testing.T) {
	eng, sims, _ := testEngine(t, testConfig())

	// Ending a move directly into a dwell and letting the queue run dry
	// must leave the step line low: the first pulse of the next move is a
	// fresh rising edge, not a continuation of a stuck-high line.
	if err := eng.PlanLine(motion.Vec{1, 0, 0}, 50, false); err != nil {
		t.Fatal(err)
	}
	if err := eng.PlanDwell(0.05); err != nil {
		t.Fatal(err)
	}
	if !eng.AdvanceUntilIdle(core.TickRate * 5) {
		t.Fatal("move and dwell did not finish")
	}
	if got := sims[motion.AxisX].StepCount(); got != 80 {
		t.Fatalf("pulses after first move = %d, want 80", got)
	}

	if err := eng.PlanLine(motion.Vec{2, 0, 0}, 50, false); err != nil {
		t.Fatal(err)
	}
	if !eng.AdvanceUntilIdle(core.TickRate * 5) {
		t.Fatal("second move did not finish")
	}
	if got := sims[motion.AxisX].StepCount(); got != 160 {
		t.Errorf("total pulses = %d, want 160", got)
	}
}

func TestFaultLatchesAndResetClears(t *testing.T) {
	eng, _, out := testEngine(t, testConfig())

	if err := eng.PlanLine(motion.Vec{10, 0, 0}, 50, false); err != nil {
		t.Fatal(err)
	}
	eng.Advance(core.TicksFromSeconds(0.02))

	bang := errors.New("endstop hit")
	eng.Fault(bang)

	if err := eng.PlanLine(motion.Vec{20, 0, 0}, 50, false); !errors.Is(err, bang) {
		t.Fatalf("planning after fault: err = %v, want wrapped %v", err, bang)
	}
	if eng.IsBusy() {
		t.Error("busy after fault abort")
	}
	if out.SpindleOn || out.CoolantOn {
		t.Error("outputs on after fault")
	}

	eng.Reset()
	if eng.FaultErr() != nil {
		t.Error("fault survived Reset")
	}
	if err := eng.PlanLine(motion.Vec{1, 0, 0}, 50, false); err != nil {
		t.Fatalf("planning after reset: %v", err)
	}
	if !eng.AdvanceUntilIdle(core.TickRate * 5) {
		t.Fatal("move after reset did not finish")
	}
}

func TestSetMachinePositionRequiresIdle(t *testing.T) {
	eng, _, _ := testEngine(t, testConfig())

	if err := eng.SetMachinePosition(motion.Vec{5, 5, 0}); err != nil {
		t.Fatal(err)
	}
	pos := eng.MachinePosition()
	if pos[motion.AxisX] != 5 || pos[motion.AxisY] != 5 {
		t.Errorf("position = %v, want x=5 y=5", pos)
	}

	if err := eng.PlanLine(motion.Vec{10, 5, 0}, 50, false); err != nil {
		t.Fatal(err)
	}
	if err := eng.SetMachinePosition(motion.Vec{}); !errors.Is(err, ErrNotIdle) {
		t.Fatalf("err = %v, want ErrNotIdle", err)
	}
}

func TestInhibitedAxisTracksWithoutPulses(t *testing.T) {
	cfg := testConfig()
	cfg.Axes[motion.AxisY].Mode = motion.AxisInhibited
	eng, sims, _ := testEngine(t, cfg)

	if err := eng.PlanLine(motion.Vec{10, 10, 0}, 50, false); err != nil {
		t.Fatal(err)
	}
	if !eng.AdvanceUntilIdle(core.TickRate * 5) {
		t.Fatal("move did not finish")
	}
	if got := sims[motion.AxisY].StepCount(); got != 0 {
		t.Errorf("inhibited axis pulsed %d times", got)
	}
	if got := sims[motion.AxisX].StepCount(); got != 800 {
		t.Errorf("x pulses = %d, want 800", got)
	}
}

func TestSlavedAxisMirrorsMaster(t *testing.T) {
	cfg := testConfig()
	cfg.Axes[motion.AxisA] = motion.AxisConfig{
		Mode:         motion.AxisSlaved,
		StepsPerUnit: 80,
		SlaveOf:      motion.AxisX,
		MaxAccel:     3000,
	}
	eng, sims, _ := testEngine(t, cfg)

	if err := eng.PlanLine(motion.Vec{10, 0, 0}, 50, false); err != nil {
		t.Fatal(err)
	}
	if !eng.AdvanceUntilIdle(core.TickRate * 5) {
		t.Fatal("move did not finish")
	}
	if x, a := sims[motion.AxisX].StepCount(), sims[motion.AxisA].StepCount(); x != a || a != 800 {
		t.Errorf("x pulses = %d, slave pulses = %d, want 800 each", x, a)
	}
}

func TestRadiusAxisStepScaling(t *testing.T) {
	cfg := testConfig()
	cfg.Axes[motion.AxisA] = motion.AxisConfig{
		Mode:         motion.AxisRadius,
		StepsPerUnit: 100, // steps per degree
		RadiusMM:     10,
		MaxAccel:     3000,
		MaxFeed:      200,
		MaxVelocity:  300,
	}
	eng, sims, _ := testEngine(t, cfg)

	// One full circumference of linear travel is one revolution.
	circ := 2 * math.Pi * 10
	if err := eng.PlanLine(motion.Vec{0, 0, 0, circ}, 50, false); err != nil {
		t.Fatal(err)
	}
	if !eng.AdvanceUntilIdle(core.TickRate * 20) {
		t.Fatal("move did not finish")
	}
	if got := sims[motion.AxisA].StepCount(); got != 36000 {
		t.Errorf("rotary pulses = %d, want 36000 (360 degrees)", got)
	}
}
