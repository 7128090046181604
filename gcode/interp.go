package gcode

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gostep/engine"
	"gostep/motion"
)

// Interp executes parsed commands against the motion engine.  It owns the
// modal state: feed, units, absolute/relative mode and the work offset.
type Interp struct {
	eng    *engine.Engine
	log    *zap.SugaredLogger
	parser *Parser

	feed     float64 // mm/s
	absolute bool
	inches   bool
	offset   motion.Vec // work = machine - offset
	target   motion.Vec // last commanded position, machine units
}

// NewInterp creates an interpreter over the engine.  Modal defaults are
// absolute millimeter mode.
func NewInterp(eng *engine.Engine, log *zap.SugaredLogger) *Interp {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Interp{
		eng:      eng,
		log:      log,
		parser:   NewParser(),
		absolute: true,
		target:   eng.MachinePosition(),
	}
}

var axisLetters = [motion.NumAxes]byte{'X', 'Y', 'Z', 'A', 'B', 'C'}

// Execute parses and runs one line.  The response is "ok" or a report;
// engine backpressure and faults surface as the error.
func (in *Interp) Execute(line string) (string, error) {
	cmd := in.parser.ParseLine(line)
	if cmd == nil || cmd.Letter == 0 {
		return "ok", nil
	}

	resp, err := in.dispatch(cmd)
	if err != nil {
		in.log.Debugw("line rejected", "line", line, "err", err)
	}
	return resp, err
}

func (in *Interp) dispatch(cmd *Command) (string, error) {
	switch cmd.Letter {
	case 'G':
		return in.execG(cmd)
	case 'M':
		return in.execM(cmd)
	case 'T':
		// Tool changes are a no-op without a changer.
		return "ok", nil
	}
	return "", fmt.Errorf("gcode: unsupported command %c%d", cmd.Letter, cmd.Number)
}

func (in *Interp) execG(cmd *Command) (string, error) {
	switch cmd.Number {
	case 0, 1:
		return in.move(cmd, cmd.Number == 0)
	case 4:
		secs := cmd.Get('P', 0)
		if cmd.Has('S') {
			secs = cmd.Get('S', 0)
		}
		return ok(in.eng.PlanDwell(secs))
	case 20:
		in.inches = true
		return "ok", nil
	case 21:
		in.inches = false
		return "ok", nil
	case 90:
		in.absolute = true
		return "ok", nil
	case 91:
		in.absolute = false
		return "ok", nil
	case 92:
		return in.setWork(cmd)
	}
	return "", fmt.Errorf("gcode: unsupported G%d", cmd.Number)
}

func (in *Interp) execM(cmd *Command) (string, error) {
	switch cmd.Number {
	case 0:
		return ok(in.eng.Hold())
	case 24:
		return ok(in.eng.Resume())
	case 2, 30:
		return ok(in.eng.ProgramEnd())
	case 3, 4:
		in.eng.SetSpindle(true, cmd.Get('S', 0))
		return "ok", nil
	case 5:
		in.eng.SetSpindle(false, 0)
		return "ok", nil
	case 7, 8:
		in.eng.SetCoolant(true)
		return "ok", nil
	case 9:
		in.eng.SetCoolant(false)
		return "ok", nil
	case 114:
		return in.report(), nil
	}
	return "", fmt.Errorf("gcode: unsupported M%d", cmd.Number)
}

// move builds the absolute machine-space target from the axis words and
// queues the line.
func (in *Interp) move(cmd *Command, rapid bool) (string, error) {
	target := in.target
	for i := 0; i < motion.NumAxes; i++ {
		if !cmd.Has(axisLetters[i]) {
			continue
		}
		v := in.scale(cmd.Get(axisLetters[i], 0))
		if in.absolute {
			target[i] = v + in.offset[i]
		} else {
			target[i] += v
		}
	}
	if cmd.Has('F') {
		// Feed words arrive in units per minute.
		in.feed = in.scale(cmd.Get('F', 0)) / 60.0
	}

	if err := in.eng.PlanLine(target, in.feed, rapid); err != nil {
		return "", err
	}
	in.target = target
	return "ok", nil
}

// setWork redefines the work coordinates without motion: the named axes
// read as the given values from here on.
func (in *Interp) setWork(cmd *Command) (string, error) {
	for i := 0; i < motion.NumAxes; i++ {
		if !cmd.Has(axisLetters[i]) {
			continue
		}
		in.offset[i] = in.target[i] - in.scale(cmd.Get(axisLetters[i], 0))
	}
	return "ok", nil
}

func (in *Interp) scale(v float64) float64 {
	if in.inches {
		return v * 25.4
	}
	return v
}

// report formats the M114 position response in work coordinates.
func (in *Interp) report() string {
	pos := in.eng.MachinePosition()
	var sb strings.Builder
	for i := 0; i < motion.NumAxes; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%c:%.3f", axisLetters[i], pos[i]-in.offset[i])
	}
	return sb.String()
}

func ok(err error) (string, error) {
	if err != nil {
		return "", err
	}
	return "ok", nil
}
