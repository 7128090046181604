// Command stepd runs the motion pipeline on the host: simulated axis
// drivers, a wall-clock tick loop and a G-code console on stdin or a
// serial port.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/tarm/serial"
	"go.uber.org/zap/zapcore"

	"gostep/config"
	"gostep/core"
	"gostep/engine"
	"gostep/gcode"
	"gostep/hal"
	"gostep/logger"
	"gostep/motion"
	"gostep/planner"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "machine configuration (TOML)")
		port    = flag.String("port", "", "serial device for the G-code stream (default stdin)")
		baud    = flag.Int("baud", 115200, "serial baud rate")
		logFile = flag.String("log", "", "log file (rotated)")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := zapcore.InfoLevel
	if *verbose {
		level = zapcore.DebugLevel
	}
	log := logger.New(logger.Options{
		Level:      level,
		File:       *logFile,
		Color:      *port == "",
		MaxSizeMB:  10,
		MaxBackups: 3,
	})
	defer log.Sync()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatalw("configuration", "err", err)
		}
	}

	sched := &core.Scheduler{}
	var drivers [motion.NumAxes]hal.AxisDriver
	for i := 0; i < motion.NumAxes; i++ {
		if cfg.Axes[i].Mode != motion.AxisDisabled {
			drivers[i] = hal.NewSimDriver(sched)
		}
	}

	eng, err := engine.New(cfg, sched, drivers, &hal.SimOutputs{}, log)
	if err != nil {
		log.Fatalw("engine", "err", err)
	}
	eng.Start()

	// Drive the simulated tick clock from wall time.
	go func() {
		const step = time.Millisecond
		ticker := time.NewTicker(step)
		defer ticker.Stop()
		for range ticker.C {
			eng.Advance(core.TicksFromUS(uint32(step / time.Microsecond)))
		}
	}()

	in, out, err := openStream(*port, *baud)
	if err != nil {
		log.Fatalw("input", "port", *port, "err", err)
	}

	interp := gcode.NewInterp(eng, log)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			if !console(out, eng, line[1:]) {
				return
			}
			continue
		}
		resp := run(eng, interp, line)
		fmt.Fprintln(out, resp)
	}
	if err := scanner.Err(); err != nil {
		log.Errorw("input stream", "err", err)
	}
}

// run executes one G-code line, waiting out planner backpressure.
func run(eng *engine.Engine, interp *gcode.Interp, line string) string {
	for {
		resp, err := interp.Execute(line)
		if err == nil {
			return resp
		}
		if errors.Is(err, planner.ErrQueueFull) {
			time.Sleep(time.Millisecond)
			continue
		}
		return "error: " + err.Error()
	}
}

// console handles colon commands.  Returns false to exit.
func console(out io.Writer, eng *engine.Engine, line string) bool {
	args, err := shlex.Split(line)
	if err != nil || len(args) == 0 {
		fmt.Fprintln(out, "error: bad console command")
		return true
	}
	switch args[0] {
	case "status":
		pos := eng.MachinePosition()
		fmt.Fprintf(out, "busy=%v holding=%v free=%d fault=%v pos=%.3f/%.3f/%.3f\n",
			eng.IsBusy(), eng.Holding(), eng.QueueFreeCount(), eng.FaultErr(),
			pos[motion.AxisX], pos[motion.AxisY], pos[motion.AxisZ])
	case "hold":
		if err := eng.Hold(); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	case "resume":
		if err := eng.Resume(); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	case "reset":
		eng.Reset()
		fmt.Fprintln(out, "ok")
	case "quit", "exit":
		return false
	default:
		fmt.Fprintf(out, "error: unknown command %q\n", args[0])
	}
	return true
}

// openStream returns the G-code input and response output.
func openStream(port string, baud int) (io.Reader, io.Writer, error) {
	if port == "" {
		return os.Stdin, os.Stdout, nil
	}
	p, err := serial.OpenPort(&serial.Config{Name: port, Baud: baud})
	if err != nil {
		return nil, nil, err
	}
	return p, p, nil
}
