// Package logger builds the zap logger the firmware logs through: console
// plus a size-rotated file, with entries from interrupt context dropped
// instead of blocking the dispatch path.
package logger

import (
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gostep/core"
)

// Options selects sinks and verbosity.
type Options struct {
	Level      zapcore.Level
	File       string // empty disables the file sink
	Color      bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds the logger.  With a zero Options value it logs to stdout at
// info level.
func New(opts Options) *zap.SugaredLogger {
	encCfg := zapcore.EncoderConfig{
		MessageKey:       "message",
		LevelKey:         "level",
		TimeKey:          "time",
		CallerKey:        "caller",
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: " ",
	}
	if opts.Color {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encoder := zapcore.NewConsoleEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), opts.Level),
	}
	if opts.File != "" {
		sink := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			LocalTime:  true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(sink), opts.Level))
	}

	c := irqGate{zapcore.NewTee(cores...)}
	return zap.New(c, zap.AddCaller()).Sugar()
}

// Nop returns a logger that discards everything.  Tests use it.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// irqGate drops log entries emitted from interrupt context.  The sinks
// take locks and may block, neither of which the dispatch path tolerates.
type irqGate struct {
	zapcore.Core
}

func (g irqGate) With(fields []zapcore.Field) zapcore.Core {
	return irqGate{g.Core.With(fields)}
}

func (g irqGate) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if core.InIrq() {
		return ce
	}
	if g.Enabled(ent.Level) {
		return ce.AddCore(ent, g)
	}
	return ce
}
