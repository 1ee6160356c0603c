// Package logging builds the console loggers used by the promptdemo commands.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	grey          = "\033[38;5;240m"
	boldLightGrey = "\033[1;38;5;240m"
	red           = "\033[38;5;9m"
	yellow        = "\033[38;5;11m"
	reset         = "\033[0m"
)

// fullLineColorLevelEncoder colors the entire line by level. The color is
// reset by the encoder's line ending.
func fullLineColorLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var color string
	switch l {
	case zapcore.DebugLevel:
		color = grey
	case zapcore.InfoLevel:
		color = boldLightGrey
	case zapcore.WarnLevel:
		color = yellow
	default:
		color = red
	}
	enc.AppendString(color + l.CapitalString())
}

// Level returns the level selected by the verbosity flags: Warn by default,
// Info when verbose, Debug when debug.
func Level(verbose, debug bool) zapcore.Level {
	switch {
	case debug:
		return zapcore.DebugLevel
	case verbose:
		return zapcore.InfoLevel
	}
	return zapcore.WarnLevel
}

// NewLogger returns a console logger writing to stderr (os.Stderr if nil).
// Colors are used only if color is true.
func NewLogger(stderr io.Writer, verbose, debug, color bool) *zap.SugaredLogger {
	if stderr == nil {
		stderr = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.LevelKey = "L"
	encCfg.NameKey = "N"
	encCfg.MessageKey = "M"
	encCfg.StacktraceKey = "S"
	encCfg.FunctionKey = ""
	encCfg.CallerKey = ""
	encCfg.ConsoleSeparator = " "
	encCfg.EncodeDuration = zapcore.StringDurationEncoder
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if color {
		encCfg.EncodeLevel = fullLineColorLevelEncoder
		encCfg.LineEnding = reset + zapcore.DefaultLineEnding
	}

	var opts []zap.Option
	if debug {
		encCfg.CallerKey = "C"
		opts = append(opts, zap.AddCaller())
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(stderr), Level(verbose, debug))
	return zap.New(core, opts...).Sugar()
}
