package mlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.SugaredLogger
}

func New(name string) *Logger {
	return NewWithCore(name, NewCore())
}

// NewWithCore builds a named logger on top of an explicit core.
func NewWithCore(name string, core zapcore.Core) *Logger {
	logger := zap.New(core, zap.AddCaller())
	return &Logger{logger.Sugar().Named(name)}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

// Named returns a child logger, e.g. "netif" -> "netif.e0".
func (l *Logger) Named(name string) *Logger {
	return &Logger{l.SugaredLogger.Named(name)}
}
