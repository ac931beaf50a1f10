package mlog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type CoreConfig struct {
	OutputType  string
	OutputPath  string
	Level       string
	EncodeType  string
	EncodeColor bool
}

var (
	mu          sync.RWMutex
	coreConfigs []CoreConfig
)

// SetOutputTypes replaces the cores used by loggers created afterwards.
func SetOutputTypes(configs ...CoreConfig) {
	mu.Lock()
	defer mu.Unlock()
	coreConfigs = append(coreConfigs[:0], configs...)
}

func NewCore() zapcore.Core {
	mu.RLock()
	configs := coreConfigs
	mu.RUnlock()

	cores := make([]zapcore.Core, 0, len(configs))
	for _, cfg := range configs {
		var core zapcore.Core
		switch cfg.OutputType {
		case "file":
			core = FileCore(cfg)
		case "console":
			core = ConsoleCore(cfg)
		case "none":
			core = zapcore.NewNopCore()
		}

		if core != nil {
			cores = append(cores, core)
		}
	}

	if len(cores) == 0 {
		cores = append(cores, ConsoleCore(CoreConfig{EncodeColor: true}))
	}
	return zapcore.NewTee(cores...)
}

func encoder(cfg CoreConfig, caller bool) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		// Keys can be anything except the empty string.
		TimeKey:          "T",
		LevelKey:         "L",
		NameKey:          "N",
		FunctionKey:      zapcore.OmitKey,
		MessageKey:       "M",
		StacktraceKey:    "S",
		EncodeTime:       zapcore.RFC3339TimeEncoder,
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: "\t",
	}
	if caller {
		encoderConfig.CallerKey = "C"
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	}
	if cfg.EncodeColor {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if strings.ToLower(cfg.EncodeType) == "json" {
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func level(cfg CoreConfig) zap.AtomicLevel {
	lvl, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return lvl
}

func ConsoleCore(cfg CoreConfig) zapcore.Core {
	out := "stdout"
	if strings.ToLower(cfg.OutputPath) == "stderr" {
		out = "stderr"
	}
	writer, _, err := zap.Open(out)
	if err != nil {
		return nil
	}
	return zapcore.NewCore(encoder(cfg, true), writer, level(cfg))
}

func FileCore(cfg CoreConfig) zapcore.Core {
	// log files carry no caller, the embedded target has no source paths worth keeping
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
		return nil
	}
	writer, _, err := zap.Open(cfg.OutputPath)
	if err != nil {
		return nil
	}
	return zapcore.NewCore(encoder(cfg, false), writer, level(cfg))
}
