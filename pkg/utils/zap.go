package utils

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const LogLevelEnv = "COLORCAM_LOG_LEVEL"

var (
	logger *zap.SugaredLogger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	if l, ok := ParseLevel(os.Getenv(LogLevelEnv)); ok {
		level.SetLevel(l)
	}
	logger = NewLogger()
}

func GetLogger() *zap.SugaredLogger {
	return logger
}

// SetLevel changes the level of every logger handed out by GetLogger.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// ParseLevel accepts a level name or its first letter:
// trace/debug, info, warning, error, critical.
func ParseLevel(s string) (zapcore.Level, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return zapcore.InfoLevel, false
	}
	switch s[0] {
	case 't', 'd':
		return zapcore.DebugLevel, true
	case 'i':
		return zapcore.InfoLevel, true
	case 'w':
		return zapcore.WarnLevel, true
	case 'e':
		return zapcore.ErrorLevel, true
	case 'c':
		return zapcore.DPanicLevel, true
	}
	return zapcore.InfoLevel, false
}

func NewLogger() *zap.SugaredLogger {
	cfg := zap.Config{
		Level:    level,
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:  "msg",
			LevelKey:    "level",
			TimeKey:     "time",
			EncodeLevel: zapcore.CapitalLevelEncoder,
			EncodeTime:  zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return l.Sugar()
}
