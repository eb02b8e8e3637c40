package logger

import (
	"os"
	"strings"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the contract of a leveled printf-style logger.
// A *zap.SugaredLogger satisfies it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Level is level of logger.
type Level int8

func (s Level) String() string {
	switch s {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

const (
	// LevelDebug is DEBUG level.
	LevelDebug Level = iota
	// LevelInfo is INFO level.
	LevelInfo
	// LevelWarn is WARN level.
	LevelWarn
	// LevelError is ERROR level.
	LevelError
)

type holder struct {
	l Logger
}

var (
	lvl     = atomic.NewInt32(int32(LevelInfo))
	current atomic.Value
	_def    = newDefault()
)

func init() {
	current.Store(holder{_def})
}

func newDefault() Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(os.Stderr),
		zapcore.DebugLevel,
	)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Named("rpc").Sugar()
}

// SetLevel set global log level.
// Available levels are `LevelDebug`, `LevelInfo`, `LevelWarn` and `LevelError`.
func SetLevel(level Level) {
	lvl.Store(int32(level))
}

// GetLevel returns current logger level.
func GetLevel() Level {
	return Level(lvl.Load())
}

// SetLogger customize the global logger.
// A nil logger restores the default zap console logger.
func SetLogger(logger Logger) {
	if logger == nil {
		logger = _def
	}
	current.Store(holder{logger})
}

// IsDebugEnabled returns true if debug level is open.
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func get() Logger {
	return current.Load().(holder).l
}

// trim drops a trailing newline.
func trim(format string) string {
	return strings.TrimSuffix(format, "\n")
}

// Debugf prints debug level log.
func Debugf(format string, v ...interface{}) {
	if GetLevel() > LevelDebug {
		return
	}
	get().Debugf(trim(format), v...)
}

// Infof prints info level log.
func Infof(format string, v ...interface{}) {
	if GetLevel() > LevelInfo {
		return
	}
	get().Infof(trim(format), v...)
}

// Warnf prints warn level log.
func Warnf(format string, v ...interface{}) {
	if GetLevel() > LevelWarn {
		return
	}
	get().Warnf(trim(format), v...)
}

// Errorf prints error level log.
func Errorf(format string, v ...interface{}) {
	get().Errorf(trim(format), v...)
}
