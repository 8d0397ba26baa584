package rcf

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel specifies the level of spew that should go to the log.
type LogLevel int

const (
	// LogLevelUnknown is the default value for LogLevel. Its behavior is undefined.
	LogLevelUnknown LogLevel = iota
	// LogLevelPanic causes output of an error message followed by a panic.
	LogLevelPanic
	// LogLevelFatal causes output of an error message followed by os.Exit(1).
	LogLevelFatal
	// LogLevelError is for unexpected error messages.
	LogLevelError
	// LogLevelWarning is for warning messages.
	LogLevelWarning
	// LogLevelInfo is for info messages.
	LogLevelInfo
	// LogLevelDebug is for debug messages.
	LogLevelDebug
	// LogLevelTrace is for trace messages.
	LogLevelTrace
)

var logLevelNames = [...]string{
	"unknown", "panic", "fatal", "error", "warning", "info", "debug", "trace",
}

var nameToLogLevel = func() map[string]LogLevel {
	m := make(map[string]LogLevel)
	for i, name := range logLevelNames {
		m[name] = LogLevel(i)
	}
	return m
}()

// StringToLogLevel converts a string to a LogLevel.
func StringToLogLevel(s string) LogLevel {
	result, ok := nameToLogLevel[strings.ToLower(s)]
	if !ok {
		result = LogLevelUnknown
	}
	return result
}

func (x *LogLevel) String() string {
	y := *x
	if y < LogLevelUnknown || y > LogLevelTrace {
		y = LogLevelUnknown
	}
	return logLevelNames[y]
}

// FromString initializes a LogLevel from a string.
func (x *LogLevel) FromString(s string) error {
	result := StringToLogLevel(s)
	if result == LogLevelUnknown {
		return fmt.Errorf("unknown log level: %q", s)
	}
	*x = result
	return nil
}

func (x LogLevel) zapLevel() zapcore.Level {
	switch x {
	case LogLevelPanic:
		return zapcore.PanicLevel
	case LogLevelFatal:
		return zapcore.FatalLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	case LogLevelWarning:
		return zapcore.WarnLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	case LogLevelDebug, LogLevelTrace:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger is RCF's component logging interface: level-checked, prefix-forking,
// and able to mint error values that carry its own prefix. Every long-lived
// RCF object (Session, ClientStub, transport, endpoint, service) embeds a
// forked Logger under its own component name.
type Logger interface {
	// Log emits args at logLevel if enabled, panicking or exiting for
	// LogLevelPanic/LogLevelFatal.
	Log(logLevel LogLevel, args ...interface{})
	Logf(logLevel LogLevel, f string, args ...interface{})

	Panic(args ...interface{})
	Panicf(f string, args ...interface{})
	PanicOnError(err error)
	Fatal(args ...interface{})
	Fatalf(f string, args ...interface{})

	ELog(args ...interface{})
	ELogf(f string, args ...interface{})
	WLog(args ...interface{})
	WLogf(f string, args ...interface{})
	ILog(args ...interface{})
	ILogf(f string, args ...interface{})
	DLog(args ...interface{})
	DLogf(f string, args ...interface{})
	TLog(args ...interface{})
	TLogf(f string, args ...interface{})

	// Error returns an error whose message carries this Logger's prefix.
	Error(args ...interface{}) error
	Errorf(f string, args ...interface{}) error

	// Fork returns a new Logger whose prefix is this Logger's prefix plus
	// the given suffix, joined by ": ".
	Fork(prefix string, args ...interface{}) Logger

	Prefix() string
	GetLogLevel() LogLevel
	SetLogLevel(logLevel LogLevel)
}

// zapLogger is the Logger implementation backed by go.uber.org/zap, RCF's
// structured-logging sink (see DESIGN.md Ambient stack).
type zapLogger struct {
	z        *zap.SugaredLogger
	prefix   string
	prefixC  string
	logLevel LogLevel
}

// NewLogger creates a root Logger at the given level, backed by a production
// zap logger writing structured output to stderr.
func NewLogger(prefix string, logLevel LogLevel) Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(logLevel.zapLevel())
	cfg.OutputPaths = []string{"stderr"}
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// zap construction only fails on invalid config we control, but in
		// case it ever does, fall back to zap's bare example logger rather
		// than leaving RCF silent.
		z = zap.NewExample()
	}
	return newZapLogger(z.Sugar(), prefix, logLevel)
}

func newZapLogger(z *zap.SugaredLogger, prefix string, logLevel LogLevel) Logger {
	prefixC := prefix
	if prefixC != "" {
		prefixC += ": "
	}
	return &zapLogger{z: z, prefix: prefix, prefixC: prefixC, logLevel: logLevel}
}

func (l *zapLogger) Sprint(args ...interface{}) string {
	return l.prefixC + fmt.Sprint(args...)
}

func (l *zapLogger) Sprintf(f string, args ...interface{}) string {
	return l.prefixC + fmt.Sprintf(f, args...)
}

func (l *zapLogger) Log(logLevel LogLevel, args ...interface{}) {
	l.emit(logLevel, l.Sprint(args...))
}

func (l *zapLogger) Logf(logLevel LogLevel, f string, args ...interface{}) {
	l.emit(logLevel, l.Sprintf(f, args...))
}

func (l *zapLogger) emit(logLevel LogLevel, msg string) {
	if logLevel > l.logLevel && logLevel > LogLevelFatal {
		return
	}
	switch logLevel {
	case LogLevelPanic:
		l.z.Panic(msg)
	case LogLevelFatal:
		l.z.Fatal(msg)
	case LogLevelError:
		l.z.Error(msg)
	case LogLevelWarning:
		l.z.Warn(msg)
	case LogLevelInfo:
		l.z.Info(msg)
	case LogLevelDebug, LogLevelTrace:
		l.z.Debug(msg)
	default:
		l.z.Info(msg)
	}
}

func (l *zapLogger) Panic(args ...interface{})            { l.Log(LogLevelPanic, args...) }
func (l *zapLogger) Panicf(f string, args ...interface{}) { l.Logf(LogLevelPanic, f, args...) }

func (l *zapLogger) PanicOnError(err error) {
	if err != nil {
		l.Panic(err)
	}
}

func (l *zapLogger) Fatal(args ...interface{})            { l.Log(LogLevelFatal, args...) }
func (l *zapLogger) Fatalf(f string, args ...interface{}) { l.Logf(LogLevelFatal, f, args...) }

func (l *zapLogger) ELog(args ...interface{})            { l.Log(LogLevelError, args...) }
func (l *zapLogger) ELogf(f string, args ...interface{}) { l.Logf(LogLevelError, f, args...) }
func (l *zapLogger) WLog(args ...interface{})            { l.Log(LogLevelWarning, args...) }
func (l *zapLogger) WLogf(f string, args ...interface{}) { l.Logf(LogLevelWarning, f, args...) }
func (l *zapLogger) ILog(args ...interface{})            { l.Log(LogLevelInfo, args...) }
func (l *zapLogger) ILogf(f string, args ...interface{}) { l.Logf(LogLevelInfo, f, args...) }
func (l *zapLogger) DLog(args ...interface{})            { l.Log(LogLevelDebug, args...) }
func (l *zapLogger) DLogf(f string, args ...interface{}) { l.Logf(LogLevelDebug, f, args...) }
func (l *zapLogger) TLog(args ...interface{})            { l.Log(LogLevelTrace, args...) }
func (l *zapLogger) TLogf(f string, args ...interface{}) { l.Logf(LogLevelTrace, f, args...) }

func (l *zapLogger) Error(args ...interface{}) error {
	return errors.New(l.Sprint(args...))
}

func (l *zapLogger) Errorf(f string, args ...interface{}) error {
	return errors.New(l.Sprintf(f, args...))
}

func (l *zapLogger) Fork(prefix string, args ...interface{}) Logger {
	args = append([]interface{}{l.prefix}, args...)
	newPrefix := fmt.Sprintf("%s: "+prefix, args...)
	return newZapLogger(l.z, newPrefix, l.logLevel)
}

func (l *zapLogger) Prefix() string { return l.prefix }

func (l *zapLogger) GetLogLevel() LogLevel { return l.logLevel }

func (l *zapLogger) SetLogLevel(logLevel LogLevel) { l.logLevel = logLevel }
