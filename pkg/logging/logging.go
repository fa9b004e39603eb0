// Package logging defines the small leveled logging seam the rest of the
// supervisor is written against. Packages take a Logger and never a
// concrete backend; the zapsink subpackage provides the production one,
// and tests drop in no-op mocks.
package logging

const (
	LogLevelDebug = 0
	LogLevelInfo  = 1
	LogLevelWarn  = 2
	LogLevelError = 3
)

// Logger is the interface every supervisor component logs through.
type Logger interface {
	LogLevelf(level int, format string, args ...interface{})
	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})
}

type LogLevelFunc func(level int, format string, args ...interface{})
type LogFunc func(format string, args ...interface{})

// LogFuncs carries the backend entry points. LogLevelf, when set, receives
// every call; otherwise dispatch falls back to the per-level functions,
// and levels with no function are dropped.
type LogFuncs struct {
	LogLevelf LogLevelFunc
	Debugf    LogFunc
	Infof     LogFunc
	Warnf     LogFunc
	Errorf    LogFunc
}

// NewLogger returns a Logger that prepends prefix to every message before
// forwarding to funcs. Components identify themselves through the prefix,
// e.g. "module: depman , ".
func NewLogger(prefix string, funcs LogFuncs) Logger {
	return &prefixLogger{
		prefix: prefix,
		funcs:  funcs,
	}
}

type prefixLogger struct {
	prefix string
	funcs  LogFuncs
}

func (l *prefixLogger) forward(level int, msg string, args ...interface{}) {
	if l.prefix != "" {
		msg = l.prefix + msg
	}
	if l.funcs.LogLevelf != nil {
		l.funcs.LogLevelf(level, msg, args...)
		return
	}
	if fn := l.levelFunc(level); fn != nil {
		fn(msg, args...)
	}
}

func (l *prefixLogger) levelFunc(level int) LogFunc {
	switch level {
	case LogLevelDebug:
		return l.funcs.Debugf
	case LogLevelInfo:
		return l.funcs.Infof
	case LogLevelWarn:
		return l.funcs.Warnf
	case LogLevelError:
		return l.funcs.Errorf
	}
	return nil
}

func (l *prefixLogger) LogLevelf(level int, format string, args ...interface{}) {
	l.forward(level, format, args...)
}

func (l *prefixLogger) Debugf(msg string, args ...interface{}) {
	l.forward(LogLevelDebug, msg, args...)
}

func (l *prefixLogger) Infof(msg string, args ...interface{}) {
	l.forward(LogLevelInfo, msg, args...)
}

func (l *prefixLogger) Warnf(msg string, args ...interface{}) {
	l.forward(LogLevelWarn, msg, args...)
}

func (l *prefixLogger) Errorf(msg string, args ...interface{}) {
	l.forward(LogLevelError, msg, args...)
}
