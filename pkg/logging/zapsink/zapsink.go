package zapsink

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/deploy-tools/depman-go/pkg/errors"
	"github.com/deploy-tools/depman-go/pkg/logging"
)

// Config describes the zap-backed logging sinks
type Config struct {
	// Minimum level: "debug", "info", "warn", "error". Empty means "info".
	Level string

	// Console enables a human-readable core on stderr
	Console bool

	// FilePath, if non-empty, adds an append-only file core. Every line
	// carries a timestamp and severity so the file doubles as the
	// deployment audit log.
	FilePath string
}

// Sink is a zap backend for the logging.Logger interface
type Sink struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
}

// New creates a zap-backed logger. The returned close function flushes
// buffered entries and must be called before process exit.
func New(config Config) (*Sink, func() error, error) {
	level, err := parseLevel(config.Level)
	if err != nil {
		return nil, nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var cores []zapcore.Core

	if config.Console {
		consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level))
	}

	if config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return nil, nil, errors.NewIOError("failed to create log directory", err).WithContext("path", config.FilePath)
		}
		// Append-only: concurrent writers rely on OS-level atomic append
		file, err := os.OpenFile(config.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, errors.NewIOError("failed to open log file", err).WithContext("path", config.FilePath)
		}
		fileEncoder := zapcore.NewConsoleEncoder(encoderConfig)
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(file), level))
	}

	if len(cores) == 0 {
		cores = append(cores, zapcore.NewNopCore())
	}

	zapLogger := zap.New(zapcore.NewTee(cores...))
	sink := &Sink{
		logger: zapLogger,
		sugar:  zapLogger.Sugar(),
	}
	return sink, zapLogger.Sync, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, errors.NewValidationError("invalid log level", nil).WithContext("level", level)
	}
}

// LogLevelf implements the leveled logging entry point
func (s *Sink) LogLevelf(level int, format string, args ...interface{}) {
	switch level {
	case logging.LogLevelDebug:
		s.sugar.Debugf(format, args...)
	case logging.LogLevelInfo:
		s.sugar.Infof(format, args...)
	case logging.LogLevelWarn:
		s.sugar.Warnf(format, args...)
	case logging.LogLevelError:
		s.sugar.Errorf(format, args...)
	}
}

// Debugf implements simple logging interface
func (s *Sink) Debugf(format string, args ...interface{}) {
	s.sugar.Debugf(format, args...)
}

// Infof implements simple logging interface
func (s *Sink) Infof(format string, args ...interface{}) {
	s.sugar.Infof(format, args...)
}

// Warnf implements simple logging interface
func (s *Sink) Warnf(format string, args ...interface{}) {
	s.sugar.Warnf(format, args...)
}

// Errorf implements simple logging interface
func (s *Sink) Errorf(format string, args ...interface{}) {
	s.sugar.Errorf(format, args...)
}
