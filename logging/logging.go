// Package logging provides a small leveled logger for the ambient CLI and
// HTTP surfaces around the registration core. The core itself stays
// logger-free (it accepts an optional event-sink callback); this package is
// only for the collaborators wrapping it.
package logging

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a logging severity, ordered DEBUG < INFO < WARN < ERROR.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the canonical name of the level.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "Debug"
	case INFO:
		return "Info"
	case WARN:
		return "Warn"
	case ERROR:
		return "Error"
	default:
		return "Unknown"
	}
}

// ErrUnknownLevel marks a level name that does not parse.
var ErrUnknownLevel = errors.New("unknown log level")

// LevelFromString parses a level name, accepting "warning" as an alias for
// WARN and matching case-insensitively.
func LevelFromString(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	default:
		return 0, errors.Wrapf(ErrUnknownLevel, "%q", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (l Level) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.Errorf("logging: level %q is not a JSON string", data)
	}
	s = string(data[1 : len(data)-1])
	parsed, err := LevelFromString(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger is the leveled logger surface the CLI and HTTP layers depend on.
type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	// Sublogger returns a child logger whose lines are tagged with name,
	// used to scope output to a registration stage ("pca", "icp", "ransac")
	// or a surface ("httpapi").
	Sublogger(name string) Logger
}

type zapLogger struct {
	sugar *zap.SugaredLogger
	name  string
}

// New builds a Logger at the given minimum level, backed by zap.
func New(level Level) (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.EncoderConfig.TimeKey = "ts"
	z, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "logging: failed to build zap logger")
	}
	return &zapLogger{sugar: z.Sugar()}, nil
}

func (l *zapLogger) Debugf(template string, args ...interface{}) {
	l.sugar.Debugf(l.scoped(template), args...)
}

func (l *zapLogger) Infof(template string, args ...interface{}) {
	l.sugar.Infof(l.scoped(template), args...)
}

func (l *zapLogger) Warnf(template string, args ...interface{}) {
	l.sugar.Warnf(l.scoped(template), args...)
}

func (l *zapLogger) Errorf(template string, args ...interface{}) {
	l.sugar.Errorf(l.scoped(template), args...)
}

func (l *zapLogger) Sublogger(name string) Logger {
	full := name
	if l.name != "" {
		full = l.name + "." + name
	}
	return &zapLogger{sugar: l.sugar.Named(name), name: full}
}

func (l *zapLogger) scoped(template string) string {
	if l.name == "" {
		return template
	}
	return fmt.Sprintf("[%s] %s", l.name, template)
}
