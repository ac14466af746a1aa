package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("parsing log level %q: %w", s, err)
	}
	return l, nil
}

// New builds a development-style logger at level writing to outputs (stderr when none).
func New(level string, outputs ...string) (*zap.SugaredLogger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Development = false
	if len(outputs) > 0 {
		cfg.OutputPaths = outputs
		cfg.ErrorOutputPaths = outputs
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return l.Sugar(), nil
}

// NewClient builds the initiating side's logger. The client's stderr is a proxied
// stream, so logging is off unless a level is given, and goes to file when one is set.
func NewClient(level, file string) (*zap.SugaredLogger, error) {
	if level == "" {
		return zap.NewNop().Sugar(), nil
	}
	if file == "" {
		return New(level)
	}
	return New(level, file)
}
