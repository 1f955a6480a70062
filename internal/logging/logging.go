// Package logging provides the thin zap wrapper used by the CLI for
// diagnostics only — nothing it emits ever feeds back into a hash or a
// gate decision. Grounded on the teacher-adjacent pack sibling
// octoreflex/cmd/octoreflex/main.go's buildLogger (level from a string,
// console vs. production/JSON encoding chosen by a format flag).
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger at the given level ("debug", "info", "warn",
// "error") in either "console" (human-readable, for a terminal) or "json"
// (the default, for log aggregation) format.
func New(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if level == "" {
		level = "info"
	}
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("logging: invalid level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	return cfg.Build()
}

// Op returns a child logger scoped to one op id.
func Op(log *zap.Logger, opID string) *zap.Logger {
	return log.With(zap.String("op_id", opID))
}

// Batch returns a child logger scoped to one batch index.
func Batch(log *zap.Logger, index int) *zap.Logger {
	return log.With(zap.Int("batch_index", index))
}
