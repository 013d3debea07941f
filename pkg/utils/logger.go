package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every entry logged by the poller binary.
const ServiceName = "blockpoller"

// NewSugaredLogger creates a sugared logger based on the verbose flag.
// Verbose selects the development config (console output, debug level);
// otherwise production JSON with ISO8601 timestamps is used. The service
// name and any extra key-value pairs are added to every entry.
func NewSugaredLogger(verbose bool, fields ...any) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l.Sugar().With(append([]any{"service", ServiceName}, fields...)...), nil
}
