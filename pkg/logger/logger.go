package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// EnvLevel selects the minimum log level (debug, info, warn, error)
const EnvLevel = "CACHE_LOG_LEVEL"

func New(service string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.InitialFields = map[string]interface{}{"service": service}

	if raw := os.Getenv(EnvLevel); raw != "" {
		level, err := zap.ParseAtomicLevel(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvLevel, err)
		}
		cfg.Level = level
	}
	return cfg.Build()
}
