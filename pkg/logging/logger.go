package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the root logger for the given environment. Local
// environments get human-readable console output; everything else gets
// production JSON.
func NewLogger(env string) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if env == "local" || env == "test" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
