// Package common provides shared wiring for command implementations.
package common

import (
	"fmt"

	"github.com/jonesrussell/promowatch/internal/config"
	"github.com/jonesrussell/promowatch/internal/logger"
)

// CommandDeps holds the dependencies every command starts from.
type CommandDeps struct {
	Logger logger.Interface
	Config *config.Config
}

// NewDeps loads the validated configuration and builds the logger.
func NewDeps(debug bool) (*CommandDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.App.Debug = true
	}

	level := cfg.Logger.Level
	if cfg.App.Debug {
		level = "debug"
	}
	log, err := logger.New(logger.Config{
		Level:       level,
		Development: cfg.App.Environment == "development",
		Encoding:    cfg.Logger.Encoding,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &CommandDeps{Logger: log, Config: cfg}, nil
}
