package main

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
)

// logEnv captures the logging-related environment.
type logEnv struct {
	LogFile string `env:"STRATUS_LOGFILE"`
	Debug   bool   `env:"DEBUG"`
}

// setupLog configures the global logger from the environment. Logs go to
// stderr unless STRATUS_LOGFILE points them at a file. The returned closer
// must be called before exit.
func setupLog() (func() error, error) {
	cfg, err := env.ParseAs[logEnv]()
	if err != nil {
		return nil, fmt.Errorf("error parsing log environment: %w", err)
	}

	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	if cfg.LogFile == "" {
		log.SetOutput(os.Stderr)
		return func() error { return nil }, nil
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	return f.Close, nil
}
