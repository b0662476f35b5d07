package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// setupLog discards logging unless LECTOR_LOGFILE points somewhere, in
// which case everything down to debug level is appended there. The
// returned closer must run before exit.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)
	logFile := os.Getenv("LECTOR_LOGFILE")
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec
		if err != nil {
			return nil, fmt.Errorf("error setting up logging: %w", err)
		}
		log.SetOutput(f)
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
		return f.Close, nil
	}
	return func() error { return nil }, nil
}
