package cmd

import (
	"io"

	"github.com/charmbracelet/log"
)

// newLogger creates the command logger. Verbose lowers the level to debug,
// quiet raises it to warn.
func newLogger(w io.Writer) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	if quiet {
		level = log.WarnLevel
	}
	return log.NewWithOptions(w, log.Options{Level: level})
}
