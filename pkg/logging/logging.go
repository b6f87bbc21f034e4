// Package logging builds the process-wide zap logger. The terminal wizard
// renders everything through its own view and stays silent on the logger;
// the server, store, and sinks log structured events.
package logging

import (
	"go.uber.org/zap"
)

// New returns a production JSON logger, or a human-readable development
// logger when the --debug flag is set.
func New(debug bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
