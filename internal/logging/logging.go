package logging

import (
	"io"
	"log"
	"os"
)

// NewStdLogger returns a stdout logger with UTC timestamps.
func NewStdLogger(prefix string) *log.Logger {
	return log.New(os.Stdout, prefix, log.LstdFlags|log.LUTC)
}

// NewNopLogger returns a logger that discards everything. Useful in tests.
func NewNopLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
