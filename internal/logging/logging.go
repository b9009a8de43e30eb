// Package logging builds the process loggers.
//
// Each subsystem gets a *log.Logger with a bracketed prefix so grep can
// follow one component through a shared log file. When a log file is
// configured it rotates via lumberjack; otherwise everything goes to
// stderr.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls the shared log destination.
type Options struct {
	// File to write to. Empty means stderr.
	File string
	// MaxSizeMB before the file rotates.
	MaxSizeMB int
	// Backups to retain after rotation.
	Backups int
}

// Factory hands out per-subsystem loggers sharing one destination.
type Factory struct {
	out    io.Writer
	closer io.Closer
}

// New creates a logger factory for the given options.
func New(opts Options) *Factory {
	if opts.File == "" {
		return &Factory{out: os.Stderr}
	}

	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.Backups,
	}
	return &Factory{out: rotator, closer: rotator}
}

// Logger returns a logger with the given subsystem prefix, e.g.
// "sync" produces lines prefixed "[sync] ".
func (f *Factory) Logger(subsystem string) *log.Logger {
	return log.New(f.out, "["+subsystem+"] ", log.LstdFlags)
}

// Close flushes and closes the underlying log file, if any.
func (f *Factory) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}
