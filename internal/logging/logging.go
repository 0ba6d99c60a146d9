// Package logging builds the per-component *log.Logger values handed to every
// scout package. Output goes to stderr, or to a size-rotated file when one is
// configured.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where log output goes.
type Options struct {
	// File enables rotating file output; empty means stderr
	File string
	// MaxSizeMB is the size at which the file is rotated
	MaxSizeMB int
	// MaxBackups is how many rotated files are kept
	MaxBackups int
	// Quiet discards all output
	Quiet bool
}

// Sink is a shared log destination.
type Sink struct {
	w      io.Writer
	closer io.Closer
}

// New opens a Sink for opts.
func New(opts Options) (*Sink, error) {
	if opts.Quiet {
		return &Sink{w: io.Discard}, nil
	}
	if opts.File == "" {
		return &Sink{w: os.Stderr}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
		return nil, err
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 3
	}
	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
	return &Sink{w: lj, closer: lj}, nil
}

// Logger returns a logger that prefixes every line with [component].
func (s *Sink) Logger(component string) *log.Logger {
	return log.New(s.w, "["+component+"] ", log.LstdFlags)
}

// Writer returns the underlying destination.
func (s *Sink) Writer() io.Writer {
	return s.w
}

// Close releases the log file, if any.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
