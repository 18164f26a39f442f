// Package logging builds the per-binary *log.Logger, optionally tee'd into
// a size-rotated file.
package logging

import (
	"io"
	"log"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

// New returns a logger with a "[prefix] " prefix and microsecond
// timestamps. The returned closer releases the log file and is never nil.
func New(prefix string, opts Options) (*log.Logger, io.Closer) {
	var out io.Writer = os.Stdout
	if opts.Stdout != nil {
		out = opts.Stdout
	}
	var closer io.Closer = nopCloser{}
	if f := strings.TrimSpace(opts.File); f != "" {
		rot := &lj.Logger{
			Filename:   f,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		out = io.MultiWriter(out, rot)
		closer = rot
	}
	return log.New(out, "["+prefix+"] ", log.LstdFlags|log.Lmicroseconds), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
