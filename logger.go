package main

import (
	"io"
	"log"
	"os"
	"sync"
	"time"
)

const logTimeLayout = "2006-01-02 15:04:05"

// Logger writes timestamped lines. Severity other than info is carried
// as an inline tag so the output stays greppable.
type Logger struct {
	verbose bool
	mu      sync.Mutex
	logger  *log.Logger
	now     func() time.Time
}

func NewLogger(verbose bool) *Logger {
	return newLogger(os.Stdout, verbose)
}

func newLogger(w io.Writer, verbose bool) *Logger {
	return &Logger{
		verbose: verbose,
		logger:  log.New(w, "", 0),
		now:     time.Now,
	}
}

func (l *Logger) output(tag, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prefix := "[" + l.now().Format(logTimeLayout) + "] "
	if tag != "" {
		prefix += tag + " "
	}
	l.logger.Printf(prefix+format, v...)
}

func (l *Logger) Printf(format string, v ...interface{}) {
	l.output("", format, v...)
}

// Debugf only logs with -verbose
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.verbose {
		l.output("[DEBUG]", format, v...)
	}
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	l.output("[WARN]", format, v...)
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	l.output("[ERROR]", format, v...)
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.output("[FATAL]", format, v...)
	os.Exit(1)
}
