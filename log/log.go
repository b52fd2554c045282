// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package log exports leveled logging primitives that log to stderr.
package log // import "httpremoting.io/log"

// We call this log instead of logging for two reasons:
// 1) It's shorter to type;
// 2) it mimics Go's log package and can be used as a drop-in replacement for it.

import (
	"fmt"
	goLog "log"
	"os"
	"strings"
	"sync"
)

// Logger is the interface for logging messages.
type Logger interface {
	// Printf writes a formated message to the log.
	Printf(format string, v ...interface{})

	// Print writes a message to the log.
	Print(v ...interface{})

	// Println writes a line to the log.
	Println(v ...interface{})

	// Fatal writes a message to the log and aborts.
	Fatal(v ...interface{})

	// Fatalf writes a formated message to the log and aborts.
	Fatalf(format string, v ...interface{})
}

// Level represents the level of logging.
type Level int

// Different levels of logging.
const (
	DebugLevel Level = iota
	InfoLevel
	ErrorLevel
	DisabledLevel
)

// Pre-allocated Loggers at each logging level.
var (
	Debug = &logger{DebugLevel}
	Info  = &logger{InfoLevel}
	Error = &logger{ErrorLevel}
)

var state = struct {
	mu            sync.Mutex
	level         Level
	defaultLogger Logger
}{
	level:         InfoLevel,
	defaultLogger: newDefaultLogger(),
}

func newDefaultLogger() Logger {
	return goLog.New(os.Stderr, "", goLog.Ldate|goLog.Ltime|goLog.LUTC|goLog.Lmicroseconds)
}

type logger struct {
	level Level
}

var _ Logger = (*logger)(nil)

// output returns the Logger to write to, or nil if l is below the current level.
func (l *logger) output() Logger {
	state.mu.Lock()
	defer state.mu.Unlock()
	if l.level < state.level {
		return nil // Don't log at lower levels.
	}
	return state.defaultLogger
}

// Printf writes a formated message to the log.
func (l *logger) Printf(format string, v ...interface{}) {
	if out := l.output(); out != nil {
		out.Printf(format, v...)
	}
}

// Print writes a message to the log.
func (l *logger) Print(v ...interface{}) {
	if out := l.output(); out != nil {
		out.Print(v...)
	}
}

// Println writes a line to the log.
func (l *logger) Println(v ...interface{}) {
	if out := l.output(); out != nil {
		out.Println(v...)
	}
}

// Fatal writes a message to the log and aborts, regardless of the current log level.
func (l *logger) Fatal(v ...interface{}) {
	state.mu.Lock()
	out := state.defaultLogger
	state.mu.Unlock()
	if out == nil {
		out = newDefaultLogger()
	}
	out.Fatal(v...)
}

// Fatalf writes a formated message to the log and aborts, regardless of the current log level.
func (l *logger) Fatalf(format string, v ...interface{}) {
	l.Fatal(fmt.Sprintf(format, v...))
}

// String returns the name of the logger.
func (l *logger) String() string {
	return l.level.String()
}

func (l Level) String() string {
	switch l {
	case InfoLevel:
		return "info"
	case DebugLevel:
		return "debug"
	case ErrorLevel:
		return "error"
	case DisabledLevel:
		return "disabled"
	}
	return "unknown"
}

// GetLevel returns the current logging level.
func GetLevel() string {
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.level.String()
}

func toLevel(level string) (Level, error) {
	switch level {
	case "info":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	case "error":
		return ErrorLevel, nil
	case "disabled":
		return DisabledLevel, nil
	}
	return DisabledLevel, fmt.Errorf("invalid log level %q", level)
}

// SetLevel sets the current level of logging.
func SetLevel(level string) error {
	l, err := toLevel(level)
	if err != nil {
		return err
	}
	state.mu.Lock()
	state.level = l
	state.mu.Unlock()
	return nil
}

// At returns whether the level will be logged currently.
func At(level string) bool {
	l, err := toLevel(level)
	if err != nil {
		return false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.level <= l
}

// SetOutput sets the Logger that receives all log output.
// A nil Logger disables local logging.
func SetOutput(l Logger) {
	state.mu.Lock()
	state.defaultLogger = l
	state.mu.Unlock()
}

// Printf writes a formated message to the log.
func Printf(format string, v ...interface{}) {
	Info.Printf(format, v...)
}

// Print writes a message to the log.
func Print(v ...interface{}) {
	Info.Print(v...)
}

// Println writes a line to the log.
func Println(v ...interface{}) {
	Info.Println(v...)
}

// Fatal writes a message to the log and aborts.
func Fatal(v ...interface{}) {
	Info.Fatal(v...)
}

// Fatalf writes a formated message to the log and aborts.
func Fatalf(format string, v ...interface{}) {
	Info.Fatalf(format, v...)
}

// Flush is the shutdown routine for the logs. Output is unbuffered,
// so it only makes sure nothing is written after shutdown begins.
func Flush() {
	SetLevel("disabled")
}

// NewStdLogger returns a standard library logger that writes to l,
// for packages such as net/http that accept one.
func NewStdLogger(l Logger) *goLog.Logger {
	return goLog.New(stdWriter{l}, "", 0)
}

type stdWriter struct {
	l Logger
}

func (w stdWriter) Write(p []byte) (int, error) {
	w.l.Print(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
