// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package shutdown ties the lifecycle of the server's components to the
// process: each component registers a handler that stops it, and the
// handlers run when the process is told to terminate.
package shutdown // import "httpremoting.io/shutdown"

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/juju/clock"

	"httpremoting.io/log"
)

// GracePeriod bounds the time the handlers have to complete before the
// process exits with status 1 regardless.
const GracePeriod = 1 * time.Minute

// Handle registers onShutdown to be run when the process shuts down.
// Handlers run in last-in-first-out order, so a component registered
// after the ones it depends on is stopped before them.
// The returned function removes the registration; once shutdown has
// begun it does nothing. Handle may be called concurrently.
func Handle(onShutdown func()) (remove func()) {
	return process.handle(onShutdown)
}

// Done returns a channel that is closed when shutdown begins.
func Done() <-chan struct{} {
	return process.done
}

// Now runs the registered handlers and terminates the process with the
// given status code. Only the first call has any effect, and termination
// is guaranteed within GracePeriod. Now may be called concurrently.
func Now(code int) {
	process.now(code)
}

// handler wraps a registered function so that it can be found again.
type handler struct {
	fn func()
}

// sequence is the ordered set of handlers of one process.
type sequence struct {
	clock clock.Clock
	exit  func(int)
	done  chan struct{}
	once  sync.Once

	mu       sync.Mutex
	started  bool
	handlers []*handler
}

func newSequence(clk clock.Clock, exit func(int)) *sequence {
	return &sequence{
		clock: clk,
		exit:  exit,
		done:  make(chan struct{}),
	}
}

var process = newSequence(clock.WallClock, os.Exit)

func (s *sequence) handle(fn func()) func() {
	h := &handler{fn: fn}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.started {
			return
		}
		for i, cur := range s.handlers {
			if cur == h {
				s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
				return
			}
		}
	}
}

func (s *sequence) now(code int) {
	s.once.Do(func() {
		log.Debug.Printf("shutdown: status code %d", code)

		s.clock.AfterFunc(GracePeriod, func() {
			// The log may be flushed by now.
			fmt.Fprintf(os.Stderr, "shutdown: handlers still running after %v; exiting\n", GracePeriod)
			s.exit(1)
		})

		s.mu.Lock()
		s.started = true
		handlers := s.handlers
		s.mu.Unlock()
		close(s.done)

		for i := len(handlers) - 1; i >= 0; i-- {
			handlers[i].fn()
		}
		s.exit(code)
	})
}

func init() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, os.Interrupt)
	go func() {
		sig := <-c
		log.Error.Printf("shutdown: process received signal %v", sig)
		Now(1)
	}()

	// The log is flushed last. Registering here avoids an import cycle.
	Handle(log.Flush)
}
