// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metric measures the time spent serving and issuing remote
// operations and hands the measurements to a registered Saver.
package metric // import "httpremoting.io/metric"

import (
	"sync"
	"sync/atomic"
	"time"

	"httpremoting.io/errors"
	"httpremoting.io/log"
)

// Metric is a named collection of spans, usually covering one exchange.
type Metric struct {
	Name errors.Op

	mu    sync.Mutex // protects spans
	spans []*Span
}

// Spans returns the spans of m in the order they were started.
// The returned slice must not be modified.
func (m *Metric) Spans() []*Span {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spans
}

// Span measures one step of a Metric.
type Span struct {
	Name       errors.Op
	StartTime  time.Time
	EndTime    time.Time
	Kind       Kind
	Parent     *Metric
	ParentSpan *Span  // nil for a top-level span.
	Annotation string // optional.
}

// Saver stores finished Metrics. Register hands it the queue it must
// drain for the life of the process.
type Saver interface {
	Register(queue chan *Metric)
}

// Kind tells which side of an exchange took the measurement.
type Kind int

// Kinds of spans.
const (
	Server Kind = iota
	Client
	Other
)

func (k Kind) String() string {
	switch k {
	case Server:
		return "server"
	case Client:
		return "client"
	}
	return "other"
}

// SaveQueueLength is the number of finished metrics buffered for the
// Saver. Metrics beyond it are dropped.
const SaveQueueLength = 1024

var (
	saveQueue  = make(chan *Metric, SaveQueueLength)
	registered int32 // atomic
)

// New returns an empty metric.
func New(name errors.Op) *Metric {
	return &Metric{Name: name}
}

// NewSpan returns a metric holding one started span of the same name.
func NewSpan(name errors.Op) (*Metric, *Span) {
	m := New(name)
	return m, m.StartSpan(name)
}

// RegisterSaver installs the Saver. It panics if one is already installed.
func RegisterSaver(saver Saver) {
	if !atomic.CompareAndSwapInt32(&registered, 0, 1) {
		panic("metric: saver already registered")
	}
	saver.Register(saveQueue)
}

// StartSpan starts a server span of m.
func (m *Metric) StartSpan(name errors.Op) *Span {
	s := &Span{
		Name:      name,
		StartTime: time.Now(),
		Parent:    m,
		Kind:      Server,
	}
	m.mu.Lock()
	m.spans = append(m.spans, s)
	m.mu.Unlock()
	return s
}

// Done ends every open span of m and queues m for the Saver, if there is
// one. m must not be used afterwards.
func (m *Metric) Done() {
	m.mu.Lock()
	for _, s := range m.spans {
		if s.EndTime.IsZero() {
			s.End()
		}
	}
	m.mu.Unlock()

	if atomic.LoadInt32(&registered) == 0 {
		return
	}
	select {
	case saveQueue <- m:
	default:
		log.Error.Printf("metric: queue full, dropping %q", m.Name)
	}
}

// End ends s and returns its metric.
func (s *Span) End() *Metric {
	s.EndTime = time.Now()
	return s.Parent
}

// Duration returns the length of an ended span.
func (s *Span) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// StartSpan starts a child of s.
func (s *Span) StartSpan(name errors.Op) *Span {
	if s.Parent == nil {
		log.Error.Printf("metric: span %q has no metric", s.Name)
		return nil
	}
	sub := s.Parent.StartSpan(name)
	sub.ParentSpan = s
	return sub
}

// Metric returns the metric s belongs to.
func (s *Span) Metric() *Metric {
	return s.Parent
}

// SetKind sets the kind of s and returns s.
func (s *Span) SetKind(kind Kind) *Span {
	s.Kind = kind
	return s
}

// SetAnnotation records a note on s, replacing any earlier one, and
// returns s.
func (s *Span) SetAnnotation(annotation string) *Span {
	s.Annotation = annotation
	return s
}
