// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metric

import (
	"sync/atomic"

	"httpremoting.io/log"
)

// NewLogSaver returns a Saver that writes each metric's spans to the
// debug log.
func NewLogSaver() Saver {
	return &logSaver{}
}

type logSaver struct {
	processed int32
}

func (s *logSaver) Register(queue chan *Metric) {
	go func() {
		for m := range queue {
			if m == nil {
				return
			}
			for _, sp := range m.Spans() {
				log.Debug.Printf("metric: %s: %s %s %v %s", m.Name, sp.Kind, sp.Name, sp.Duration(), sp.Annotation)
			}
			atomic.AddInt32(&s.processed, 1)
		}
	}()
}

// NumProcessed reports how many metrics have been written.
func (s *logSaver) NumProcessed() int32 {
	return atomic.LoadInt32(&s.processed)
}
