// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metric

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"httpremoting.io/errors"
)

// PrometheusSaver exports span durations as a Prometheus histogram
// labelled by span name and kind.
type PrometheusSaver struct {
	registry  *prometheus.Registry
	durations *prometheus.HistogramVec
	failures  *prometheus.CounterVec
	processed int32
}

var _ Saver = (*PrometheusSaver)(nil)

// NewPrometheusSaver returns a saver whose collectors live in their own
// registry, together with the Go and process collectors.
func NewPrometheusSaver(namespace string) (*PrometheusSaver, error) {
	const op errors.Op = "metric.NewPrometheusSaver"
	s := &PrometheusSaver{
		registry: prometheus.NewRegistry(),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "span_duration_seconds",
			Help:      "Duration of spans by name and kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"span", "kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "span_failures_total",
			Help:      "Spans annotated with a failure.",
		}, []string{"span"}),
	}
	for _, c := range []prometheus.Collector{
		s.durations,
		s.failures,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	} {
		if err := s.registry.Register(c); err != nil {
			return nil, errors.E(op, errors.Internal, err)
		}
	}
	return s, nil
}

// Register implements Saver.
func (s *PrometheusSaver) Register(queue chan *Metric) {
	go func() {
		for m := range queue {
			if m == nil {
				return
			}
			s.observe(m)
		}
	}()
}

func (s *PrometheusSaver) observe(m *Metric) {
	for _, sp := range m.Spans() {
		s.durations.WithLabelValues(string(sp.Name), sp.Kind.String()).Observe(sp.Duration().Seconds())
		if sp.Annotation != "" && sp.ParentSpan == nil {
			s.failures.WithLabelValues(string(sp.Name)).Inc()
		}
	}
	atomic.AddInt32(&s.processed, 1)
}

// NumProcessed reports how many metrics have been observed.
func (s *PrometheusSaver) NumProcessed() int32 {
	return atomic.LoadInt32(&s.processed)
}

// Gatherer returns the registry holding the saver's collectors.
func (s *PrometheusSaver) Gatherer() prometheus.Gatherer {
	return s.registry
}

// Handler serves the collected metrics in the Prometheus text format.
func (s *PrometheusSaver) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
