/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package diagnostics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink counts events by stage and records the number of changes
// saved by completed units of work.
type MetricsSink struct {
	events  *prometheus.CounterVec
	changes prometheus.Histogram
}

// NewMetricsSink registers its collectors with reg. A nil reg uses the
// default registerer.
func NewMetricsSink(reg prometheus.Registerer) (*MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &MetricsSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transact",
			Name:      "unit_of_work_events_total",
			Help:      "Unit of work diagnostic events by stage.",
		}, []string{"stage", "operation"}),
		changes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "transact",
			Name:      "unit_of_work_changes",
			Help:      "Pending changes saved per completed unit of work.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
	}
	for _, c := range []prometheus.Collector{s.events, s.changes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MetricsSink) Emit(_ context.Context, e Event) {
	s.events.WithLabelValues(e.Stage.String(), e.Operation).Inc()
	if e.Stage == StageCompleted {
		s.changes.Observe(float64(e.Changes))
	}
}

// Events exposes the event counter for scraping helpers and tests.
func (s *MetricsSink) Events() *prometheus.CounterVec { return s.events }
