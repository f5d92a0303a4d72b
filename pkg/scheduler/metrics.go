// Copyright 2024-2026 The Gatewarden Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AttemptsCounter counts the scheduling attempts by result.
	AttemptsCounter *prometheus.CounterVec
	// PreemptionVictimsCounter counts the workloads evicted by preemption.
	PreemptionVictimsCounter prometheus.Counter
	// AttemptDuration observes the latency of scheduling attempts.
	AttemptDuration prometheus.Histogram
)

func init() {
	AttemptsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_scheduling_attempts_total",
			Help: "The number of scheduling attempts, by result.",
		},
		[]string{"result"},
	)

	PreemptionVictimsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewarden_preemption_victims_total",
			Help: "The number of workloads evicted to make room for higher-priority ones.",
		},
	)

	AttemptDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gatewarden_scheduling_attempt_duration_seconds",
			Help:    "The latency of scheduling attempts.",
			Buckets: prometheus.DefBuckets,
		},
	)
}

// RegisterMetrics registers the scheduler metrics on the given registerer.
func RegisterMetrics(registerer prometheus.Registerer) {
	registerer.MustRegister(AttemptsCounter, PreemptionVictimsCounter, AttemptDuration)
}
