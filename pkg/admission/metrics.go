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

package admission

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// VerdictsCounter counts the requests traversing the pipeline, by final
	// verdict and by the stage that produced it.
	VerdictsCounter *prometheus.CounterVec
	// StageDuration observes the evaluation latency of each stage.
	StageDuration *prometheus.HistogramVec
)

func init() {
	VerdictsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_admission_verdicts_total",
			Help: "The number of admission verdicts, by outcome and deciding stage.",
		},
		[]string{"verdict", "stage"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatewarden_admission_stage_duration_seconds",
			Help:    "The evaluation latency of each admission stage.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage", "kind"},
	)
}

// RegisterMetrics registers the admission metrics on the given registerer.
func RegisterMetrics(registerer prometheus.Registerer) {
	registerer.MustRegister(VerdictsCounter, StageDuration)
}
