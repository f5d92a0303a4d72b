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
	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
)

const (
	// maxResourceScore is the per-dimension score of a completely free pool.
	maxResourceScore int64 = 100
	// preferredLabelBonus rewards each satisfied preferred label constraint.
	preferredLabelBonus int64 = 50
	// preferNoSchedulePenalty discourages pools with untolerated
	// PreferNoSchedule taints.
	preferNoSchedulePenalty int64 = 100
)

// scorePool ranks a feasible pool for the given workload. The heuristic is
// least-allocated-after-placement: pools ending up with the most spare
// capacity score highest, averaged across resource dimensions. Preferred
// label constraints add a fixed bonus, untolerated PreferNoSchedule taints a
// fixed penalty. The heuristic is a pure function of the snapshot, so
// repeated runs rank identically.
func scorePool(workload *corev1alpha1.Workload, ps *poolSnapshot) int64 {
	var score int64

	free := ps.free()
	free.Sub(workload.Demand)

	var dimensions int64
	for name, capacity := range ps.pool.Capacity {
		if capacity.IsZero() {
			continue
		}
		spare := free[name]
		score += maxResourceScore * spare.MilliValue() / capacity.MilliValue()
		dimensions++
	}
	if dimensions > 0 {
		score /= dimensions
	}

	for key, value := range workload.Constraints.PreferredPoolLabels {
		if ps.pool.Labels[key] == value {
			score += preferredLabelBonus
		}
	}

	for i := range ps.pool.Taints {
		taint := &ps.pool.Taints[i]
		if taint.Effect != corev1alpha1.TaintEffectPreferNoSchedule {
			continue
		}
		if !corev1alpha1.TolerationsTolerateTaint(workload.Tolerations, taint) {
			score -= preferNoSchedulePenalty
		}
	}

	return score
}

// pickPool returns the highest-scoring pool, breaking ties by ascending pool
// name so that identical cluster states always produce the same choice.
func pickPool(workload *corev1alpha1.Workload, feasible []*poolSnapshot) *poolSnapshot {
	var best *poolSnapshot
	var bestScore int64

	for _, ps := range feasible {
		score := scorePool(workload, ps)
		if best == nil || score > bestScore ||
			(score == bestScore && ps.pool.Name < best.pool.Name) {
			best, bestScore = ps, score
		}
	}
	return best
}
