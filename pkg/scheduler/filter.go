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
	"fmt"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
)

// schedulingTaintFilter selects the taint effects that forbid placement.
// PreferNoSchedule only penalizes scoring.
func schedulingTaintFilter(t *corev1alpha1.Taint) bool {
	return t.Effect == corev1alpha1.TaintEffectNoSchedule ||
		t.Effect == corev1alpha1.TaintEffectNoExecute
}

// filterPools computes the feasible subset of the snapshot for the given
// workload: enough spare capacity, no untolerated NoSchedule/NoExecute taint,
// and every required label constraint satisfied. The reasons of infeasible
// pools are collected for diagnostics.
func filterPools(workload *corev1alpha1.Workload, pools []*poolSnapshot) (feasible []*poolSnapshot, reasons map[string]string) {
	reasons = map[string]string{}

	for _, ps := range pools {
		if reason, ok := poolFeasible(workload, ps); !ok {
			reasons[ps.pool.Name] = reason
			continue
		}
		feasible = append(feasible, ps)
	}
	return feasible, reasons
}

// poolFeasible checks a single pool against the workload constraints,
// ignoring nothing: capacity included.
func poolFeasible(workload *corev1alpha1.Workload, ps *poolSnapshot) (string, bool) {
	if reason, ok := poolAdmitsWorkload(workload, ps.pool); !ok {
		return reason, false
	}
	if !workload.Demand.Fits(ps.free()) {
		return "insufficient capacity", false
	}
	return "", true
}

// poolAdmitsWorkload checks the capacity-independent constraints: label
// requirements and taints. Preemption reuses it, since evicting workloads
// frees capacity but never removes taints or changes labels.
func poolAdmitsWorkload(workload *corev1alpha1.Workload, pool *corev1alpha1.ResourcePool) (string, bool) {
	if !pool.MatchesLabels(workload.Constraints.RequiredPoolLabels) {
		return "pool labels do not satisfy the required constraints", false
	}

	if taint, untolerated := corev1alpha1.FindUntoleratedTaint(
		pool.Taints, workload.Tolerations, schedulingTaintFilter); untolerated {
		return fmt.Sprintf("untolerated taint {%s=%s:%s}", taint.Key, taint.Value, taint.Effect), false
	}
	return "", true
}
