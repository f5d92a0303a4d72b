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
	"sort"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
)

// preemptionCandidate is a pool on which evicting the listed victims makes
// room for the pending workload.
type preemptionCandidate struct {
	pool    *poolSnapshot
	victims []*corev1alpha1.Workload
}

// findPreemptionCandidate computes the preemption decision for a workload
// whose filtering produced no feasible pool. It returns nil when no pool can
// host the workload even after evicting every lower-priority victim.
//
// The computation is deterministic end to end: victims are accumulated in a
// total order (lowest priority first, oldest first among equals, then UID)
// and the candidate pools are compared by fewest victims, then lowest
// highest-victim priority, then pool name. Identical cluster states therefore
// always produce the same eviction set.
func findPreemptionCandidate(workload *corev1alpha1.Workload, pools []*poolSnapshot) *preemptionCandidate {
	var candidates []*preemptionCandidate

	for _, ps := range pools {
		// Eviction frees capacity but never removes taints nor changes
		// labels: pools failing those constraints cannot help.
		if _, ok := poolAdmitsWorkload(workload, ps.pool); !ok {
			continue
		}

		victims := eligibleVictims(workload, ps)
		if len(victims) == 0 && !workload.Demand.Fits(ps.free()) {
			continue
		}

		chosen, ok := minimalVictimSet(workload, ps, victims)
		if !ok {
			continue
		}
		candidates = append(candidates, &preemptionCandidate{pool: ps, victims: chosen})
	}

	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return lessCandidate(candidates[i], candidates[j])
	})
	return candidates[0]
}

// stillBoundVictims filters a victim set down to the workloads still bound
// to the pool in the given snapshot. A victim deleted or evicted since the
// candidate was computed no longer frees any capacity.
func stillBoundVictims(ps *poolSnapshot, victims []*corev1alpha1.Workload) []*corev1alpha1.Workload {
	bound := make(map[string]struct{}, len(ps.bound))
	for _, workload := range ps.bound {
		bound[workload.UID] = struct{}{}
	}

	out := make([]*corev1alpha1.Workload, 0, len(victims))
	for _, victim := range victims {
		if _, found := bound[victim.UID]; found {
			out = append(out, victim)
		}
	}
	return out
}

// eligibleVictims returns the bound workloads of the pool with a strictly
// lower priority than the preemptor, in eviction order.
func eligibleVictims(workload *corev1alpha1.Workload, ps *poolSnapshot) []*corev1alpha1.Workload {
	victims := make([]*corev1alpha1.Workload, 0, len(ps.bound))
	for _, bound := range ps.bound {
		if bound.EffectivePriority() < workload.EffectivePriority() {
			victims = append(victims, bound)
		}
	}

	sort.Slice(victims, func(i, j int) bool {
		a, b := victims[i], victims[j]
		if pa, pb := a.EffectivePriority(), b.EffectivePriority(); pa != pb {
			return pa < pb
		}
		if !a.CreationTimestamp.Equal(&b.CreationTimestamp) {
			return a.CreationTimestamp.Before(&b.CreationTimestamp)
		}
		return a.UID < b.UID
	})
	return victims
}

// minimalVictimSet accumulates victims in eviction order until the demand
// fits, and reports whether it ever does.
func minimalVictimSet(workload *corev1alpha1.Workload, ps *poolSnapshot,
	victims []*corev1alpha1.Workload) ([]*corev1alpha1.Workload, bool) {
	if ps.fits(workload.Demand, nil) {
		return nil, true
	}

	for i := range victims {
		if ps.fits(workload.Demand, victims[:i+1]) {
			return victims[:i+1], true
		}
	}
	return nil, false
}

// lessCandidate is the total order of preemption candidates: disturb as few
// workloads as possible, then as unimportant as possible, then pick the
// lexically smallest pool.
func lessCandidate(a, b *preemptionCandidate) bool {
	if len(a.victims) != len(b.victims) {
		return len(a.victims) < len(b.victims)
	}
	if pa, pb := maxVictimPriority(a.victims), maxVictimPriority(b.victims); pa != pb {
		return pa < pb
	}
	return a.pool.pool.Name < b.pool.pool.Name
}

func maxVictimPriority(victims []*corev1alpha1.Workload) int32 {
	var max int32
	for i, victim := range victims {
		if i == 0 || victim.EffectivePriority() > max {
			max = victim.EffectivePriority()
		}
	}
	return max
}
