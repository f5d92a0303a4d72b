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

// poolSnapshot is the view of a pool a single scheduling attempt works on:
// the pool itself, its current occupancy, and the bound workloads in binding
// commit order.
type poolSnapshot struct {
	pool      *corev1alpha1.ResourcePool
	allocated corev1alpha1.ResourceList
	bound     []*corev1alpha1.Workload
}

// free returns the spare capacity of the pool.
func (ps *poolSnapshot) free() corev1alpha1.ResourceList {
	free := ps.pool.Capacity.DeepCopy()
	free.Sub(ps.allocated)
	return free
}

// fits reports whether the given demand fits in the spare capacity once the
// given victims are removed.
func (ps *poolSnapshot) fits(demand corev1alpha1.ResourceList, victims []*corev1alpha1.Workload) bool {
	free := ps.free()
	for _, victim := range victims {
		free.Add(victim.Demand)
	}
	return demand.Fits(free)
}

// snapshot builds the per-attempt view of the cluster, reading the committed
// bindings of each pool from the store. Pools are visited in lexical order to
// keep every downstream decision deterministic.
func (e *Engine) snapshot() []*poolSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.pools))
	for name := range e.pools {
		names = append(names, name)
	}
	sort.Strings(names)

	snapshots := make([]*poolSnapshot, 0, len(names))
	for _, name := range names {
		snapshots = append(snapshots, e.snapshotPoolLocked(name))
	}
	return snapshots
}

// snapshotPoolLocked builds the view of a single pool. Callers hold e.mu.
func (e *Engine) snapshotPoolLocked(name string) *poolSnapshot {
	ps := &poolSnapshot{
		pool:      e.pools[name],
		allocated: corev1alpha1.ResourceList{},
	}
	for _, binding := range e.store.ListBindings(name) {
		workload, found := e.workloads[binding.WorkloadUID]
		if !found {
			continue
		}
		ps.allocated.Add(workload.Demand)
		ps.bound = append(ps.bound, workload)
	}
	return ps
}
