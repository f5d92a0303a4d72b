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

package v1alpha1

// PreemptionPolicy describes whether workloads of a priority class may evict
// lower-priority workloads to make room for themselves.
type PreemptionPolicy string

const (
	// PreemptLowerPriority allows evicting workloads with a strictly lower
	// resolved priority.
	PreemptLowerPriority PreemptionPolicy = "PreemptLowerPriority"
	// PreemptNever forbids any eviction: the workload waits for capacity to
	// free naturally.
	PreemptNever PreemptionPolicy = "Never"
)

// PriorityClass maps a class name to an integer priority value. At most one
// class may be the cluster-wide default.
type PriorityClass struct {
	// Name is the unique name of the class.
	Name string `json:"name"`
	// Value is the priority assigned to workloads referencing this class.
	// Higher values are more important.
	Value int32 `json:"value"`
	// GlobalDefault marks this class as the one applied to workloads that do
	// not name a class explicitly.
	GlobalDefault bool `json:"globalDefault,omitempty"`
	// PreemptionPolicy defaults to PreemptLowerPriority when empty.
	PreemptionPolicy PreemptionPolicy `json:"preemptionPolicy,omitempty"`
}

// EffectivePreemptionPolicy returns the preemption policy, defaulted.
func (pc *PriorityClass) EffectivePreemptionPolicy() PreemptionPolicy {
	if pc.PreemptionPolicy == "" {
		return PreemptLowerPriority
	}
	return pc.PreemptionPolicy
}
