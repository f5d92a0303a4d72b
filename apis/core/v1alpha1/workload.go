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

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// WorkloadPhase tracks a workload through the scheduling state machine.
type WorkloadPhase string

const (
	// WorkloadPending means the workload has been admitted but not placed.
	WorkloadPending WorkloadPhase = "Pending"
	// WorkloadBound means the workload holds an active binding.
	WorkloadBound WorkloadPhase = "Bound"
	// WorkloadUnschedulable means the last scheduling attempt found no
	// feasible pool; the workload is retried when the cluster state changes.
	WorkloadUnschedulable WorkloadPhase = "Unschedulable"
)

// PlacementConstraints restricts the pools a workload may be placed on.
type PlacementConstraints struct {
	// RequiredPoolLabels must all be present (with equal values) on the
	// labels of a feasible pool.
	RequiredPoolLabels map[string]string `json:"requiredPoolLabels,omitempty"`
	// PreferredPoolLabels do not restrict feasibility, but matching pools
	// score higher.
	PreferredPoolLabels map[string]string `json:"preferredPoolLabels,omitempty"`
}

// Workload is an admitted, schedulable unit of work.
type Workload struct {
	// UID uniquely identifies the workload.
	UID string `json:"uid,omitempty"`
	// Name is the workload name, unique within its namespace.
	Name string `json:"name"`
	// Namespace is the namespace the workload lives in.
	Namespace string `json:"namespace,omitempty"`
	// Labels are free-form key/value pairs attached to the workload.
	Labels map[string]string `json:"labels,omitempty"`
	// PriorityClassName references a PriorityClass by name. When empty the
	// cluster default class applies, or priority zero if there is none.
	PriorityClassName string `json:"priorityClassName,omitempty"`
	// Priority is the resolved priority value, stamped at admission time.
	Priority *int32 `json:"priority,omitempty"`
	// Demand is the resource demand vector of the workload.
	Demand ResourceList `json:"demand,omitempty"`
	// Constraints restricts and biases placement.
	Constraints PlacementConstraints `json:"constraints,omitempty"`
	// Tolerations lets the workload ignore matching pool taints.
	Tolerations []Toleration `json:"tolerations,omitempty"`
	// CreationTimestamp orders workloads for deterministic tie-breaking.
	CreationTimestamp metav1.Time `json:"creationTimestamp,omitempty"`
	// Phase is the current scheduling phase, maintained by the engine.
	Phase WorkloadPhase `json:"phase,omitempty"`
}

// Key returns the namespace/name key of the workload.
func (w *Workload) Key() string {
	if w.Namespace == "" {
		return w.Name
	}
	return w.Namespace + "/" + w.Name
}

// EffectivePriority returns the resolved priority, or zero if unresolved.
func (w *Workload) EffectivePriority() int32 {
	if w.Priority != nil {
		return *w.Priority
	}
	return 0
}

// DeepCopy returns a copy of the workload sharing no memory with the original.
func (w *Workload) DeepCopy() *Workload {
	out := *w
	if w.Priority != nil {
		value := *w.Priority
		out.Priority = &value
	}
	if w.Labels != nil {
		out.Labels = make(map[string]string, len(w.Labels))
		for k, v := range w.Labels {
			out.Labels[k] = v
		}
	}
	out.Demand = w.Demand.DeepCopy()
	if w.Constraints.RequiredPoolLabels != nil {
		out.Constraints.RequiredPoolLabels = make(map[string]string, len(w.Constraints.RequiredPoolLabels))
		for k, v := range w.Constraints.RequiredPoolLabels {
			out.Constraints.RequiredPoolLabels[k] = v
		}
	}
	if w.Constraints.PreferredPoolLabels != nil {
		out.Constraints.PreferredPoolLabels = make(map[string]string, len(w.Constraints.PreferredPoolLabels))
		for k, v := range w.Constraints.PreferredPoolLabels {
			out.Constraints.PreferredPoolLabels[k] = v
		}
	}
	if w.Tolerations != nil {
		out.Tolerations = append([]Toleration(nil), w.Tolerations...)
	}
	return &out
}
