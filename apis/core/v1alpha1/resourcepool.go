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

// TaintEffect describes how a taint repels workloads.
type TaintEffect string

const (
	// TaintEffectNoSchedule forbids placing non-tolerating workloads.
	TaintEffectNoSchedule TaintEffect = "NoSchedule"
	// TaintEffectPreferNoSchedule penalizes, but does not forbid, placing
	// non-tolerating workloads.
	TaintEffectPreferNoSchedule TaintEffect = "PreferNoSchedule"
	// TaintEffectNoExecute forbids placement and evicts already-bound
	// non-tolerating workloads.
	TaintEffectNoExecute TaintEffect = "NoExecute"
)

// Taint is a repelling tag attached to a resource pool.
type Taint struct {
	// Key is the taint key. An empty key is a wildcard matching every
	// toleration key.
	Key string `json:"key,omitempty"`
	// Value is the taint value.
	Value string `json:"value,omitempty"`
	// Effect is how the taint repels workloads.
	Effect TaintEffect `json:"effect"`
}

// ResourcePool is a schedulable unit of capacity.
type ResourcePool struct {
	// Name uniquely identifies the pool.
	Name string `json:"name"`
	// Labels are matched against workload placement constraints.
	Labels map[string]string `json:"labels,omitempty"`
	// Capacity is the total resource capacity of the pool.
	Capacity ResourceList `json:"capacity"`
	// Taints repel workloads that do not tolerate them.
	Taints []Taint `json:"taints,omitempty"`
}

// DeepCopy returns a copy of the pool sharing no memory with the original.
func (p *ResourcePool) DeepCopy() *ResourcePool {
	out := *p
	if p.Labels != nil {
		out.Labels = make(map[string]string, len(p.Labels))
		for k, v := range p.Labels {
			out.Labels[k] = v
		}
	}
	out.Capacity = p.Capacity.DeepCopy()
	if p.Taints != nil {
		out.Taints = append([]Taint(nil), p.Taints...)
	}
	return &out
}

// MatchesLabels reports whether every given key/value pair is present on the
// pool labels.
func (p *ResourcePool) MatchesLabels(selector map[string]string) bool {
	for key, value := range selector {
		if p.Labels[key] != value {
			return false
		}
	}
	return true
}
