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

// TolerationOperator relates a toleration to taint values.
type TolerationOperator string

const (
	// TolerationOpExists matches any taint value for the toleration key.
	TolerationOpExists TolerationOperator = "Exists"
	// TolerationOpEqual matches taints whose value equals the toleration one.
	TolerationOpEqual TolerationOperator = "Equal"
)

// Toleration allows a workload to ignore a matching pool taint.
type Toleration struct {
	// Key is the taint key the toleration applies to. An empty key together
	// with the Exists operator tolerates every taint.
	Key string `json:"key,omitempty"`
	// Operator defaults to Equal when empty.
	Operator TolerationOperator `json:"operator,omitempty"`
	// Value is the taint value the toleration matches (Equal operator only).
	Value string `json:"value,omitempty"`
	// Effect restricts the toleration to taints with that effect. An empty
	// effect matches every effect.
	Effect TaintEffect `json:"effect,omitempty"`
}

// ToleratesTaint reports whether the toleration matches the given taint.
func (t *Toleration) ToleratesTaint(taint *Taint) bool {
	if t.Effect != "" && t.Effect != taint.Effect {
		return false
	}
	if t.Key != "" && t.Key != taint.Key {
		return false
	}
	switch t.Operator {
	case TolerationOpExists:
		return true
	case TolerationOpEqual, "":
		return t.Value == taint.Value
	default:
		return false
	}
}

// TolerationsTolerateTaint reports whether at least one of the tolerations
// matches the given taint.
func TolerationsTolerateTaint(tolerations []Toleration, taint *Taint) bool {
	for i := range tolerations {
		if tolerations[i].ToleratesTaint(taint) {
			return true
		}
	}
	return false
}

// FindUntoleratedTaint returns the first taint accepted by the filter and not
// tolerated by the given tolerations.
func FindUntoleratedTaint(taints []Taint, tolerations []Toleration,
	filter func(*Taint) bool) (*Taint, bool) {
	for i := range taints {
		if filter != nil && !filter(&taints[i]) {
			continue
		}
		if !TolerationsTolerateTaint(tolerations, &taints[i]) {
			return &taints[i], true
		}
	}
	return nil, false
}
