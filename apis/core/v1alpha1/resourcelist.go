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
	"k8s.io/apimachinery/pkg/api/resource"
)

// ResourceName is the name of a resource dimension (e.g. cpu, memory).
type ResourceName string

const (
	// ResourceCPU is the CPU dimension, in cores.
	ResourceCPU ResourceName = "cpu"
	// ResourceMemory is the memory dimension, in bytes.
	ResourceMemory ResourceName = "memory"
)

// ResourceList maps resource dimensions to quantities. It is used both as a
// workload demand vector and as a pool capacity vector.
type ResourceList map[ResourceName]resource.Quantity

// DeepCopy returns a copy of the list.
func (rl ResourceList) DeepCopy() ResourceList {
	if rl == nil {
		return nil
	}
	out := make(ResourceList, len(rl))
	for name, qty := range rl {
		out[name] = qty.DeepCopy()
	}
	return out
}

// Add accumulates the given list into the receiver, in place.
func (rl ResourceList) Add(other ResourceList) {
	for name, qty := range other {
		acc := rl[name]
		acc.Add(qty)
		rl[name] = acc
	}
}

// Sub subtracts the given list from the receiver, in place.
func (rl ResourceList) Sub(other ResourceList) {
	for name, qty := range other {
		acc := rl[name]
		acc.Sub(qty)
		rl[name] = acc
	}
}

// Fits reports whether the receiver fits within the given capacity, i.e.
// every dimension of the receiver is less than or equal to the corresponding
// capacity dimension. Dimensions absent from the capacity are treated as zero.
func (rl ResourceList) Fits(capacity ResourceList) bool {
	for name, qty := range rl {
		avail, ok := capacity[name]
		if !ok {
			if qty.Sign() > 0 {
				return false
			}
			continue
		}
		if qty.Cmp(avail) > 0 {
			return false
		}
	}
	return true
}

// IsZero reports whether every dimension of the list is zero.
func (rl ResourceList) IsZero() bool {
	for _, qty := range rl {
		if !qty.IsZero() {
			return false
		}
	}
	return true
}
