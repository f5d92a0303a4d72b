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

// Binding is the immutable fact that a workload occupies a resource pool.
// A binding is never mutated: rescheduling after an eviction produces a new
// binding superseding the old one.
type Binding struct {
	// WorkloadUID identifies the bound workload.
	WorkloadUID string `json:"workloadUID"`
	// PoolName identifies the hosting pool.
	PoolName string `json:"poolName"`
	// Timestamp is the commit time of the binding.
	Timestamp metav1.Time `json:"timestamp"`
}
