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

// Package priority implements the cluster-wide priority class registry and
// the resolution of workload priorities.
package priority

import (
	"sort"
	"sync"

	"k8s.io/klog/v2"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
)

// Registry is the single-writer store of priority classes. Creation is a
// compare-and-set operation: the uniqueness of the global default is checked
// and committed under the same critical section, so the invariant holds under
// concurrent creations.
type Registry struct {
	mu          sync.RWMutex
	classes     map[string]*corev1alpha1.PriorityClass
	defaultName string
}

// NewRegistry returns an empty priority class registry.
func NewRegistry() *Registry {
	return &Registry{classes: map[string]*corev1alpha1.PriorityClass{}}
}

// Create registers a new priority class. It fails with AlreadyExistsError on
// name collisions and with DuplicateDefaultError when the class claims the
// global default while another class already holds it.
func (r *Registry) Create(class *corev1alpha1.PriorityClass) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.classes[class.Name]; found {
		return &AlreadyExistsError{Name: class.Name}
	}
	if class.GlobalDefault && r.defaultName != "" {
		return &DuplicateDefaultError{Existing: r.defaultName, Conflicting: class.Name}
	}

	stored := *class
	r.classes[class.Name] = &stored
	if class.GlobalDefault {
		r.defaultName = class.Name
	}

	klog.V(4).Infof("Registered priority class %q (value: %d, default: %v)",
		class.Name, class.Value, class.GlobalDefault)
	return nil
}

// Delete removes a priority class. It is idempotent. Workloads already
// admitted keep their resolved value.
func (r *Registry) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.classes, name)
	if r.defaultName == name {
		r.defaultName = ""
	}
}

// Get returns the priority class with the given name.
func (r *Registry) Get(name string) (*corev1alpha1.PriorityClass, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	class, found := r.classes[name]
	if !found {
		return nil, false
	}
	out := *class
	return &out, true
}

// Default returns the global default priority class, if any.
func (r *Registry) Default() (*corev1alpha1.PriorityClass, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultName == "" {
		return nil, false
	}
	out := *r.classes[r.defaultName]
	return &out, true
}

// List returns all the priority classes, sorted by name.
func (r *Registry) List() []corev1alpha1.PriorityClass {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]corev1alpha1.PriorityClass, 0, len(r.classes))
	for _, class := range r.classes {
		out = append(out, *class)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve returns the effective priority value and preemption policy of the
// given workload. A named class must exist, otherwise an
// UnknownPriorityClassError is returned. An unnamed class falls back to the
// global default, or to value zero if there is none.
func (r *Registry) Resolve(workload *corev1alpha1.Workload) (int32, corev1alpha1.PreemptionPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if workload.PriorityClassName != "" {
		class, found := r.classes[workload.PriorityClassName]
		if !found {
			return 0, "", &UnknownPriorityClassError{Name: workload.PriorityClassName}
		}
		return class.Value, class.EffectivePreemptionPolicy(), nil
	}

	if r.defaultName != "" {
		class := r.classes[r.defaultName]
		return class.Value, class.EffectivePreemptionPolicy(), nil
	}

	return 0, corev1alpha1.PreemptLowerPriority, nil
}
