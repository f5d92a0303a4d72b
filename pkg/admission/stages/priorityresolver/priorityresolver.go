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

// Package priorityresolver implements the mutating stage resolving the
// effective priority of a workload at admission time.
package priorityresolver

import (
	"context"
	"encoding/json"
	"fmt"

	"k8s.io/klog/v2"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
	"github.com/gatewarden-io/gatewarden/pkg/admission"
	"github.com/gatewarden-io/gatewarden/pkg/priority"
)

// StageName is the name the stage registers under.
const StageName = "priority-resolver"

// New returns the priority-resolver mutating stage. A workload naming a
// priority class gets the class value stamped; an unnamed one gets the global
// default class (name and value), or value zero when no default exists.
// Unknown class names are left untouched: denying is the job of the
// workload-policy validating stage, since mutating stages never deny.
func New(order int, registry *priority.Registry) *admission.Stage {
	matcher := admission.NewMatcher(
		[]corev1alpha1.Operation{corev1alpha1.OperationCreate},
		[]string{corev1alpha1.WorkloadKind}, nil)

	mutator := admission.MutatorFunc(func(_ context.Context, req *corev1alpha1.Request) (admission.Patch, error) {
		return mutate(registry, req)
	})
	return admission.NewMutating(StageName, order, matcher, mutator)
}

func mutate(registry *priority.Registry, req *corev1alpha1.Request) (admission.Patch, error) {
	workload := &corev1alpha1.Workload{}
	if err := json.Unmarshal(req.Object, workload); err != nil {
		return nil, fmt.Errorf("failed decoding workload: %w", err)
	}

	if workload.PriorityClassName == "" {
		if class, found := registry.Default(); found {
			workload.PriorityClassName = class.Name
		}
	}

	value, _, err := registry.Resolve(workload)
	if err != nil {
		klog.V(4).Infof("Request %s: leaving priority unresolved: %v", req.UID, err)
		return nil, nil
	}
	workload.Priority = &value

	mutated, err := json.Marshal(workload)
	if err != nil {
		return nil, fmt.Errorf("failed encoding workload: %w", err)
	}
	return admission.PatchFromMutated(req.Object, mutated)
}
