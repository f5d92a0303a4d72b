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

// Package workloadpolicy implements the validating stage enforcing the
// structural and referential constraints of workloads.
package workloadpolicy

import (
	"context"
	"encoding/json"
	"fmt"

	"k8s.io/apimachinery/pkg/util/validation"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
	"github.com/gatewarden-io/gatewarden/pkg/admission"
	"github.com/gatewarden-io/gatewarden/pkg/priority"
)

// StageName is the name the stage registers under.
const StageName = "workload-policy"

// New returns the workload-policy validating stage. It runs against the fully
// mutated workload: the name must be a valid DNS-1123 label, the demand
// vector non-negative, tolerations well formed, and a named priority class
// must exist.
func New(order int, registry *priority.Registry) *admission.Stage {
	matcher := admission.NewMatcher(
		[]corev1alpha1.Operation{corev1alpha1.OperationCreate, corev1alpha1.OperationUpdate},
		[]string{corev1alpha1.WorkloadKind}, nil)

	validator := admission.ValidatorFunc(func(_ context.Context, req *corev1alpha1.Request) (bool, string, error) {
		return validate(registry, req)
	})
	return admission.NewValidating(StageName, order, matcher, validator)
}

func validate(registry *priority.Registry, req *corev1alpha1.Request) (bool, string, error) {
	workload := &corev1alpha1.Workload{}
	if err := json.Unmarshal(req.Object, workload); err != nil {
		return false, "", fmt.Errorf("failed decoding workload: %w", err)
	}

	if errs := validation.IsDNS1123Label(workload.Name); len(errs) > 0 {
		return false, fmt.Sprintf("invalid workload name %q: %s", workload.Name, errs[0]), nil
	}

	for name, qty := range workload.Demand {
		if qty.Sign() < 0 {
			return false, fmt.Sprintf("negative demand for resource %q", name), nil
		}
	}

	for i := range workload.Tolerations {
		toleration := &workload.Tolerations[i]
		switch toleration.Operator {
		case corev1alpha1.TolerationOpExists, corev1alpha1.TolerationOpEqual, "":
		default:
			return false, fmt.Sprintf("invalid toleration operator %q", toleration.Operator), nil
		}
		if toleration.Operator == corev1alpha1.TolerationOpExists && toleration.Value != "" {
			return false, "toleration value must be empty when the operator is Exists", nil
		}
	}

	if workload.PriorityClassName != "" {
		if _, found := registry.Get(workload.PriorityClassName); !found {
			err := &priority.UnknownPriorityClassError{Name: workload.PriorityClassName}
			return false, err.Error(), nil
		}
	}

	return true, "", nil
}
