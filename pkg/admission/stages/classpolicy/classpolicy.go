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

// Package classpolicy implements the validating stage enforcing the priority
// class invariants at class-creation time.
package classpolicy

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
const StageName = "class-policy"

// MaxUserDefinableValue is the highest priority value a class may carry.
const MaxUserDefinableValue = 1000000000

// New returns the class-policy validating stage. The global-default
// uniqueness is enforced here, at class-creation admission time, never
// deferred to workload scheduling. The registry create operation re-checks it
// under its own lock, so concurrent creations cannot slip through between
// validation and commit.
func New(order int, registry *priority.Registry) *admission.Stage {
	matcher := admission.NewMatcher(
		[]corev1alpha1.Operation{corev1alpha1.OperationCreate},
		[]string{corev1alpha1.PriorityClassKind}, nil)

	validator := admission.ValidatorFunc(func(_ context.Context, req *corev1alpha1.Request) (bool, string, error) {
		return validate(registry, req)
	})
	return admission.NewValidating(StageName, order, matcher, validator)
}

func validate(registry *priority.Registry, req *corev1alpha1.Request) (bool, string, error) {
	class := &corev1alpha1.PriorityClass{}
	if err := json.Unmarshal(req.Object, class); err != nil {
		return false, "", fmt.Errorf("failed decoding priority class: %w", err)
	}

	if errs := validation.IsDNS1123Label(class.Name); len(errs) > 0 {
		return false, fmt.Sprintf("invalid priority class name %q: %s", class.Name, errs[0]), nil
	}

	if class.Value > MaxUserDefinableValue || class.Value < -MaxUserDefinableValue {
		return false, fmt.Sprintf("priority class value %d is out of range [-%d, %d]",
			class.Value, MaxUserDefinableValue, MaxUserDefinableValue), nil
	}

	switch class.PreemptionPolicy {
	case corev1alpha1.PreemptLowerPriority, corev1alpha1.PreemptNever, "":
	default:
		return false, fmt.Sprintf("invalid preemption policy %q", class.PreemptionPolicy), nil
	}

	if _, found := registry.Get(class.Name); found {
		err := &priority.AlreadyExistsError{Name: class.Name}
		return false, err.Error(), nil
	}

	if class.GlobalDefault {
		if existing, found := registry.Default(); found && existing.Name != class.Name {
			err := &priority.DuplicateDefaultError{Existing: existing.Name, Conflicting: class.Name}
			return false, err.Error(), nil
		}
	}

	return true, "", nil
}
