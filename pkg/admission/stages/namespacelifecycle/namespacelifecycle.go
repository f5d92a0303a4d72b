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

// Package namespacelifecycle implements the validating stage rejecting
// requests targeting namespaces that do not exist.
package namespacelifecycle

import (
	"context"
	"fmt"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
	"github.com/gatewarden-io/gatewarden/pkg/admission"
)

// StageName is the name the stage registers under.
const StageName = "namespace-lifecycle"

// Lister exposes the namespaces known to the gateway.
type Lister interface {
	Exists(namespace string) bool
}

// New returns the namespace-lifecycle validating stage. It runs after every
// mutating stage, so a namespace normalized by an earlier mutator is the one
// checked here. Cluster-scoped requests (empty namespace) always pass.
func New(order int, namespaces Lister) *admission.Stage {
	matcher := admission.NewMatcher(
		[]corev1alpha1.Operation{corev1alpha1.OperationCreate, corev1alpha1.OperationUpdate},
		[]string{corev1alpha1.WorkloadKind}, nil)

	validator := admission.ValidatorFunc(func(_ context.Context, req *corev1alpha1.Request) (bool, string, error) {
		if req.Namespace == "" {
			return true, "", nil
		}
		if !namespaces.Exists(req.Namespace) {
			return false, fmt.Sprintf("namespace %q not found", req.Namespace), nil
		}
		return true, "", nil
	})
	return admission.NewValidating(StageName, order, matcher, validator)
}
