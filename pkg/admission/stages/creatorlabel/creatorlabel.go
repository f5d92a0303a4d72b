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

// Package creatorlabel implements the mutating stage stamping every workload
// with the identity of its creator.
package creatorlabel

import (
	"context"
	"encoding/json"
	"fmt"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
	"github.com/gatewarden-io/gatewarden/pkg/admission"
	"github.com/gatewarden-io/gatewarden/pkg/consts"
)

// StageName is the name the stage registers under.
const StageName = "creator-label"

// New returns the creator-label mutating stage. It applies to workload
// creations and updates, and overwrites any caller-supplied value: the label
// always reflects the authenticated identity.
func New(order int) *admission.Stage {
	matcher := admission.NewMatcher(
		[]corev1alpha1.Operation{corev1alpha1.OperationCreate, corev1alpha1.OperationUpdate},
		[]string{corev1alpha1.WorkloadKind}, nil)

	return admission.NewMutating(StageName, order, matcher, admission.MutatorFunc(mutate))
}

func mutate(_ context.Context, req *corev1alpha1.Request) (admission.Patch, error) {
	workload := &corev1alpha1.Workload{}
	if err := json.Unmarshal(req.Object, workload); err != nil {
		return nil, fmt.Errorf("failed decoding workload: %w", err)
	}

	if workload.Labels == nil {
		workload.Labels = map[string]string{}
	}
	workload.Labels[consts.CreatorLabelKey] = req.UserInfo.Username

	mutated, err := json.Marshal(workload)
	if err != nil {
		return nil, fmt.Errorf("failed encoding workload: %w", err)
	}
	return admission.PatchFromMutated(req.Object, mutated)
}
