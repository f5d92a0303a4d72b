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

// Package admission implements the mutate-then-validate stage chain gating
// every resource mutation request.
package admission

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"k8s.io/klog/v2"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
)

// Pipeline is the ordered chain of admission stages. It is configured once at
// startup and evaluated concurrently across independent requests: evaluation
// shares no mutable state beyond each request's own payload.
type Pipeline struct {
	mu         sync.RWMutex
	mutating   []*Stage
	validating []*Stage
	names      map[string]struct{}
}

// NewPipeline returns an empty admission pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{names: map[string]struct{}{}}
}

// Register adds the given stages to the pipeline. Stage names must be unique
// across the whole pipeline.
func (p *Pipeline) Register(stages ...*Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, stage := range stages {
		if _, found := p.names[stage.name]; found {
			return fmt.Errorf("duplicate admission stage name %q", stage.name)
		}
		p.names[stage.name] = struct{}{}

		switch stage.kind {
		case Mutating:
			p.mutating = append(p.mutating, stage)
		case Validating:
			p.validating = append(p.validating, stage)
		default:
			return fmt.Errorf("admission stage %q has unknown kind %q", stage.name, stage.kind)
		}
	}

	sortStages(p.mutating)
	sortStages(p.validating)
	return nil
}

// sortStages orders stages by ascending order index, with the name as a
// deterministic tie-break.
func sortStages(stages []*Stage) {
	sort.SliceStable(stages, func(i, j int) bool {
		if stages[i].order != stages[j].order {
			return stages[i].order < stages[j].order
		}
		return stages[i].name < stages[j].name
	})
}

// Admit runs the given request through the pipeline: all matching mutating
// stages first, in ascending order, each one receiving the output of the
// previous, then all matching validating stages against the fully mutated
// request. The first deny terminates the evaluation. The input request is
// never modified; the returned request is the admitted, normalized form.
//
// A non-nil error reports an aborted evaluation (cancellation or a failed
// mutation); in that case no verdict is meaningful and nothing must be
// persisted.
func (p *Pipeline) Admit(ctx context.Context, req *corev1alpha1.Request) (*corev1alpha1.Request, corev1alpha1.Verdict, error) {
	p.mu.RLock()
	mutating := p.mutating
	validating := p.validating
	p.mu.RUnlock()

	work := req.DeepCopy()

	for _, stage := range mutating {
		// Cancellation is observed between stages, never mid-patch.
		if err := ctx.Err(); err != nil {
			return nil, corev1alpha1.Verdict{}, fmt.Errorf("request %s cancelled: %w", req.UID, err)
		}
		if !stage.matcher.Matches(work) {
			continue
		}

		patch, err := p.runMutating(ctx, stage, work)
		if err != nil {
			if stage.failOpen {
				klog.Warningf("Request %s: mutating stage %q failed open: %v", req.UID, stage.name, err)
				continue
			}
			VerdictsCounter.WithLabelValues("error", stage.name).Inc()
			return nil, corev1alpha1.Verdict{}, &MutationFailedError{Stage: stage.name, Err: err}
		}
		if patch.IsEmpty() {
			continue
		}

		patched, err := patch.apply(work.Object)
		if err != nil {
			// A malformed patch rejects the whole request: the payload
			// committed so far is discarded with the working copy.
			VerdictsCounter.WithLabelValues("error", stage.name).Inc()
			return nil, corev1alpha1.Verdict{}, &MutationFailedError{Stage: stage.name, Err: err}
		}
		work.Object = patched
		klog.V(5).Infof("Request %s: mutating stage %q applied %d patch operations",
			req.UID, stage.name, len(patch))
	}

	for _, stage := range validating {
		if err := ctx.Err(); err != nil {
			return nil, corev1alpha1.Verdict{}, fmt.Errorf("request %s cancelled: %w", req.UID, err)
		}
		if !stage.matcher.Matches(work) {
			continue
		}

		allowed, reason, err := p.runValidating(ctx, stage, work)
		if err != nil {
			if stage.failOpen {
				klog.Warningf("Request %s: validating stage %q failed open: %v", req.UID, stage.name, err)
				continue
			}
			VerdictsCounter.WithLabelValues("denied", stage.name).Inc()
			return work, corev1alpha1.Denied(stage.name, err.Error()), nil
		}
		if !allowed {
			klog.V(4).Infof("Request %s denied by stage %q: %s", req.UID, stage.name, reason)
			VerdictsCounter.WithLabelValues("denied", stage.name).Inc()
			return work, corev1alpha1.Denied(stage.name, reason), nil
		}
	}

	VerdictsCounter.WithLabelValues("allowed", "").Inc()
	return work, corev1alpha1.Allowed(), nil
}

// runMutating evaluates a mutating stage against a copy of the request, so
// that only the returned patch can alter the canonical payload.
func (p *Pipeline) runMutating(ctx context.Context, stage *Stage, req *corev1alpha1.Request) (Patch, error) {
	sctx, cancel := stage.stageContext(ctx)
	defer cancel()

	start := time.Now()
	patch, err := stage.mutator.Mutate(sctx, req.DeepCopy())
	StageDuration.WithLabelValues(stage.name, string(Mutating)).Observe(time.Since(start).Seconds())
	return patch, err
}

// runValidating evaluates a validating stage against a copy of the request:
// validating stages are read-only by construction.
func (p *Pipeline) runValidating(ctx context.Context, stage *Stage, req *corev1alpha1.Request) (bool, string, error) {
	sctx, cancel := stage.stageContext(ctx)
	defer cancel()

	start := time.Now()
	allowed, reason, err := stage.validator.Validate(sctx, req.DeepCopy())
	StageDuration.WithLabelValues(stage.name, string(Validating)).Observe(time.Since(start).Seconds())
	return allowed, reason, err
}
