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

package admission

import (
	"context"
	"time"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
)

// StageKind discriminates the two stage behaviors of the pipeline.
type StageKind string

const (
	// Mutating stages transform the request payload through patches.
	Mutating StageKind = "Mutating"
	// Validating stages only allow or deny, and never alter the payload.
	Validating StageKind = "Validating"
)

// Mutator is the contract of a mutating stage: it receives a copy of the
// current request and returns the patch to apply, possibly empty. A mutator
// never denies a request; returning an error aborts the whole pipeline.
type Mutator interface {
	Mutate(ctx context.Context, req *corev1alpha1.Request) (Patch, error)
}

// MutatorFunc adapts a function to the Mutator interface.
type MutatorFunc func(ctx context.Context, req *corev1alpha1.Request) (Patch, error)

// Mutate implements Mutator.
func (f MutatorFunc) Mutate(ctx context.Context, req *corev1alpha1.Request) (Patch, error) {
	return f(ctx, req)
}

// Validator is the contract of a validating stage: it receives a copy of the
// fully mutated request and reports whether it is allowed. Errors are
// unexpected failures, handled according to the stage failure policy.
type Validator interface {
	Validate(ctx context.Context, req *corev1alpha1.Request) (allowed bool, reason string, err error)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, req *corev1alpha1.Request) (bool, string, error)

// Validate implements Validator.
func (f ValidatorFunc) Validate(ctx context.Context, req *corev1alpha1.Request) (bool, string, error) {
	return f(ctx, req)
}

// Stage is a named unit of the admission pipeline. Stages are configured once
// at startup and invoked per request; they carry no per-request state.
type Stage struct {
	name     string
	kind     StageKind
	order    int
	matcher  Matcher
	timeout  time.Duration
	failOpen bool

	mutator   Mutator
	validator Validator
}

// StageOption customizes a stage at construction time.
type StageOption func(*Stage)

// WithTimeout bounds the evaluation of the stage. Zero means no bound beyond
// the request context.
func WithTimeout(timeout time.Duration) StageOption {
	return func(s *Stage) { s.timeout = timeout }
}

// WithFailOpen makes unexpected stage failures non-fatal: the stage is
// skipped instead of rejecting the request.
func WithFailOpen() StageOption {
	return func(s *Stage) { s.failOpen = true }
}

// NewMutating returns a mutating stage with the given name, ordering index
// and matcher.
func NewMutating(name string, order int, matcher Matcher, mutator Mutator, opts ...StageOption) *Stage {
	s := &Stage{name: name, kind: Mutating, order: order, matcher: matcher, mutator: mutator}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewValidating returns a validating stage with the given name, ordering
// index and matcher.
func NewValidating(name string, order int, matcher Matcher, validator Validator, opts ...StageOption) *Stage {
	s := &Stage{name: name, kind: Validating, order: order, matcher: matcher, validator: validator}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the stage name.
func (s *Stage) Name() string { return s.name }

// Kind returns the stage kind.
func (s *Stage) Kind() StageKind { return s.kind }

// Order returns the stage ordering index.
func (s *Stage) Order() int { return s.order }

// stageContext derives the evaluation context for the stage, honoring the
// configured timeout.
func (s *Stage) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
