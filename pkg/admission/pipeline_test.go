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

package admission_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
	"github.com/gatewarden-io/gatewarden/pkg/admission"
)

var _ = Describe("Admission pipeline", func() {
	var pipeline *admission.Pipeline

	BeforeEach(func() {
		pipeline = admission.NewPipeline()
	})

	Describe("Register", func() {
		It("rejects duplicate stage names", func() {
			first := admission.NewValidating("policy", 0, admission.MatchEverything(), allowAll(nil))
			second := admission.NewValidating("policy", 10, admission.MatchEverything(), allowAll(nil))

			Expect(pipeline.Register(first)).To(Succeed())
			Expect(pipeline.Register(second)).To(HaveOccurred())
		})
	})

	Describe("Stage ordering", func() {
		It("runs mutating stages in ascending order, chaining their output", func() {
			// Registered out of order on purpose.
			second := admission.NewMutating("set-b", 20, admission.MatchEverything(),
				setFieldMutator("b", "2"))
			first := admission.NewMutating("set-a", 10, admission.MatchEverything(),
				setFieldMutator("a", "1"))
			Expect(pipeline.Register(second, first)).To(Succeed())

			admitted, verdict, err := pipeline.Admit(context.Background(), newRequest(`{}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(verdict.Allowed).To(BeTrue())

			var doc map[string]any
			Expect(json.Unmarshal(admitted.Object, &doc)).To(Succeed())
			Expect(doc).To(HaveKeyWithValue("a", "1"))
			Expect(doc).To(HaveKeyWithValue("b", "2"))
		})

		It("breaks order ties by stage name", func() {
			var order []string
			record := func(name string) admission.ValidatorFunc {
				return func(context.Context, *corev1alpha1.Request) (bool, string, error) {
					order = append(order, name)
					return true, "", nil
				}
			}
			Expect(pipeline.Register(
				admission.NewValidating("zeta", 0, admission.MatchEverything(), record("zeta")),
				admission.NewValidating("alpha", 0, admission.MatchEverything(), record("alpha")),
			)).To(Succeed())

			_, _, err := pipeline.Admit(context.Background(), newRequest(`{}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(order).To(Equal([]string{"alpha", "zeta"}))
		})

		It("runs every mutating stage before any validating stage", func() {
			var seen [][]byte
			Expect(pipeline.Register(
				admission.NewValidating("observe", 0, admission.MatchEverything(), allowAll(&seen)),
				admission.NewMutating("set-a", 100, admission.MatchEverything(),
					setFieldMutator("a", "1")),
			)).To(Succeed())

			_, verdict, err := pipeline.Admit(context.Background(), newRequest(`{}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(verdict.Allowed).To(BeTrue())

			// The validator, despite its lower order index, observed the
			// fully mutated payload.
			Expect(seen).To(HaveLen(1))
			var doc map[string]any
			Expect(json.Unmarshal(seen[0], &doc)).To(Succeed())
			Expect(doc).To(HaveKeyWithValue("a", "1"))
		})
	})

	Describe("Denials", func() {
		It("stops at the first denying stage", func() {
			evaluated := 0
			deny := admission.ValidatorFunc(func(context.Context, *corev1alpha1.Request) (bool, string, error) {
				evaluated++
				return false, "not welcome", nil
			})
			after := admission.ValidatorFunc(func(context.Context, *corev1alpha1.Request) (bool, string, error) {
				evaluated++
				return true, "", nil
			})
			Expect(pipeline.Register(
				admission.NewValidating("deny", 0, admission.MatchEverything(), deny),
				admission.NewValidating("after", 10, admission.MatchEverything(), after),
			)).To(Succeed())

			_, verdict, err := pipeline.Admit(context.Background(), newRequest(`{}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(verdict.Allowed).To(BeFalse())
			Expect(verdict.Stage).To(Equal("deny"))
			Expect(verdict.Reason).To(Equal("not welcome"))
			Expect(evaluated).To(Equal(1))
		})

		It("denies when a validating stage fails closed", func() {
			failing := admission.ValidatorFunc(func(context.Context, *corev1alpha1.Request) (bool, string, error) {
				return false, "", errors.New("backend unavailable")
			})
			Expect(pipeline.Register(
				admission.NewValidating("fragile", 0, admission.MatchEverything(), failing),
			)).To(Succeed())

			_, verdict, err := pipeline.Admit(context.Background(), newRequest(`{}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(verdict.Allowed).To(BeFalse())
			Expect(verdict.Stage).To(Equal("fragile"))
			Expect(verdict.Reason).To(ContainSubstring("backend unavailable"))
		})

		It("skips a validating stage that fails open", func() {
			failing := admission.ValidatorFunc(func(context.Context, *corev1alpha1.Request) (bool, string, error) {
				return false, "", errors.New("backend unavailable")
			})
			Expect(pipeline.Register(
				admission.NewValidating("tolerant", 0, admission.MatchEverything(), failing,
					admission.WithFailOpen()),
			)).To(Succeed())

			_, verdict, err := pipeline.Admit(context.Background(), newRequest(`{}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(verdict.Allowed).To(BeTrue())
		})
	})

	Describe("Mutation failures", func() {
		It("aborts the request and discards prior patches", func() {
			failing := admission.MutatorFunc(func(context.Context, *corev1alpha1.Request) (admission.Patch, error) {
				return nil, errors.New("boom")
			})
			Expect(pipeline.Register(
				admission.NewMutating("set-a", 0, admission.MatchEverything(),
					setFieldMutator("a", "1")),
				admission.NewMutating("broken", 10, admission.MatchEverything(), failing),
			)).To(Succeed())

			original := newRequest(`{}`)
			admitted, _, err := pipeline.Admit(context.Background(), original)
			Expect(admission.IsMutationFailed(err)).To(BeTrue())
			Expect(admitted).To(BeNil())

			// The caller's request is untouched.
			Expect(original.Object).To(MatchJSON(`{}`))
		})

		It("skips a mutating stage that fails open", func() {
			failing := admission.MutatorFunc(func(context.Context, *corev1alpha1.Request) (admission.Patch, error) {
				return nil, errors.New("boom")
			})
			Expect(pipeline.Register(
				admission.NewMutating("broken", 0, admission.MatchEverything(), failing,
					admission.WithFailOpen()),
				admission.NewMutating("set-a", 10, admission.MatchEverything(),
					setFieldMutator("a", "1")),
			)).To(Succeed())

			admitted, verdict, err := pipeline.Admit(context.Background(), newRequest(`{}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(verdict.Allowed).To(BeTrue())
			Expect(admitted.Object).To(MatchJSON(`{"a": "1"}`))
		})
	})

	Describe("Read-only validation", func() {
		It("ignores payload modifications attempted by validators", func() {
			sneaky := admission.ValidatorFunc(func(_ context.Context, req *corev1alpha1.Request) (bool, string, error) {
				for i := range req.Object {
					req.Object[i] = 'x'
				}
				return true, "", nil
			})
			Expect(pipeline.Register(
				admission.NewValidating("sneaky", 0, admission.MatchEverything(), sneaky),
			)).To(Succeed())

			admitted, verdict, err := pipeline.Admit(context.Background(), newRequest(`{"keep":"me"}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(verdict.Allowed).To(BeTrue())
			Expect(admitted.Object).To(MatchJSON(`{"keep": "me"}`))
		})
	})

	Describe("Cancellation", func() {
		It("aborts between stages once the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			evaluated := 0
			cancelling := admission.ValidatorFunc(func(context.Context, *corev1alpha1.Request) (bool, string, error) {
				evaluated++
				cancel()
				return true, "", nil
			})
			after := admission.ValidatorFunc(func(context.Context, *corev1alpha1.Request) (bool, string, error) {
				evaluated++
				return true, "", nil
			})
			Expect(pipeline.Register(
				admission.NewValidating("cancelling", 0, admission.MatchEverything(), cancelling),
				admission.NewValidating("after", 10, admission.MatchEverything(), after),
			)).To(Succeed())

			_, _, err := pipeline.Admit(ctx, newRequest(`{}`))
			Expect(err).To(MatchError(context.Canceled))
			Expect(evaluated).To(Equal(1))
		})
	})

	Describe("Matching", func() {
		It("skips stages whose matcher rejects the request", func() {
			evaluated := 0
			counting := admission.ValidatorFunc(func(context.Context, *corev1alpha1.Request) (bool, string, error) {
				evaluated++
				return true, "", nil
			})
			Expect(pipeline.Register(
				admission.NewValidating("pools-only", 0,
					admission.MatchKinds(corev1alpha1.ResourcePoolKind), counting),
			)).To(Succeed())

			_, verdict, err := pipeline.Admit(context.Background(), newRequest(`{}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(verdict.Allowed).To(BeTrue())
			Expect(evaluated).To(BeZero())
		})
	})
})
