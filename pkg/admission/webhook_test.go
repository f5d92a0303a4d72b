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
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gatewarden-io/gatewarden/pkg/admission"
)

var _ = Describe("Webhook stages", func() {
	var pipeline *admission.Pipeline

	BeforeEach(func() {
		pipeline = admission.NewPipeline()
	})

	reviewServer := func(handler func(review *admission.WebhookReview) admission.WebhookReviewResponse) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			review := &admission.WebhookReview{}
			Expect(json.NewDecoder(r.Body).Decode(review)).To(Succeed())
			Expect(json.NewEncoder(w).Encode(handler(review))).To(Succeed())
		}))
	}

	Describe("Validating webhooks", func() {
		It("propagates the endpoint verdict", func() {
			server := reviewServer(func(review *admission.WebhookReview) admission.WebhookReviewResponse {
				Expect(review.Request.UserInfo.Username).To(Equal("alice"))
				return admission.WebhookReviewResponse{Allowed: false, Reason: "quota exhausted"}
			})
			defer server.Close()

			Expect(pipeline.Register(admission.NewValidatingWebhook("quota", 0,
				admission.MatchEverything(),
				admission.WebhookConfig{URL: server.URL, Timeout: time.Second}))).To(Succeed())

			_, verdict, err := pipeline.Admit(context.Background(), newRequest(`{}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(verdict.Allowed).To(BeFalse())
			Expect(verdict.Stage).To(Equal("quota"))
			Expect(verdict.Reason).To(Equal("quota exhausted"))
		})

		It("denies when the endpoint is unreachable and the policy is Fail", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			}))
			defer server.Close()

			Expect(pipeline.Register(admission.NewValidatingWebhook("fragile", 0,
				admission.MatchEverything(),
				admission.WebhookConfig{URL: server.URL, Timeout: time.Second}))).To(Succeed())

			_, verdict, err := pipeline.Admit(context.Background(), newRequest(`{}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(verdict.Allowed).To(BeFalse())
			Expect(verdict.Reason).To(ContainSubstring(admission.ReasonWebhookUnavailable))
		})

		It("skips the stage when the endpoint is unreachable and the policy is Ignore", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			}))
			defer server.Close()

			Expect(pipeline.Register(admission.NewValidatingWebhook("tolerant", 0,
				admission.MatchEverything(),
				admission.WebhookConfig{URL: server.URL, Timeout: time.Second, FailOpen: true}))).To(Succeed())

			_, verdict, err := pipeline.Admit(context.Background(), newRequest(`{}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(verdict.Allowed).To(BeTrue())
		})

		It("enforces the configured timeout", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(5 * time.Second):
				case <-r.Context().Done():
				}
			}))
			defer server.Close()

			Expect(pipeline.Register(admission.NewValidatingWebhook("slow", 0,
				admission.MatchEverything(),
				admission.WebhookConfig{URL: server.URL, Timeout: 50 * time.Millisecond}))).To(Succeed())

			start := time.Now()
			_, verdict, err := pipeline.Admit(context.Background(), newRequest(`{}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(verdict.Allowed).To(BeFalse())
			Expect(time.Since(start)).To(BeNumerically("<", time.Second))
		})
	})

	Describe("Mutating webhooks", func() {
		It("applies the returned patch", func() {
			patch := json.RawMessage(`[{"op": "add", "path": "/injected", "value": true}]`)
			server := reviewServer(func(*admission.WebhookReview) admission.WebhookReviewResponse {
				return admission.WebhookReviewResponse{Allowed: true, Patch: patch}
			})
			defer server.Close()

			Expect(pipeline.Register(admission.NewMutatingWebhook("injector", 0,
				admission.MatchEverything(),
				admission.WebhookConfig{URL: server.URL, Timeout: time.Second}))).To(Succeed())

			admitted, verdict, err := pipeline.Admit(context.Background(), newRequest(`{}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(verdict.Allowed).To(BeTrue())
			Expect(admitted.Object).To(MatchJSON(`{"injected": true}`))
		})

		It("treats a refusal as a stage failure", func() {
			server := reviewServer(func(*admission.WebhookReview) admission.WebhookReviewResponse {
				return admission.WebhookReviewResponse{Allowed: false, Reason: "nope"}
			})
			defer server.Close()

			Expect(pipeline.Register(admission.NewMutatingWebhook("refusing", 0,
				admission.MatchEverything(),
				admission.WebhookConfig{URL: server.URL, Timeout: time.Second}))).To(Succeed())

			_, _, err := pipeline.Admit(context.Background(), newRequest(`{}`))
			Expect(admission.IsMutationFailed(err)).To(BeTrue())
		})
	})
})
