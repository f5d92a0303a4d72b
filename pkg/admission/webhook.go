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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"k8s.io/klog/v2"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
)

// ReasonWebhookUnavailable is the denial reason surfaced when a webhook stage
// cannot be reached within its timeout.
const ReasonWebhookUnavailable = "admission webhook unavailable"

// maxWebhookResponseSize bounds the accepted webhook response body.
const maxWebhookResponseSize = 1 << 20

// WebhookConfig configures a stage delegating its decision to an external
// HTTP(S) endpoint.
type WebhookConfig struct {
	// URL is the endpoint receiving the review requests.
	URL string
	// Timeout bounds the whole webhook round-trip.
	Timeout time.Duration
	// FailOpen skips the stage instead of rejecting the request when the
	// endpoint is unreachable.
	FailOpen bool
}

// WebhookReview is the envelope sent to webhook endpoints.
type WebhookReview struct {
	Request *corev1alpha1.Request `json:"request"`
}

// WebhookReviewResponse is the envelope returned by webhook endpoints.
// Mutating webhooks return a patch, validating webhooks an allowed/reason
// pair; extra fields are ignored on either side.
type WebhookReviewResponse struct {
	Allowed bool            `json:"allowed"`
	Reason  string          `json:"reason,omitempty"`
	Patch   json.RawMessage `json:"patch,omitempty"`
}

// webhookClient performs the review round-trip towards a webhook endpoint.
type webhookClient struct {
	url    string
	client *http.Client
}

func newWebhookClient(cfg *WebhookConfig) *webhookClient {
	return &webhookClient{
		url:    cfg.URL,
		client: &http.Client{},
	}
}

// do sends the review and decodes the response. The per-stage timeout is
// enforced by the context the pipeline derives for the stage.
func (c *webhookClient) do(ctx context.Context, req *corev1alpha1.Request) (*WebhookReviewResponse, error) {
	body, err := json.Marshal(WebhookReview{Request: req})
	if err != nil {
		return nil, fmt.Errorf("failed encoding webhook review: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed building webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ReasonWebhookUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", ReasonWebhookUnavailable, httpResp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, maxWebhookResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ReasonWebhookUnavailable, err)
	}

	response := &WebhookReviewResponse{}
	if err := json.Unmarshal(payload, response); err != nil {
		return nil, fmt.Errorf("failed decoding webhook response: %w", err)
	}
	return response, nil
}

// NewMutatingWebhook returns a mutating stage delegating to an external
// endpoint. The endpoint receives the current request and returns an RFC 6902
// patch; an unreachable endpoint rejects the request unless fail-open.
func NewMutatingWebhook(name string, order int, matcher Matcher, cfg WebhookConfig) *Stage {
	client := newWebhookClient(&cfg)
	mutator := MutatorFunc(func(ctx context.Context, req *corev1alpha1.Request) (Patch, error) {
		response, err := client.do(ctx, req)
		if err != nil {
			return nil, err
		}
		if !response.Allowed {
			// Mutating webhooks cannot deny; a refusal is a stage failure.
			return nil, fmt.Errorf("mutating webhook refused the request: %s", response.Reason)
		}
		if len(response.Patch) == 0 {
			return nil, nil
		}
		return DecodePatch(response.Patch)
	})

	opts := webhookStageOptions(&cfg)
	klog.V(4).Infof("Configured mutating webhook stage %q towards %s", name, cfg.URL)
	return NewMutating(name, order, matcher, mutator, opts...)
}

// NewValidatingWebhook returns a validating stage delegating to an external
// endpoint.
func NewValidatingWebhook(name string, order int, matcher Matcher, cfg WebhookConfig) *Stage {
	client := newWebhookClient(&cfg)
	validator := ValidatorFunc(func(ctx context.Context, req *corev1alpha1.Request) (bool, string, error) {
		response, err := client.do(ctx, req)
		if err != nil {
			return false, "", err
		}
		return response.Allowed, response.Reason, nil
	})

	opts := webhookStageOptions(&cfg)
	klog.V(4).Infof("Configured validating webhook stage %q towards %s", name, cfg.URL)
	return NewValidating(name, order, matcher, validator, opts...)
}

func webhookStageOptions(cfg *WebhookConfig) []StageOption {
	opts := []StageOption{WithTimeout(cfg.Timeout)}
	if cfg.FailOpen {
		opts = append(opts, WithFailOpen())
	}
	return opts
}
