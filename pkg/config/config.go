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

// Package config loads and validates the gatewarden configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/yaml"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
	"github.com/gatewarden-io/gatewarden/pkg/consts"
)

// Stage kinds accepted in the pipeline section.
const (
	MutatingStage   = "Mutating"
	ValidatingStage = "Validating"
)

// Failure policies accepted for webhook stages.
const (
	FailurePolicyFail   = "Fail"
	FailurePolicyIgnore = "Ignore"
)

// BuiltinStageNames lists the stages that can be referenced by name in the
// pipeline section.
var BuiltinStageNames = sets.New(
	"creator-label",
	"priority-resolver",
	"workload-policy",
	"class-policy",
	"namespace-lifecycle",
)

// WebhookConfig configures an out-of-process admission stage.
type WebhookConfig struct {
	// URL is the endpoint receiving review requests.
	URL string `json:"url"`
	// TimeoutSeconds bounds a single review round-trip.
	TimeoutSeconds int32 `json:"timeoutSeconds,omitempty"`
	// FailurePolicy selects the behavior on webhook failure, Fail or Ignore.
	FailurePolicy string `json:"failurePolicy,omitempty"`
}

// Timeout returns the configured timeout as a duration.
func (w *WebhookConfig) Timeout() time.Duration {
	if w.TimeoutSeconds <= 0 {
		return time.Duration(consts.DefaultWebhookTimeout) * time.Second
	}
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// FailOpen reports whether webhook failures should be ignored.
func (w *WebhookConfig) FailOpen() bool {
	return w.FailurePolicy == FailurePolicyIgnore
}

// MatcherConfig restricts the requests a stage observes. Empty slices leave
// the corresponding dimension unrestricted.
type MatcherConfig struct {
	Operations []corev1alpha1.Operation `json:"operations,omitempty"`
	Kinds      []string                 `json:"kinds,omitempty"`
	Namespaces []string                 `json:"namespaces,omitempty"`
}

// StageConfig describes a single admission stage. A stage is either builtin,
// referenced by its well known name, or a webhook.
type StageConfig struct {
	// Name identifies the stage, unique across the pipeline.
	Name string `json:"name"`
	// Kind is Mutating or Validating. Builtin stages carry their own kind
	// and ignore this field.
	Kind string `json:"kind,omitempty"`
	// Order positions the stage within its phase, lowest first.
	Order int32 `json:"order"`
	// Builtin enables the builtin stage registered under Name.
	Builtin bool `json:"builtin,omitempty"`
	// Webhook configures an out-of-process stage.
	Webhook *WebhookConfig `json:"webhook,omitempty"`
	// Matcher restricts the requests the stage observes.
	Matcher *MatcherConfig `json:"matcher,omitempty"`
}

// GatewayConfig holds the listen addresses of the gateway.
type GatewayConfig struct {
	Address        string `json:"address,omitempty"`
	MetricsAddress string `json:"metricsAddress,omitempty"`
}

// StoreConfig holds the binding store settings.
type StoreConfig struct {
	// SnapshotPath is the file the store persists bindings to. Empty
	// disables persistence.
	SnapshotPath string `json:"snapshotPath,omitempty"`
}

// Config is the root of the configuration file.
type Config struct {
	Gateway    GatewayConfig `json:"gateway,omitempty"`
	Store      StoreConfig   `json:"store,omitempty"`
	Namespaces []string      `json:"namespaces,omitempty"`
	Pipeline   []StageConfig `json:"pipeline,omitempty"`

	// PriorityClasses and ResourcePools are seeded at startup, bypassing
	// the admission pipeline.
	PriorityClasses []corev1alpha1.PriorityClass `json:"priorityClasses,omitempty"`
	ResourcePools   []corev1alpha1.ResourcePool  `json:"resourcePools,omitempty"`
}

// Default returns the configuration used when no file is given: every builtin
// stage enabled in its canonical position.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Address:        consts.DefaultGatewayAddress,
			MetricsAddress: consts.DefaultMetricsAddress,
		},
		Pipeline: []StageConfig{
			{Name: "creator-label", Order: 0, Builtin: true},
			{Name: "priority-resolver", Order: 100, Builtin: true},
			{Name: "namespace-lifecycle", Order: 0, Builtin: true},
			{Name: "workload-policy", Order: 100, Builtin: true},
			{Name: "class-policy", Order: 200, Builtin: true},
		},
	}
}

// Load reads and validates the configuration at the given path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed reading configuration file")
	}

	cfg := Default()
	if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
		return nil, errors.Wrap(err, "failed parsing configuration file")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	names := sets.New[string]()
	for i := range c.Pipeline {
		stage := &c.Pipeline[i]
		if stage.Name == "" {
			return fmt.Errorf("pipeline stage %d has no name", i)
		}
		if names.Has(stage.Name) {
			return fmt.Errorf("duplicate pipeline stage name %q", stage.Name)
		}
		names.Insert(stage.Name)

		if err := stage.validate(); err != nil {
			return errors.Wrapf(err, "pipeline stage %q", stage.Name)
		}
	}

	defaults := []string{}
	for i := range c.PriorityClasses {
		if c.PriorityClasses[i].GlobalDefault {
			defaults = append(defaults, c.PriorityClasses[i].Name)
		}
	}
	if len(defaults) > 1 {
		return fmt.Errorf("multiple priority classes marked as global default: %v", defaults)
	}

	for i := range c.ResourcePools {
		pool := &c.ResourcePools[i]
		if pool.Name == "" {
			return fmt.Errorf("resource pool %d has no name", i)
		}
		for _, taint := range pool.Taints {
			switch taint.Effect {
			case corev1alpha1.TaintEffectNoSchedule, corev1alpha1.TaintEffectPreferNoSchedule,
				corev1alpha1.TaintEffectNoExecute:
			default:
				return fmt.Errorf("resource pool %q has a taint with invalid effect %q",
					pool.Name, taint.Effect)
			}
		}
	}
	return nil
}

func (s *StageConfig) validate() error {
	switch {
	case s.Builtin && s.Webhook != nil:
		return fmt.Errorf("cannot be both builtin and webhook")
	case s.Builtin:
		if !BuiltinStageNames.Has(s.Name) {
			return fmt.Errorf("unknown builtin stage, expected one of %v",
				sets.List(BuiltinStageNames))
		}
	case s.Webhook != nil:
		if s.Webhook.URL == "" {
			return fmt.Errorf("webhook stage has no URL")
		}
		if s.Kind != MutatingStage && s.Kind != ValidatingStage {
			return fmt.Errorf("webhook stage kind must be %s or %s", MutatingStage, ValidatingStage)
		}
		if fp := s.Webhook.FailurePolicy; fp != "" && fp != FailurePolicyFail && fp != FailurePolicyIgnore {
			return fmt.Errorf("invalid failure policy %q", fp)
		}
	default:
		return fmt.Errorf("stage is neither builtin nor webhook")
	}
	return nil
}
