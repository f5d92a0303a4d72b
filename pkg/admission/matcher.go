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
	"k8s.io/apimachinery/pkg/util/sets"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
)

// Matcher selects the requests a stage applies to. An empty dimension
// matches everything, so the zero Matcher matches every request.
type Matcher struct {
	operations sets.Set[corev1alpha1.Operation]
	kinds      sets.Set[string]
	namespaces sets.Set[string]
}

// MatchEverything returns a matcher accepting every request.
func MatchEverything() Matcher {
	return Matcher{}
}

// NewMatcher returns a matcher restricted to the given operations, kinds and
// namespaces. Nil or empty slices leave the corresponding dimension
// unrestricted.
func NewMatcher(operations []corev1alpha1.Operation, kinds, namespaces []string) Matcher {
	m := Matcher{}
	if len(operations) > 0 {
		m.operations = sets.New(operations...)
	}
	if len(kinds) > 0 {
		m.kinds = sets.New(kinds...)
	}
	if len(namespaces) > 0 {
		m.namespaces = sets.New(namespaces...)
	}
	return m
}

// MatchKinds returns a matcher restricted to the given kinds only.
func MatchKinds(kinds ...string) Matcher {
	return NewMatcher(nil, kinds, nil)
}

// Matches reports whether the given request is selected by the matcher.
func (m *Matcher) Matches(req *corev1alpha1.Request) bool {
	if m.operations != nil && !m.operations.Has(req.Operation) {
		return false
	}
	if m.kinds != nil && !m.kinds.Has(req.Kind) {
		return false
	}
	if m.namespaces != nil && !m.namespaces.Has(req.Namespace) {
		return false
	}
	return true
}
