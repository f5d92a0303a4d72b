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

package gateway

import (
	"sync"

	"k8s.io/apimachinery/pkg/util/sets"
)

// NamespaceSet is the thread-safe set of namespaces known to the gateway,
// consumed by the namespace-lifecycle admission stage.
type NamespaceSet struct {
	mu    sync.RWMutex
	names sets.Set[string]
}

// NewNamespaceSet returns a namespace set seeded with the given names.
func NewNamespaceSet(names ...string) *NamespaceSet {
	return &NamespaceSet{names: sets.New(names...)}
}

// Add registers a namespace.
func (ns *NamespaceSet) Add(name string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.names.Insert(name)
}

// Exists reports whether the namespace is known.
func (ns *NamespaceSet) Exists(name string) bool {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.names.Has(name)
}

// Names returns the known namespaces, sorted.
func (ns *NamespaceSet) Names() []string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return sets.List(ns.names)
}
