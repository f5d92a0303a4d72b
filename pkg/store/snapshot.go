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

package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"sigs.k8s.io/yaml"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
)

// snapshot is the on-disk representation of the store state.
type snapshot struct {
	Revision uint64                 `json:"revision"`
	Bindings []corev1alpha1.Binding `json:"bindings,omitempty"`
}

// persister writes store snapshots with an atomic rename, so a crash can
// never leave a truncated snapshot behind.
type persister struct {
	path string
}

func (p *persister) persist(bindings []corev1alpha1.Binding, revision uint64) error {
	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].WorkloadUID < bindings[j].WorkloadUID
	})

	encoded, err := yaml.Marshal(&snapshot{Revision: revision, Bindings: bindings})
	if err != nil {
		return fmt.Errorf("failed encoding store snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.path), filepath.Base(p.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed creating store snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("failed writing store snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed writing store snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("failed committing store snapshot: %w", err)
	}
	return nil
}

func (p *persister) restore() ([]corev1alpha1.Binding, uint64, error) {
	encoded, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed reading store snapshot: %w", err)
	}

	decoded := &snapshot{}
	if err := yaml.UnmarshalStrict(encoded, decoded); err != nil {
		return nil, 0, fmt.Errorf("failed decoding store snapshot: %w", err)
	}
	return decoded.Bindings, decoded.Revision, nil
}
