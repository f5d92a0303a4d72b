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

// Package store implements the binding store: the durable, consistent record
// of workload-to-pool placements consumed by the scheduling engine and polled
// by external executors.
package store

import (
	"sort"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
)

// Store records the active binding of each workload. Reads always reflect the
// latest committed state: every mutation happens under the store lock and
// bumps the revision before any subsequent read.
type Store struct {
	mu        sync.RWMutex
	bindings  map[string]*corev1alpha1.Binding
	byPool    map[string][]*corev1alpha1.Binding
	revision  uint64
	changed   chan struct{}
	clock     clock.Clock
	persister *persister

	// poolLocks serializes scheduling attempts targeting the same pool.
	poolLocks *keyMutex
}

// Option customizes the store at construction time.
type Option func(*Store)

// WithClock injects the clock stamping binding timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithSnapshotPath enables snapshot persistence at the given path. Existing
// snapshots are restored by New.
func WithSnapshotPath(path string) Option {
	return func(s *Store) { s.persister = &persister{path: path} }
}

// New returns a binding store, restoring the persisted snapshot when one is
// configured and present.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		bindings:  map[string]*corev1alpha1.Binding{},
		byPool:    map[string][]*corev1alpha1.Binding{},
		changed:   make(chan struct{}),
		clock:     clock.RealClock{},
		poolLocks: newKeyMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.persister != nil {
		restored, revision, err := s.persister.restore()
		if err != nil {
			return nil, err
		}
		for i := range restored {
			binding := restored[i]
			s.bindings[binding.WorkloadUID] = &binding
			s.byPool[binding.PoolName] = append(s.byPool[binding.PoolName], &binding)
		}
		s.revision = revision
		if len(restored) > 0 {
			klog.Infof("Restored %d bindings from snapshot (revision %d)", len(restored), revision)
		}
	}
	return s, nil
}

// Bind records a new binding for the given workload. It fails with
// AlreadyBoundError if an active binding exists.
func (s *Store) Bind(workloadUID, poolName string) (corev1alpha1.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, found := s.bindings[workloadUID]; found {
		return corev1alpha1.Binding{}, &AlreadyBoundError{
			WorkloadUID: workloadUID, PoolName: existing.PoolName,
		}
	}

	binding := &corev1alpha1.Binding{
		WorkloadUID: workloadUID,
		PoolName:    poolName,
		Timestamp:   metav1.NewTime(s.clock.Now()),
	}
	s.bindings[workloadUID] = binding
	s.byPool[poolName] = append(s.byPool[poolName], binding)

	if err := s.persistLocked(); err != nil {
		// Roll back: a binding that failed to persist was never committed.
		delete(s.bindings, workloadUID)
		s.byPool[poolName] = s.byPool[poolName][:len(s.byPool[poolName])-1]
		return corev1alpha1.Binding{}, err
	}

	s.bumpLocked()
	klog.V(4).Infof("Bound workload %q to pool %q", workloadUID, poolName)
	return *binding, nil
}

// Unbind removes the active binding of the given workload. It is idempotent:
// unbinding an unbound workload is a no-op.
func (s *Store) Unbind(workloadUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	binding, found := s.bindings[workloadUID]
	if !found {
		return nil
	}

	delete(s.bindings, workloadUID)
	poolBindings := s.byPool[binding.PoolName]
	for i := range poolBindings {
		if poolBindings[i].WorkloadUID == workloadUID {
			s.byPool[binding.PoolName] = append(poolBindings[:i], poolBindings[i+1:]...)
			break
		}
	}

	if err := s.persistLocked(); err != nil {
		s.bindings[workloadUID] = binding
		s.byPool[binding.PoolName] = append(s.byPool[binding.PoolName], binding)
		return err
	}

	s.bumpLocked()
	klog.V(4).Infof("Unbound workload %q from pool %q", workloadUID, binding.PoolName)
	return nil
}

// GetBinding returns the active binding of the given workload, if any.
func (s *Store) GetBinding(workloadUID string) (corev1alpha1.Binding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	binding, found := s.bindings[workloadUID]
	if !found {
		return corev1alpha1.Binding{}, false
	}
	return *binding, true
}

// ListBindings returns the bindings of the given pool, in commit order.
func (s *Store) ListBindings(poolName string) []corev1alpha1.Binding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]corev1alpha1.Binding, 0, len(s.byPool[poolName]))
	for _, binding := range s.byPool[poolName] {
		out = append(out, *binding)
	}
	return out
}

// List returns every binding, grouped by pool name in lexical order and in
// commit order within each pool.
func (s *Store) List() []corev1alpha1.Binding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pools := make([]string, 0, len(s.byPool))
	for pool := range s.byPool {
		pools = append(pools, pool)
	}
	sort.Strings(pools)

	out := make([]corev1alpha1.Binding, 0, len(s.bindings))
	for _, pool := range pools {
		for _, binding := range s.byPool[pool] {
			out = append(out, *binding)
		}
	}
	return out
}

// Revision returns the current store revision. It starts at zero and is
// bumped by every committed mutation.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Changes returns a channel closed at the next committed mutation. Callers
// re-invoke Changes after each receipt to observe subsequent mutations.
func (s *Store) Changes() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// LockPool acquires the exclusive section of the given pool. All capacity
// reads and the final bind of a scheduling attempt happen inside it.
func (s *Store) LockPool(poolName string) {
	s.poolLocks.Lock(poolName)
}

// UnlockPool releases the exclusive section of the given pool.
func (s *Store) UnlockPool(poolName string) {
	s.poolLocks.Unlock(poolName)
}

func (s *Store) bumpLocked() {
	s.revision++
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Store) persistLocked() error {
	if s.persister == nil {
		return nil
	}

	snapshot := make([]corev1alpha1.Binding, 0, len(s.bindings))
	for _, binding := range s.bindings {
		snapshot = append(snapshot, *binding)
	}
	return s.persister.persist(snapshot, s.revision+1)
}
