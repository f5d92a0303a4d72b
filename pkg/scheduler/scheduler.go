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

// Package scheduler implements the priority-based, preemptive scheduling
// engine assigning admitted workloads to resource pools.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"k8s.io/klog/v2"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
	"github.com/gatewarden-io/gatewarden/pkg/priority"
	"github.com/gatewarden-io/gatewarden/pkg/scheduler/queue"
	"github.com/gatewarden-io/gatewarden/pkg/store"
)

// Engine is the scheduling engine. A single logical loop processes one
// placement decision at a time, which keeps tie-breaks and eviction sets
// deterministic; the resource tables may be mutated concurrently by the
// gateway.
type Engine struct {
	store    *store.Store
	registry *priority.Registry
	queue    *queue.SchedulingQueue

	mu        sync.RWMutex
	workloads map[string]*corev1alpha1.Workload
	keys      map[string]string // namespace/name -> UID
	pools     map[string]*corev1alpha1.ResourcePool
}

// New returns a scheduling engine backed by the given binding store and
// priority class registry.
func New(bindings *store.Store, registry *priority.Registry) *Engine {
	return &Engine{
		store:     bindings,
		registry:  registry,
		queue:     queue.New(),
		workloads: map[string]*corev1alpha1.Workload{},
		keys:      map[string]string{},
		pools:     map[string]*corev1alpha1.ResourcePool{},
	}
}

// Run processes placement decisions until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	go e.watchStore(ctx)

	klog.Info("Scheduling engine started")
	for {
		workload, err := e.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		e.scheduleOne(workload)
	}
}

// watchStore re-activates parked workloads whenever the binding store
// changes: freed capacity may make previously unschedulable workloads fit.
func (e *Engine) watchStore(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.store.Changes():
			e.queue.MoveAllToActive()
		}
	}
}

// AddWorkload registers an admitted workload and enqueues it for scheduling.
func (e *Engine) AddWorkload(workload *corev1alpha1.Workload) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, found := e.keys[workload.Key()]; found {
		return fmt.Errorf("workload %q already exists", workload.Key())
	}

	stored := workload.DeepCopy()
	stored.Phase = corev1alpha1.WorkloadPending
	e.workloads[stored.UID] = stored
	e.keys[stored.Key()] = stored.UID

	e.queue.Add(stored)
	klog.V(4).Infof("Workload %q (uid %s, priority %d) enqueued for scheduling",
		stored.Key(), stored.UID, stored.EffectivePriority())
	return nil
}

// DeleteWorkload removes a workload, releasing its binding if any. It is
// idempotent.
func (e *Engine) DeleteWorkload(uid string) error {
	e.mu.Lock()
	workload, found := e.workloads[uid]
	if found {
		delete(e.workloads, uid)
		delete(e.keys, workload.Key())
	}
	e.mu.Unlock()

	if !found {
		return nil
	}

	e.queue.Delete(uid)
	if err := e.store.Unbind(uid); err != nil {
		return err
	}
	klog.V(4).Infof("Workload %q (uid %s) deleted", workload.Key(), uid)
	return nil
}

// LookupWorkload returns the workload with the given namespace and name.
func (e *Engine) LookupWorkload(namespace, name string) (*corev1alpha1.Workload, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	key := name
	if namespace != "" {
		key = namespace + "/" + name
	}
	uid, found := e.keys[key]
	if !found {
		return nil, false
	}
	return e.workloads[uid].DeepCopy(), true
}

// Workloads returns a copy of every registered workload, sorted by key.
func (e *Engine) Workloads() []corev1alpha1.Workload {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]corev1alpha1.Workload, 0, len(e.workloads))
	for _, workload := range e.workloads {
		out = append(out, *workload.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// UpsertPool registers or replaces a resource pool. Bound workloads not
// tolerating a NoExecute taint of the new definition are evicted back to
// Pending, and parked workloads get a new chance against the new capacity.
func (e *Engine) UpsertPool(pool *corev1alpha1.ResourcePool) {
	e.mu.Lock()
	e.pools[pool.Name] = pool.DeepCopy()
	e.mu.Unlock()

	e.evictNoExecute(pool.Name)
	e.queue.MoveAllToActive()
	klog.V(4).Infof("Resource pool %q registered", pool.Name)
}

// DeletePool removes a pool, transitioning its bound workloads back to
// Pending. It is idempotent.
func (e *Engine) DeletePool(name string) {
	e.mu.Lock()
	_, found := e.pools[name]
	delete(e.pools, name)
	e.mu.Unlock()

	if !found {
		return
	}

	for _, binding := range e.store.ListBindings(name) {
		e.releaseWorkload(binding.WorkloadUID, "hosting pool deleted")
	}
	klog.V(4).Infof("Resource pool %q deleted", name)
}

// Pools returns a copy of every registered pool, sorted by name.
func (e *Engine) Pools() []corev1alpha1.ResourcePool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]corev1alpha1.ResourcePool, 0, len(e.pools))
	for _, pool := range e.pools {
		out = append(out, *pool.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// evictNoExecute evicts the bound workloads of the pool that do not tolerate
// one of its NoExecute taints.
func (e *Engine) evictNoExecute(poolName string) {
	e.mu.RLock()
	pool := e.pools[poolName]
	e.mu.RUnlock()
	if pool == nil {
		return
	}

	noExecute := func(t *corev1alpha1.Taint) bool {
		return t.Effect == corev1alpha1.TaintEffectNoExecute
	}

	for _, binding := range e.store.ListBindings(poolName) {
		e.mu.RLock()
		workload := e.workloads[binding.WorkloadUID]
		e.mu.RUnlock()
		if workload == nil {
			continue
		}
		if taint, untolerated := corev1alpha1.FindUntoleratedTaint(
			pool.Taints, workload.Tolerations, noExecute); untolerated {
			e.releaseWorkload(workload.UID,
				fmt.Sprintf("untolerated NoExecute taint {%s=%s}", taint.Key, taint.Value))
		}
	}
}

// releaseWorkload unbinds a workload and re-enqueues it for scheduling.
func (e *Engine) releaseWorkload(uid, reason string) {
	if err := e.store.Unbind(uid); err != nil {
		klog.Errorf("Failed to unbind workload %s: %v", uid, err)
		return
	}

	e.mu.Lock()
	workload, found := e.workloads[uid]
	if found {
		workload.Phase = corev1alpha1.WorkloadPending
	}
	e.mu.Unlock()

	if found {
		klog.V(3).Infof("Workload %q evicted: %s", workload.Key(), reason)
		e.queue.Add(workload)
	}
}

// scheduleOne runs the full state machine of a single workload:
// Filtering -> Scoring -> (Bound | PendingPreemption -> Bound | Unschedulable).
func (e *Engine) scheduleOne(workload *corev1alpha1.Workload) {
	start := time.Now()
	defer func() { AttemptDuration.Observe(time.Since(start).Seconds()) }()

	// The workload may have been deleted or bound while queued.
	e.mu.RLock()
	_, known := e.workloads[workload.UID]
	e.mu.RUnlock()
	if !known {
		return
	}
	if _, bound := e.store.GetBinding(workload.UID); bound {
		return
	}

	// The move cycle must be observed before the snapshot: a cluster change
	// landing between the two re-activates the workload instead of letting
	// it park on a view that never saw the change.
	cycle := e.queue.MoveCycle()

	pools := e.snapshot()
	feasible, reasons := filterPools(workload, pools)

	if len(feasible) > 0 {
		best := pickPool(workload, feasible)
		if e.assume(workload, best.pool.Name) {
			AttemptsCounter.WithLabelValues("bound").Inc()
			return
		}
		// Lost a capacity race: retry from filtering.
		e.queue.Add(workload)
		AttemptsCounter.WithLabelValues("retried").Inc()
		return
	}

	if e.preemptionPolicy(workload) == corev1alpha1.PreemptNever {
		e.markUnschedulable(workload, reasons, cycle)
		return
	}

	candidate := findPreemptionCandidate(workload, pools)
	if candidate == nil {
		e.markUnschedulable(workload, reasons, cycle)
		return
	}
	e.preempt(workload, candidate)
}

// assume commits the placement under the pool's exclusive section,
// re-checking the committed occupancy so that no two placements can succeed
// against the same spare capacity.
func (e *Engine) assume(workload *corev1alpha1.Workload, poolName string) bool {
	e.store.LockPool(poolName)
	defer e.store.UnlockPool(poolName)

	e.mu.RLock()
	ps := e.snapshotPoolLocked(poolName)
	e.mu.RUnlock()
	if ps.pool == nil || !workload.Demand.Fits(ps.free()) {
		return false
	}

	if _, err := e.store.Bind(workload.UID, poolName); err != nil {
		klog.Errorf("Failed to bind workload %s to pool %q: %v", workload.UID, poolName, err)
		return false
	}

	e.setPhase(workload, corev1alpha1.WorkloadBound)
	klog.V(2).Infof("Workload %q bound to pool %q", workload.Key(), poolName)
	return true
}

// preempt evicts the candidate victims (lowest priority first, oldest first
// among equals) and binds the pending workload in their place.
func (e *Engine) preempt(workload *corev1alpha1.Workload, candidate *preemptionCandidate) {
	poolName := candidate.pool.pool.Name

	e.store.LockPool(poolName)
	defer e.store.UnlockPool(poolName)

	// Re-validate against the committed occupancy: the pool may have been
	// shrunk, deleted, or its victims unbound since the candidate was
	// computed. Committing the stale plan could overcommit the pool.
	e.mu.RLock()
	ps := e.snapshotPoolLocked(poolName)
	e.mu.RUnlock()
	victims := stillBoundVictims(ps, candidate.victims)
	if ps.pool == nil || !ps.fits(workload.Demand, victims) {
		e.queue.Add(workload)
		AttemptsCounter.WithLabelValues("retried").Inc()
		return
	}
	klog.V(2).Infof("Workload %q preempts %d workloads on pool %q",
		workload.Key(), len(victims), poolName)

	for _, victim := range victims {
		if err := e.store.Unbind(victim.UID); err != nil {
			klog.Errorf("Failed to evict workload %s: %v", victim.UID, err)
			e.queue.Add(workload)
			return
		}
		e.setPhase(victim, corev1alpha1.WorkloadPending)
		e.queue.Add(victim)
		PreemptionVictimsCounter.Inc()
		klog.V(3).Infof("Workload %q (priority %d) evicted from pool %q by %q (priority %d)",
			victim.Key(), victim.EffectivePriority(), poolName,
			workload.Key(), workload.EffectivePriority())
	}

	if _, err := e.store.Bind(workload.UID, poolName); err != nil {
		klog.Errorf("Failed to bind preemptor %s to pool %q: %v", workload.UID, poolName, err)
		e.queue.Add(workload)
		AttemptsCounter.WithLabelValues("retried").Inc()
		return
	}

	e.setPhase(workload, corev1alpha1.WorkloadBound)
	AttemptsCounter.WithLabelValues("preempted").Inc()
}

// markUnschedulable parks the workload until the cluster state changes. When
// the cluster already changed during the attempt the workload goes straight
// back to the active queue and keeps its Pending phase.
func (e *Engine) markUnschedulable(workload *corev1alpha1.Workload, reasons map[string]string, cycle int64) {
	if !e.queue.AddUnschedulable(workload, cycle) {
		AttemptsCounter.WithLabelValues("retried").Inc()
		return
	}
	e.setPhase(workload, corev1alpha1.WorkloadUnschedulable)
	AttemptsCounter.WithLabelValues("unschedulable").Inc()

	klog.V(2).Infof("Workload %q is unschedulable: %s", workload.Key(), formatReasons(reasons))
}

func (e *Engine) setPhase(workload *corev1alpha1.Workload, phase corev1alpha1.WorkloadPhase) {
	e.mu.Lock()
	defer e.mu.Unlock()
	workload.Phase = phase
}

// preemptionPolicy resolves the effective preemption policy of a workload
// from its priority class, defaulting to PreemptLowerPriority when the class
// is gone.
func (e *Engine) preemptionPolicy(workload *corev1alpha1.Workload) corev1alpha1.PreemptionPolicy {
	_, policy, err := e.registry.Resolve(workload)
	if err != nil {
		return corev1alpha1.PreemptLowerPriority
	}
	return policy
}

func formatReasons(reasons map[string]string) string {
	if len(reasons) == 0 {
		return "no resource pools registered"
	}

	pools := make([]string, 0, len(reasons))
	for pool := range reasons {
		pools = append(pools, pool)
	}
	sort.Strings(pools)

	out := ""
	for i, pool := range pools {
		if i > 0 {
			out += "; "
		}
		out += fmt.Sprintf("%s: %s", pool, reasons[pool])
	}
	return out
}
