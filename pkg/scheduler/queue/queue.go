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

// Package queue implements the pending-workload queue feeding the scheduling
// engine: a priority heap plus the parking area for unschedulable workloads.
package queue

import (
	"container/heap"
	"context"
	"sync"

	"k8s.io/klog/v2"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
)

// SchedulingQueue orders pending workloads by descending priority, with the
// creation timestamp (then the UID) as deterministic tie-breaks. Workloads
// found unschedulable are parked aside and moved back to the active heap when
// the cluster state changes.
type SchedulingQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	active        workloadHeap
	members       map[string]struct{}
	unschedulable map[string]*corev1alpha1.Workload
	moveCycle     int64
	closed        bool
}

// New returns an empty scheduling queue.
func New() *SchedulingQueue {
	q := &SchedulingQueue{
		members:       map[string]struct{}{},
		unschedulable: map[string]*corev1alpha1.Workload{},
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add enqueues a workload for scheduling. Re-adding a workload already in the
// queue is a no-op.
func (q *SchedulingQueue) Add(workload *corev1alpha1.Workload) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, found := q.members[workload.UID]; found {
		return
	}
	delete(q.unschedulable, workload.UID)
	q.members[workload.UID] = struct{}{}
	heap.Push(&q.active, workload)
	q.cond.Signal()
}

// MoveCycle returns the current move cycle. A scheduling attempt observes it
// before reading the cluster state, and hands it back to AddUnschedulable so
// that a change landing during the attempt is never missed.
func (q *SchedulingQueue) MoveCycle() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.moveCycle
}

// AddUnschedulable parks a workload whose scheduling attempt, started at the
// given move cycle, failed. If the cycle moved in the meantime the attempt
// worked on a stale view: the workload is re-enqueued as active instead of
// parked, since the change it missed may have made room. It reports whether
// the workload was actually parked.
func (q *SchedulingQueue) AddUnschedulable(workload *corev1alpha1.Workload, cycle int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, found := q.members[workload.UID]; found {
		return false
	}
	if q.moveCycle > cycle {
		q.members[workload.UID] = struct{}{}
		heap.Push(&q.active, workload)
		q.cond.Signal()
		return false
	}
	q.unschedulable[workload.UID] = workload
	return true
}

// MoveAllToActive re-enqueues every parked workload. It is invoked whenever
// the cluster state changes in a way that may make room: capacity freed, a
// taint removed, a pool added. The move cycle advances even with nothing
// parked, so that in-flight attempts learn they raced with the change.
func (q *SchedulingQueue) MoveAllToActive() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.moveCycle++
	if len(q.unschedulable) == 0 {
		return
	}
	klog.V(4).Infof("Moving %d unschedulable workloads back to the active queue", len(q.unschedulable))
	for uid, workload := range q.unschedulable {
		delete(q.unschedulable, uid)
		q.members[uid] = struct{}{}
		heap.Push(&q.active, workload)
	}
	q.cond.Broadcast()
}

// Delete removes a workload from the queue, wherever it is.
func (q *SchedulingQueue) Delete(uid string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.unschedulable, uid)
	if _, found := q.members[uid]; !found {
		return
	}
	delete(q.members, uid)
	for i := range q.active {
		if q.active[i].UID == uid {
			heap.Remove(&q.active, i)
			break
		}
	}
}

// Pop blocks until a workload is available or the context is cancelled, and
// returns the highest-priority pending workload.
func (q *SchedulingQueue) Pop(ctx context.Context) (*corev1alpha1.Workload, error) {
	// Unblock the condition wait on cancellation.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.active) == 0 && !q.closed {
		q.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	workload := heap.Pop(&q.active).(*corev1alpha1.Workload)
	delete(q.members, workload.UID)
	return workload, nil
}

// Len returns the number of active (non-parked) workloads.
func (q *SchedulingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// NumUnschedulable returns the number of parked workloads.
func (q *SchedulingQueue) NumUnschedulable() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.unschedulable)
}

// workloadHeap implements heap.Interface with the queue ordering.
type workloadHeap []*corev1alpha1.Workload

func (h workloadHeap) Len() int { return len(h) }

func (h workloadHeap) Less(i, j int) bool {
	return Less(h[i], h[j])
}

func (h workloadHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *workloadHeap) Push(x any) {
	*h = append(*h, x.(*corev1alpha1.Workload))
}

func (h *workloadHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Less is the total order of the queue: higher priority first, then older
// creation, then smaller UID. A total order keeps scheduling reproducible.
func Less(a, b *corev1alpha1.Workload) bool {
	if pa, pb := a.EffectivePriority(), b.EffectivePriority(); pa != pb {
		return pa > pb
	}
	if !a.CreationTimestamp.Equal(&b.CreationTimestamp) {
		return a.CreationTimestamp.Before(&b.CreationTimestamp)
	}
	return a.UID < b.UID
}
