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

package scheduler

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
	"github.com/gatewarden-io/gatewarden/pkg/priority"
	"github.com/gatewarden-io/gatewarden/pkg/store"
)

var _ = Describe("Preemption commit guard", func() {
	var (
		bindings *store.Store
		engine   *Engine
	)

	capacity := func(quantity string) corev1alpha1.ResourceList {
		return corev1alpha1.ResourceList{corev1alpha1.ResourceCPU: resource.MustParse(quantity)}
	}

	add := func(uid string, priorityValue int32, demand string) *corev1alpha1.Workload {
		workload := &corev1alpha1.Workload{
			UID:               uid,
			Name:              uid,
			Namespace:         "default",
			Priority:          &priorityValue,
			Demand:            capacity(demand),
			CreationTimestamp: metav1.Now(),
		}
		Expect(engine.AddWorkload(workload)).To(Succeed())
		return engine.workloads[uid]
	}

	BeforeEach(func() {
		var err error
		bindings, err = store.New()
		Expect(err).ToNot(HaveOccurred())
		engine = New(bindings, priority.NewRegistry())
		engine.UpsertPool(&corev1alpha1.ResourcePool{Name: "pool-a", Capacity: capacity("2")})
	})

	It("retries instead of overcommitting when the pool shrank after the candidate was computed", func() {
		victim := add("victim", 100, "1")
		engine.scheduleOne(victim)
		Expect(victim.Phase).To(Equal(corev1alpha1.WorkloadBound))

		preemptor := add("preemptor", 1000, "2")
		candidate := findPreemptionCandidate(preemptor, engine.snapshot())
		Expect(candidate).ToNot(BeNil())

		// Capacity shrinks between candidate selection and commit.
		engine.UpsertPool(&corev1alpha1.ResourcePool{Name: "pool-a", Capacity: capacity("1")})
		engine.preempt(preemptor, candidate)

		_, bound := bindings.GetBinding("preemptor")
		Expect(bound).To(BeFalse())
		_, victimBound := bindings.GetBinding("victim")
		Expect(victimBound).To(BeTrue(), "the victim must not be evicted for a bind that cannot land")
	})

	It("ignores victims already unbound at commit time", func() {
		victim := add("victim", 100, "2")
		engine.scheduleOne(victim)

		preemptor := add("preemptor", 1000, "2")
		candidate := findPreemptionCandidate(preemptor, engine.snapshot())
		Expect(candidate).ToNot(BeNil())

		// The victim vanishes on its own; its demand must not be counted as
		// freed capacity a second time.
		Expect(engine.DeleteWorkload("victim")).To(Succeed())
		engine.preempt(preemptor, candidate)

		binding, bound := bindings.GetBinding("preemptor")
		Expect(bound).To(BeTrue())
		Expect(binding.PoolName).To(Equal("pool-a"))
	})

	It("retries when the pool was deleted before the commit", func() {
		victim := add("victim", 100, "2")
		engine.scheduleOne(victim)

		preemptor := add("preemptor", 1000, "2")
		candidate := findPreemptionCandidate(preemptor, engine.snapshot())
		Expect(candidate).ToNot(BeNil())

		engine.DeletePool("pool-a")
		engine.preempt(preemptor, candidate)

		_, bound := bindings.GetBinding("preemptor")
		Expect(bound).To(BeFalse())
	})
})
