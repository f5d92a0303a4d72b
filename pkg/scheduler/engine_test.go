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

package scheduler_test

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
	"github.com/gatewarden-io/gatewarden/pkg/priority"
	"github.com/gatewarden-io/gatewarden/pkg/scheduler"
	"github.com/gatewarden-io/gatewarden/pkg/store"
)

var _ = Describe("Scheduling engine", func() {
	var (
		registry *priority.Registry
		bindings *store.Store
		engine   *scheduler.Engine
		cancel   context.CancelFunc
	)

	cpu := func(quantity string) corev1alpha1.ResourceList {
		return corev1alpha1.ResourceList{corev1alpha1.ResourceCPU: resource.MustParse(quantity)}
	}

	pool := func(name, capacity string) *corev1alpha1.ResourcePool {
		return &corev1alpha1.ResourcePool{Name: name, Capacity: cpu(capacity)}
	}

	workload := func(uid string, priorityValue int32, demand string) *corev1alpha1.Workload {
		return &corev1alpha1.Workload{
			UID:               uid,
			Name:              uid,
			Namespace:         "default",
			Priority:          &priorityValue,
			Demand:            cpu(demand),
			CreationTimestamp: metav1.Now(),
		}
	}

	phase := func(name string) func() corev1alpha1.WorkloadPhase {
		return func() corev1alpha1.WorkloadPhase {
			found, ok := engine.LookupWorkload("default", name)
			if !ok {
				return ""
			}
			return found.Phase
		}
	}

	boundPool := func(uid string) func() string {
		return func() string {
			binding, ok := bindings.GetBinding(uid)
			if !ok {
				return ""
			}
			return binding.PoolName
		}
	}

	BeforeEach(func() {
		registry = priority.NewRegistry()
		Expect(registry.Create(&corev1alpha1.PriorityClass{
			Name: "cautious", Value: 900, PreemptionPolicy: corev1alpha1.PreemptNever,
		})).To(Succeed())

		var err error
		bindings, err = store.New()
		Expect(err).ToNot(HaveOccurred())
		engine = scheduler.New(bindings, registry)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		// Capture this spec's engine: reading the shared variable inside the
		// goroutine can observe the next spec's engine if scheduling lags.
		go func(e *scheduler.Engine) {
			defer GinkgoRecover()
			Expect(e.Run(ctx)).To(Succeed())
		}(engine)
	})

	AfterEach(func() {
		cancel()
	})

	Describe("Binding", func() {
		It("binds a pending workload to a fitting pool", func() {
			engine.UpsertPool(pool("pool-a", "2"))
			Expect(engine.AddWorkload(workload("w1", 100, "1"))).To(Succeed())

			Eventually(phase("w1")).Should(Equal(corev1alpha1.WorkloadBound))
			Expect(boundPool("w1")()).To(Equal("pool-a"))
		})

		It("marks a workload unschedulable when no pool is registered", func() {
			Expect(engine.AddWorkload(workload("w1", 100, "1"))).To(Succeed())
			Eventually(phase("w1")).Should(Equal(corev1alpha1.WorkloadUnschedulable))
		})

		It("rejects duplicate workload keys", func() {
			Expect(engine.AddWorkload(workload("w1", 100, "1"))).To(Succeed())
			duplicate := workload("w2", 100, "1")
			duplicate.Name = "w1"
			Expect(engine.AddWorkload(duplicate)).To(HaveOccurred())
		})
	})

	Describe("Filtering", func() {
		It("honors required pool labels", func() {
			labeled := pool("pool-zone-a", "4")
			labeled.Labels = map[string]string{"zone": "a"}
			engine.UpsertPool(labeled)
			engine.UpsertPool(pool("pool-plain", "4"))

			constrained := workload("w1", 100, "1")
			constrained.Constraints.RequiredPoolLabels = map[string]string{"zone": "a"}
			Expect(engine.AddWorkload(constrained)).To(Succeed())

			Eventually(boundPool("w1")).Should(Equal("pool-zone-a"))
		})

		It("refuses pools with untolerated NoSchedule taints", func() {
			tainted := pool("pool-tainted", "4")
			tainted.Taints = []corev1alpha1.Taint{{
				Key: "dedicated", Value: "batch", Effect: corev1alpha1.TaintEffectNoSchedule,
			}}
			engine.UpsertPool(tainted)

			Expect(engine.AddWorkload(workload("plain", 100, "1"))).To(Succeed())
			Eventually(phase("plain")).Should(Equal(corev1alpha1.WorkloadUnschedulable))

			tolerant := workload("tolerant", 100, "1")
			tolerant.Tolerations = []corev1alpha1.Toleration{{
				Key: "dedicated", Operator: corev1alpha1.TolerationOpExists,
			}}
			Expect(engine.AddWorkload(tolerant)).To(Succeed())
			Eventually(boundPool("tolerant")).Should(Equal("pool-tainted"))
		})
	})

	Describe("Scoring", func() {
		It("prefers the pool left with the most spare capacity", func() {
			engine.UpsertPool(pool("pool-small", "1"))
			engine.UpsertPool(pool("pool-big", "8"))

			Expect(engine.AddWorkload(workload("w1", 100, "1"))).To(Succeed())
			Eventually(boundPool("w1")).Should(Equal("pool-big"))
		})

		It("rewards preferred pool labels", func() {
			preferred := pool("pool-preferred", "4")
			preferred.Labels = map[string]string{"tier": "fast"}
			engine.UpsertPool(preferred)
			engine.UpsertPool(pool("pool-other", "4"))

			picky := workload("w1", 100, "1")
			picky.Constraints.PreferredPoolLabels = map[string]string{"tier": "fast"}
			Expect(engine.AddWorkload(picky)).To(Succeed())

			Eventually(boundPool("w1")).Should(Equal("pool-preferred"))
		})

		It("penalizes untolerated PreferNoSchedule taints", func() {
			discouraged := pool("pool-a", "4")
			discouraged.Taints = []corev1alpha1.Taint{{
				Key: "maintenance", Effect: corev1alpha1.TaintEffectPreferNoSchedule,
			}}
			engine.UpsertPool(discouraged)
			engine.UpsertPool(pool("pool-b", "4"))

			Expect(engine.AddWorkload(workload("w1", 100, "1"))).To(Succeed())
			Eventually(boundPool("w1")).Should(Equal("pool-b"))
		})

		It("breaks score ties by ascending pool name", func() {
			engine.UpsertPool(pool("pool-b", "4"))
			engine.UpsertPool(pool("pool-a", "4"))

			Expect(engine.AddWorkload(workload("w1", 100, "1"))).To(Succeed())
			Eventually(boundPool("w1")).Should(Equal("pool-a"))
		})
	})

	Describe("Preemption", func() {
		It("evicts a lower-priority workload to host a higher-priority one", func() {
			engine.UpsertPool(pool("pool-a", "1"))

			Expect(engine.AddWorkload(workload("low", 100, "1"))).To(Succeed())
			Eventually(phase("low")).Should(Equal(corev1alpha1.WorkloadBound))

			Expect(engine.AddWorkload(workload("high", 1000, "1"))).To(Succeed())
			Eventually(boundPool("high")).Should(Equal("pool-a"))

			// The victim returns to the pending path; with the pool full it
			// parks as unschedulable.
			Eventually(phase("low")).Should(Equal(corev1alpha1.WorkloadUnschedulable))
			Expect(boundPool("low")()).To(BeEmpty())
		})

		It("evicts the fewest, lowest-priority victims needed", func() {
			engine.UpsertPool(pool("pool-a", "2"))

			Expect(engine.AddWorkload(workload("victim", 100, "1"))).To(Succeed())
			Eventually(phase("victim")).Should(Equal(corev1alpha1.WorkloadBound))
			Expect(engine.AddWorkload(workload("survivor", 500, "1"))).To(Succeed())
			Eventually(phase("survivor")).Should(Equal(corev1alpha1.WorkloadBound))

			Expect(engine.AddWorkload(workload("high", 1000, "1"))).To(Succeed())
			Eventually(boundPool("high")).Should(Equal("pool-a"))

			// Only the lowest-priority workload was disturbed.
			Expect(phase("survivor")()).To(Equal(corev1alpha1.WorkloadBound))
			Eventually(phase("victim")).Should(Equal(corev1alpha1.WorkloadUnschedulable))
		})

		It("never preempts on behalf of a PreemptNever class", func() {
			engine.UpsertPool(pool("pool-a", "1"))

			Expect(engine.AddWorkload(workload("low", 100, "1"))).To(Succeed())
			Eventually(phase("low")).Should(Equal(corev1alpha1.WorkloadBound))

			never := workload("never", 900, "1")
			never.PriorityClassName = "cautious"
			Expect(engine.AddWorkload(never)).To(Succeed())

			Eventually(phase("never")).Should(Equal(corev1alpha1.WorkloadUnschedulable))
			Consistently(phase("low"), 100*time.Millisecond).Should(Equal(corev1alpha1.WorkloadBound))
		})

		It("never evicts equal-priority workloads", func() {
			engine.UpsertPool(pool("pool-a", "1"))

			Expect(engine.AddWorkload(workload("first", 100, "1"))).To(Succeed())
			Eventually(phase("first")).Should(Equal(corev1alpha1.WorkloadBound))

			Expect(engine.AddWorkload(workload("second", 100, "1"))).To(Succeed())
			Eventually(phase("second")).Should(Equal(corev1alpha1.WorkloadUnschedulable))
			Expect(phase("first")()).To(Equal(corev1alpha1.WorkloadBound))
		})
	})

	Describe("Pool lifecycle", func() {
		It("re-schedules parked workloads when capacity frees up", func() {
			engine.UpsertPool(pool("pool-a", "1"))

			Expect(engine.AddWorkload(workload("first", 100, "1"))).To(Succeed())
			Eventually(phase("first")).Should(Equal(corev1alpha1.WorkloadBound))
			Expect(engine.AddWorkload(workload("second", 100, "1"))).To(Succeed())
			Eventually(phase("second")).Should(Equal(corev1alpha1.WorkloadUnschedulable))

			Expect(engine.DeleteWorkload("first")).To(Succeed())
			Eventually(phase("second")).Should(Equal(corev1alpha1.WorkloadBound))
		})

		It("evicts bound workloads not tolerating a new NoExecute taint", func() {
			engine.UpsertPool(pool("pool-a", "2"))

			tolerant := workload("tolerant", 100, "1")
			tolerant.Tolerations = []corev1alpha1.Toleration{{
				Key: "maintenance", Operator: corev1alpha1.TolerationOpExists,
			}}
			Expect(engine.AddWorkload(tolerant)).To(Succeed())
			Expect(engine.AddWorkload(workload("fragile", 100, "1"))).To(Succeed())
			Eventually(phase("tolerant")).Should(Equal(corev1alpha1.WorkloadBound))
			Eventually(phase("fragile")).Should(Equal(corev1alpha1.WorkloadBound))

			drained := pool("pool-a", "2")
			drained.Taints = []corev1alpha1.Taint{{
				Key: "maintenance", Effect: corev1alpha1.TaintEffectNoExecute,
			}}
			engine.UpsertPool(drained)

			Eventually(phase("fragile")).Should(Equal(corev1alpha1.WorkloadUnschedulable))
			Consistently(phase("tolerant"), 100*time.Millisecond).Should(Equal(corev1alpha1.WorkloadBound))
		})

		It("releases every bound workload when its pool is deleted", func() {
			engine.UpsertPool(pool("pool-a", "2"))
			Expect(engine.AddWorkload(workload("w1", 100, "1"))).To(Succeed())
			Eventually(phase("w1")).Should(Equal(corev1alpha1.WorkloadBound))

			engine.DeletePool("pool-a")
			Eventually(phase("w1")).Should(Equal(corev1alpha1.WorkloadUnschedulable))
			Expect(boundPool("w1")()).To(BeEmpty())
		})
	})

	Describe("Capacity invariant", func() {
		It("never over-commits a pool across a burst of workloads", func() {
			engine.UpsertPool(pool("pool-a", "3"))
			engine.UpsertPool(pool("pool-b", "2"))

			for _, uid := range []string{"w1", "w2", "w3", "w4", "w5", "w6", "w7"} {
				Expect(engine.AddWorkload(workload(uid, 100, "1"))).To(Succeed())
			}

			// Five single-core workloads fit, two must park.
			count := func() int { return len(bindings.List()) }
			Eventually(count).Should(Equal(5))
			Consistently(count, 100*time.Millisecond).Should(Equal(5))

			allocated := map[string]int{}
			for _, binding := range bindings.List() {
				allocated[binding.PoolName]++
			}
			Expect(allocated["pool-a"]).To(Equal(3))
			Expect(allocated["pool-b"]).To(Equal(2))
		})
	})
})

var _ = Describe("Scheduling determinism", func() {
	cpu := func(quantity string) corev1alpha1.ResourceList {
		return corev1alpha1.ResourceList{corev1alpha1.ResourceCPU: resource.MustParse(quantity)}
	}

	newWorkload := func(uid string, priorityValue int32, demand string, created time.Time) *corev1alpha1.Workload {
		return &corev1alpha1.Workload{
			UID:               uid,
			Name:              uid,
			Namespace:         "default",
			Priority:          &priorityValue,
			Demand:            cpu(demand),
			CreationTimestamp: metav1.NewTime(created),
		}
	}

	// generate draws a fixed cluster load from a seeded source: six
	// single-unit workloads with priorities and creation times picked at
	// random, colliding timestamps included.
	generate := func(seed int64) []*corev1alpha1.Workload {
		rng := rand.New(rand.NewSource(seed))
		base := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)
		priorities := []int32{100, 500}

		out := make([]*corev1alpha1.Workload, 0, 6)
		for i := 0; i < 6; i++ {
			out = append(out, newWorkload(
				fmt.Sprintf("wl-%02d", i),
				priorities[rng.Intn(len(priorities))],
				"1",
				base.Add(time.Duration(rng.Intn(3))*time.Second)))
		}
		return out
	}

	settle := func(engine *scheduler.Engine) {
		pending := func() int {
			count := 0
			for _, workload := range engine.Workloads() {
				if workload.Phase == corev1alpha1.WorkloadPending {
					count++
				}
			}
			return count
		}
		Eventually(pending).Should(BeZero())
		Consistently(pending, 150*time.Millisecond).Should(BeZero())
	}

	// outcome replays the same arrival order on a fresh engine: the initial
	// load queued up front, then a preemptor forcing an eviction set chosen
	// among two equally disturbed pools.
	outcome := func(workloads []*corev1alpha1.Workload) (map[string]string, map[string]corev1alpha1.WorkloadPhase) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		bindings, err := store.New()
		Expect(err).ToNot(HaveOccurred())
		engine := scheduler.New(bindings, priority.NewRegistry())
		engine.UpsertPool(&corev1alpha1.ResourcePool{Name: "pool-a", Capacity: cpu("3")})
		engine.UpsertPool(&corev1alpha1.ResourcePool{Name: "pool-b", Capacity: cpu("3")})

		for _, workload := range workloads {
			Expect(engine.AddWorkload(workload.DeepCopy())).To(Succeed())
		}

		go func() {
			defer GinkgoRecover()
			Expect(engine.Run(ctx)).To(Succeed())
		}()
		settle(engine)

		preemptor := newWorkload("preemptor", 1000, "3",
			time.Date(2026, time.May, 1, 12, 1, 0, 0, time.UTC))
		Expect(engine.AddWorkload(preemptor)).To(Succeed())
		settle(engine)

		placements := map[string]string{}
		for _, binding := range bindings.List() {
			placements[binding.WorkloadUID] = binding.PoolName
		}
		phases := map[string]corev1alpha1.WorkloadPhase{}
		for _, workload := range engine.Workloads() {
			phases[workload.UID] = workload.Phase
		}
		return placements, phases
	}

	It("produces identical binding sets across independent runs of the same arrival order", func() {
		workloads := generate(42)

		firstPlacements, firstPhases := outcome(workloads)
		secondPlacements, secondPhases := outcome(workloads)

		Expect(firstPlacements).To(HaveKeyWithValue("preemptor", Not(BeEmpty())))
		Expect(secondPlacements).To(Equal(firstPlacements))
		Expect(secondPhases).To(Equal(firstPhases))
	})
})
