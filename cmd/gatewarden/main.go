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

// Package main is the entrypoint of the gatewarden decision core.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
	"github.com/gatewarden-io/gatewarden/pkg/admission"
	"github.com/gatewarden-io/gatewarden/pkg/admission/stages/classpolicy"
	"github.com/gatewarden-io/gatewarden/pkg/admission/stages/creatorlabel"
	"github.com/gatewarden-io/gatewarden/pkg/admission/stages/namespacelifecycle"
	"github.com/gatewarden-io/gatewarden/pkg/admission/stages/priorityresolver"
	"github.com/gatewarden-io/gatewarden/pkg/admission/stages/workloadpolicy"
	"github.com/gatewarden-io/gatewarden/pkg/config"
	"github.com/gatewarden-io/gatewarden/pkg/gateway"
	"github.com/gatewarden-io/gatewarden/pkg/priority"
	"github.com/gatewarden-io/gatewarden/pkg/scheduler"
	"github.com/gatewarden-io/gatewarden/pkg/store"
	argsutils "github.com/gatewarden-io/gatewarden/pkg/utils/args"
	errorsutils "github.com/gatewarden-io/gatewarden/pkg/utils/errors"
	flagsutils "github.com/gatewarden-io/gatewarden/pkg/utils/flags"
)

var (
	configPath     string
	address        string
	metricsAddress string
	snapshotPath   string
	namespaces     argsutils.StringList

	bootstrapPoolName   string
	bootstrapPoolCPU    argsutils.Quantity
	bootstrapPoolMemory argsutils.Quantity
)

func main() {
	var cmd = cobra.Command{
		Use:          "gatewarden",
		Short:        "Admission and scheduling decision core",
		RunE:         run,
		SilenceUsage: true,
	}

	flagsutils.InitKlogFlags(cmd.Flags())

	legacyFlags := flag.NewFlagSet("errors", flag.PanicOnError)
	errorsutils.InitFlags(legacyFlags)
	cmd.Flags().AddGoFlagSet(legacyFlags)

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the configuration file")
	cmd.Flags().StringVar(&address, "address", "", "Listen address of the API server, overrides the configuration file")
	cmd.Flags().StringVar(&metricsAddress, "metrics-address", "", "Listen address of the metrics endpoint, overrides the configuration file")
	cmd.Flags().StringVar(&snapshotPath, "store-snapshot-path", "", "Path of the binding store snapshot file, overrides the configuration file")
	cmd.Flags().Var(&namespaces, "namespaces", "Namespaces accepting workloads, in addition to the configured ones (val1,val2)")

	cmd.Flags().StringVar(&bootstrapPoolName, "bootstrap-pool-name", "", "Name of a resource pool registered at startup")
	cmd.Flags().Var(&bootstrapPoolCPU, "bootstrap-pool-cpu", "CPU capacity of the bootstrap pool (e.g. 4, 500m)")
	cmd.Flags().Var(&bootstrapPoolMemory, "bootstrap-pool-memory", "Memory capacity of the bootstrap pool (e.g. 8Gi)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			klog.Errorf("Failed loading configuration: %v", err)
			return err
		}
		cfg = loaded
	}

	if address != "" {
		cfg.Gateway.Address = address
	}
	if metricsAddress != "" {
		cfg.Gateway.MetricsAddress = metricsAddress
	}
	if snapshotPath != "" {
		cfg.Store.SnapshotPath = snapshotPath
	}
	cfg.Namespaces = append(cfg.Namespaces, namespaces.StringList...)

	registry := priority.NewRegistry()
	for i := range cfg.PriorityClasses {
		// Seeded classes bypass admission; a rejected one is logged and
		// skipped rather than aborting startup.
		errorsutils.Must(registry.Create(&cfg.PriorityClasses[i]))
	}

	var storeOpts []store.Option
	if cfg.Store.SnapshotPath != "" {
		storeOpts = append(storeOpts, store.WithSnapshotPath(cfg.Store.SnapshotPath))
	}
	bindings, err := store.New(storeOpts...)
	if err != nil {
		klog.Errorf("Failed initializing the binding store: %v", err)
		return err
	}

	engine := scheduler.New(bindings, registry)
	for i := range cfg.ResourcePools {
		engine.UpsertPool(&cfg.ResourcePools[i])
	}
	if bootstrapPoolName != "" {
		engine.UpsertPool(bootstrapPool())
	}

	namespaceSet := gateway.NewNamespaceSet(cfg.Namespaces...)

	pipeline, err := buildPipeline(cfg, registry, namespaceSet)
	if err != nil {
		klog.Errorf("Failed building the admission pipeline: %v", err)
		return err
	}

	admission.RegisterMetrics(prometheus.DefaultRegisterer)
	scheduler.RegisterMetrics(prometheus.DefaultRegisterer)

	gw := gateway.New(gateway.Options{
		Address:        cfg.Gateway.Address,
		MetricsAddress: cfg.Gateway.MetricsAddress,
	}, pipeline, engine, registry, bindings, namespaceSet)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return engine.Run(gctx) })
	group.Go(func() error { return gw.Run(gctx) })
	return group.Wait()
}

// bootstrapPool builds the resource pool described by the bootstrap flags.
func bootstrapPool() *corev1alpha1.ResourcePool {
	capacity := corev1alpha1.ResourceList{}
	if !bootstrapPoolCPU.Quantity.IsZero() {
		capacity[corev1alpha1.ResourceCPU] = bootstrapPoolCPU.Quantity
	}
	if !bootstrapPoolMemory.Quantity.IsZero() {
		capacity[corev1alpha1.ResourceMemory] = bootstrapPoolMemory.Quantity
	}
	return &corev1alpha1.ResourcePool{Name: bootstrapPoolName, Capacity: capacity}
}

// buildPipeline assembles the admission stages described by the configuration.
func buildPipeline(cfg *config.Config, registry *priority.Registry,
	namespaces *gateway.NamespaceSet) (*admission.Pipeline, error) {
	pipeline := admission.NewPipeline()

	stages := make([]*admission.Stage, 0, len(cfg.Pipeline))
	for i := range cfg.Pipeline {
		stage, err := buildStage(&cfg.Pipeline[i], registry, namespaces)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}

	if err := pipeline.Register(stages...); err != nil {
		return nil, err
	}
	return pipeline, nil
}

func buildStage(sc *config.StageConfig, registry *priority.Registry,
	namespaces *gateway.NamespaceSet) (*admission.Stage, error) {
	if sc.Builtin {
		switch sc.Name {
		case creatorlabel.StageName:
			return creatorlabel.New(int(sc.Order)), nil
		case priorityresolver.StageName:
			return priorityresolver.New(int(sc.Order), registry), nil
		case workloadpolicy.StageName:
			return workloadpolicy.New(int(sc.Order), registry), nil
		case classpolicy.StageName:
			return classpolicy.New(int(sc.Order), registry), nil
		case namespacelifecycle.StageName:
			return namespacelifecycle.New(int(sc.Order), namespaces), nil
		default:
			return nil, fmt.Errorf("unknown builtin stage %q", sc.Name)
		}
	}

	matcher := admission.MatchEverything()
	if sc.Matcher != nil {
		matcher = admission.NewMatcher(sc.Matcher.Operations, sc.Matcher.Kinds, sc.Matcher.Namespaces)
	}

	webhookCfg := admission.WebhookConfig{
		URL:      sc.Webhook.URL,
		Timeout:  sc.Webhook.Timeout(),
		FailOpen: sc.Webhook.FailOpen(),
	}
	if sc.Kind == config.MutatingStage {
		return admission.NewMutatingWebhook(sc.Name, int(sc.Order), matcher, webhookCfg), nil
	}
	return admission.NewValidatingWebhook(sc.Name, int(sc.Order), matcher, webhookCfg), nil
}
