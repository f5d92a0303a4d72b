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

// Package gateway implements the request gateway: the REST surface receiving
// resource mutation requests, running them through the admission pipeline,
// and committing admitted objects to the registry and the scheduling engine.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/gatewarden-io/gatewarden/pkg/admission"
	"github.com/gatewarden-io/gatewarden/pkg/priority"
	"github.com/gatewarden-io/gatewarden/pkg/scheduler"
	"github.com/gatewarden-io/gatewarden/pkg/store"
)

const shutdownTimeout = 10 * time.Second

// Options configures the gateway.
type Options struct {
	// Address is the listen address of the API server.
	Address string
	// MetricsAddress is the listen address of the metrics endpoint. Empty
	// disables it.
	MetricsAddress string
	// Authenticator resolves request identities. Defaults to the
	// header-based authenticator.
	Authenticator Authenticator
}

// Gateway is the HTTP front-end of the decision core.
type Gateway struct {
	opts       Options
	pipeline   *admission.Pipeline
	engine     *scheduler.Engine
	registry   *priority.Registry
	bindings   *store.Store
	namespaces *NamespaceSet
	router     *httprouter.Router
}

// New returns a gateway wiring the admission pipeline, the scheduling engine,
// the priority registry and the binding store together.
func New(opts Options, pipeline *admission.Pipeline, engine *scheduler.Engine,
	registry *priority.Registry, bindings *store.Store, namespaces *NamespaceSet) *Gateway {
	if opts.Authenticator == nil {
		opts.Authenticator = HeaderAuthenticator{}
	}

	g := &Gateway{
		opts:       opts,
		pipeline:   pipeline,
		engine:     engine,
		registry:   registry,
		bindings:   bindings,
		namespaces: namespaces,
		router:     httprouter.New(),
	}
	g.registerRoutes()
	return g
}

func (g *Gateway) registerRoutes() {
	g.router.POST("/apis/v1alpha1/namespaces/:namespace/workloads", g.handleCreateWorkload)
	g.router.DELETE("/apis/v1alpha1/namespaces/:namespace/workloads/:name", g.handleDeleteWorkload)
	g.router.GET("/apis/v1alpha1/workloads", g.handleListWorkloads)

	g.router.POST("/apis/v1alpha1/priorityclasses", g.handleCreatePriorityClass)
	g.router.GET("/apis/v1alpha1/priorityclasses", g.handleListPriorityClasses)

	g.router.POST("/apis/v1alpha1/resourcepools", g.handleCreatePool)
	g.router.PUT("/apis/v1alpha1/resourcepools/:name", g.handleUpdatePool)
	g.router.DELETE("/apis/v1alpha1/resourcepools/:name", g.handleDeletePool)
	g.router.GET("/apis/v1alpha1/resourcepools", g.handleListPools)

	g.router.POST("/apis/v1alpha1/namespaces", g.handleCreateNamespace)
	g.router.GET("/apis/v1alpha1/namespaces", g.handleListNamespaces)

	g.router.GET("/apis/v1alpha1/bindings", g.handleListBindings)
	g.router.GET("/apis/v1alpha1/bindings/watch", g.handleWatchBindings)

	g.router.GET("/healthz", g.handleHealthz)
}

// Handler returns the HTTP handler of the gateway, exposed for tests.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Run serves the gateway until the context is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	apiServer := &http.Server{
		Addr:              g.opts.Address,
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	group.Go(func() error {
		klog.Infof("Gateway listening on %q", g.opts.Address)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	var metricsServer *http.Server
	if g.opts.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              g.opts.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		group.Go(func() error {
			klog.Infof("Metrics endpoint listening on %q", g.opts.MetricsAddress)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	group.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				klog.Errorf("Failed shutting down the metrics endpoint: %v", err)
			}
		}
		return apiServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
}
