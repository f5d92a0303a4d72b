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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/klog/v2"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
	"github.com/gatewarden-io/gatewarden/pkg/admission"
	"github.com/gatewarden-io/gatewarden/pkg/priority"
)

// maxRequestBodySize bounds accepted payloads.
const maxRequestBodySize = 1 << 20

// errorResponse is the envelope of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

// admissionResponse is the envelope returned for denied requests.
type admissionResponse struct {
	Verdict corev1alpha1.Verdict `json:"verdict"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		klog.Errorf("Failed encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}

// admit authenticates the caller, builds the admission request and runs it
// through the pipeline. It writes the response itself on failure and returns
// the admitted request otherwise.
func (g *Gateway) admit(w http.ResponseWriter, r *http.Request,
	operation corev1alpha1.Operation, kind, namespace, name string,
	object json.RawMessage) (*corev1alpha1.Request, bool) {
	user, err := g.opts.Authenticator.Authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized: %v", err)
		return nil, false
	}

	request := &corev1alpha1.Request{
		UID:       uuid.NewString(),
		Operation: operation,
		Kind:      kind,
		Namespace: namespace,
		Name:      name,
		UserInfo:  user,
		Object:    object,
	}

	admitted, verdict, err := g.pipeline.Admit(r.Context(), request)
	if err != nil {
		if admission.IsMutationFailed(err) {
			writeError(w, http.StatusInternalServerError, "%v", err)
		} else {
			writeError(w, http.StatusInternalServerError, "admission aborted: %v", err)
		}
		return nil, false
	}
	if !verdict.Allowed {
		writeJSON(w, http.StatusForbidden, admissionResponse{Verdict: verdict})
		return nil, false
	}
	return admitted, true
}

func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed reading request body: %v", err)
		return nil, false
	}
	return body, true
}

func (g *Gateway) handleCreateWorkload(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	namespace := params.ByName("namespace")

	body, ok := readBody(w, r)
	if !ok {
		return
	}

	admitted, ok := g.admit(w, r, corev1alpha1.OperationCreate, corev1alpha1.WorkloadKind,
		namespace, "", body)
	if !ok {
		return
	}

	workload := &corev1alpha1.Workload{}
	if err := json.Unmarshal(admitted.Object, workload); err != nil {
		writeError(w, http.StatusBadRequest, "failed decoding workload: %v", err)
		return
	}

	workload.UID = uuid.NewString()
	workload.Namespace = namespace
	workload.CreationTimestamp = metav1.Now()
	workload.Phase = corev1alpha1.WorkloadPending

	if err := g.engine.AddWorkload(workload); err != nil {
		writeError(w, http.StatusConflict, "%v", err)
		return
	}
	writeJSON(w, http.StatusCreated, workload)
}

func (g *Gateway) handleDeleteWorkload(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	namespace := params.ByName("namespace")
	name := params.ByName("name")

	workload, found := g.engine.LookupWorkload(namespace, name)
	if !found {
		writeError(w, http.StatusNotFound, "workload %q not found in namespace %q", name, namespace)
		return
	}

	if _, ok := g.admit(w, r, corev1alpha1.OperationDelete, corev1alpha1.WorkloadKind,
		namespace, name, nil); !ok {
		return
	}

	if err := g.engine.DeleteWorkload(workload.UID); err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, workload)
}

func (g *Gateway) handleListWorkloads(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, g.engine.Workloads())
}

func (g *Gateway) handleCreatePriorityClass(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	admitted, ok := g.admit(w, r, corev1alpha1.OperationCreate, corev1alpha1.PriorityClassKind,
		"", "", body)
	if !ok {
		return
	}

	class := &corev1alpha1.PriorityClass{}
	if err := json.Unmarshal(admitted.Object, class); err != nil {
		writeError(w, http.StatusBadRequest, "failed decoding priority class: %v", err)
		return
	}

	// The registry create is the authoritative compare-and-set: concurrent
	// creations validated before either committed still cannot produce two
	// defaults.
	if err := g.registry.Create(class); err != nil {
		if priority.IsDuplicateDefault(err) || priority.IsAlreadyExists(err) {
			writeError(w, http.StatusConflict, "%v", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusCreated, class)
}

func (g *Gateway) handleListPriorityClasses(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, g.registry.List())
}

func (g *Gateway) handleCreatePool(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	g.upsertPool(w, r, corev1alpha1.OperationCreate, "")
}

func (g *Gateway) handleUpdatePool(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	g.upsertPool(w, r, corev1alpha1.OperationUpdate, params.ByName("name"))
}

func (g *Gateway) upsertPool(w http.ResponseWriter, r *http.Request,
	operation corev1alpha1.Operation, name string) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	admitted, ok := g.admit(w, r, operation, corev1alpha1.ResourcePoolKind, "", name, body)
	if !ok {
		return
	}

	pool := &corev1alpha1.ResourcePool{}
	if err := json.Unmarshal(admitted.Object, pool); err != nil {
		writeError(w, http.StatusBadRequest, "failed decoding resource pool: %v", err)
		return
	}
	if name != "" && pool.Name != name {
		writeError(w, http.StatusBadRequest, "pool name %q does not match the request path", pool.Name)
		return
	}

	g.engine.UpsertPool(pool)

	status := http.StatusCreated
	if operation == corev1alpha1.OperationUpdate {
		status = http.StatusOK
	}
	writeJSON(w, status, pool)
}

func (g *Gateway) handleDeletePool(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	name := params.ByName("name")

	if _, ok := g.admit(w, r, corev1alpha1.OperationDelete, corev1alpha1.ResourcePoolKind,
		"", name, nil); !ok {
		return
	}

	g.engine.DeletePool(name)
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) handleListPools(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, g.engine.Pools())
}

// namespaceObject is the payload of a namespace creation: a bare name.
type namespaceObject struct {
	Name string `json:"name"`
}

func (g *Gateway) handleCreateNamespace(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	admitted, ok := g.admit(w, r, corev1alpha1.OperationCreate, corev1alpha1.NamespaceKind,
		"", "", body)
	if !ok {
		return
	}

	namespace := namespaceObject{}
	if err := json.Unmarshal(admitted.Object, &namespace); err != nil {
		writeError(w, http.StatusBadRequest, "failed decoding namespace: %v", err)
		return
	}
	if errs := validation.IsDNS1123Label(namespace.Name); len(errs) > 0 {
		writeError(w, http.StatusBadRequest, "invalid namespace name %q: %s",
			namespace.Name, strings.Join(errs, "; "))
		return
	}
	if g.namespaces.Exists(namespace.Name) {
		writeError(w, http.StatusConflict, "namespace %q already exists", namespace.Name)
		return
	}

	g.namespaces.Add(namespace.Name)
	klog.V(2).Infof("Namespace %q created by %q", namespace.Name, admitted.UserInfo.Username)
	writeJSON(w, http.StatusCreated, namespace)
}

func (g *Gateway) handleListNamespaces(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, g.namespaces.Names())
}

// bindingList is the payload of binding reads: the bindings plus the store
// revision they reflect, used as the watch resume point.
type bindingList struct {
	Revision uint64                 `json:"revision"`
	Bindings []corev1alpha1.Binding `json:"bindings"`
}

func (g *Gateway) handleListBindings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pool := r.URL.Query().Get("pool")

	var bindings []corev1alpha1.Binding
	if pool != "" {
		bindings = g.bindings.ListBindings(pool)
	} else {
		bindings = g.bindings.List()
	}
	writeJSON(w, http.StatusOK, bindingList{Revision: g.bindings.Revision(), Bindings: bindings})
}
