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

// Package v1alpha1 contains the typed objects exchanged between the gateway,
// the admission pipeline, and the scheduling engine.
package v1alpha1

import (
	"encoding/json"
)

// Operation is the verb of an incoming request.
type Operation string

const (
	// OperationCreate requests the creation of a new resource.
	OperationCreate Operation = "CREATE"
	// OperationUpdate requests the replacement of an existing resource.
	OperationUpdate Operation = "UPDATE"
	// OperationDelete requests the removal of an existing resource.
	OperationDelete Operation = "DELETE"
)

// Resource kinds understood by the core.
const (
	// WorkloadKind identifies workload objects.
	WorkloadKind = "Workload"
	// PriorityClassKind identifies priority class objects.
	PriorityClassKind = "PriorityClass"
	// ResourcePoolKind identifies resource pool objects.
	ResourcePoolKind = "ResourcePool"
	// NamespaceKind identifies namespace objects.
	NamespaceKind = "Namespace"
)

// UserInfo carries the identity resolved by the authentication layer.
type UserInfo struct {
	// Username is the name of the requesting user.
	Username string `json:"username,omitempty"`
	// Groups is the set of groups the user belongs to.
	Groups []string `json:"groups,omitempty"`
}

// Request is a resource mutation request traversing the admission pipeline.
// The payload is an opaque JSON document: the pipeline never interprets it
// beyond applying patches, only individual stages decode it.
type Request struct {
	// UID uniquely identifies this request for auditing purposes.
	UID string `json:"uid"`
	// Operation is the requested verb.
	Operation Operation `json:"operation"`
	// Kind is the kind of the target resource.
	Kind string `json:"kind"`
	// Namespace is the namespace of the target resource, empty for
	// cluster-scoped kinds.
	Namespace string `json:"namespace,omitempty"`
	// Name is the name of the target resource.
	Name string `json:"name,omitempty"`
	// UserInfo is the identity of the requester.
	UserInfo UserInfo `json:"userInfo,omitempty"`
	// Object is the resource payload. It is empty for delete operations.
	Object json.RawMessage `json:"object,omitempty"`
}

// DeepCopy returns a copy of the request sharing no memory with the original.
func (r *Request) DeepCopy() *Request {
	out := *r
	if r.Object != nil {
		out.Object = make(json.RawMessage, len(r.Object))
		copy(out.Object, r.Object)
	}
	if r.UserInfo.Groups != nil {
		out.UserInfo.Groups = append([]string(nil), r.UserInfo.Groups...)
	}
	return &out
}

// Verdict is the outcome of the admission pipeline for a single request.
type Verdict struct {
	// Allowed reports whether the request may proceed.
	Allowed bool `json:"allowed"`
	// Stage is the name of the stage that produced the verdict. It is empty
	// when every stage allowed the request.
	Stage string `json:"stage,omitempty"`
	// Reason is the human readable motivation of a denial.
	Reason string `json:"reason,omitempty"`
}

// Allowed returns an allowing verdict.
func Allowed() Verdict {
	return Verdict{Allowed: true}
}

// Denied returns a denying verdict produced by the given stage.
func Denied(stage, reason string) Verdict {
	return Verdict{Allowed: false, Stage: stage, Reason: reason}
}
