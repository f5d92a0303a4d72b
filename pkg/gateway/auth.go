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
	"errors"
	"net/http"

	corev1alpha1 "github.com/gatewarden-io/gatewarden/apis/core/v1alpha1"
	"github.com/gatewarden-io/gatewarden/pkg/consts"
)

// ErrUnauthenticated is returned when no identity can be resolved for a
// request.
var ErrUnauthenticated = errors.New("no authenticated identity")

// Authenticator resolves the identity of an incoming request. The actual
// authentication infrastructure is an external collaborator: the gateway only
// consumes the identity it produced.
type Authenticator interface {
	Authenticate(req *http.Request) (corev1alpha1.UserInfo, error)
}

// HeaderAuthenticator trusts the identity headers stamped by an
// authenticating front-proxy, the usual deployment of this gateway.
type HeaderAuthenticator struct{}

// Authenticate implements Authenticator.
func (HeaderAuthenticator) Authenticate(req *http.Request) (corev1alpha1.UserInfo, error) {
	username := req.Header.Get(consts.RemoteUserHeader)
	if username == "" {
		return corev1alpha1.UserInfo{}, ErrUnauthenticated
	}
	return corev1alpha1.UserInfo{
		Username: username,
		Groups:   req.Header.Values(consts.RemoteGroupHeader),
	}, nil
}
