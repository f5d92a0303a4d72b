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
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
)

const (
	defaultWatchTimeout = 30 * time.Second
	maxWatchTimeout     = 5 * time.Minute
)

// handleWatchBindings long-polls the binding store. The caller passes the
// revision of its last observed snapshot: the request returns as soon as the
// store moves past it, or with the unchanged snapshot once the timeout fires.
func (g *Gateway) handleWatchBindings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var since uint64
	if raw := r.URL.Query().Get("revision"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid revision %q: %v", raw, err)
			return
		}
		since = parsed
	}

	timeout := defaultWatchTimeout
	if raw := r.URL.Query().Get("timeoutSeconds"); raw != "" {
		seconds, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid timeoutSeconds %q: %v", raw, err)
			return
		}
		timeout = time.Duration(seconds) * time.Second
		if timeout > maxWatchTimeout {
			timeout = maxWatchTimeout
		}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for g.bindings.Revision() <= since {
		select {
		case <-g.bindings.Changes():
		case <-deadline.C:
			g.respondBindings(w)
			return
		case <-r.Context().Done():
			return
		}
	}
	g.respondBindings(w)
}

func (g *Gateway) respondBindings(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, bindingList{
		Revision: g.bindings.Revision(),
		Bindings: g.bindings.List(),
	})
}
