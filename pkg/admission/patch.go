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

package admission

import (
	"encoding/json"
	"fmt"

	evanpatch "github.com/evanphx/json-patch/v5"
	"gomodules.xyz/jsonpatch/v2"
)

// Patch is an ordered list of RFC 6902 operations produced by a mutating
// stage. The pipeline applies it atomically to the request payload before the
// next stage runs.
type Patch []jsonpatch.Operation

// IsEmpty reports whether the patch contains no operations.
func (p Patch) IsEmpty() bool {
	return len(p) == 0
}

// PatchFromMutated computes the patch turning the original payload into the
// mutated one. It is the helper built-in mutators use: they mutate a decoded
// copy of the object, re-encode it, and return the resulting diff.
func PatchFromMutated(original, mutated []byte) (Patch, error) {
	ops, err := jsonpatch.CreatePatch(original, mutated)
	if err != nil {
		return nil, fmt.Errorf("failed computing payload patch: %w", err)
	}
	return ops, nil
}

// DecodePatch parses a raw RFC 6902 document (as returned by mutating
// webhooks) into a Patch.
func DecodePatch(raw json.RawMessage) (Patch, error) {
	var ops []jsonpatch.Operation
	if err := json.Unmarshal(raw, &ops); err != nil {
		return nil, fmt.Errorf("malformed patch: %w", err)
	}
	return ops, nil
}

// apply returns the payload resulting from applying the patch to the given
// document. The input document is never modified: a failed application leaves
// no partial mutation behind.
func (p Patch) apply(doc json.RawMessage) (json.RawMessage, error) {
	encoded, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed encoding patch: %w", err)
	}

	decoded, err := evanpatch.DecodePatch(encoded)
	if err != nil {
		return nil, fmt.Errorf("malformed patch: %w", err)
	}

	patched, err := decoded.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("failed applying patch: %w", err)
	}
	return patched, nil
}
