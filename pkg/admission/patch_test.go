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

package admission_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gatewarden-io/gatewarden/pkg/admission"
)

var _ = Describe("Patch computation", func() {
	It("returns an empty patch for identical documents", func() {
		patch, err := admission.PatchFromMutated(
			json.RawMessage(`{"a": 1}`), json.RawMessage(`{"a": 1}`))
		Expect(err).ToNot(HaveOccurred())
		Expect(patch.IsEmpty()).To(BeTrue())
	})

	It("diffs the mutated document against the original", func() {
		patch, err := admission.PatchFromMutated(
			json.RawMessage(`{"a": 1}`), json.RawMessage(`{"a": 1, "b": 2}`))
		Expect(err).ToNot(HaveOccurred())
		Expect(patch).To(HaveLen(1))
		Expect(patch[0].Operation).To(Equal("add"))
		Expect(patch[0].Path).To(Equal("/b"))
	})

	It("rejects a malformed patch document", func() {
		_, err := admission.DecodePatch(json.RawMessage(`{"not": "a patch"}`))
		Expect(err).To(HaveOccurred())
	})
})
