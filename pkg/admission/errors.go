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
	"errors"
	"fmt"
)

// MutationFailedError is returned when a mutating stage fails unexpectedly
// (stage error or malformed patch). The whole request is rejected and no
// partial mutation is ever persisted.
type MutationFailedError struct {
	Stage string
	Err   error
}

func (e *MutationFailedError) Error() string {
	return fmt.Sprintf("mutating stage %q failed: %v", e.Stage, e.Err)
}

func (e *MutationFailedError) Unwrap() error {
	return e.Err
}

// IsMutationFailed reports whether the error is a MutationFailedError.
func IsMutationFailed(err error) bool {
	var target *MutationFailedError
	return errors.As(err, &target)
}
