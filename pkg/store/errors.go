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

package store

import (
	"errors"
	"fmt"
)

// AlreadyBoundError is returned when binding a workload that already holds an
// active binding. It guards against races: with the scheduler serializing
// placements per pool it should never surface to end users, and a scheduling
// attempt hitting it is simply retried from filtering.
type AlreadyBoundError struct {
	WorkloadUID string
	PoolName    string
}

func (e *AlreadyBoundError) Error() string {
	return fmt.Sprintf("workload %q is already bound to pool %q", e.WorkloadUID, e.PoolName)
}

// IsAlreadyBound reports whether the error is an AlreadyBoundError.
func IsAlreadyBound(err error) bool {
	var target *AlreadyBoundError
	return errors.As(err, &target)
}
