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

package priority

import (
	"errors"
	"fmt"
)

// UnknownPriorityClassError is returned when a workload names a priority
// class that does not exist.
type UnknownPriorityClassError struct {
	Name string
}

func (e *UnknownPriorityClassError) Error() string {
	return fmt.Sprintf("unknown priority class %q", e.Name)
}

// IsUnknownPriorityClass reports whether the error is an UnknownPriorityClassError.
func IsUnknownPriorityClass(err error) bool {
	var target *UnknownPriorityClassError
	return errors.As(err, &target)
}

// DuplicateDefaultError is returned when creating a second global default
// priority class.
type DuplicateDefaultError struct {
	Existing    string
	Conflicting string
}

func (e *DuplicateDefaultError) Error() string {
	return fmt.Sprintf("priority class %q cannot be the global default: %q already is",
		e.Conflicting, e.Existing)
}

// IsDuplicateDefault reports whether the error is a DuplicateDefaultError.
func IsDuplicateDefault(err error) bool {
	var target *DuplicateDefaultError
	return errors.As(err, &target)
}

// AlreadyExistsError is returned when creating a priority class whose name is
// already taken.
type AlreadyExistsError struct {
	Name string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("priority class %q already exists", e.Name)
}

// IsAlreadyExists reports whether the error is an AlreadyExistsError.
func IsAlreadyExists(err error) bool {
	var target *AlreadyExistsError
	return errors.As(err, &target)
}
