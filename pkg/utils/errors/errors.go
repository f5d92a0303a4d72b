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

// Package errors provides the error-management helpers shared by the
// gatewarden binaries.
package errors

import (
	"flag"

	"k8s.io/klog/v2"
)

var panicOnErrorMode = false

// InitFlags initializes the flags to configure the error management behavior.
func InitFlags(flagset *flag.FlagSet) {
	if flagset == nil {
		flagset = flag.CommandLine
	}

	flagset.BoolVar(&panicOnErrorMode, "panic-on-unexpected-errors", panicOnErrorMode,
		"Enable a pedantic mode which causes a panic if an unexpected error occurs")
}

// SetPanicOnErrorMode can be used to set or unset the panic mode.
func SetPanicOnErrorMode(status bool) {
	panicOnErrorMode = status
}

// Must wraps a function call that can return an error. If some error occurred
// Must has two possible behaviors: panic if panic mode is enabled, or log the
// error and return false. Returns true if no error occurred.
func Must(err error) bool {
	if err != nil {
		if panicOnErrorMode {
			panic(err)
		}
		klog.Errorf("%s", err)
		return false
	}
	return true
}
