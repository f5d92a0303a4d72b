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

// Package flags contains helpers to initialize the command line flags.
package flags

import (
	"flag"

	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
)

// InitKlogFlags registers the klog flags on the given pflag set.
func InitKlogFlags(flags *pflag.FlagSet) {
	legacyFlags := flag.NewFlagSet("klog", flag.PanicOnError)
	klog.InitFlags(legacyFlags)
	flags.AddGoFlagSet(legacyFlags)
}
