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

// Package consts holds the well-known names shared across packages.
package consts

const (
	// CreatorLabelKey is the label stamped on every workload with the
	// username of its creator.
	CreatorLabelKey = "created-by"

	// DefaultGatewayAddress is the default listen address of the gateway.
	DefaultGatewayAddress = ":8440"
	// DefaultMetricsAddress is the default listen address of the metrics
	// endpoint.
	DefaultMetricsAddress = ":8441"

	// DefaultWebhookTimeout is the timeout applied to webhook stages that do
	// not configure one, in seconds.
	DefaultWebhookTimeout = 10

	// RemoteUserHeader is the header carrying the authenticated username.
	RemoteUserHeader = "X-Remote-User"
	// RemoteGroupHeader is the header carrying the authenticated groups.
	RemoteGroupHeader = "X-Remote-Group"
)
