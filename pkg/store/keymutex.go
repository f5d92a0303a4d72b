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
	"hash/fnv"
	"runtime"
	"sync"
)

// keyMutex is a hashed set of mutexes keyed by string: two concurrent
// placements against the same pool serialize on the same mutex, so they can
// never both succeed against the same spare capacity.
type keyMutex struct {
	mutexes []sync.Mutex
}

func newKeyMutex() *keyMutex {
	n := runtime.NumCPU()
	if n < 4 {
		n = 4
	}
	return &keyMutex{mutexes: make([]sync.Mutex, n)}
}

// Lock acquires the mutex associated with the given key.
func (km *keyMutex) Lock(key string) {
	km.mutexes[km.index(key)].Lock()
}

// Unlock releases the mutex associated with the given key.
func (km *keyMutex) Unlock(key string) {
	km.mutexes[km.index(key)].Unlock()
}

func (km *keyMutex) index(key string) uint32 {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return hasher.Sum32() % uint32(len(km.mutexes))
}
