// Copyright 2025 The ASIMOV Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package asvc

import "sync"

// Manager is the service-wide concurrent map of live contexts keyed by
// service channel ID (spec §5: "the service-wide context manager is a
// concurrent map: add/remove/get must be safe against concurrent
// callers"), grounded on the teacher's
// a2asrv/eventqueue/manager_in_memory_impl.go mutex-guarded map shape.
type Manager struct {
	mu       sync.RWMutex
	contexts map[string]*Context
}

// NewManager returns an empty, ready-to-use Manager.
func NewManager() *Manager {
	return &Manager{contexts: map[string]*Context{}}
}

// Add registers ctx under its Key. It is the caller's responsibility to
// ensure only one live context exists per service channel ID at a time
// (spec §5).
func (m *Manager) Add(ctx *Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[ctx.Key()] = ctx
}

// Get returns the live context for key, if any.
func (m *Manager) Get(key string) (*Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ctx, ok := m.contexts[key]
	return ctx, ok
}

// Remove drops key from the manager.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, key)
}

// Len returns the number of live contexts.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.contexts)
}
