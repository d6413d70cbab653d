// Copyright 2025 The vaultbroker Authors
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

package lifecycle

import (
	"context"
	"sync"
)

// BuildFinishedHandler receives a build completion notification.
type BuildFinishedHandler func(ctx context.Context, buildID string)

// Bus is a minimal in-process fan-out for build completion events.
// Handlers run synchronously in publish order.
type Bus struct {
	mu       sync.RWMutex
	handlers []BuildFinishedHandler
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for build completion events.
func (b *Bus) Subscribe(h BuildFinishedHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// BuildFinished notifies all subscribers that a build completed.
func (b *Bus) BuildFinished(ctx context.Context, buildID string) {
	b.mu.RLock()
	handlers := make([]BuildFinishedHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, buildID)
	}
}
