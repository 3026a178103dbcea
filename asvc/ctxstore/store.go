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

// Package ctxstore implements the Service Context Store: the
// persistence contract for suspended service contexts (spec §4.G).
package ctxstore

import (
	"context"

	"github.com/asimov-proto/asimov-go/asimov"
	"github.com/asimov-proto/asimov-go/asvc"
)

// Record is what Store persists and Get returns for a suspended
// context: its Channel plus its serialized state.
type Record struct {
	Channel asimov.Channel
	State   asvc.SerializedState
}

// Store is the persistence contract the core calls (spec §4.G). Get
// after Store with no intervening Delete must return the stored record
// byte-for-byte equivalent; Delete is idempotent.
type Store interface {
	Store(ctx context.Context, key string, rec Record) error
	Get(ctx context.Context, key string) (Record, bool, error)
	Delete(ctx context.Context, key string) error
}
