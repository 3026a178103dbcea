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

package transport

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy governs the delay between send retries, mirroring the
// shape of the teacher's a2asrv/workqueue.ReadRetryPolicy interface
// (a single NextDelay(attempt) method).
type BackoffPolicy interface {
	NextDelay(attempt int) time.Duration
}

// JitteredBackoff implements the retry defaults named in spec §4.E:
// base delay scaled by a multiplier per attempt, plus up to MaxJitter
// of additive random jitter.
type JitteredBackoff struct {
	Base       time.Duration
	Multiplier float64
	MaxJitter  time.Duration
}

// DefaultBackoff is the 500ms/1.5x/100ms policy spec §4.E names as the
// Client Context's defaults.
var DefaultBackoff = &JitteredBackoff{
	Base:       500 * time.Millisecond,
	Multiplier: 1.5,
	MaxJitter:  100 * time.Millisecond,
}

// NextDelay implements BackoffPolicy.
func (b *JitteredBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(b.Base) * math.Pow(b.Multiplier, float64(attempt))
	jitter := time.Duration(0)
	if b.MaxJitter > 0 {
		jitter = time.Duration(rand.Int63n(int64(b.MaxJitter) + 1))
	}
	return time.Duration(delay) + jitter
}
