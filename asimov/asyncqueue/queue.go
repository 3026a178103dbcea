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

// Package asyncqueue implements the buffered, predicate-filtered
// rendezvous queue shared by both halves of a service context: the
// input buffer and the message queue each get their own instance.
package asyncqueue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is handed to consumers pending at the moment of a flush that
// supplied no explicit error. The queue remains usable after a flush
// (spec §4.A: "the queue is reusable"), so later Push and WaitFor calls
// do not see ErrClosed.
var ErrClosed = errors.New("asyncqueue: closed")

// ErrEmpty is returned by WaitFor when no item satisfies the predicate
// before the timeout elapses, or immediately when timeout is negative.
var ErrEmpty = errors.New("asyncqueue: empty")

type consumer[T any] struct {
	predicate func(T) bool
	result    chan result[T]
}

type result[T any] struct {
	item T
	err  error
}

// Queue is a FIFO buffered rendezvous queue with predicate-filtered
// waiting, as specified in spec §4.A. The zero value is not usable; use
// New.
type Queue[T any] struct {
	mu        sync.Mutex
	items     []T
	consumers []*consumer[T]
}

// New returns an empty, ready-to-use Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push hands item to the first registered consumer whose predicate
// accepts it (FIFO over consumer registration order); if none accepts,
// item is appended to the buffered items (FIFO).
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	for i, c := range q.consumers {
		if c.predicate(item) {
			q.consumers = append(q.consumers[:i], q.consumers[i+1:]...)
			q.mu.Unlock()
			c.result <- result[T]{item: item}
			return
		}
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// WaitFor returns the first buffered item satisfying predicate,
// removing it from the queue. If none is buffered it registers a
// consumer and blocks according to timeout:
//   - timeout == 0: wait indefinitely (or until ctx is done).
//   - timeout < 0: return ErrEmpty immediately.
//   - timeout > 0: wait up to timeout, returning ErrEmpty on expiry.
func (q *Queue[T]) WaitFor(ctx context.Context, predicate func(T) bool, timeout time.Duration) (T, error) {
	var zero T

	q.mu.Lock()
	for i, item := range q.items {
		if predicate(item) {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.mu.Unlock()
			return item, nil
		}
	}

	if timeout < 0 {
		q.mu.Unlock()
		return zero, ErrEmpty
	}

	c := &consumer[T]{predicate: predicate, result: make(chan result[T], 1)}
	q.consumers = append(q.consumers, c)
	q.mu.Unlock()

	var timerC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case r := <-c.result:
		if r.err != nil {
			return zero, r.err
		}
		return r.item, nil
	case <-timerC:
		q.removeConsumer(c)
		return zero, ErrEmpty
	case <-ctx.Done():
		q.removeConsumer(c)
		return zero, ctx.Err()
	}
}

func (q *Queue[T]) removeConsumer(target *consumer[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, c := range q.consumers {
		if c == target {
			q.consumers = append(q.consumers[:i], q.consumers[i+1:]...)
			return
		}
	}
}

// Flush drops all buffered items and pending consumers. If err is
// non-nil, every pending consumer's WaitFor returns err; if err is nil,
// they return ErrClosed. The queue remains usable afterward: a
// subsequent Push behaves as the first push into a fresh empty queue.
func (q *Queue[T]) Flush(err error) {
	if err == nil {
		err = ErrClosed
	}
	q.mu.Lock()
	consumers := q.consumers
	q.items = nil
	q.consumers = nil
	q.mu.Unlock()

	for _, c := range consumers {
		c.result <- result[T]{err: err}
	}
}

// Len returns the number of buffered items not yet claimed by a
// consumer. Intended for tests and observability, not for control flow.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a non-destructive copy of the currently buffered
// items, in FIFO order. Used to persist queue contents for suspend/resume.
func (q *Queue[T]) Snapshot() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}
