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

// Package aclient implements the Client Context: the agent-side,
// per-invocation counterpart to asvc.Context (spec §4.E), grounded on
// the teacher's a2aclient.Client for the outer shape (a thin,
// send-function-driven wrapper) and internal/taskexec/subscription.go
// for the iter.Seq2 event-sequence idiom.
package aclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/asimov-proto/asimov-go/asimov"
	"github.com/asimov-proto/asimov-go/asimov/asyncqueue"
)

// Status is a Client Context's lifecycle position (spec §4.E).
type Status string

const (
	StatusInvoked   Status = "Invoked"
	StatusFinished  Status = "Finished"
	StatusCancelled Status = "Cancelled"
)

// SendFunc delivers a message to the service, implementing retry with
// backoff internally (a closure over transport.Sender.Post provides this).
type SendFunc func(ctx context.Context, msg asimov.Message) error

// Options configures a Client at construction time.
type Options struct {
	Observer asimov.Observer
}

// Option is a functional option for New.
type Option func(*Options)

// WithObserver attaches an Observer for lifecycle notifications.
func WithObserver(o asimov.Observer) Option {
	return func(o2 *Options) { o2.Observer = o }
}

// Client is the agent-side per-invocation state (spec §4.E): it queues
// incoming messages for the caller to drain, and composes+sends
// upcall replies and control messages back to the service.
type Client struct {
	mu      sync.Mutex
	send    SendFunc
	channel asimov.Channel
	opts    Options
	status  Status

	incoming *asyncqueue.Queue[asimov.Message]
}

// New constructs a Client Context immediately after a successful
// Invoke; there is no "uninvoked" state to model since a Client
// Context does not exist before that point.
func New(send SendFunc, channel asimov.Channel, opts ...Option) *Client {
	o := Options{Observer: asimov.NoopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{
		send:     send,
		channel:  channel,
		opts:     o,
		status:   StatusInvoked,
		incoming: asyncqueue.New[asimov.Message](),
	}
}

// Channel returns this client's channel coordinates.
func (c *Client) Channel() asimov.Channel {
	return c.channel
}

// Status returns the client's current lifecycle position.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// HandleIncomingMessage enqueues msg for GetMessage/GetMessages
// consumers. A close=true Return transitions the client to Finished;
// messages already queued (the Return included) stay readable, and once
// they are drained GetMessage returns empty without blocking and
// releases any other pending waiters (spec §4.E).
func (c *Client) HandleIncomingMessage(msg asimov.Message) {
	c.incoming.Push(msg)
	c.opts.Observer.OnIncomingMessage(c.channel.ClientChannelID, msg)
	c.opts.Observer.OnMessage(c.channel.ClientChannelID, msg)

	if ret, ok := msg.(asimov.Return); ok && ret.Close {
		c.mu.Lock()
		c.status = StatusFinished
		c.mu.Unlock()
		c.opts.Observer.OnFinish(c.channel.ClientChannelID)
		c.opts.Observer.OnDispose(c.channel.ClientChannelID)
	}
}

// GetMessage awaits the next message, or returns (nil, nil) if timeout
// elapses or the context has closed (spec §4.E: "return empty on
// timeout or close"). timeout=0 waits indefinitely.
func (c *Client) GetMessage(ctx context.Context, timeout time.Duration) (asimov.Message, error) {
	ended := c.Status() != StatusInvoked
	if ended {
		timeout = -1
	}
	msg, err := c.incoming.WaitFor(ctx, func(asimov.Message) bool { return true }, timeout)
	if err != nil {
		if errors.Is(err, asyncqueue.ErrEmpty) || errors.Is(err, asyncqueue.ErrClosed) {
			if ended {
				c.incoming.Flush(asyncqueue.ErrClosed)
			}
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// GetMessages returns a lazy, single-shot, finite sequence that yields
// every subsequent message until the invocation ends (spec §4.E),
// grounded on the teacher's localSubscription.Events iter.Seq2 loop
// shape (block-then-yield-until-terminal).
func (c *Client) GetMessages(ctx context.Context) func(yield func(asimov.Message, error) bool) {
	return func(yield func(asimov.Message, error) bool) {
		for {
			msg, err := c.GetMessage(ctx, 0)
			if err != nil {
				yield(nil, err)
				return
			}
			if msg == nil {
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// ProvideInputs composes and sends a ProvideInput message.
func (c *Client) ProvideInputs(ctx context.Context, inputs []asimov.InputValue, seq *int) error {
	return c.sendMessage(ctx, asimov.ProvideInput{Inputs: inputs, Seq: seq})
}

// ProvideUserConfirmation composes and sends a ProvideUserConfirmation
// message answering a prior RequestUserConfirmation.
func (c *Client) ProvideUserConfirmation(ctx context.Context, reqID, confirmedBy string) error {
	return c.sendMessage(ctx, asimov.ProvideUserConfirmation{ReqID: reqID, ConfirmedBy: confirmedBy})
}

// AuthorizePayment composes and sends an AuthorizePayment message
// answering a prior RequestPayment.
func (c *Client) AuthorizePayment(ctx context.Context, reqID, paymentID, paymentSchema string, amount float64, currency, token string, paymentData any) error {
	return c.sendMessage(ctx, asimov.AuthorizePayment{
		ReqID:         reqID,
		PaymentID:     paymentID,
		PaymentSchema: paymentSchema,
		Amount:        amount,
		Currency:      currency,
		Token:         token,
		PaymentData:   paymentData,
	})
}

// RejectPayment composes and sends a RejectPayment message declining a
// prior RequestPayment.
func (c *Client) RejectPayment(ctx context.Context, reqID, reason string) error {
	return c.sendMessage(ctx, asimov.RejectPayment{ReqID: reqID, Reason: reason})
}

// Cancel sends Cancel and transitions the client to Cancelled;
// subsequent sends fail with NotInvoked (spec §4.E).
func (c *Client) Cancel(ctx context.Context) error {
	if err := c.sendMessage(ctx, asimov.Cancel{}); err != nil {
		return err
	}
	c.mu.Lock()
	c.status = StatusCancelled
	c.mu.Unlock()
	return nil
}

func (c *Client) sendMessage(ctx context.Context, msg asimov.Message) error {
	c.mu.Lock()
	status := c.status
	c.mu.Unlock()
	if status != StatusInvoked {
		return asimov.NewError(asimov.ErrNotInvoked, string(status))
	}

	if err := c.send(ctx, msg); err != nil {
		return err
	}
	c.opts.Observer.OnOutgoingMessage(c.channel.ClientChannelID, msg)
	return nil
}
