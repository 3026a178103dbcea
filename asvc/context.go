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

// Package asvc implements the service-side Service Context: the
// centerpiece state machine that interleaves handler-authored business
// logic with incoming protocol messages.
package asvc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asimov-proto/asimov-go/asimov"
	"github.com/asimov-proto/asimov-go/asimov/asyncqueue"
)

// Status is a Service Context's position in its state machine (spec §3/§4.F).
type Status string

const (
	StatusInitialized Status = "Initialized"
	StatusActive       Status = "Active"
	StatusSuspended    Status = "Suspended"
	StatusCancelled    Status = "Cancelled"
	StatusFinished     Status = "Finished"
)

// defaultUpcallTimeout is the 300_000ms default named throughout spec §4.F.
const defaultUpcallTimeout = 300 * time.Second

// SendFunc delivers a message to the peer over whatever transport
// binding the caller wires in; it is invoked while the context's own
// mutex is not held.
type SendFunc func(ctx context.Context, msg asimov.Message) error

// Options configures a Context at construction time.
type Options struct {
	ValidateReturnTypes           bool
	Observer                      asimov.Observer
	DefaultAcceptedPaymentSchemas []string
}

// Option is a functional option for New/Restore, following the
// teacher's RequestHandlerOption / MemManagerOption convention.
type Option func(*Options)

// WithObserver attaches an Observer for lifecycle notifications.
func WithObserver(o asimov.Observer) Option {
	return func(o2 *Options) { o2.Observer = o }
}

// WithValidateReturnTypes toggles output schema validation on ReturnData.
func WithValidateReturnTypes(v bool) Option {
	return func(o *Options) { o.ValidateReturnTypes = v }
}

// WithDefaultAcceptedPaymentSchemas sets the payment schemas used by
// RequestPayment calls that don't specify their own.
func WithDefaultAcceptedPaymentSchemas(schemas ...string) Option {
	return func(o *Options) { o.DefaultAcceptedPaymentSchemas = schemas }
}

// SerializedState is the persisted snapshot of a Service Context, per
// spec §4.F "Serialization" and the persisted state layout in §6.
type SerializedState struct {
	Status         Status                    `json:"status"`
	ConfigProfiles map[string]any            `json:"configProfiles"`
	State          any                       `json:"state"`
	MessageQueue   []asimov.MessageEnvelope  `json:"messageQueue,omitempty"`
	InputQueue     []asimov.InputValue       `json:"inputQueue,omitempty"`
}

// PaymentRequest carries the per-call options for RequestPayment.
type PaymentRequest struct {
	AcceptedPaymentSchemas []string
	Amount                 float64
	Currency               string
	Description            string
}

// Context is the service-side per-invocation state machine (spec §4.F,
// the centerpiece component). All handler-visible methods are safe to
// call from the single goroutine the Execution Runner dedicates to this
// context; incoming dispatch (HandleIncoming) is called concurrently
// from the transport layer and is safe for concurrent use.
type Context struct {
	mu             sync.Mutex
	send           SendFunc
	command        *asimov.CommandDefinition
	channel        asimov.Channel
	configProfiles map[string]any
	profileDefs    map[string]*asimov.ConfigProfileDefinition
	opts           Options

	status       Status
	state        any
	returnBuffer []asimov.ReturnItem

	inputBuffer  *asyncqueue.Queue[asimov.InputValue]
	messageQueue *asyncqueue.Queue[asimov.Message]

	acceptedPaymentSchemas []string
}

func newContext(send SendFunc, command *asimov.CommandDefinition, channel asimov.Channel, profileDefs map[string]*asimov.ConfigProfileDefinition, opts ...Option) *Context {
	o := Options{ValidateReturnTypes: true, Observer: asimov.NoopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Context{
		send:                   send,
		command:                command,
		channel:                channel,
		profileDefs:            profileDefs,
		opts:                   o,
		inputBuffer:            asyncqueue.New[asimov.InputValue](),
		messageQueue:           asyncqueue.New[asimov.Message](),
		acceptedPaymentSchemas: o.DefaultAcceptedPaymentSchemas,
	}
}

// New constructs a fresh Service Context in status Initialized.
func New(send SendFunc, command *asimov.CommandDefinition, channel asimov.Channel, profileDefs map[string]*asimov.ConfigProfileDefinition, opts ...Option) *Context {
	c := newContext(send, command, channel, profileDefs, opts...)
	c.status = StatusInitialized
	c.configProfiles = map[string]any{}
	return c
}

// Restore reconstructs a Context from a persisted snapshot. Its status
// and state are replayed and both queues are re-seeded from the
// snapshot; the caller (typically the Execution Runner) is responsible
// for re-entering the handler.
func Restore(send SendFunc, command *asimov.CommandDefinition, channel asimov.Channel, snapshot SerializedState, profileDefs map[string]*asimov.ConfigProfileDefinition, opts ...Option) *Context {
	c := newContext(send, command, channel, profileDefs, opts...)
	c.status = snapshot.Status
	c.state = snapshot.State
	c.configProfiles = snapshot.ConfigProfiles
	if c.configProfiles == nil {
		c.configProfiles = map[string]any{}
	}
	for _, env := range snapshot.MessageQueue {
		c.messageQueue.Push(env.Message)
	}
	for _, iv := range snapshot.InputQueue {
		c.inputBuffer.Push(iv)
	}
	return c
}

// Key identifies this context for the context manager and store; it is
// the service half-channel ID (the ID the service's own endpoint is
// addressed by).
func (c *Context) Key() string {
	return c.channel.ServiceChannelID
}

// Channel returns the channel coordinates this context was constructed
// or restored with, for callers (the Execution Runner) that need to
// persist or re-derive them.
func (c *Context) Channel() asimov.Channel {
	return c.channel
}

// Dispose emits the disposal lifecycle event. It does not release any
// resources itself: both queues stop mattering once nothing references
// the context, and the Execution Runner is what decides when that is.
func (c *Context) Dispose() {
	c.opts.Observer.OnDispose(c.channel.ServiceChannelID)
}

// NotifyError emits the service-level onError lifecycle event (spec
// §4.H step 3), distinct from ReturnError which appends an item to the
// wire-facing return buffer.
func (c *Context) NotifyError(err error) {
	c.opts.Observer.OnError(c.channel.ServiceChannelID, err)
}

// Status returns the context's current state-machine position.
func (c *Context) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// State returns the handler's opaque, user-chosen state value.
func (c *Context) State() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState replaces the handler's opaque state value.
func (c *Context) SetState(s any) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// SetAcceptedPaymentSchemas overrides the default schema list a
// RequestPayment call falls back to when it specifies none of its own.
func (c *Context) SetAcceptedPaymentSchemas(schemas []string) {
	c.mu.Lock()
	c.acceptedPaymentSchemas = schemas
	c.mu.Unlock()
}

// Serialize snapshots the context for persistence (spec §4.F).
func (c *Context) Serialize() SerializedState {
	c.mu.Lock()
	defer c.mu.Unlock()

	inputs := c.inputBuffer.Snapshot()
	messages := c.messageQueue.Snapshot()
	envs := make([]asimov.MessageEnvelope, len(messages))
	for i, m := range messages {
		envs[i] = asimov.MessageEnvelope{Message: m}
	}
	return SerializedState{
		Status:         c.status,
		ConfigProfiles: c.configProfiles,
		State:          c.state,
		MessageQueue:   envs,
		InputQueue:     inputs,
	}
}

// HandleIncoming dispatches an incoming wire message according to the
// dispatch table in spec §4.F. It resolves before any handler-visible
// effects of the message are necessarily observed by the blocked
// handler goroutine, so the transport layer can acknowledge the HTTP
// request without waiting on business logic.
func (c *Context) HandleIncoming(ctx context.Context, msg asimov.Message) error {
	c.mu.Lock()
	if c.status == StatusSuspended {
		c.status = StatusActive
	}
	status := c.status
	c.mu.Unlock()

	c.opts.Observer.OnIncomingMessage(c.Key(), msg)

	var err error
	switch status {
	case StatusInitialized:
		err = c.dispatchInitialized(msg)
	case StatusActive:
		err = c.dispatchActive(msg)
	default:
		err = asimov.NewError(asimov.ErrNotActive, "context is not active")
	}
	if err != nil {
		return err
	}

	c.opts.Observer.OnMessage(c.Key(), msg)
	return c.flushReturnBufferIfDue(ctx)
}

func (c *Context) dispatchInitialized(msg asimov.Message) error {
	invoke, ok := msg.(asimov.Invoke)
	if !ok {
		return asimov.NewError(asimov.ErrUnexpectedMessage, fmt.Sprintf("expected invoke, got %s", msg.Tag()))
	}

	var childErrors []string

	for _, name := range c.command.GetRequiredConfigProfiles() {
		val, present := invoke.ConfigProfiles[name]
		if !present {
			childErrors = append(childErrors, asimov.NewError(asimov.ErrMissingConfigProfile, name).Error())
			continue
		}
		def, ok := c.profileDefs[name]
		if !ok {
			childErrors = append(childErrors, asimov.NewError(asimov.ErrUnknownConfigProfile, name).Error())
			continue
		}
		if result := def.Validate(val); !result.Valid {
			childErrors = append(childErrors, asimov.NewError(asimov.ErrInvalidConfigProfile, name).Error())
			childErrors = append(childErrors, result.Errors...)
		}
	}

	for _, iv := range invoke.Inputs {
		result, err := c.command.ValidateInput(iv.InputType, iv.Value)
		if err != nil {
			childErrors = append(childErrors, err.Error())
			continue
		}
		if !result.Valid {
			childErrors = append(childErrors, result.Errors...)
		}
	}

	if len(childErrors) > 0 {
		return asimov.NewError(asimov.ErrInvalidMessage, "invoke rejected").
			WithDetails(map[string]any{"childErrors": childErrors})
	}

	c.mu.Lock()
	c.configProfiles = invoke.ConfigProfiles
	if c.configProfiles == nil {
		c.configProfiles = map[string]any{}
	}
	c.status = StatusActive
	c.mu.Unlock()

	for _, iv := range invoke.Inputs {
		c.inputBuffer.Push(iv)
	}
	if invoke.UserConfirmation != nil {
		c.messageQueue.Push(asimov.ProvideUserConfirmation{
			ReqID:       "",
			ConfirmedBy: invoke.UserConfirmation.ConfirmedBy,
		})
	}
	return nil
}

func (c *Context) dispatchActive(msg asimov.Message) error {
	switch m := msg.(type) {
	case asimov.ProvideInput:
		for _, iv := range m.Inputs {
			result, err := c.command.ValidateInput(iv.InputType, iv.Value)
			if err != nil {
				return err
			}
			if !result.Valid {
				return asimov.NewError(asimov.ErrInvalidInput, iv.InputType).
					WithDetails(map[string]any{"errors": result.Errors})
			}
		}
		for _, iv := range m.Inputs {
			c.inputBuffer.Push(iv)
		}
		return nil
	case asimov.ProvideUserConfirmation, asimov.AuthorizePayment, asimov.RejectPayment:
		c.messageQueue.Push(msg)
		return nil
	case asimov.Cancel:
		c.doCancel()
		return nil
	case asimov.Invoke:
		return asimov.NewError(asimov.ErrUnexpectedMessage, "already invoked")
	default:
		_ = m
		return asimov.NewError(asimov.ErrUnexpectedMessage, fmt.Sprintf("unexpected message %s", msg.Tag()))
	}
}

func (c *Context) doCancel() {
	c.mu.Lock()
	c.status = StatusCancelled
	c.mu.Unlock()

	cancelErr := asimov.NewError(asimov.ErrCancelled, "context cancelled")
	c.inputBuffer.Flush(cancelErr)
	c.messageQueue.Flush(cancelErr)
	c.opts.Observer.OnCancel(c.Key())
}

// GetInputs blocks until count items of inputType have been collected
// from the input buffer (spec §4.F). It first checks the buffer
// non-blockingly; whenever the type has nothing buffered, it sends a
// RequestInput naming the remaining count and then waits — indefinitely
// for the very first item this call collects (an agent might take
// arbitrary time to respond to the very first demand), and bounded by
// timeout for every item after that, failing with InputTimeout on
// expiry. See DESIGN.md for why this reading was chosen: a literal
// "first wait is always indefinite, RequestInput only follows a bounded
// timeout" reading would never send the very RequestInput Scenario 2
// requires.
func (c *Context) GetInputs(ctx context.Context, inputType string, count int, timeout time.Duration) ([]any, error) {
	if count <= 0 {
		count = 1
	}
	if timeout <= 0 {
		timeout = defaultUpcallTimeout
	}

	predicate := func(iv asimov.InputValue) bool { return iv.InputType == inputType }

	collected := make([]any, 0, count)
	for len(collected) < count {
		item, err := c.inputBuffer.WaitFor(ctx, predicate, -1)
		if err == nil {
			collected = append(collected, item.Value)
			continue
		}
		if !errors.Is(err, asyncqueue.ErrEmpty) {
			return nil, err
		}

		remaining := count - len(collected)
		descriptor, ok := c.command.GetInputType(inputType)
		if !ok {
			return nil, asimov.NewError(asimov.ErrUnknownInputType, inputType)
		}
		req := asimov.RequestInput{Inputs: map[string]asimov.InputDescriptor{
			inputType: descriptor.AsInputDescriptor(remaining),
		}}
		if sendErr := c.sendMessage(ctx, req); sendErr != nil {
			return nil, sendErr
		}

		wait := timeout
		if len(collected) == 0 {
			wait = 0
		}
		item, err = c.inputBuffer.WaitFor(ctx, predicate, wait)
		if err != nil {
			if errors.Is(err, asyncqueue.ErrEmpty) {
				return nil, asimov.NewError(asimov.ErrInputTimeout, inputType)
			}
			return nil, err
		}
		collected = append(collected, item.Value)
	}
	return collected, nil
}

// RequestUserConfirmation allocates a reqId, sends
// RequestUserConfirmation, and waits for a matching
// ProvideUserConfirmation (spec §4.F). A synthetic standing
// confirmation supplied on Invoke (reqId "") is consumed by whichever
// call reaches the front of the message queue's FIFO first.
func (c *Context) RequestUserConfirmation(ctx context.Context, reason string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = defaultUpcallTimeout
	}
	reqID := uuid.NewString()
	if err := c.sendMessage(ctx, asimov.RequestUserConfirmation{ReqID: reqID, Reason: reason}); err != nil {
		return "", err
	}

	predicate := func(msg asimov.Message) bool {
		m, ok := msg.(asimov.ProvideUserConfirmation)
		return ok && (m.ReqID == reqID || m.ReqID == "")
	}
	msg, err := c.messageQueue.WaitFor(ctx, predicate, timeout)
	if err != nil {
		if errors.Is(err, asyncqueue.ErrEmpty) {
			return "", asimov.NewError(asimov.ErrConfirmationTimeout, "confirmation timeout")
		}
		return "", err
	}
	return msg.(asimov.ProvideUserConfirmation).ConfirmedBy, nil
}

// RequestPayment allocates a reqId, sends RequestPayment, and waits for
// a matching AuthorizePayment or RejectPayment (spec §4.F). maxAmount on
// the returned authorization is always the requested amount, never the
// peer's reply amount (Open Question #3, resolved in SPEC_FULL.md §9).
func (c *Context) RequestPayment(ctx context.Context, req PaymentRequest, timeout time.Duration) (*asimov.PaymentAuthorization, error) {
	if timeout <= 0 {
		timeout = defaultUpcallTimeout
	}
	reqID := uuid.NewString()

	c.mu.Lock()
	schemas := req.AcceptedPaymentSchemas
	if len(schemas) == 0 {
		schemas = c.acceptedPaymentSchemas
	}
	c.mu.Unlock()

	wire := asimov.RequestPayment{
		ReqID:                  reqID,
		AcceptedPaymentSchemas: schemas,
		Amount:                 req.Amount,
		Currency:               req.Currency,
		Description:            req.Description,
	}
	if err := c.sendMessage(ctx, wire); err != nil {
		return nil, err
	}

	predicate := func(msg asimov.Message) bool {
		switch m := msg.(type) {
		case asimov.AuthorizePayment:
			return m.ReqID == reqID
		case asimov.RejectPayment:
			return m.ReqID == reqID
		}
		return false
	}
	msg, err := c.messageQueue.WaitFor(ctx, predicate, timeout)
	if err != nil {
		if errors.Is(err, asyncqueue.ErrEmpty) {
			return nil, asimov.NewError(asimov.ErrPaymentTimeout, "payment timeout")
		}
		return nil, err
	}

	switch m := msg.(type) {
	case asimov.AuthorizePayment:
		if m.Amount > req.Amount {
			return nil, asimov.NewError(asimov.ErrInvalidMessage, "authorized amount exceeds requested amount")
		}
		return &asimov.PaymentAuthorization{
			PaymentID:     m.PaymentID,
			PaymentSchema: m.PaymentSchema,
			MaxAmount:     req.Amount,
			Currency:      m.Currency,
			Token:         m.Token,
		}, nil
	case asimov.RejectPayment:
		return nil, asimov.NewError(asimov.ErrPaymentRejected, m.Reason)
	}
	return nil, fmt.Errorf("asvc: unreachable")
}

// ReturnData appends an Output to the return buffer, validating data
// against outputType's schema when ValidateReturnTypes is set.
func (c *Context) ReturnData(outputType string, data any, summary string) error {
	if c.opts.ValidateReturnTypes {
		result, err := c.command.ValidateOutput(outputType, data)
		if err != nil {
			return err
		}
		if !result.Valid {
			return asimov.NewError(asimov.ErrInvalidOutput, outputType).
				WithDetails(map[string]any{"errors": result.Errors})
		}
	}
	c.mu.Lock()
	c.returnBuffer = append(c.returnBuffer, asimov.NewOutputItem(asimov.Output{
		OutputType: outputType,
		Data:       data,
		Summary:    summary,
	}))
	c.mu.Unlock()
	return nil
}

// ReturnError appends an Error item to the return buffer. No schema
// check is applied.
func (c *Context) ReturnError(name, description string, data any) {
	c.mu.Lock()
	c.returnBuffer = append(c.returnBuffer, asimov.NewErrorItem(asimov.ReturnError{
		ErrorName:   name,
		Description: description,
		Data:        data,
	}))
	c.mu.Unlock()
}

// Finish flushes the return buffer with close=true and transitions to
// Finished.
func (c *Context) Finish(ctx context.Context) error {
	if err := c.flushReturnBuffer(ctx, true); err != nil {
		return err
	}
	c.mu.Lock()
	c.status = StatusFinished
	c.mu.Unlock()
	c.opts.Observer.OnFinish(c.Key())
	return nil
}

// Suspend flushes any pending return items with close=false and
// transitions to Suspended. The Execution Runner is responsible for
// persisting the snapshot and disposing the in-memory context.
func (c *Context) Suspend(ctx context.Context) error {
	c.mu.Lock()
	nonEmpty := len(c.returnBuffer) > 0
	c.mu.Unlock()
	if nonEmpty {
		if err := c.flushReturnBuffer(ctx, false); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.status = StatusSuspended
	c.mu.Unlock()
	c.opts.Observer.OnSuspend(c.Key())
	return nil
}

// GetConfigProfile returns the value supplied for name on Invoke. It
// fails with ErrProfileNotRequired if the command does not declare it.
func (c *Context) GetConfigProfile(name string) (any, error) {
	if !c.command.DoesRequireConfigProfile(name) {
		return nil, asimov.NewError(asimov.ErrProfileNotRequired, name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configProfiles[name], nil
}

// flushReturnBufferIfDue implements the auto-flush named in spec §4.F:
// "After dispatch, if status is Active and return buffer is non-empty,
// flush the return buffer."
func (c *Context) flushReturnBufferIfDue(ctx context.Context) error {
	c.mu.Lock()
	due := c.status == StatusActive && len(c.returnBuffer) > 0
	c.mu.Unlock()
	if !due {
		return nil
	}
	return c.flushReturnBuffer(ctx, false)
}

// flushReturnBuffer implements the double-buffered flush of spec §4.F:
// swap in a fresh empty buffer, send, and on failure splice the unsent
// slice back onto whatever accumulated meanwhile, preserving order.
func (c *Context) flushReturnBuffer(ctx context.Context, closeFlag bool) error {
	c.mu.Lock()
	items := c.returnBuffer
	c.returnBuffer = nil
	c.mu.Unlock()

	if len(items) == 0 && !closeFlag {
		return nil
	}

	err := c.sendMessage(ctx, asimov.Return{Items: items, Close: closeFlag})
	if err != nil {
		c.mu.Lock()
		c.returnBuffer = append(items, c.returnBuffer...)
		c.mu.Unlock()
		return err
	}
	return nil
}

// sendMessage is the single choke point every outbound message passes
// through: it enforces the "no send while not Active" invariant and
// notifies the observer.
func (c *Context) sendMessage(ctx context.Context, msg asimov.Message) error {
	c.mu.Lock()
	status := c.status
	c.mu.Unlock()
	if status != StatusActive {
		return asimov.NewError(asimov.ErrNotActive, "context not active")
	}
	if err := c.send(ctx, msg); err != nil {
		return err
	}
	c.opts.Observer.OnOutgoingMessage(c.Key(), msg)
	return nil
}
