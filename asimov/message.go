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

package asimov

import (
	"encoding/json"
	"fmt"
)

// MessageTag discriminates the wire message taxonomy (spec §3).
type MessageTag string

const (
	TagInvoke                   MessageTag = "invoke"
	TagRequestInput             MessageTag = "requestInput"
	TagProvideInput             MessageTag = "provideInput"
	TagReturn                   MessageTag = "return"
	TagCancel                   MessageTag = "cancel"
	TagRequestUserConfirmation  MessageTag = "requestUserConfirmation"
	TagProvideUserConfirmation  MessageTag = "provideUserConfirmation"
	TagRequestPayment           MessageTag = "requestPayment"
	TagAuthorizePayment         MessageTag = "authorizePayment"
	TagRejectPayment            MessageTag = "rejectPayment"
)

// Message is a sealed interface implemented by every wire message
// variant. The private marker method prevents external packages from
// declaring new variants, following the a2a.Event/SendMessageResult
// sealing idiom.
type Message interface {
	Tag() MessageTag
	isMessage()
}

// InputValue pairs a declared input type with the value supplied for it.
type InputValue struct {
	InputType string `json:"inputType"`
	Value     any    `json:"value"`
}

// UserConfirmation carries the identity of whoever confirmed an action.
type UserConfirmation struct {
	ConfirmedBy string `json:"confirmedBy"`
}

// Invoke is the agent's request to start a command (spec §3).
type Invoke struct {
	ConfigProfiles   map[string]any    `json:"configProfiles,omitempty"`
	Inputs           []InputValue      `json:"inputs,omitempty"`
	UserConfirmation *UserConfirmation `json:"userConfirmation,omitempty"`
}

func (Invoke) Tag() MessageTag { return TagInvoke }
func (Invoke) isMessage()      {}

// InputDescriptor describes a single declared input type in a
// RequestInput upcall.
type InputDescriptor struct {
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
	Required    bool           `json:"required,omitempty"`
	MinCount    int            `json:"minCount,omitempty"`
}

// RequestInput is a service→agent upcall demanding more inputs.
type RequestInput struct {
	Inputs map[string]InputDescriptor `json:"inputs"`
}

func (RequestInput) Tag() MessageTag { return TagRequestInput }
func (RequestInput) isMessage()      {}

// ProvideInput is the agent's reply to a RequestInput (or unsolicited
// input supplied alongside Invoke).
type ProvideInput struct {
	Inputs []InputValue `json:"inputs"`
	Seq    *int         `json:"seq,omitempty"`
}

func (ProvideInput) Tag() MessageTag { return TagProvideInput }
func (ProvideInput) isMessage()      {}

// Output is a single successful result item in a Return message.
type Output struct {
	OutputType string `json:"outputType"`
	Data       any    `json:"data"`
	Summary    string `json:"summary,omitempty"`
}

// ReturnError is a single error result item in a Return message.
type ReturnError struct {
	ErrorName   string `json:"errorName"`
	Description string `json:"description"`
	Data        any    `json:"data,omitempty"`
}

// ReturnItem is a tagged union of Output|ReturnError. The two shapes are
// distinguished structurally on the wire (an Output item carries
// "outputType", an error item carries "errorName") rather than by an
// explicit discriminator field, following the literal payload shapes in
// spec §3.
type ReturnItem struct {
	Output *Output
	Error  *ReturnError
}

func NewOutputItem(o Output) ReturnItem  { return ReturnItem{Output: &o} }
func NewErrorItem(e ReturnError) ReturnItem { return ReturnItem{Error: &e} }

func (ri ReturnItem) MarshalJSON() ([]byte, error) {
	switch {
	case ri.Output != nil:
		return json.Marshal(ri.Output)
	case ri.Error != nil:
		return json.Marshal(ri.Error)
	default:
		return nil, fmt.Errorf("asimov: empty return item")
	}
}

func (ri *ReturnItem) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, ok := probe["errorName"]; ok {
		var e ReturnError
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		ri.Error = &e
		return nil
	}
	var o Output
	if err := json.Unmarshal(data, &o); err != nil {
		return err
	}
	ri.Output = &o
	return nil
}

// Return is the service's response batch: some Output/Error items and a
// close flag terminating the invocation.
type Return struct {
	Items []ReturnItem `json:"items"`
	Close bool         `json:"close"`
	Seq   *int         `json:"seq,omitempty"`
}

func (Return) Tag() MessageTag { return TagReturn }
func (Return) isMessage()      {}

// Cancel requests the service abandon the invocation.
type Cancel struct{}

func (Cancel) Tag() MessageTag { return TagCancel }
func (Cancel) isMessage()      {}

// RequestUserConfirmation is a service→agent upcall.
type RequestUserConfirmation struct {
	ReqID  string `json:"reqId"`
	Reason string `json:"reason,omitempty"`
}

func (RequestUserConfirmation) Tag() MessageTag { return TagRequestUserConfirmation }
func (RequestUserConfirmation) isMessage()      {}

// ProvideUserConfirmation is the agent's reply.
type ProvideUserConfirmation struct {
	ReqID       string `json:"reqId"`
	ConfirmedBy string `json:"confirmedBy"`
}

func (ProvideUserConfirmation) Tag() MessageTag { return TagProvideUserConfirmation }
func (ProvideUserConfirmation) isMessage()      {}

// RequestPayment is a service→agent upcall.
type RequestPayment struct {
	ReqID                 string   `json:"reqId"`
	AcceptedPaymentSchemas []string `json:"acceptedPaymentSchemas"`
	Amount                float64  `json:"amount"`
	Currency              string   `json:"currency"`
	Description           string   `json:"description,omitempty"`
}

func (RequestPayment) Tag() MessageTag { return TagRequestPayment }
func (RequestPayment) isMessage()      {}

// AuthorizePayment is the agent's affirmative reply.
type AuthorizePayment struct {
	ReqID         string  `json:"reqId"`
	PaymentID     string  `json:"paymentId"`
	PaymentSchema string  `json:"paymentSchema"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Token         string  `json:"token"`
	PaymentData   any     `json:"paymentData,omitempty"`
}

func (AuthorizePayment) Tag() MessageTag { return TagAuthorizePayment }
func (AuthorizePayment) isMessage()      {}

// RejectPayment is the agent's negative reply.
type RejectPayment struct {
	ReqID  string `json:"reqId"`
	Reason string `json:"reason,omitempty"`
}

func (RejectPayment) Tag() MessageTag { return TagRejectPayment }
func (RejectPayment) isMessage()      {}

// PaymentAuthorization is the record handed back to a handler after a
// successful requestPayment upcall (spec §4.F).
type PaymentAuthorization struct {
	PaymentID     string
	PaymentSchema string
	MaxAmount     float64
	Currency      string
	Token         string
}

// MessageEnvelope is the wire representation of a Message: a "type"
// discriminator alongside the flattened payload fields, following the
// dispatch-by-discriminator idiom of a2a.StreamResponse's custom JSON.
type MessageEnvelope struct {
	Message Message
}

func (e MessageEnvelope) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(e.Message)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	tag, err := json.Marshal(e.Message.Tag())
	if err != nil {
		return nil, err
	}
	fields["type"] = tag
	return json.Marshal(fields)
}

func (e *MessageEnvelope) UnmarshalJSON(data []byte) error {
	var head struct {
		Type MessageTag `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	var target Message
	switch head.Type {
	case TagInvoke:
		target = &Invoke{}
	case TagRequestInput:
		target = &RequestInput{}
	case TagProvideInput:
		target = &ProvideInput{}
	case TagReturn:
		target = &Return{}
	case TagCancel:
		target = &Cancel{}
	case TagRequestUserConfirmation:
		target = &RequestUserConfirmation{}
	case TagProvideUserConfirmation:
		target = &ProvideUserConfirmation{}
	case TagRequestPayment:
		target = &RequestPayment{}
	case TagAuthorizePayment:
		target = &AuthorizePayment{}
	case TagRejectPayment:
		target = &RejectPayment{}
	default:
		return NewError(ErrInvalidMessage, fmt.Sprintf("invalid message type %q", head.Type))
	}

	if err := json.Unmarshal(data, target); err != nil {
		return NewError(ErrInvalidMessage, err.Error())
	}

	switch t := target.(type) {
	case *Invoke:
		e.Message = *t
	case *RequestInput:
		e.Message = *t
	case *ProvideInput:
		e.Message = *t
	case *Return:
		e.Message = *t
	case *Cancel:
		e.Message = *t
	case *RequestUserConfirmation:
		e.Message = *t
	case *ProvideUserConfirmation:
		e.Message = *t
	case *RequestPayment:
		e.Message = *t
	case *AuthorizePayment:
		e.Message = *t
	case *RejectPayment:
		e.Message = *t
	}
	return nil
}
