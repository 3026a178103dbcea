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

// Package asimov defines the wire message taxonomy, command definitions,
// and error taxonomy shared by both endpoints of the ASIMOV protocol.
package asimov

import "errors"

// Message validation errors (dispatch / return-buffer checks).
var (
	ErrInvalidMessage       = errors.New("invalid message")
	ErrMissingConfigProfile = errors.New("missing config profile")
	ErrUnknownConfigProfile = errors.New("unknown config profile")
	ErrInvalidConfigProfile = errors.New("invalid config profile")
	ErrUnknownInputType     = errors.New("unknown input type")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnknownOutputType    = errors.New("unknown output type")
	ErrInvalidOutput        = errors.New("invalid output")
	ErrUnexpectedMessage    = errors.New("unexpected message")
)

// Upcall timeout and rejection errors.
var (
	ErrInputTimeout        = errors.New("input timeout")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrPaymentTimeout      = errors.New("payment timeout")
	ErrPaymentRejected     = errors.New("payment rejected")
)

// Transport errors.
var (
	ErrMessageTransport  = errors.New("message transport error")
	ErrSendMessageFailed = errors.New("send message failed")
)

// Contextual errors (API misuse).
var (
	ErrNotInvoked      = errors.New("not invoked")
	ErrNotActive       = errors.New("context not active")
	ErrAlreadyDisposed = errors.New("context already disposed")
	ErrCancelled       = errors.New("cancelled")
)

// Wire (HTTP transport binding) errors, see spec §6/§7.
var (
	ErrInvalidRequest         = errors.New("invalid request")
	ErrVersionNotSupported    = errors.New("version not supported")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
	ErrMessageBufferFull      = errors.New("message buffer full")
	ErrSessionNotFound        = errors.New("session not found")
	ErrCommandNotFound        = errors.New("command not found")
	ErrUnexpectedError        = errors.New("unexpected error")
	ErrProfileNotRequired     = errors.New("config profile not required")
	ErrDuplicateType          = errors.New("duplicate type name")
)

// errorNames maps every sentinel above to its wire errorName, following
// the teacher's errToDetails convention of keying a lookup table by the
// sentinel error value itself rather than by string.
var errorNames = map[error]string{
	ErrInvalidMessage:       "InvalidMessage",
	ErrMissingConfigProfile: "MissingConfigProfile",
	ErrUnknownConfigProfile: "UnknownConfigProfile",
	ErrInvalidConfigProfile: "InvalidConfigProfile",
	ErrUnknownInputType:     "UnknownInputType",
	ErrInvalidInput:         "InvalidInput",
	ErrUnknownOutputType:    "UnknownOutputType",
	ErrInvalidOutput:        "InvalidOutput",
	ErrUnexpectedMessage:    "UnexpectedMessage",
	ErrInputTimeout:         "InputTimeout",
	ErrConfirmationTimeout:  "ConfirmationTimeout",
	ErrPaymentTimeout:       "PaymentTimeout",
	ErrPaymentRejected:      "PaymentRejected",
	ErrMessageTransport:     "MessageTransport",
	ErrSendMessageFailed:    "SendMessageFailed",
	ErrNotInvoked:           "NotInvoked",
	ErrNotActive:            "NotActive",
	ErrAlreadyDisposed:      "AlreadyDisposed",
	ErrCancelled:            "Cancelled",
	ErrInvalidRequest:       "InvalidRequest",
	ErrVersionNotSupported:  "VersionNotSupported",
	ErrUnauthorized:         "Unauthorized",
	ErrForbidden:            "Forbidden",
	ErrMessageBufferFull:    "MessageBufferFull",
	ErrSessionNotFound:      "SessionNotFound",
	ErrCommandNotFound:      "CommandNotFound",
	ErrUnexpectedError:      "UnexpectedError",
	ErrProfileNotRequired:   "ProfileNotRequired",
	ErrDuplicateType:        "DuplicateType",
}

// ErrorName returns the wire errorName for a sentinel error, or
// "UnexpectedError" if the error does not match a known sentinel.
func ErrorName(err error) string {
	for sentinel, name := range errorNames {
		if errors.Is(err, sentinel) {
			return name
		}
	}
	return "UnexpectedError"
}

// Error wraps a sentinel error with a human-readable message and
// structured details, mirroring the teacher's a2a.Error shape.
type Error struct {
	Err     error
	Message string
	Details map[string]any
}

// NewError builds an *Error wrapping the given sentinel with a message.
func NewError(err error, message string) *Error {
	return &Error{Err: err, Message: message}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of e carrying the given details.
func (e *Error) WithDetails(details map[string]any) *Error {
	return &Error{Err: e.Err, Message: e.Message, Details: details}
}

// Name returns the wire errorName for this error.
func (e *Error) Name() string {
	return ErrorName(e.Err)
}
