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

// Package transport implements the HTTP binding of the two
// half-channel wire protocol: the manifest, invoke, and channel
// endpoints, plus the wire error body both sides decode back into a
// typed error (spec §4.I, §6, §7), grounded on the teacher's
// a2asrv/rest.go handler shape and internal/rest/rest.go error-body
// convention.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/asimov-proto/asimov-go/asimov"
)

// Header names carried on every request beyond the manifest endpoint
// (spec §6).
const (
	HeaderProtocolVersion   = "x-asmv-protocol-version"
	HeaderClientChannelID   = "x-asmv-client-channel-id"
	HeaderClientChannelURL  = "x-asmv-client-channel-url"
	HeaderClientChannelToken = "x-asmv-client-channel-token"
	HeaderServiceChannelID  = "x-asmv-service-channel-id"
	HeaderServiceChannelURL = "x-asmv-service-channel-url"
	HeaderServiceChannelToken = "x-asmv-service-channel-token"
)

// NestedError is the {name, message, stack?} shape spec §6 nests
// unexpected errors under.
type NestedError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// WireError is the JSON error body shape from spec §6.
type WireError struct {
	HTTPStatus       int          `json:"httpStatus"`
	ErrorName        string       `json:"errorName"`
	Message          string       `json:"message"`
	Details          any          `json:"details,omitempty"`
	ServiceChannelID string       `json:"serviceChannelId,omitempty"`
	ClientChannelID  string       `json:"clientChannelId,omitempty"`
	Date             time.Time    `json:"date"`
	NestedError      *NestedError `json:"nestedError,omitempty"`
}

func (e *WireError) Error() string {
	return e.ErrorName + ": " + e.Message
}

// wireErrorStatus maps the defined error names from spec §6 to HTTP
// statuses, grounded on the teacher's internal/rest.errToDetails table
// shape (a lookup keyed by the sentinel, not by string matching).
var wireErrorStatus = map[error]int{
	asimov.ErrInvalidRequest:      http.StatusBadRequest,
	asimov.ErrVersionNotSupported: http.StatusBadRequest,
	asimov.ErrUnauthorized:        http.StatusUnauthorized,
	asimov.ErrForbidden:           http.StatusForbidden,
	asimov.ErrMessageBufferFull:   http.StatusServiceUnavailable,
	asimov.ErrSessionNotFound:     http.StatusNotFound,
	asimov.ErrCommandNotFound:     http.StatusNotFound,
	asimov.ErrUnexpectedError:     http.StatusInternalServerError,
}

// ToWireError converts err into the wire body, defaulting unrecognized
// errors to UnexpectedError with the original error nested (spec §7:
// "unknown errors at the HTTP layer are coerced to UnexpectedError
// with the original error in nestedError").
func ToWireError(err error, serviceChannelID, clientChannelID string) *WireError {
	we := &WireError{
		HTTPStatus:       http.StatusInternalServerError,
		ErrorName:        "UnexpectedError",
		Message:          err.Error(),
		ServiceChannelID: serviceChannelID,
		ClientChannelID:  clientChannelID,
		Date:             time.Now().UTC(),
	}

	var asimovErr *asimov.Error
	if errors.As(err, &asimovErr) {
		we.ErrorName = asimovErr.Name()
		we.Details = asimovErr.Details
	}

	matched := false
	for sentinel, status := range wireErrorStatus {
		if errors.Is(err, sentinel) {
			we.HTTPStatus = status
			we.ErrorName = asimov.ErrorName(sentinel)
			matched = true
			break
		}
	}
	if !matched {
		we.NestedError = &NestedError{Name: we.ErrorName, Message: err.Error()}
		we.ErrorName = "UnexpectedError"
	}

	return we
}

// WriteError encodes err as the JSON wire error body onto rw.
func WriteError(rw http.ResponseWriter, err error, serviceChannelID, clientChannelID string) {
	we := ToWireError(err, serviceChannelID, clientChannelID)
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(we.HTTPStatus)
	_ = json.NewEncoder(rw).Encode(we)
}

// DecodeError reconstructs a typed error from a WireError response
// body, per spec §4.I: "a response body with errorName is decoded
// back into the corresponding typed error on the caller side."
func DecodeError(resp *http.Response) error {
	var we WireError
	if err := json.NewDecoder(resp.Body).Decode(&we); err != nil {
		return asimov.NewError(asimov.ErrUnexpectedError, "malformed error response: "+err.Error())
	}
	details, _ := we.Details.(map[string]any)
	for sentinel := range wireErrorStatus {
		if asimov.ErrorName(sentinel) == we.ErrorName {
			return asimov.NewError(sentinel, we.Message).WithDetails(details)
		}
	}
	return asimov.NewError(asimov.ErrUnexpectedError, we.Message).WithDetails(details)
}
