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

package transport_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/asimov-proto/asimov-go/asimov"
	"github.com/asimov-proto/asimov-go/transport"
)

func TestToWireError_KnownSentinel(t *testing.T) {
	err := asimov.NewError(asimov.ErrCommandNotFound, "no such command: greet")
	we := transport.ToWireError(err, "svc-1", "client-1")

	if we.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d, want %d", we.HTTPStatus, http.StatusNotFound)
	}
	if we.ErrorName != "CommandNotFound" {
		t.Errorf("ErrorName = %q, want CommandNotFound", we.ErrorName)
	}
	if we.ServiceChannelID != "svc-1" || we.ClientChannelID != "client-1" {
		t.Errorf("channel ids = %q, %q, unexpected", we.ServiceChannelID, we.ClientChannelID)
	}
}

func TestToWireError_UnknownErrorDefaultsToUnexpectedWithNested(t *testing.T) {
	err := errors.New("database is on fire")
	we := transport.ToWireError(err, "", "")

	if we.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want 500", we.HTTPStatus)
	}
	if we.ErrorName != "UnexpectedError" {
		t.Errorf("ErrorName = %q, want UnexpectedError", we.ErrorName)
	}
	if we.NestedError == nil || we.NestedError.Message != "database is on fire" {
		t.Errorf("NestedError = %+v, want the original message nested", we.NestedError)
	}
}

func TestDecodeError_RoundTripsKnownSentinel(t *testing.T) {
	rw := httptest.NewRecorder()
	transport.WriteError(rw, asimov.NewError(asimov.ErrSessionNotFound, "channel gone"), "svc-1", "")

	resp := rw.Result()
	err := transport.DecodeError(resp)

	if !errors.Is(err, asimov.ErrSessionNotFound) {
		t.Errorf("DecodeError = %v, want errors.Is(_, ErrSessionNotFound)", err)
	}
	var asimovErr *asimov.Error
	if !errors.As(err, &asimovErr) || asimovErr.Error() == "" {
		t.Errorf("DecodeError did not produce a populated *asimov.Error: %v", err)
	}
}
