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

package asimov_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/asimov-proto/asimov-go/asimov"
)

func roundTrip(t *testing.T, msg asimov.Message) asimov.Message {
	t.Helper()
	data, err := json.Marshal(asimov.MessageEnvelope{Message: msg})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var env asimov.MessageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return env.Message
}

func TestMessageEnvelopeRoundTrip_Invoke(t *testing.T) {
	msg := asimov.Invoke{
		ConfigProfiles: map[string]any{"default": map[string]any{"apiKey": "abc"}},
		Inputs:         []asimov.InputValue{{InputType: "name", Value: "John"}},
	}
	got := roundTrip(t, msg)
	if diff := cmp.Diff(msg, got); diff != "" {
		t.Errorf("Invoke round trip mismatch (-want +got):\n%s", diff)
	}
	if got.Tag() != asimov.TagInvoke {
		t.Errorf("Tag() = %q, want %q", got.Tag(), asimov.TagInvoke)
	}
}

func TestMessageEnvelopeRoundTrip_Return(t *testing.T) {
	seq := 1
	msg := asimov.Return{
		Items: []asimov.ReturnItem{
			asimov.NewOutputItem(asimov.Output{OutputType: "Greetings", Data: "Hello, John!"}),
			asimov.NewErrorItem(asimov.ReturnError{ErrorName: "boom", Description: "went wrong"}),
		},
		Close: true,
		Seq:   &seq,
	}
	got := roundTrip(t, msg)
	if diff := cmp.Diff(msg, got); diff != "" {
		t.Errorf("Return round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageEnvelopeUnmarshal_UnknownTag(t *testing.T) {
	data := []byte(`{"type":"bogus"}`)
	var env asimov.MessageEnvelope
	err := json.Unmarshal(data, &env)
	if err == nil {
		t.Fatal("expected error for unknown message type")
	}
	var asimovErr *asimov.Error
	if !asError(err, &asimovErr) {
		t.Fatalf("error is not *asimov.Error: %v", err)
	}
	if asimovErr.Name() != "InvalidMessage" {
		t.Errorf("Name() = %q, want InvalidMessage", asimovErr.Name())
	}
}

func asError(err error, target **asimov.Error) bool {
	e, ok := err.(*asimov.Error)
	if ok {
		*target = e
	}
	return ok
}

func TestReturnItemMarshalDistinguishesOutputVsError(t *testing.T) {
	out := asimov.NewOutputItem(asimov.Output{OutputType: "text", Data: "ok"})
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if diff := cmp.Diff(`{"outputType":"text","data":"ok"}`, string(data)); diff != "" {
		t.Errorf("marshal mismatch (-want +got):\n%s", diff)
	}
}
