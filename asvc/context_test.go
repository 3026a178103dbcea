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

package asvc_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/asimov-proto/asimov-go/asimov"
	"github.com/asimov-proto/asimov-go/asvc"
)

// recorder captures every outbound message a Context sends, in order,
// and lets tests block until the Nth message has arrived.
type recorder struct {
	mu   sync.Mutex
	sent []asimov.Message
	ch   chan asimov.Message
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan asimov.Message, 32)}
}

func (r *recorder) send(_ context.Context, msg asimov.Message) error {
	r.mu.Lock()
	r.sent = append(r.sent, msg)
	r.mu.Unlock()
	r.ch <- msg
	return nil
}

func (r *recorder) next(t *testing.T) asimov.Message {
	t.Helper()
	select {
	case m := <-r.ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound message")
		return nil
	}
}

func greetCommand(t *testing.T) *asimov.CommandDefinition {
	t.Helper()
	c := asimov.NewCommandDefinition("greet")
	if err := c.AddInputType(asimov.TypeDescriptor{Name: "name", Required: true}); err != nil {
		t.Fatalf("AddInputType: %v", err)
	}
	if err := c.AddOutputType(asimov.TypeDescriptor{Name: "Greetings"}); err != nil {
		t.Fatalf("AddOutputType: %v", err)
	}
	return c
}

func testChannel() asimov.Channel {
	return asimov.Channel{
		ClientChannelID:  "client-1",
		ServiceChannelID: "service-1",
		ProtocolVersion:  asimov.ProtocolVersion,
	}
}

func TestScenario1_AgentFirstGreeting(t *testing.T) {
	rec := newRecorder()
	cmd := greetCommand(t)
	sc := asvc.New(rec.send, cmd, testChannel(), nil)

	handlerDone := make(chan error, 1)
	go func() {
		values, err := sc.GetInputs(context.Background(), "name", 1, 0)
		if err != nil {
			handlerDone <- err
			return
		}
		sc.SetState(map[string]any{"name": values[0]})
		if err := sc.ReturnData("Greetings", fmt.Sprintf("Hello, %s!", values[0]), ""); err != nil {
			handlerDone <- err
			return
		}
		handlerDone <- sc.Finish(context.Background())
	}()

	if err := sc.HandleIncoming(context.Background(), asimov.Invoke{
		Inputs: []asimov.InputValue{{InputType: "name", Value: "John"}},
	}); err != nil {
		t.Fatalf("HandleIncoming(Invoke): %v", err)
	}

	if err := <-handlerDone; err != nil {
		t.Fatalf("handler: %v", err)
	}

	got := rec.next(t)
	want := asimov.Return{
		Items: []asimov.ReturnItem{asimov.NewOutputItem(asimov.Output{OutputType: "Greetings", Data: "Hello, John!"})},
		Close: true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Return mismatch (-want +got):\n%s", diff)
	}

	if sc.Status() != asvc.StatusFinished {
		t.Errorf("Status = %v, want Finished", sc.Status())
	}
	snap := sc.Serialize()
	if diff := cmp.Diff(map[string]any{"name": "John"}, snap.State); diff != "" {
		t.Errorf("Serialized state mismatch (-want +got):\n%s", diff)
	}
}

func TestScenario2_ServiceFirstInputDemand(t *testing.T) {
	rec := newRecorder()
	cmd := greetCommand(t)
	sc := asvc.New(rec.send, cmd, testChannel(), nil)

	handlerDone := make(chan error, 1)
	go func() {
		values, err := sc.GetInputs(context.Background(), "name", 1, 0)
		if err != nil {
			handlerDone <- err
			return
		}
		if err := sc.ReturnData("Greetings", fmt.Sprintf("Hello, %s!", values[0]), ""); err != nil {
			handlerDone <- err
			return
		}
		handlerDone <- sc.Finish(context.Background())
	}()

	if err := sc.HandleIncoming(context.Background(), asimov.Invoke{}); err != nil {
		t.Fatalf("HandleIncoming(Invoke): %v", err)
	}

	reqInput, ok := rec.next(t).(asimov.RequestInput)
	if !ok {
		t.Fatalf("first outbound message is not RequestInput")
	}
	desc, ok := reqInput.Inputs["name"]
	if !ok || desc.MinCount != 1 {
		t.Fatalf("RequestInput.Inputs[name] = %+v, ok=%v, want MinCount 1", desc, ok)
	}

	if err := sc.HandleIncoming(context.Background(), asimov.ProvideInput{
		Inputs: []asimov.InputValue{{InputType: "name", Value: "John"}},
	}); err != nil {
		t.Fatalf("HandleIncoming(ProvideInput): %v", err)
	}

	if err := <-handlerDone; err != nil {
		t.Fatalf("handler: %v", err)
	}

	got := rec.next(t)
	want := asimov.Return{
		Items: []asimov.ReturnItem{asimov.NewOutputItem(asimov.Output{OutputType: "Greetings", Data: "Hello, John!"})},
		Close: true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Return mismatch (-want +got):\n%s", diff)
	}
}

func TestScenario3_ClientCancellation(t *testing.T) {
	rec := newRecorder()
	cmd := greetCommand(t)
	sc := asvc.New(rec.send, cmd, testChannel(), nil)

	handlerErr := make(chan error, 1)
	go func() {
		_, err := sc.RequestUserConfirmation(context.Background(), "test", 0)
		handlerErr <- err
	}()

	if err := sc.HandleIncoming(context.Background(), asimov.Invoke{}); err != nil {
		t.Fatalf("HandleIncoming(Invoke): %v", err)
	}
	rec.next(t) // RequestUserConfirmation

	if err := sc.HandleIncoming(context.Background(), asimov.Cancel{}); err != nil {
		t.Fatalf("HandleIncoming(Cancel): %v", err)
	}

	err := <-handlerErr
	if !errors.Is(err, asimov.ErrCancelled) {
		t.Fatalf("handler err = %v, want ErrCancelled", err)
	}
	if sc.Status() != asvc.StatusCancelled {
		t.Errorf("Status = %v, want Cancelled", sc.Status())
	}
}

func TestScenario4_UserConfirmationFlow(t *testing.T) {
	rec := newRecorder()
	cmd := greetCommand(t)
	sc := asvc.New(rec.send, cmd, testChannel(), nil)

	handlerDone := make(chan error, 1)
	go func() {
		confirmedBy, err := sc.RequestUserConfirmation(context.Background(), "Test", 0)
		if err != nil {
			handlerDone <- err
			return
		}
		if confirmedBy != "test" {
			handlerDone <- fmt.Errorf("confirmedBy = %q, want test", confirmedBy)
			return
		}
		if err := sc.ReturnData("Greetings", "Hello, world!", ""); err != nil {
			handlerDone <- err
			return
		}
		handlerDone <- sc.Finish(context.Background())
	}()

	if err := sc.HandleIncoming(context.Background(), asimov.Invoke{}); err != nil {
		t.Fatalf("HandleIncoming(Invoke): %v", err)
	}

	reqConf, ok := rec.next(t).(asimov.RequestUserConfirmation)
	if !ok {
		t.Fatalf("first outbound message is not RequestUserConfirmation")
	}
	if reqConf.Reason != "Test" {
		t.Errorf("Reason = %q, want Test", reqConf.Reason)
	}

	if err := sc.HandleIncoming(context.Background(), asimov.ProvideUserConfirmation{
		ReqID: reqConf.ReqID, ConfirmedBy: "test",
	}); err != nil {
		t.Fatalf("HandleIncoming(ProvideUserConfirmation): %v", err)
	}

	if err := <-handlerDone; err != nil {
		t.Fatalf("handler: %v", err)
	}

	got := rec.next(t)
	want := asimov.Return{
		Items: []asimov.ReturnItem{asimov.NewOutputItem(asimov.Output{OutputType: "Greetings", Data: "Hello, world!"})},
		Close: true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Return mismatch (-want +got):\n%s", diff)
	}
}

func TestScenario5_PaymentAuthorization(t *testing.T) {
	rec := newRecorder()
	cmd := asimov.NewCommandDefinition("pay")
	if err := cmd.AddOutputType(asimov.TypeDescriptor{Name: "text"}); err != nil {
		t.Fatalf("AddOutputType: %v", err)
	}
	sc := asvc.New(rec.send, cmd, testChannel(), nil,
		asvc.WithDefaultAcceptedPaymentSchemas("test+jwt", "test+ledger"))

	handlerDone := make(chan error, 1)
	go func() {
		auth, err := sc.RequestPayment(context.Background(), asvc.PaymentRequest{
			Amount: 1000, Currency: "TST", Description: "Test payment",
		}, 0)
		if err != nil {
			handlerDone <- err
			return
		}
		if auth.PaymentID != "abc123" || auth.PaymentSchema != "test+jwt" || auth.MaxAmount != 1000 || auth.Token != "token" {
			handlerDone <- fmt.Errorf("unexpected authorization: %+v", auth)
			return
		}
		if err := sc.ReturnData("text", "Ok", ""); err != nil {
			handlerDone <- err
			return
		}
		handlerDone <- sc.Finish(context.Background())
	}()

	if err := sc.HandleIncoming(context.Background(), asimov.Invoke{}); err != nil {
		t.Fatalf("HandleIncoming(Invoke): %v", err)
	}

	reqPay, ok := rec.next(t).(asimov.RequestPayment)
	if !ok {
		t.Fatalf("first outbound message is not RequestPayment")
	}
	if diff := cmp.Diff([]string{"test+jwt", "test+ledger"}, reqPay.AcceptedPaymentSchemas); diff != "" {
		t.Errorf("AcceptedPaymentSchemas mismatch (-want +got):\n%s", diff)
	}
	if reqPay.Amount != 1000 || reqPay.Currency != "TST" {
		t.Errorf("RequestPayment = %+v, want amount 1000 TST", reqPay)
	}

	if err := sc.HandleIncoming(context.Background(), asimov.AuthorizePayment{
		ReqID: reqPay.ReqID, PaymentSchema: "test+jwt", PaymentID: "abc123",
		Amount: 1000, Currency: "TST", Token: "token",
	}); err != nil {
		t.Fatalf("HandleIncoming(AuthorizePayment): %v", err)
	}

	if err := <-handlerDone; err != nil {
		t.Fatalf("handler: %v", err)
	}
	rec.next(t) // Return
}

func TestReturnBuffer_TransportFailureRestoresOrder(t *testing.T) {
	cmd := asimov.NewCommandDefinition("greet")
	if err := cmd.AddOutputType(asimov.TypeDescriptor{Name: "Greetings"}); err != nil {
		t.Fatalf("AddOutputType: %v", err)
	}
	boom := errors.New("boom")
	var sent []asimov.Message
	send := func(_ context.Context, msg asimov.Message) error {
		sent = append(sent, msg)
		return boom
	}
	sc := asvc.New(send, cmd, testChannel(), nil)
	if err := sc.HandleIncoming(context.Background(), asimov.Invoke{}); err != nil {
		t.Fatalf("HandleIncoming(Invoke): %v", err)
	}
	if err := sc.ReturnData("Greetings", "one", ""); err != nil {
		t.Fatalf("ReturnData: %v", err)
	}
	if err := sc.Finish(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Finish err = %v, want boom", err)
	}
	if err := sc.ReturnData("Greetings", "two", ""); err != nil {
		t.Fatalf("ReturnData: %v", err)
	}
	// The failed flush's item ("one") must still precede the new one.
	err := sc.Finish(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Finish err = %v, want boom", err)
	}
	ret, ok := sent[len(sent)-1].(asimov.Return)
	if !ok || len(ret.Items) != 2 {
		t.Fatalf("last sent = %+v, want a Return with 2 items", sent[len(sent)-1])
	}
	if ret.Items[0].Output == nil || ret.Items[1].Output == nil ||
		ret.Items[0].Output.Data != "one" || ret.Items[1].Output.Data != "two" {
		t.Fatalf("return items = %+v, want one then two", ret.Items)
	}
}

func TestSendAfterCancel_FailsWithNotActive(t *testing.T) {
	rec := newRecorder()
	cmd := greetCommand(t)
	sc := asvc.New(rec.send, cmd, testChannel(), nil)
	if err := sc.HandleIncoming(context.Background(), asimov.Invoke{}); err != nil {
		t.Fatalf("HandleIncoming(Invoke): %v", err)
	}
	if err := sc.HandleIncoming(context.Background(), asimov.Cancel{}); err != nil {
		t.Fatalf("HandleIncoming(Cancel): %v", err)
	}
	err := sc.Finish(context.Background())
	if !errors.Is(err, asimov.ErrNotActive) {
		t.Fatalf("Finish after cancel = %v, want ErrNotActive", err)
	}
}

func TestInvalidInvoke_InputFailsSchema(t *testing.T) {
	rec := newRecorder()
	cmd := asimov.NewCommandDefinition("greet")
	if err := cmd.AddInputType(asimov.TypeDescriptor{
		Name: "name", Required: true, Schema: map[string]any{"type": "string"},
	}); err != nil {
		t.Fatalf("AddInputType: %v", err)
	}
	sc := asvc.New(rec.send, cmd, testChannel(), nil)

	err := sc.HandleIncoming(context.Background(), asimov.Invoke{
		Inputs: []asimov.InputValue{{InputType: "name", Value: 42}},
	})
	if !errors.Is(err, asimov.ErrInvalidMessage) {
		t.Fatalf("HandleIncoming(bad Invoke) = %v, want ErrInvalidMessage", err)
	}
	if sc.Status() != asvc.StatusInitialized {
		t.Errorf("Status after rejected Invoke = %v, want Initialized (unchanged)", sc.Status())
	}
}

func TestInvalidInvoke_ConfigProfileErrors(t *testing.T) {
	rec := newRecorder()
	cmd := asimov.NewCommandDefinition("greet", asimov.WithRequiredConfigProfiles("region", "billing"))
	billing, err := asimov.NewConfigProfileDefinition("billing", asimov.ScopeUser, "", "", map[string]any{"type": "string"})
	if err != nil {
		t.Fatalf("NewConfigProfileDefinition: %v", err)
	}
	sc := asvc.New(rec.send, cmd, testChannel(), map[string]*asimov.ConfigProfileDefinition{"billing": billing})

	err = sc.HandleIncoming(context.Background(), asimov.Invoke{
		ConfigProfiles: map[string]any{"region": "us-east", "billing": 42},
	})
	if !errors.Is(err, asimov.ErrInvalidMessage) {
		t.Fatalf("HandleIncoming(Invoke) = %v, want ErrInvalidMessage", err)
	}

	var asimovErr *asimov.Error
	if !errors.As(err, &asimovErr) {
		t.Fatalf("error is not an *asimov.Error: %v", err)
	}
	childErrors, ok := asimovErr.Details["childErrors"].([]string)
	if !ok {
		t.Fatalf("Details[childErrors] = %#v, want []string", asimovErr.Details["childErrors"])
	}
	joined := strings.Join(childErrors, "\n")
	if !strings.Contains(joined, asimov.ErrUnknownConfigProfile.Error()) {
		t.Errorf("expected an unknown-config-profile entry for %q (no definition registered), got %v", "region", childErrors)
	}
	if !strings.Contains(joined, asimov.ErrInvalidConfigProfile.Error()) {
		t.Errorf("expected an invalid-config-profile entry for %q (fails its schema), got %v", "billing", childErrors)
	}
}

func TestInvalidInvoke_MissingConfigProfile(t *testing.T) {
	rec := newRecorder()
	cmd := asimov.NewCommandDefinition("greet", asimov.WithRequiredConfigProfiles("region"))
	sc := asvc.New(rec.send, cmd, testChannel(), nil)

	err := sc.HandleIncoming(context.Background(), asimov.Invoke{})
	var asimovErr *asimov.Error
	if !errors.As(err, &asimovErr) {
		t.Fatalf("error is not an *asimov.Error: %v", err)
	}
	childErrors, ok := asimovErr.Details["childErrors"].([]string)
	if !ok || len(childErrors) != 1 || !strings.Contains(childErrors[0], asimov.ErrMissingConfigProfile.Error()) {
		t.Fatalf("childErrors = %#v, want a single missing-config-profile entry for %q", childErrors, "region")
	}
}
