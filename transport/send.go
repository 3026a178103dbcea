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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/asimov-proto/asimov-go/asimov"
)

// DefaultMaxAttempts is the number of send attempts (including the
// first) before a message post surfaces as SendMessageFailed, per the
// "3 tries" default named alongside spec §4.E's backoff defaults.
const DefaultMaxAttempts = 3

// Sender posts messages to a peer's half-channel over HTTP, retrying
// on the transport failures spec §4.I marks retryable: no response at
// all, or a 5xx status. 4xx responses are terminal and decoded back
// into a typed error immediately.
type Sender struct {
	Client       *http.Client
	Backoff      BackoffPolicy
	MaxAttempts  int
}

// NewSender returns a Sender configured with the spec's default
// backoff and attempt budget.
func NewSender() *Sender {
	return &Sender{
		Client:      http.DefaultClient,
		Backoff:     DefaultBackoff,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Post sends msg, wrapped in a MessageEnvelope, to channelURL as the
// peer half-channel identified by peerID and authorized with token.
func (s *Sender) Post(ctx context.Context, channelURL, peerIDHeader, peerID, token string, msg asimov.Message) error {
	body, err := json.Marshal(asimov.MessageEnvelope{Message: msg})
	if err != nil {
		return asimov.NewError(asimov.ErrSendMessageFailed, "marshal message: "+err.Error())
	}

	backoff := s.Backoff
	if backoff == nil {
		backoff = DefaultBackoff
	}
	maxAttempts := s.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff.NextDelay(attempt - 1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, channelURL, bytes.NewReader(body))
		if err != nil {
			return asimov.NewError(asimov.ErrSendMessageFailed, "build request: "+err.Error())
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderProtocolVersion, asimov.ProtocolVersion)
		req.Header.Set(peerIDHeader, peerID)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := s.Client.Do(req)
		if err != nil {
			lastErr = asimov.NewError(asimov.ErrMessageTransport, err.Error())
			continue // no response at all: retryable
		}

		func() {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusNoContent || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
				lastErr = nil
				return
			}
			if resp.StatusCode >= 500 {
				lastErr = fmt.Errorf("peer responded %d", resp.StatusCode)
				return
			}
			// 4xx: terminal, decode the wire error body.
			lastErr = decodeTerminalError(resp)
		}()

		if lastErr == nil {
			return nil
		}
		if isTerminal(lastErr) {
			return lastErr
		}
	}

	return asimov.NewError(asimov.ErrSendMessageFailed, lastErr.Error()).
		WithDetails(map[string]any{"attempts": maxAttempts, "lastError": asimov.ErrorName(lastErr)})
}

type terminalError struct{ err error }

func (t *terminalError) Error() string { return t.err.Error() }
func (t *terminalError) Unwrap() error { return t.err }

func isTerminal(err error) bool {
	_, ok := err.(*terminalError)
	return ok
}

func decodeTerminalError(resp *http.Response) error {
	return &terminalError{err: DecodeError(resp)}
}
