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
	"crypto/rand"
	"encoding/hex"
)

// ProtocolVersion is the semantic version this implementation speaks.
const ProtocolVersion = "1.0.0"

// Channel is the pair of half-channels a single invocation's messages
// flow through (spec §3).
type Channel struct {
	ClientChannelID    string `json:"clientChannelId"`
	ClientChannelURL   string `json:"clientChannelUrl"`
	ClientChannelToken string `json:"clientChannelToken"`

	ServiceChannelID    string `json:"serviceChannelId"`
	ServiceChannelURL   string `json:"serviceChannelUrl"`
	ServiceChannelToken string `json:"serviceChannelToken"`

	ProtocolVersion string `json:"protocolVersion"`
	CommandName     string `json:"commandName,omitempty"`
}

// randomOpaqueString returns a random hex-encoded opaque identifier,
// used for both channel IDs and bearer tokens (spec §3: "IDs are random
// opaque strings; tokens are random bearer secrets").
func randomOpaqueString(nbytes int) string {
	buf := make([]byte, nbytes)
	if _, err := rand.Read(buf); err != nil {
		panic("asimov: failed to read random bytes: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// NewChannelID returns a fresh random channel identifier.
func NewChannelID() string {
	return randomOpaqueString(16)
}

// NewChannelToken returns a fresh random bearer token.
func NewChannelToken() string {
	return randomOpaqueString(32)
}
