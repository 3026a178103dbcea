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

// Observer receives lifecycle notifications from a Service or Client
// Context, re-expressing the event emitters named in spec §9 as a
// pluggable interface. A NoopObserver satisfies the interface for
// callers that do not need observability hooks.
type Observer interface {
	OnMessage(channelID string, msg Message)
	OnIncomingMessage(channelID string, msg Message)
	OnOutgoingMessage(channelID string, msg Message)
	OnCancel(channelID string)
	OnSuspend(channelID string)
	OnFinish(channelID string)
	OnClose(channelID string)
	OnDispose(channelID string)
	OnError(channelID string, err error)
}

// NoopObserver implements Observer with no-op methods.
type NoopObserver struct{}

func (NoopObserver) OnMessage(string, Message)         {}
func (NoopObserver) OnIncomingMessage(string, Message) {}
func (NoopObserver) OnOutgoingMessage(string, Message) {}
func (NoopObserver) OnCancel(string)                   {}
func (NoopObserver) OnSuspend(string)                  {}
func (NoopObserver) OnFinish(string)                   {}
func (NoopObserver) OnClose(string)                    {}
func (NoopObserver) OnDispose(string)                  {}
func (NoopObserver) OnError(string, error)             {}
