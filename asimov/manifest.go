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

// ServiceManifest is the static advertisement a service publishes at
// GET {baseUrl}/manifest.json (spec §2 component D, §6). Assembly of a
// ServiceManifest from a Service Definition (state-handler registration
// helpers) is an external collaborator and out of scope; this type is
// the data shape the service-side router and manifest endpoint consume.
type ServiceManifest struct {
	Name        string                     `json:"name"`
	Version     string                     `json:"version"`
	Description map[string]string          `json:"description,omitempty"`
	Terms       string                     `json:"terms,omitempty"`

	ConfigProfiles []ConfigProfileDescriptor `json:"configProfiles,omitempty"`
	AcceptedPaymentSchemas []string          `json:"acceptedPaymentSchemas,omitempty"`
	Commands       []CommandDescriptor       `json:"commands"`
}
