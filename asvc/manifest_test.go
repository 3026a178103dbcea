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
	"testing"

	"github.com/asimov-proto/asimov-go/asimov"
	"github.com/asimov-proto/asimov-go/asvc"
)

func TestBuildManifest_DefaultsPathToCommandName(t *testing.T) {
	cmd := greetCommand(t)
	profile, err := asimov.NewConfigProfileDefinition("acct", asimov.ScopeUser, "", "", nil)
	if err != nil {
		t.Fatalf("NewConfigProfileDefinition: %v", err)
	}

	m := asvc.BuildManifest(
		asvc.ServiceIdentity{Name: "Greeter", Version: "1.0.0"},
		[]*asimov.ConfigProfileDefinition{profile},
		[]asvc.CommandRegistration{{Command: cmd}},
	)

	if m.Name != "Greeter" || m.Version != "1.0.0" {
		t.Errorf("manifest identity = %+v, unexpected", m)
	}
	if len(m.ConfigProfiles) != 1 || m.ConfigProfiles[0].Name != "acct" {
		t.Errorf("manifest config profiles = %+v, want [acct]", m.ConfigProfiles)
	}
	if len(m.Commands) != 1 || m.Commands[0].EndpointURI != "/invoke/greet" {
		t.Errorf("manifest commands = %+v, want endpointUri /invoke/greet", m.Commands)
	}
}

func TestBuildManifest_HonorsExplicitPathName(t *testing.T) {
	cmd := greetCommand(t)
	m := asvc.BuildManifest(
		asvc.ServiceIdentity{Name: "Greeter", Version: "1.0.0"},
		nil,
		[]asvc.CommandRegistration{{Command: cmd, PathName: "say-hello"}},
	)
	if len(m.Commands) != 1 || m.Commands[0].EndpointURI != "/invoke/say-hello" {
		t.Errorf("manifest commands = %+v, want endpointUri /invoke/say-hello", m.Commands)
	}
}
