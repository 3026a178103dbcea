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

package asvc

import (
	"fmt"

	"github.com/asimov-proto/asimov-go/asimov"
)

// CommandRegistration pairs a CommandDefinition with the invoke path it
// is served under, relative to the service's base URL.
type CommandRegistration struct {
	Command  *asimov.CommandDefinition
	PathName string // defaults to Command.Name when empty
}

// ServiceIdentity is the static, non-command part of a manifest.
type ServiceIdentity struct {
	Name                   string
	Version                string
	Description            map[string]string
	Terms                  string
	AcceptedPaymentSchemas []string
}

// BuildManifest assembles a ServiceManifest (spec §6, external
// collaborator per §4.D) from a service's identity, its registered
// config profiles, and its registered commands. This is data assembly
// only: authoring a manifest from a higher-level service definition
// remains out of scope.
func BuildManifest(identity ServiceIdentity, profiles []*asimov.ConfigProfileDefinition, commands []CommandRegistration) asimov.ServiceManifest {
	profileDescs := make([]asimov.ConfigProfileDescriptor, 0, len(profiles))
	for _, p := range profiles {
		profileDescs = append(profileDescs, p.Descriptor())
	}

	cmdDescs := make([]asimov.CommandDescriptor, 0, len(commands))
	for _, reg := range commands {
		path := reg.PathName
		if path == "" {
			path = reg.Command.Name
		}
		cmdDescs = append(cmdDescs, reg.Command.GetDescriptor(fmt.Sprintf("/invoke/%s", path)))
	}

	return asimov.ServiceManifest{
		Name:                   identity.Name,
		Version:                identity.Version,
		Description:            identity.Description,
		Terms:                  identity.Terms,
		ConfigProfiles:         profileDescs,
		AcceptedPaymentSchemas: identity.AcceptedPaymentSchemas,
		Commands:               cmdDescs,
	}
}
