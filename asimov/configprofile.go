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

// ConfigProfileScope is the ownership scope of a config profile.
type ConfigProfileScope string

const (
	ScopeUser         ConfigProfileScope = "user"
	ScopeOrganization ConfigProfileScope = "organization"
)

// ConfigProfileDefinition names a bag of configuration (credentials,
// account binding) a command may require on Invoke (spec §3).
type ConfigProfileDefinition struct {
	Name        string
	Scope       ConfigProfileScope
	SetupURI    string
	Description string
	Schema      map[string]any

	validator *Validator
}

// NewConfigProfileDefinition compiles the profile's optional schema and
// returns the definition.
func NewConfigProfileDefinition(name string, scope ConfigProfileScope, setupURI, description string, schema map[string]any) (*ConfigProfileDefinition, error) {
	validator, err := CompileSchema(schema)
	if err != nil {
		return nil, err
	}
	return &ConfigProfileDefinition{
		Name:        name,
		Scope:       scope,
		SetupURI:    setupURI,
		Description: description,
		Schema:      schema,
		validator:   validator,
	}, nil
}

// Validate checks value against the profile's compiled schema.
func (p *ConfigProfileDefinition) Validate(value any) ValidationResult {
	errs := p.validator.Validate(value)
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// ConfigProfileDescriptor is the manifest-facing view of a config
// profile.
type ConfigProfileDescriptor struct {
	Name        string             `json:"name"`
	Scope       ConfigProfileScope `json:"scope"`
	SetupURI    string             `json:"setupUri,omitempty"`
	Description string             `json:"description,omitempty"`
	Schema      map[string]any     `json:"schema,omitempty"`
}

// Descriptor renders p's manifest-facing descriptor.
func (p *ConfigProfileDefinition) Descriptor() ConfigProfileDescriptor {
	return ConfigProfileDescriptor{
		Name:        p.Name,
		Scope:       p.Scope,
		SetupURI:    p.SetupURI,
		Description: p.Description,
		Schema:      p.Schema,
	}
}
