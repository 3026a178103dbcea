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

import "fmt"

// TypeDescriptor describes one declared input or output type of a
// command: its human description and optional constraints, plus the
// compiled validator built from an optional JSON Schema.
type TypeDescriptor struct {
	Name        string
	Description string
	Schema      map[string]any
	Required    bool
	MinCount    int

	validator *Validator
}

// ValidationResult reports whether a value satisfies a TypeDescriptor.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Validate checks value against d's compiled schema.
func (d *TypeDescriptor) Validate(value any) ValidationResult {
	errs := d.validator.Validate(value)
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// AsInputDescriptor renders d as the wire InputDescriptor shape used in
// a RequestInput message, overriding MinCount with the given remaining
// count (spec §4.F: "RequestInput ... with minCount = remaining").
func (d *TypeDescriptor) AsInputDescriptor(minCount int) InputDescriptor {
	return InputDescriptor{
		Description: d.Description,
		Schema:      d.Schema,
		Required:    d.Required,
		MinCount:    minCount,
	}
}

// CommandDefinition is the registry of input/output types, their
// compiled validators, required config profiles, and the
// user-confirmation flag for a single named command (spec §3).
//
// A CommandDefinition is immutable after construction except for the
// explicit builder operations exposed here; once registered with a
// service it must not be mutated further.
type CommandDefinition struct {
	Name        string
	Description map[string]string // language code -> description

	requiredConfigProfiles   []string
	requiresUserConfirmation bool

	inputOrder  []string
	inputTypes  map[string]*TypeDescriptor
	outputOrder []string
	outputTypes map[string]*TypeDescriptor
}

// CommandOption configures a CommandDefinition at construction time.
type CommandOption func(*CommandDefinition)

// WithRequiredConfigProfiles declares the config profiles a command
// requires on Invoke.
func WithRequiredConfigProfiles(names ...string) CommandOption {
	return func(c *CommandDefinition) {
		c.requiredConfigProfiles = append(c.requiredConfigProfiles, names...)
	}
}

// WithUserConfirmationRequired flags that this command must be invoked
// with a pre-supplied user confirmation, or must request one itself.
func WithUserConfirmationRequired() CommandOption {
	return func(c *CommandDefinition) {
		c.requiresUserConfirmation = true
	}
}

// NewCommandDefinition constructs an empty command registry.
func NewCommandDefinition(name string, opts ...CommandOption) *CommandDefinition {
	c := &CommandDefinition{
		Name:        name,
		Description: map[string]string{},
		inputTypes:  map[string]*TypeDescriptor{},
		outputTypes: map[string]*TypeDescriptor{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddInputType registers a new input type. It fails with ErrDuplicateType
// if the name is already registered as an input.
func (c *CommandDefinition) AddInputType(d TypeDescriptor) error {
	if _, exists := c.inputTypes[d.Name]; exists {
		return NewError(ErrDuplicateType, fmt.Sprintf("input type %q already registered", d.Name))
	}
	validator, err := CompileSchema(d.Schema)
	if err != nil {
		return err
	}
	d.validator = validator
	c.inputTypes[d.Name] = &d
	c.inputOrder = append(c.inputOrder, d.Name)
	return nil
}

// AddOutputType registers a new output type. It fails with
// ErrDuplicateType if the name is already registered as an output.
func (c *CommandDefinition) AddOutputType(d TypeDescriptor) error {
	if _, exists := c.outputTypes[d.Name]; exists {
		return NewError(ErrDuplicateType, fmt.Sprintf("output type %q already registered", d.Name))
	}
	validator, err := CompileSchema(d.Schema)
	if err != nil {
		return err
	}
	d.validator = validator
	c.outputTypes[d.Name] = &d
	c.outputOrder = append(c.outputOrder, d.Name)
	return nil
}

func (c *CommandDefinition) HasInputType(name string) bool {
	_, ok := c.inputTypes[name]
	return ok
}

func (c *CommandDefinition) GetInputType(name string) (*TypeDescriptor, bool) {
	d, ok := c.inputTypes[name]
	return d, ok
}

func (c *CommandDefinition) HasOutputType(name string) bool {
	_, ok := c.outputTypes[name]
	return ok
}

func (c *CommandDefinition) GetOutputType(name string) (*TypeDescriptor, bool) {
	d, ok := c.outputTypes[name]
	return d, ok
}

// ValidateInput validates value against the named input type's schema.
func (c *CommandDefinition) ValidateInput(name string, value any) (ValidationResult, error) {
	d, ok := c.inputTypes[name]
	if !ok {
		return ValidationResult{}, NewError(ErrUnknownInputType, name)
	}
	return d.Validate(value), nil
}

// ValidateOutput validates value against the named output type's schema.
func (c *CommandDefinition) ValidateOutput(name string, value any) (ValidationResult, error) {
	d, ok := c.outputTypes[name]
	if !ok {
		return ValidationResult{}, NewError(ErrUnknownOutputType, name)
	}
	return d.Validate(value), nil
}

// GetRequiredConfigProfiles returns the config profile names this
// command requires on Invoke.
func (c *CommandDefinition) GetRequiredConfigProfiles() []string {
	out := make([]string, len(c.requiredConfigProfiles))
	copy(out, c.requiredConfigProfiles)
	return out
}

// DoesRequireConfigProfile reports whether name is one of the command's
// required config profiles.
func (c *CommandDefinition) DoesRequireConfigProfile(name string) bool {
	for _, n := range c.requiredConfigProfiles {
		if n == name {
			return true
		}
	}
	return false
}

// RequiresUserConfirmation reports whether this command must be invoked
// with, or itself request, user confirmation.
func (c *CommandDefinition) RequiresUserConfirmation() bool {
	return c.requiresUserConfirmation
}

// CommandDescriptor is the manifest-facing view of a command: its
// endpointUri plus the wire-shaped input/output descriptor maps
// (spec §4.C: getDescriptor(endpointUri) for manifest assembly).
type CommandDescriptor struct {
	Name                     string                     `json:"name"`
	Description              map[string]string          `json:"description,omitempty"`
	EndpointURI              string                     `json:"endpointUri"`
	RequiredConfigProfiles   []string                   `json:"requiredConfigProfiles,omitempty"`
	RequiresUserConfirmation bool                       `json:"requiresUserConfirmation,omitempty"`
	Inputs                   map[string]InputDescriptor `json:"inputs,omitempty"`
	Outputs                  map[string]InputDescriptor `json:"outputs,omitempty"`
}

// GetDescriptor renders c's manifest-facing descriptor for the given
// endpoint URI.
func (c *CommandDefinition) GetDescriptor(endpointURI string) CommandDescriptor {
	inputs := make(map[string]InputDescriptor, len(c.inputOrder))
	for _, name := range c.inputOrder {
		d := c.inputTypes[name]
		inputs[name] = d.AsInputDescriptor(0)
	}
	outputs := make(map[string]InputDescriptor, len(c.outputOrder))
	for _, name := range c.outputOrder {
		d := c.outputTypes[name]
		outputs[name] = d.AsInputDescriptor(0)
	}
	return CommandDescriptor{
		Name:                     c.Name,
		Description:              c.Description,
		EndpointURI:              endpointURI,
		RequiredConfigProfiles:   c.GetRequiredConfigProfiles(),
		RequiresUserConfirmation: c.requiresUserConfirmation,
		Inputs:                   inputs,
		Outputs:                  outputs,
	}
}
