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
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// Validator wraps a compiled JSON Schema document. A nil Validator
// accepts any value, matching the spec's optional schema on descriptors.
type Validator struct {
	schema *openapi3.Schema
}

// CompileSchema compiles a raw JSON Schema document (as decoded into a
// map[string]any) into a reusable Validator. A nil or empty document
// compiles to an always-accepting Validator.
func CompileSchema(doc map[string]any) (*Validator, error) {
	if len(doc) == 0 {
		return &Validator{}, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("asimov: marshal schema document: %w", err)
	}
	schema := &openapi3.Schema{}
	if err := json.Unmarshal(raw, schema); err != nil {
		return nil, fmt.Errorf("asimov: decode schema document: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks value against the compiled schema. It returns a
// one-element slice describing the violation found, or nil if value is
// valid.
func (v *Validator) Validate(value any) []string {
	if v == nil || v.schema == nil {
		return nil
	}
	if err := v.schema.VisitJSON(value); err != nil {
		return []string{err.Error()}
	}
	return nil
}
