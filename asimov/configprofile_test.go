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

package asimov_test

import (
	"testing"

	"github.com/asimov-proto/asimov-go/asimov"
)

func TestConfigProfileDefinition_ValidateAgainstSchema(t *testing.T) {
	p, err := asimov.NewConfigProfileDefinition(
		"stripe-account",
		asimov.ScopeOrganization,
		"https://example.com/setup/stripe",
		"Stripe account credentials",
		map[string]any{"type": "object", "required": []any{"apiKey"}},
	)
	if err != nil {
		t.Fatalf("NewConfigProfileDefinition: %v", err)
	}

	if result := p.Validate(map[string]any{"apiKey": "sk_test"}); !result.Valid {
		t.Errorf("Validate(with apiKey) not valid: %v", result.Errors)
	}
	if result := p.Validate(map[string]any{}); result.Valid {
		t.Error("Validate(without apiKey) unexpectedly valid")
	}
}

func TestConfigProfileDefinition_Descriptor(t *testing.T) {
	p, err := asimov.NewConfigProfileDefinition("stripe-account", asimov.ScopeUser, "", "desc", nil)
	if err != nil {
		t.Fatalf("NewConfigProfileDefinition: %v", err)
	}
	d := p.Descriptor()
	if d.Name != "stripe-account" || d.Scope != asimov.ScopeUser || d.Description != "desc" {
		t.Errorf("Descriptor() = %+v, unexpected fields", d)
	}
}
