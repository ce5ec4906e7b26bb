// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package instruction

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/teradata-labs/jido/pkg/jidoerr"
)

// Schema is a compiled JSON Schema used to validate action params and
// plugin configuration.
type Schema struct {
	raw      map[string]any
	compiled *gojsonschema.Schema
}

// NewSchema compiles a JSON Schema document given as a Go map.
func NewSchema(raw map[string]any) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{raw: raw, compiled: compiled}, nil
}

// MustSchema is NewSchema for statically known documents; panics on error.
func MustSchema(raw map[string]any) *Schema {
	s, err := NewSchema(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Raw returns the original schema document.
func (s *Schema) Raw() map[string]any { return s.raw }

// Validate checks doc against the schema, returning a validation_error
// listing every violation.
func (s *Schema) Validate(doc map[string]any) error {
	if s == nil {
		return nil
	}
	if doc == nil {
		doc = map[string]any{}
	}
	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return jidoerr.Wrap(jidoerr.KindValidation, "schema_validation", "schema validation failed", err)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return jidoerr.Validation("schema_mismatch", strings.Join(violations, "; ")).
		WithDetail("violations", violations)
}
