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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/jido/pkg/jidoerr"
)

func echoAction(schema *Schema) Action {
	return NewFunc("echo", "returns its params", schema,
		func(_ context.Context, params map[string]any, _ *Context) (*Result, error) {
			return &Result{Output: params}, nil
		})
}

func TestNewValidatesParamsAgainstSchema(t *testing.T) {
	schema := MustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
		},
		"required": []any{"query"},
	})

	ins, err := New(echoAction(schema), map[string]any{"query": "hi"}, nil, Opts{})
	require.NoError(t, err)
	assert.Equal(t, "echo", ins.Action.Name())

	_, err = New(echoAction(schema), map[string]any{"query": 42}, nil, Opts{})
	require.Error(t, err)
	assert.Equal(t, jidoerr.KindValidation, jidoerr.KindOf(err))

	_, err = New(echoAction(schema), map[string]any{}, nil, Opts{})
	assert.Error(t, err, "missing required param must fail")
}

func TestNewNilSchemaAcceptsAnything(t *testing.T) {
	_, err := New(echoAction(nil), map[string]any{"anything": []int{1, 2}}, nil, Opts{})
	assert.NoError(t, err)
}

func TestNewRejectsBadInstruction(t *testing.T) {
	_, err := New(nil, nil, nil, Opts{})
	assert.Error(t, err)

	_, err = New(echoAction(nil), nil, nil, Opts{Timeout: -time.Second})
	assert.Error(t, err)
}

func TestSchemaViolationsAreReported(t *testing.T) {
	schema := MustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count": map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []any{"count"},
	})

	err := schema.Validate(map[string]any{"count": 0})
	require.Error(t, err)

	var jerr *jidoerr.Error
	require.ErrorAs(t, err, &jerr)
	assert.NotEmpty(t, jerr.Details["violations"])
}

func TestFuncActionRuns(t *testing.T) {
	action := echoAction(nil)
	res, err := action.Run(context.Background(),
		map[string]any{"k": "v"}, &Context{AgentID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, "v", res.Output["k"])
}
