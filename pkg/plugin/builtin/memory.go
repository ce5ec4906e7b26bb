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

package builtin

import (
	"context"

	"github.com/teradata-labs/jido/pkg/agent"
	"github.com/teradata-labs/jido/pkg/directive"
	"github.com/teradata-labs/jido/pkg/instruction"
	"github.com/teradata-labs/jido/pkg/router"
	"github.com/teradata-labs/jido/pkg/signal"
)

// Memory stores named key/value spaces under state key "memory".
type Memory struct{}

// NewMemory creates the memory plugin.
func NewMemory() *Memory { return &Memory{} }

// Name implements agent.Plugin.
func (*Memory) Name() string { return MemoryName }

// StateKey implements agent.Plugin.
func (*Memory) StateKey() string { return MemoryName }

// SignalPatterns implements agent.Plugin.
func (*Memory) SignalPatterns() []string { return []string{"jido.agent.memory.**"} }

// Mount implements agent.Plugin.
func (*Memory) Mount(_ *agent.Agent, _ map[string]any) (any, error) {
	return map[string]any{"spaces": map[string]any{}}, nil
}

// Actions implements agent.Plugin.
func (m *Memory) Actions() []instruction.Action {
	return []instruction.Action{m.setAction(), m.getAction(), m.deleteAction()}
}

// Routes implements agent.Plugin.
func (m *Memory) Routes(_ map[string]any) []*router.Route {
	return []*router.Route{
		{Path: "jido.agent.memory.set", Target: router.ActionTarget{Action: m.setAction()}},
		{Path: "jido.agent.memory.get", Target: router.ActionTarget{Action: m.getAction()}},
		{Path: "jido.agent.memory.delete", Target: router.ActionTarget{Action: m.deleteAction()}},
	}
}

// HandleSignal implements agent.Plugin.
func (*Memory) HandleSignal(_ *signal.Signal, _ *agent.PluginContext) (agent.Decision, error) {
	return agent.Continue(), nil
}

// TransformResult implements agent.Plugin.
func (*Memory) TransformResult(_ instruction.Action, a *agent.Agent, _ *agent.PluginContext) (*agent.Agent, error) {
	return a, nil
}

var memoryKeySchema = instruction.MustSchema(map[string]any{
	"type": "object",
	"properties": map[string]any{
		"space": map[string]any{"type": "string", "minLength": 1},
		"key":   map[string]any{"type": "string", "minLength": 1},
	},
	"required": []any{"space", "key"},
})

func (*Memory) setAction() instruction.Action {
	return instruction.NewFunc("memory.set", "writes a value into a memory space", memoryKeySchema,
		func(_ context.Context, params map[string]any, _ *instruction.Context) (*instruction.Result, error) {
			space := params["space"].(string)
			key := params["key"].(string)
			return &instruction.Result{
				Output: map[string]any{"space": space, "key": key},
				Directives: []directive.Directive{
					directive.SetPath{
						Path:  []string{MemoryName, "spaces", space, key},
						Value: params["value"],
					},
				},
			}, nil
		})
}

func (*Memory) getAction() instruction.Action {
	return instruction.NewFunc("memory.get", "reads a value from a memory space", memoryKeySchema,
		func(_ context.Context, params map[string]any, ectx *instruction.Context) (*instruction.Result, error) {
			space := params["space"].(string)
			key := params["key"].(string)

			value, found := lookupMemory(ectx.State, space, key)
			return &instruction.Result{
				Output: map[string]any{"value": value, "found": found},
			}, nil
		})
}

func (*Memory) deleteAction() instruction.Action {
	return instruction.NewFunc("memory.delete", "removes a value from a memory space", memoryKeySchema,
		func(_ context.Context, params map[string]any, _ *instruction.Context) (*instruction.Result, error) {
			space := params["space"].(string)
			key := params["key"].(string)
			return &instruction.Result{
				Output: map[string]any{"space": space, "key": key},
				Directives: []directive.Directive{
					directive.DeletePath{Path: []string{MemoryName, "spaces", space, key}},
				},
			}, nil
		})
}

func lookupMemory(state map[string]any, space, key string) (any, bool) {
	slot, ok := state[MemoryName].(map[string]any)
	if !ok {
		return nil, false
	}
	spaces, ok := slot["spaces"].(map[string]any)
	if !ok {
		return nil, false
	}
	spaceMap, ok := spaces[space].(map[string]any)
	if !ok {
		return nil, false
	}
	value, ok := spaceMap[key]
	return value, ok
}
