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

// Package builtin holds the default plugins every agent mounts unless its
// definition overrides them: conversation threads, identity, and named
// memory spaces.
package builtin

import (
	"context"
	"time"

	"github.com/teradata-labs/jido/pkg/agent"
	"github.com/teradata-labs/jido/pkg/directive"
	"github.com/teradata-labs/jido/pkg/instruction"
	"github.com/teradata-labs/jido/pkg/router"
	"github.com/teradata-labs/jido/pkg/signal"
)

// Default plugin names and state keys.
const (
	ThreadName   = "thread"
	IdentityName = "identity"
	MemoryName   = "memory"
)

// Thread keeps an ordered conversation log under state key "thread".
// Strategy-recorded instruction boundaries land here too.
type Thread struct{}

// NewThread creates the thread plugin.
func NewThread() *Thread { return &Thread{} }

// Name implements agent.Plugin.
func (*Thread) Name() string { return ThreadName }

// StateKey implements agent.Plugin.
func (*Thread) StateKey() string { return ThreadName }

// SignalPatterns implements agent.Plugin: the thread middleware only
// observes thread traffic.
func (*Thread) SignalPatterns() []string { return []string{"thread.**"} }

// Mount implements agent.Plugin.
func (*Thread) Mount(_ *agent.Agent, _ map[string]any) (any, error) {
	return map[string]any{"entries": []any{}}, nil
}

// Actions implements agent.Plugin.
func (t *Thread) Actions() []instruction.Action {
	return []instruction.Action{t.appendAction()}
}

// Routes implements agent.Plugin.
func (t *Thread) Routes(_ map[string]any) []*router.Route {
	return []*router.Route{{
		Path:   "thread.message",
		Target: router.ActionTarget{Action: t.appendAction()},
	}}
}

// HandleSignal implements agent.Plugin.
func (*Thread) HandleSignal(_ *signal.Signal, _ *agent.PluginContext) (agent.Decision, error) {
	return agent.Continue(), nil
}

// TransformResult implements agent.Plugin.
func (*Thread) TransformResult(_ instruction.Action, a *agent.Agent, _ *agent.PluginContext) (*agent.Agent, error) {
	return a, nil
}

func (*Thread) appendAction() instruction.Action {
	schema := instruction.MustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"role":    map[string]any{"type": "string"},
			"content": map[string]any{},
		},
		"required": []any{"role"},
	})

	return instruction.NewFunc("thread.append", "appends an entry to the conversation thread", schema,
		func(_ context.Context, params map[string]any, ectx *instruction.Context) (*instruction.Result, error) {
			entries := currentEntries(ectx.State)
			entry := map[string]any{
				"role":    params["role"],
				"content": params["content"],
				"at":      time.Now().UTC(),
			}
			next := append(append([]any(nil), entries...), entry)
			return &instruction.Result{
				Output: map[string]any{"entry_count": len(next)},
				Directives: []directive.Directive{
					directive.SetPath{Path: []string{ThreadName, "entries"}, Value: next},
				},
			}, nil
		})
}

func currentEntries(state map[string]any) []any {
	slot, ok := state[ThreadName].(map[string]any)
	if !ok {
		return nil
	}
	entries, _ := slot["entries"].([]any)
	return entries
}
