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
	"time"

	"github.com/teradata-labs/jido/pkg/agent"
	"github.com/teradata-labs/jido/pkg/instruction"
	"github.com/teradata-labs/jido/pkg/router"
	"github.com/teradata-labs/jido/pkg/signal"
)

// Identity exposes who the agent is under state key "identity" and
// answers identity queries.
type Identity struct{}

// NewIdentity creates the identity plugin.
func NewIdentity() *Identity { return &Identity{} }

// Name implements agent.Plugin.
func (*Identity) Name() string { return IdentityName }

// StateKey implements agent.Plugin.
func (*Identity) StateKey() string { return IdentityName }

// SignalPatterns implements agent.Plugin.
func (*Identity) SignalPatterns() []string { return []string{"jido.agent.identity.**"} }

// Mount implements agent.Plugin.
func (*Identity) Mount(a *agent.Agent, config map[string]any) (any, error) {
	name := a.Module
	if v, ok := config["name"].(string); ok && v != "" {
		name = v
	}
	description, _ := config["description"].(string)
	return map[string]any{
		"agent_id":    a.ID,
		"name":        name,
		"description": description,
		"started_at":  time.Now().UTC(),
	}, nil
}

// Actions implements agent.Plugin.
func (i *Identity) Actions() []instruction.Action {
	return []instruction.Action{i.describeAction()}
}

// Routes implements agent.Plugin.
func (i *Identity) Routes(_ map[string]any) []*router.Route {
	return []*router.Route{{
		Path:   "jido.agent.identity.get",
		Target: router.ActionTarget{Action: i.describeAction()},
	}}
}

// HandleSignal implements agent.Plugin.
func (*Identity) HandleSignal(_ *signal.Signal, _ *agent.PluginContext) (agent.Decision, error) {
	return agent.Continue(), nil
}

// TransformResult implements agent.Plugin.
func (*Identity) TransformResult(_ instruction.Action, a *agent.Agent, _ *agent.PluginContext) (*agent.Agent, error) {
	return a, nil
}

func (*Identity) describeAction() instruction.Action {
	return instruction.NewFunc("identity.describe", "returns the agent identity", nil,
		func(_ context.Context, _ map[string]any, ectx *instruction.Context) (*instruction.Result, error) {
			identity, _ := ectx.State[IdentityName].(map[string]any)
			return &instruction.Result{Output: identity}, nil
		})
}
