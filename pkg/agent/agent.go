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

// Package agent implements the per-agent runtime: the agent value, its
// plugin contract, and the supervised server process that consumes
// signals, executes actions through a strategy and runner, and applies the
// resulting directives.
package agent

import (
	"context"

	"github.com/teradata-labs/jido/pkg/directive"
	"github.com/teradata-labs/jido/pkg/instruction"
	"github.com/teradata-labs/jido/pkg/jidoerr"
	"github.com/teradata-labs/jido/pkg/router"
	"github.com/teradata-labs/jido/pkg/runner"
	"github.com/teradata-labs/jido/pkg/strategy"
)

// Mode selects how a server drains its inbox.
type Mode string

const (
	// ModeAuto processes signals continuously as they arrive.
	ModeAuto Mode = "auto"

	// ModeStep processes one signal per explicit Step call.
	ModeStep Mode = "step"
)

// Definition describes an agent kind: its actions, routes, plugins,
// strategy, and initial state. Definitions are immutable once a server is
// started from them; one definition may back many agents.
type Definition struct {
	// Name identifies the agent kind. Required.
	Name string

	// Description is a human-readable summary.
	Description string

	// Schema optionally validates the initial state.
	Schema *instruction.Schema

	// Actions are the agent's own registered actions.
	Actions []instruction.Action

	// Plugins extend the agent with sub-state, routes, and middleware.
	// Resolve default plugins before starting a server (the jido package
	// does this when it starts agents).
	Plugins []Plugin

	// DefaultPlugins overrides the default plugin set, keyed by default
	// name: false disables one, a Plugin replaces one, a PluginSpec
	// replaces one with config. See the plugin package.
	DefaultPlugins map[string]any

	// Strategy wraps the runner lifecycle; nil uses strategy.Default.
	Strategy strategy.Strategy

	// StrategyConfig initializes the strategy's machine state.
	StrategyConfig map[string]any

	// Runner executes instruction batches; nil uses runner.Simple.
	Runner runner.Runner

	// RunnerOptions tune execution; zero value gets runner defaults.
	RunnerOptions runner.Options

	// Routes bind signal paths to this agent's actions and dispatches.
	Routes []*router.Route

	// InitialState seeds the agent state map.
	InitialState map[string]any

	// Mode defaults to ModeAuto.
	Mode Mode
}

// AgentName implements directive.AgentModule so definitions can ride in
// SpawnAgent directives.
func (d *Definition) AgentName() string { return d.Name }

func (d *Definition) validate() error {
	if d == nil {
		return jidoerr.Validation("invalid_definition", "agent definition is required")
	}
	if d.Name == "" {
		return jidoerr.Validation("invalid_definition", "agent definition requires a name")
	}
	if d.Schema != nil {
		if err := d.Schema.Validate(d.InitialState); err != nil {
			return err
		}
	}
	return nil
}

// ChildRef tracks one spawned child in the parent's children table.
type ChildRef struct {
	Ref    *Server
	ID     string
	Module string
	Tag    string
	Meta   map[string]any
}

// ParentRef is the handle a child holds to its parent.
type ParentRef struct {
	Ref  *Server
	ID   string
	Tag  string
	Meta map[string]any
}

// Agent is the state of one running agent. The owning server mutates it
// exclusively; everything handed outward is a snapshot.
type Agent struct {
	// ID is the registry identity. Children carry "{parent}/{tag}".
	ID string

	// Module names the definition the agent was started from.
	Module string

	// State is the agent's map state, including plugin sub-state under
	// each plugin's state key.
	State map[string]any

	// Result is the output map of the last executed action.
	Result map[string]any

	// Children maps tag to the tracked child refs.
	Children map[string]ChildRef

	// Parent is set for spawned children.
	Parent *ParentRef
}

// PluginState returns the sub-state stored under a plugin's state key.
func (a *Agent) PluginState(stateKey string) (any, bool) {
	v, ok := a.State[stateKey]
	return v, ok
}

// Clone returns a deep copy of the agent's maps. Child and parent refs are
// shared handles, not owned state.
func (a *Agent) Clone() *Agent {
	dup := &Agent{
		ID:     a.ID,
		Module: a.Module,
		State:  directive.DeepMerge(nil, a.State),
		Result: directive.DeepMerge(nil, a.Result),
	}
	if a.Children != nil {
		dup.Children = make(map[string]ChildRef, len(a.Children))
		for tag, ref := range a.Children {
			dup.Children[tag] = ref
		}
	}
	if a.Parent != nil {
		parent := *a.Parent
		dup.Parent = &parent
	}
	return dup
}

// Supervisor starts and stops agent processes on behalf of a running
// server. Implemented by the jido package's Instance.
type Supervisor interface {
	// StartChild starts def as a child of parent, registered under
	// "{parent.id}/{tag}", and returns the running server.
	StartChild(ctx context.Context, parent *Server, def *Definition, tag string,
		opts map[string]any, meta map[string]any) (*Server, error)

	// StopAgent stops the agent registered under id.
	StopAgent(ctx context.Context, id string, reason string) error
}
