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

package agent

import (
	"go.uber.org/zap"

	"github.com/teradata-labs/jido/pkg/instruction"
	"github.com/teradata-labs/jido/pkg/router"
	"github.com/teradata-labs/jido/pkg/signal"
)

// Plugin owns a slice of agent state under its state key and may
// contribute actions, routes, and signal middleware. Plugins run in
// declaration order; their HandleSignal middleware executes before
// routing for every signal matching their patterns.
type Plugin interface {
	// Name identifies the plugin.
	Name() string

	// StateKey names the agent-state slot the plugin owns. Only the
	// plugin's own callbacks should mutate agent.State[StateKey()].
	StateKey() string

	// Actions returns the actions the plugin injects into the agent.
	Actions() []instruction.Action

	// SignalPatterns filters which signals reach HandleSignal. Empty
	// means match-all.
	SignalPatterns() []string

	// Mount builds the plugin's initial sub-state when the agent starts.
	Mount(a *Agent, config map[string]any) (any, error)

	// Routes returns the signal routes the plugin contributes.
	Routes(config map[string]any) []*router.Route

	// HandleSignal runs as middleware before routing.
	HandleSignal(sig *signal.Signal, pctx *PluginContext) (Decision, error)

	// TransformResult post-processes the agent snapshot returned to a
	// synchronous caller. It must not be used to mutate durable server
	// state; it only enriches the response.
	TransformResult(action instruction.Action, a *Agent, pctx *PluginContext) (*Agent, error)
}

// ConfigValidator is optionally implemented by plugins that validate
// their mount config against a schema.
type ConfigValidator interface {
	ConfigSchema() *instruction.Schema
}

// PluginContext is the environment handed to plugin callbacks.
type PluginContext struct {
	// Agent is the live agent view. Middleware must treat it as
	// read-only; mutation happens through directives.
	Agent *Agent

	// Config is the plugin's mount configuration.
	Config map[string]any

	// Logger is never nil.
	Logger *zap.Logger
}

// DecisionKind enumerates middleware outcomes.
type DecisionKind int

const (
	// DecisionContinue passes the signal through unchanged.
	DecisionContinue DecisionKind = iota

	// DecisionReplace passes a transformed signal downstream.
	DecisionReplace

	// DecisionOverride resolves the signal to a specific action,
	// skipping routing.
	DecisionOverride
)

// Decision is a middleware outcome.
type Decision struct {
	Kind   DecisionKind
	Signal *signal.Signal
	Action instruction.Action
	Params map[string]any
}

// Continue passes the signal through unchanged.
func Continue() Decision {
	return Decision{Kind: DecisionContinue}
}

// Replace substitutes a transformed signal for the rest of the pipeline.
func Replace(sig *signal.Signal) Decision {
	return Decision{Kind: DecisionReplace, Signal: sig}
}

// Override resolves the signal directly to an action, skipping routing.
func Override(action instruction.Action, params map[string]any) Decision {
	return Decision{Kind: DecisionOverride, Action: action, Params: params}
}
