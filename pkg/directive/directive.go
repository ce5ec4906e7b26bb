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

// Package directive defines the closed set of side effects an action may
// request from its agent runtime: state mutations, signal emission,
// scheduling, child lifecycle, and self-termination. Directives are plain
// values; the agent server applies them in the order the action returned
// them.
package directive

import (
	"time"

	"github.com/teradata-labs/jido/pkg/dispatch"
	"github.com/teradata-labs/jido/pkg/signal"
)

// Directive is the closed sum type of runtime side effects. Only types in
// this package implement it.
type Directive interface {
	isDirective()
}

// AgentModule is implemented by spawnable agent definitions. The concrete
// type is the agent package's Definition; the indirection keeps this
// package independent of the runtime.
type AgentModule interface {
	AgentName() string
}

// NamedAction is the minimal action view a directive can carry. The
// concrete type is the instruction package's Action.
type NamedAction interface {
	Name() string
}

// SetState deep-merges Attrs into the agent state.
type SetState struct {
	Attrs map[string]any
}

// ReplaceState replaces the agent state wholesale.
type ReplaceState struct {
	State map[string]any
}

// DeleteKeys removes top-level state keys. Missing keys are ignored.
type DeleteKeys struct {
	Keys []string
}

// SetPath writes Value at a nested path, creating intermediate maps as
// needed.
type SetPath struct {
	Path  []string
	Value any
}

// DeletePath removes the value at a nested path; a missing path is a
// no-op.
type DeletePath struct {
	Path []string
}

// Emit dispatches a signal asynchronously. When ToParent is set the signal
// is routed to the agent's parent (a no-op for root agents) and Dispatch
// is ignored.
type Emit struct {
	Signal   *signal.Signal
	Dispatch []dispatch.Config
	ToParent bool
}

// Schedule posts Message into the emitting agent's own inbox after Delay.
type Schedule struct {
	Delay   time.Duration
	Message *signal.Signal
}

// Cron registers a recurring emission of Message into the emitting agent's
// inbox, driven by a standard 5-field cron expression evaluated in
// Timezone (UTC when empty).
type Cron struct {
	Spec     string
	JobID    string
	Message  *signal.Signal
	Timezone string
}

// CronCancel cancels the named cron job. Cancelling an unknown job is a
// no-op.
type CronCancel struct {
	JobID string
}

// SpawnAgent starts a child agent under the supervisor and tracks it in
// the parent's children table under Tag. On success the parent self-casts
// a jido.agent.child.started signal.
type SpawnAgent struct {
	Module AgentModule
	Tag    string
	Opts   map[string]any
	Meta   map[string]any
}

// StopChild gracefully stops the tracked child registered under Tag. It
// is terminal: no later directive in the same result list is applied.
type StopChild struct {
	Tag    string
	Reason string
}

// Stop terminates the emitting agent. It is terminal: no later directive
// in the same result list is applied.
type Stop struct {
	Reason string
}

// Enqueue puts an action invocation into the agent's pending queue,
// resolved by name against the agent's registered actions.
type Enqueue struct {
	ActionName string
	Params     map[string]any
	Context    map[string]any
}

// RegisterAction installs an action on the running agent.
type RegisterAction struct {
	Action NamedAction
}

// DeregisterAction removes a registered action by name. An action cannot
// deregister itself; the server rejects the directive during application.
type DeregisterAction struct {
	ActionName string
}

// RegisterRoute installs a signal route on the running agent, binding Path
// to a registered action by name.
type RegisterRoute struct {
	Path       string
	ActionName string
	Params     map[string]any
	Priority   int
}

// DeregisterRoute removes every route registered at Path.
type DeregisterRoute struct {
	Path string
}

func (SetState) isDirective()         {}
func (ReplaceState) isDirective()     {}
func (DeleteKeys) isDirective()       {}
func (SetPath) isDirective()          {}
func (DeletePath) isDirective()       {}
func (Emit) isDirective()             {}
func (Schedule) isDirective()         {}
func (Cron) isDirective()             {}
func (CronCancel) isDirective()       {}
func (SpawnAgent) isDirective()       {}
func (StopChild) isDirective()        {}
func (Stop) isDirective()             {}
func (Enqueue) isDirective()          {}
func (RegisterAction) isDirective()   {}
func (DeregisterAction) isDirective() {}
func (RegisterRoute) isDirective()    {}
func (DeregisterRoute) isDirective()  {}

// IsStateOp reports whether d mutates agent state directly.
func IsStateOp(d Directive) bool {
	switch d.(type) {
	case SetState, ReplaceState, DeleteKeys, SetPath, DeletePath:
		return true
	}
	return false
}

// IsTerminal reports whether d stops directive application for the rest of
// the batch. Stop and StopChild are terminal.
func IsTerminal(d Directive) bool {
	switch d.(type) {
	case Stop, StopChild:
		return true
	}
	return false
}
