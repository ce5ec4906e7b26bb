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

// Package instruction defines the action contract: the unit of computation
// a router resolves signals to and a runner executes. An instruction binds
// an action to concrete params, a context map, and execution options.
package instruction

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/jido/pkg/directive"
)

// Action is an executable capability registered on an agent. Actions are
// pure with respect to agent state: they read the state snapshot in the
// execution context and request mutations through directives.
type Action interface {
	// Name returns the action's unique identifier.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// ParamSchema returns the JSON Schema validating params, or nil to
	// accept anything.
	ParamSchema() *Schema

	// Run executes the action. The returned result carries the output map
	// and any requested directives.
	Run(ctx context.Context, params map[string]any, ectx *Context) (*Result, error)
}

// Retryable is implemented by actions that declare a retry budget. On
// error the runner retries up to MaxRetries times with exponential backoff
// starting at Backoff.
type Retryable interface {
	MaxRetries() int
	Backoff() time.Duration
}

// Compensable is implemented by actions that declare a compensation hook,
// invoked with the original params after retries are exhausted.
type Compensable interface {
	Compensate(ctx context.Context, params map[string]any, ectx *Context, cause error) error
	CompensationTimeout() time.Duration
}

// Context carries the execution environment an action runs in.
type Context struct {
	// AgentID identifies the executing agent.
	AgentID string

	// State is a read-only snapshot of the agent state at execution time.
	State map[string]any

	// Values carries caller-supplied context entries (the instruction's
	// context map).
	Values map[string]any

	// Logger is never nil.
	Logger *zap.Logger
}

// Value returns a context entry by key.
func (c *Context) Value(key string) (any, bool) {
	v, ok := c.Values[key]
	return v, ok
}

// Result is the outcome of one action execution.
type Result struct {
	// Output is the result map, exposed to callers as agent.Result.
	Output map[string]any

	// Directives are the requested side effects, applied in order.
	Directives []directive.Directive
}

// funcAction adapts a function to the Action interface.
type funcAction struct {
	name        string
	description string
	schema      *Schema
	run         func(ctx context.Context, params map[string]any, ectx *Context) (*Result, error)
}

// NewFunc wraps a function as an Action.
func NewFunc(name, description string, schema *Schema,
	run func(ctx context.Context, params map[string]any, ectx *Context) (*Result, error)) Action {
	return &funcAction{name: name, description: description, schema: schema, run: run}
}

func (a *funcAction) Name() string         { return a.name }
func (a *funcAction) Description() string  { return a.description }
func (a *funcAction) ParamSchema() *Schema { return a.schema }

func (a *funcAction) Run(ctx context.Context, params map[string]any, ectx *Context) (*Result, error) {
	return a.run(ctx, params, ectx)
}
