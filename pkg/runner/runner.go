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

// Package runner executes batches of instructions against agent state.
// Two variants share one contract: Simple pops and executes a single
// instruction; Chain folds the whole queue, threading state through each
// step. Both convert action faults into the structured error taxonomy and
// accumulate the non-state directives for the agent server to apply.
package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/jido/pkg/directive"
	"github.com/teradata-labs/jido/pkg/instruction"
)

// DefaultCompensationTimeout bounds compensation hooks that do not declare
// their own timeout.
const DefaultCompensationTimeout = 5 * time.Second

// Request is the execution input: a state snapshot and the pending
// instruction queue.
type Request struct {
	// AgentID identifies the executing agent for logging and context.
	AgentID string

	// State is the agent state the batch runs against. Never mutated;
	// the outcome carries the resulting state.
	State map[string]any

	// Instructions is the pending queue, executed front-first.
	Instructions []*instruction.Instruction

	// ResolveAction optionally resolves Enqueue directives to actions so
	// they re-enter the queue as instructions. Only Simple consults it;
	// Chain does not. Unresolved Enqueues pass through in the outcome's
	// directives.
	ResolveAction func(name string) (instruction.Action, bool)
}

// Options tune one run.
type Options struct {
	// ApplyState applies state-op directives to the threaded state. When
	// false the state ops pass through in the outcome's directives and
	// the input state is returned unchanged.
	ApplyState bool

	// MaxRetries is the per-instruction retry budget on error. An action
	// implementing instruction.Retryable overrides it.
	MaxRetries int

	// Backoff is the initial retry delay, doubling per attempt.
	Backoff time.Duration

	// Timeout bounds each instruction lacking its own timeout. Zero runs
	// inline with no worker.
	Timeout time.Duration

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// DefaultOptions returns the option set runs start from: state applied,
// no retries, inline execution.
func DefaultOptions() Options {
	return Options{ApplyState: true}
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Outcome is the result of a run.
type Outcome struct {
	// State is the resulting agent state.
	State map[string]any

	// Result is the output map of the last executed action.
	Result map[string]any

	// Directives are the accumulated non-state directives (plus state ops
	// when ApplyState is false), in execution order.
	Directives []directive.Directive

	// Remaining is the unexecuted tail of the instruction queue.
	Remaining []*instruction.Instruction

	// Executed counts the instructions that ran.
	Executed int
}

// Runner executes a request and produces an outcome. On error, Chain
// returns the partial outcome alongside it: state already threaded stays
// applied (the pre-failure view).
type Runner interface {
	Run(ctx context.Context, req *Request, opts Options) (*Outcome, error)
}
