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

// Package strategy wraps runner execution with lifecycle state: a machine
// state initialized per agent, advanced around every batch, and observable
// through snapshots. The FSM strategy adds a configurable state machine;
// the Threaded strategy records instruction boundaries for a mounted
// thread plugin.
package strategy

import (
	"github.com/teradata-labs/jido/pkg/instruction"
	"github.com/teradata-labs/jido/pkg/runner"
)

// State is a strategy's opaque machine state. Treat it as immutable:
// Begin and End return the advanced state.
type State any

// Status is the observable view of a machine state.
type Status struct {
	// Status names the current lifecycle phase.
	Status string

	// Done reports whether the machine reached a terminal phase.
	Done bool

	// Details carries strategy-specific counters and context.
	Details map[string]any
}

// Strategy wraps the runner with lifecycle bookkeeping.
type Strategy interface {
	// Init builds the machine state from configuration.
	Init(config map[string]any) (State, error)

	// Begin advances the machine into a batch of instructions.
	Begin(state State, instructions []*instruction.Instruction) (State, error)

	// End advances the machine out of a batch, given the runner outcome
	// and its error, if any.
	End(state State, outcome *runner.Outcome, runErr error) State

	// Snapshot reports the observable status.
	Snapshot(state State) Status
}

// Default is the pass-through strategy: it only counts processed batches.
type Default struct{}

// NewDefault creates the pass-through strategy.
func NewDefault() *Default { return &Default{} }

type defaultState struct {
	processed  int
	lastResult map[string]any
	failed     bool
}

// Init implements Strategy.
func (*Default) Init(map[string]any) (State, error) {
	return &defaultState{}, nil
}

// Begin implements Strategy.
func (*Default) Begin(state State, _ []*instruction.Instruction) (State, error) {
	return state, nil
}

// End implements Strategy.
func (*Default) End(state State, outcome *runner.Outcome, runErr error) State {
	s := state.(*defaultState)
	next := *s
	next.processed++
	next.failed = runErr != nil
	if outcome != nil {
		next.lastResult = outcome.Result
	}
	return &next
}

// Snapshot implements Strategy.
func (*Default) Snapshot(state State) Status {
	s := state.(*defaultState)
	status := "idle"
	if s.failed {
		status = "error"
	}
	return Status{
		Status: status,
		Done:   false,
		Details: map[string]any{
			"processed_count": s.processed,
			"last_result":     s.lastResult,
		},
	}
}
