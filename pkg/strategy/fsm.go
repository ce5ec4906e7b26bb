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

package strategy

import (
	"fmt"
	"slices"

	"github.com/teradata-labs/jido/pkg/instruction"
	"github.com/teradata-labs/jido/pkg/jidoerr"
	"github.com/teradata-labs/jido/pkg/runner"
)

// FSM lifecycle states every machine carries in addition to user-declared
// ones.
const (
	StateProcessing = "processing"
	StateDone       = "done"
	StateError      = "error"
)

// FSM is a finite-state-machine strategy. Each batch runs the sequence
// initial -> processing -> {initial | done | error}: back to the initial
// state when AutoTransition is set, to done otherwise, to error on a
// failed batch.
type FSM struct {
	// Initial is the machine's starting state name.
	Initial string

	// Transitions maps a state to the states reachable from it. Empty
	// permits every transition.
	Transitions map[string][]string

	// AutoTransition returns the machine to Initial after each
	// successfully processed batch.
	AutoTransition bool
}

// NewFSM creates an FSM strategy with the given initial state and
// auto-transition behavior.
func NewFSM(initial string, autoTransition bool) *FSM {
	return &FSM{Initial: initial, AutoTransition: autoTransition}
}

type fsmState struct {
	current        string
	processedCount int
	lastResult     map[string]any
}

// Init implements Strategy. Config keys "initial_state" (string),
// "transitions" (map[string][]string), and "auto_transition" (bool)
// override the struct fields.
func (f *FSM) Init(config map[string]any) (State, error) {
	initial := f.Initial
	if v, ok := config["initial_state"].(string); ok {
		initial = v
		f.Initial = v
	}
	if initial == "" {
		return nil, jidoerr.Validation("invalid_fsm", "fsm requires an initial state")
	}
	if v, ok := config["transitions"].(map[string][]string); ok {
		f.Transitions = v
	}
	if v, ok := config["auto_transition"].(bool); ok {
		f.AutoTransition = v
	}
	return &fsmState{current: initial}, nil
}

// Begin implements Strategy: transition into processing.
func (f *FSM) Begin(state State, _ []*instruction.Instruction) (State, error) {
	s := state.(*fsmState)
	if err := f.checkTransition(s.current, StateProcessing); err != nil {
		return state, err
	}
	next := *s
	next.current = StateProcessing
	return &next, nil
}

// End implements Strategy: transition out of processing based on the
// batch result.
func (f *FSM) End(state State, outcome *runner.Outcome, runErr error) State {
	s := state.(*fsmState)
	next := *s

	switch {
	case runErr != nil:
		next.current = StateError
	case f.AutoTransition:
		next.current = f.initialState()
	default:
		next.current = StateDone
	}

	if runErr == nil {
		next.processedCount++
		if outcome != nil {
			next.lastResult = outcome.Result
		}
	}
	return &next
}

// Snapshot implements Strategy.
func (f *FSM) Snapshot(state State) Status {
	s := state.(*fsmState)
	return Status{
		Status: s.current,
		Done:   s.current == StateDone || s.current == StateError,
		Details: map[string]any{
			"processed_count": s.processedCount,
			"last_result":     s.lastResult,
		},
	}
}

func (f *FSM) initialState() string {
	if f.Initial != "" {
		return f.Initial
	}
	return "initial"
}

// checkTransition enforces the declared transition table. Processing,
// done, and error are always reachable as batch-lifecycle states unless a
// table explicitly lists successors for the source state.
func (f *FSM) checkTransition(from, to string) error {
	if len(f.Transitions) == 0 {
		return nil
	}
	allowed, declared := f.Transitions[from]
	if !declared {
		return nil
	}
	if slices.Contains(allowed, to) {
		return nil
	}
	return jidoerr.Validation("invalid_transition",
		fmt.Sprintf("transition %s -> %s not permitted", from, to))
}
