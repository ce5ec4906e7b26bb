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
	"time"

	"github.com/teradata-labs/jido/pkg/instruction"
	"github.com/teradata-labs/jido/pkg/runner"
)

// Thread entry kinds recorded around each batch.
const (
	EntryInstructionStart = "instruction_start"
	EntryInstructionEnd   = "instruction_end"
)

// ThreadEntry marks an instruction boundary. The agent server appends
// drained entries to the thread plugin's state when one is mounted.
type ThreadEntry struct {
	Kind    string         `json:"kind"`
	Actions []string       `json:"actions,omitempty"`
	At      time.Time      `json:"at"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Threaded wraps another strategy and records instruction start/end
// markers. Entries accumulate in the machine state until drained.
type Threaded struct {
	// Inner is the wrapped strategy; nil falls back to Default.
	Inner Strategy
}

// NewThreaded wraps inner with thread-entry recording.
func NewThreaded(inner Strategy) *Threaded {
	if inner == nil {
		inner = NewDefault()
	}
	return &Threaded{Inner: inner}
}

type threadedState struct {
	inner   State
	pending []ThreadEntry
}

// Init implements Strategy.
func (t *Threaded) Init(config map[string]any) (State, error) {
	inner, err := t.Inner.Init(config)
	if err != nil {
		return nil, err
	}
	return &threadedState{inner: inner}, nil
}

// Begin implements Strategy: records an instruction_start entry naming the
// batch's actions, then delegates.
func (t *Threaded) Begin(state State, instructions []*instruction.Instruction) (State, error) {
	s := state.(*threadedState)

	actions := make([]string, len(instructions))
	for i, ins := range instructions {
		actions[i] = ins.Action.Name()
	}

	inner, err := t.Inner.Begin(s.inner, instructions)
	if err != nil {
		return state, err
	}
	return &threadedState{
		inner: inner,
		pending: append(append([]ThreadEntry(nil), s.pending...), ThreadEntry{
			Kind:    EntryInstructionStart,
			Actions: actions,
			At:      time.Now().UTC(),
		}),
	}, nil
}

// End implements Strategy: records an instruction_end entry with the batch
// result, then delegates.
func (t *Threaded) End(state State, outcome *runner.Outcome, runErr error) State {
	s := state.(*threadedState)

	entry := ThreadEntry{Kind: EntryInstructionEnd, At: time.Now().UTC()}
	if outcome != nil {
		entry.Result = outcome.Result
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}

	return &threadedState{
		inner:   t.Inner.End(s.inner, outcome, runErr),
		pending: append(append([]ThreadEntry(nil), s.pending...), entry),
	}
}

// Snapshot implements Strategy, delegating to the wrapped strategy.
func (t *Threaded) Snapshot(state State) Status {
	s := state.(*threadedState)
	status := t.Inner.Snapshot(s.inner)
	if status.Details == nil {
		status.Details = make(map[string]any)
	}
	status.Details["pending_thread_entries"] = len(s.pending)
	return status
}

// Drain returns the recorded entries and the state with its buffer
// cleared.
func (t *Threaded) Drain(state State) ([]ThreadEntry, State) {
	s, ok := state.(*threadedState)
	if !ok || len(s.pending) == 0 {
		return nil, state
	}
	return s.pending, &threadedState{inner: s.inner}
}
