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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/jido/pkg/instruction"
	"github.com/teradata-labs/jido/pkg/runner"
)

func noopInstruction(name string) *instruction.Instruction {
	return instruction.Must(instruction.NewFunc(name, "", nil,
		func(context.Context, map[string]any, *instruction.Context) (*instruction.Result, error) {
			return &instruction.Result{}, nil
		}), nil)
}

func TestFSMBatchSequenceAutoTransition(t *testing.T) {
	fsm := NewFSM("idle", true)
	state, err := fsm.Init(nil)
	require.NoError(t, err)

	assert.Equal(t, "idle", fsm.Snapshot(state).Status)

	state, err = fsm.Begin(state, []*instruction.Instruction{noopInstruction("a")})
	require.NoError(t, err)
	assert.Equal(t, StateProcessing, fsm.Snapshot(state).Status)

	state = fsm.End(state, &runner.Outcome{Result: map[string]any{"ok": true}}, nil)
	snap := fsm.Snapshot(state)
	assert.Equal(t, "idle", snap.Status)
	assert.False(t, snap.Done)
	assert.Equal(t, 1, snap.Details["processed_count"])
	assert.Equal(t, map[string]any{"ok": true}, snap.Details["last_result"])
}

func TestFSMWithoutAutoTransitionEndsDone(t *testing.T) {
	fsm := NewFSM("idle", false)
	state, err := fsm.Init(nil)
	require.NoError(t, err)

	state, err = fsm.Begin(state, nil)
	require.NoError(t, err)
	state = fsm.End(state, &runner.Outcome{}, nil)

	snap := fsm.Snapshot(state)
	assert.Equal(t, StateDone, snap.Status)
	assert.True(t, snap.Done)
}

func TestFSMErrorState(t *testing.T) {
	fsm := NewFSM("idle", true)
	state, err := fsm.Init(nil)
	require.NoError(t, err)

	state, err = fsm.Begin(state, nil)
	require.NoError(t, err)
	state = fsm.End(state, nil, errors.New("batch failed"))

	snap := fsm.Snapshot(state)
	assert.Equal(t, StateError, snap.Status)
	assert.True(t, snap.Done)
	assert.Equal(t, 0, snap.Details["processed_count"])
}

func TestFSMTransitionTableEnforced(t *testing.T) {
	fsm := &FSM{
		Initial: "locked",
		Transitions: map[string][]string{
			"locked": {"open"}, // processing not reachable from locked
		},
	}
	state, err := fsm.Init(nil)
	require.NoError(t, err)

	_, err = fsm.Begin(state, nil)
	assert.Error(t, err)
}

func TestFSMInitFromConfig(t *testing.T) {
	fsm := &FSM{}
	state, err := fsm.Init(map[string]any{
		"initial_state":   "ready",
		"auto_transition": true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ready", fsm.Snapshot(state).Status)

	_, err = (&FSM{}).Init(nil)
	assert.Error(t, err, "missing initial state must fail")
}

func TestDefaultStrategyCounts(t *testing.T) {
	d := NewDefault()
	state, err := d.Init(nil)
	require.NoError(t, err)

	state, err = d.Begin(state, nil)
	require.NoError(t, err)
	state = d.End(state, &runner.Outcome{Result: map[string]any{"n": 1}}, nil)
	state, _ = d.Begin(state, nil)
	state = d.End(state, &runner.Outcome{Result: map[string]any{"n": 2}}, nil)

	snap := d.Snapshot(state)
	assert.Equal(t, 2, snap.Details["processed_count"])
	assert.Equal(t, map[string]any{"n": 2}, snap.Details["last_result"])
}

func TestThreadedRecordsBoundaries(t *testing.T) {
	th := NewThreaded(NewFSM("idle", true))
	state, err := th.Init(nil)
	require.NoError(t, err)

	state, err = th.Begin(state, []*instruction.Instruction{
		noopInstruction("fetch"), noopInstruction("store"),
	})
	require.NoError(t, err)

	state = th.End(state, &runner.Outcome{Result: map[string]any{"rows": 3}}, nil)

	entries, drained := th.Drain(state)
	require.Len(t, entries, 2)
	assert.Equal(t, EntryInstructionStart, entries[0].Kind)
	assert.Equal(t, []string{"fetch", "store"}, entries[0].Actions)
	assert.Equal(t, EntryInstructionEnd, entries[1].Kind)
	assert.Equal(t, map[string]any{"rows": 3}, entries[1].Result)

	// Draining clears the buffer but keeps the inner machine.
	again, _ := th.Drain(drained)
	assert.Empty(t, again)
	assert.Equal(t, "idle", th.Snapshot(drained).Status)
}

func TestThreadedRecordsErrors(t *testing.T) {
	th := NewThreaded(nil)
	state, err := th.Init(nil)
	require.NoError(t, err)

	state, err = th.Begin(state, nil)
	require.NoError(t, err)
	state = th.End(state, nil, errors.New("exploded"))

	entries, _ := th.Drain(state)
	require.Len(t, entries, 2)
	assert.Equal(t, "exploded", entries[1].Error)
}
