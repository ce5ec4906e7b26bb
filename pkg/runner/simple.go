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

package runner

import (
	"context"

	"github.com/teradata-labs/jido/pkg/directive"
	"github.com/teradata-labs/jido/pkg/instruction"
	"github.com/teradata-labs/jido/pkg/jidoerr"
)

// Simple executes exactly one instruction from the head of the queue,
// applies its state ops, and returns the rest of the queue untouched.
// Enqueue directives resolvable through the request re-enter the queue as
// instructions.
type Simple struct{}

// NewSimple creates a Simple runner.
func NewSimple() *Simple { return &Simple{} }

// Run implements Runner.
func (s *Simple) Run(ctx context.Context, req *Request, opts Options) (*Outcome, error) {
	if len(req.Instructions) == 0 {
		return nil, jidoerr.Validation("empty_queue", "no pending instructions")
	}

	head, rest := req.Instructions[0], req.Instructions[1:]
	result, err := execute(ctx, head, req.State, req, opts)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		State:     req.State,
		Result:    result.Output,
		Remaining: rest,
		Executed:  1,
	}

	var stateOps []directive.Directive
	for _, d := range result.Directives {
		if directive.IsStateOp(d) && opts.ApplyState {
			stateOps = append(stateOps, d)
			continue
		}
		if enq, ok := d.(directive.Enqueue); ok && req.ResolveAction != nil {
			if action, found := req.ResolveAction(enq.ActionName); found {
				ins, insErr := instruction.New(action, enq.Params, enq.Context, instruction.Opts{})
				if insErr != nil {
					return nil, insErr
				}
				outcome.Remaining = append(outcome.Remaining, ins)
				continue
			}
		}
		outcome.Directives = append(outcome.Directives, d)
	}

	if len(stateOps) > 0 {
		next, applyErr := directive.ApplyStateOps(req.State, stateOps)
		if applyErr != nil {
			return nil, applyErr
		}
		outcome.State = next
	}
	return outcome, nil
}
