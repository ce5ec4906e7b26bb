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
	"fmt"

	"github.com/teradata-labs/jido/pkg/directive"
	"github.com/teradata-labs/jido/pkg/jidoerr"
)

// Chain folds the entire instruction queue in order, threading state
// through each step. On the first error it aborts and returns the partial
// outcome: state applied by earlier steps is preserved. A terminal
// directive (Stop) halts the fold; the unexecuted tail comes back in
// Remaining.
type Chain struct{}

// NewChain creates a Chain runner.
func NewChain() *Chain { return &Chain{} }

// Run implements Runner.
func (c *Chain) Run(ctx context.Context, req *Request, opts Options) (*Outcome, error) {
	if len(req.Instructions) == 0 {
		return nil, jidoerr.Validation("empty_queue", "no pending instructions")
	}

	outcome := &Outcome{State: req.State}
	for i, ins := range req.Instructions {
		result, err := execute(ctx, ins, outcome.State, req, opts)
		if err != nil {
			outcome.Remaining = req.Instructions[i:]
			return outcome, fmt.Errorf("chain step %d (%s): %w", i, ins.Action.Name(), err)
		}
		outcome.Executed++
		outcome.Result = result.Output

		terminal := false
		var stateOps []directive.Directive
		for _, d := range result.Directives {
			if directive.IsStateOp(d) && opts.ApplyState {
				stateOps = append(stateOps, d)
				continue
			}
			outcome.Directives = append(outcome.Directives, d)
			if directive.IsTerminal(d) {
				terminal = true
				break
			}
		}

		if len(stateOps) > 0 {
			next, applyErr := directive.ApplyStateOps(outcome.State, stateOps)
			if applyErr != nil {
				outcome.Remaining = req.Instructions[i+1:]
				return outcome, applyErr
			}
			outcome.State = next
		}

		if terminal {
			outcome.Remaining = req.Instructions[i+1:]
			return outcome, nil
		}
	}
	return outcome, nil
}
