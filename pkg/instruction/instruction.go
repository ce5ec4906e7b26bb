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

package instruction

import (
	"time"

	"github.com/teradata-labs/jido/pkg/jidoerr"
)

// Opts carries per-instruction execution options.
type Opts struct {
	// Timeout bounds the action's execution. Zero applies the runner's
	// timeout; when that is also zero the action runs inline with no
	// worker and no timeout. Negative is invalid.
	Timeout time.Duration
}

// Instruction binds an action to concrete params and context for one
// execution.
type Instruction struct {
	Action  Action
	Params  map[string]any
	Context map[string]any
	Opts    Opts
}

// New creates a validated instruction: the action must be present and the
// params must satisfy its schema.
func New(action Action, params, ctx map[string]any, opts Opts) (*Instruction, error) {
	if action == nil {
		return nil, jidoerr.Validation("invalid_instruction", "instruction requires an action")
	}
	if opts.Timeout < 0 {
		return nil, jidoerr.Validation("invalid_instruction", "timeout must not be negative")
	}
	if err := action.ParamSchema().Validate(params); err != nil {
		return nil, err
	}
	return &Instruction{Action: action, Params: params, Context: ctx, Opts: opts}, nil
}

// Must is New for statically known inputs; panics on validation failure.
func Must(action Action, params map[string]any) *Instruction {
	ins, err := New(action, params, nil, Opts{})
	if err != nil {
		panic(err)
	}
	return ins
}
