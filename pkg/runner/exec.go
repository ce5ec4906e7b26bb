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
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/jido/pkg/instruction"
	"github.com/teradata-labs/jido/pkg/jidoerr"
)

// execute runs one instruction with retries, timeout, and compensation.
func execute(ctx context.Context, ins *instruction.Instruction, state map[string]any,
	req *Request, opts Options) (*instruction.Result, error) {

	if ins == nil || ins.Action == nil {
		return nil, jidoerr.Validation("invalid_instruction", "instruction requires an action")
	}
	if err := ins.Action.ParamSchema().Validate(ins.Params); err != nil {
		return nil, err
	}

	ectx := &instruction.Context{
		AgentID: req.AgentID,
		State:   state,
		Values:  ins.Context,
		Logger:  opts.logger(),
	}

	retries := opts.MaxRetries
	backoff := opts.Backoff
	if r, ok := ins.Action.(instruction.Retryable); ok {
		retries = r.MaxRetries()
		if d := r.Backoff(); d > 0 {
			backoff = d
		}
	}
	if backoff <= 0 {
		backoff = 10 * time.Millisecond
	}

	var lastErr error
	delay := backoff
	for attempt := 0; attempt <= retries; attempt++ {
		result, err := executeOnce(ctx, ins, ectx, opts)
		if err == nil {
			if attempt > 0 {
				opts.logger().Info("action retry succeeded",
					zap.String("action", ins.Action.Name()),
					zap.Int("attempt", attempt+1))
			}
			return result, nil
		}
		lastErr = err

		// Context cancellation and deadline are not retryable faults.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("action %s aborted (attempt %d/%d): %w",
				ins.Action.Name(), attempt+1, retries+1, err)
		}
		if attempt >= retries {
			break
		}

		opts.logger().Warn("action failed, retrying",
			zap.String("action", ins.Action.Name()),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", retries),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}

	return nil, compensate(ctx, ins, ectx, lastErr, opts)
}

// compensate runs the action's compensation hook, when declared, after the
// retry budget is exhausted, and folds the outcome into the error.
func compensate(ctx context.Context, ins *instruction.Instruction,
	ectx *instruction.Context, cause error, opts Options) error {

	comp, ok := ins.Action.(instruction.Compensable)
	if !ok {
		return cause
	}

	timeout := comp.CompensationTimeout()
	if timeout <= 0 {
		timeout = DefaultCompensationTimeout
	}
	compCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- jidoerr.Execution(
					fmt.Sprintf("compensation for %s panicked", ins.Action.Name()),
					fmt.Errorf("%v", r))
			}
		}()
		done <- comp.Compensate(compCtx, ins.Params, ectx, cause)
	}()

	select {
	case compErr := <-done:
		if compErr != nil {
			opts.logger().Error("compensation failed",
				zap.String("action", ins.Action.Name()),
				zap.Error(compErr))
			return jidoerr.Compensation(false, cause, compErr)
		}
		return jidoerr.Compensation(true, cause, nil)
	case <-compCtx.Done():
		return jidoerr.Compensation(false, cause,
			jidoerr.Timeout(fmt.Sprintf("compensation for %s timed out", ins.Action.Name())))
	}
}

// executeOnce runs a single attempt. A zero effective timeout executes
// inline with no worker; otherwise the action runs in a cancellable worker
// goroutine that is abandoned on expiry.
func executeOnce(ctx context.Context, ins *instruction.Instruction,
	ectx *instruction.Context, opts Options) (*instruction.Result, error) {

	timeout := ins.Opts.Timeout
	if timeout == 0 {
		timeout = opts.Timeout
	}

	if timeout <= 0 {
		return runGuarded(ctx, ins, ectx)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type attempt struct {
		result *instruction.Result
		err    error
	}
	done := make(chan attempt, 1)
	go func() {
		result, err := runGuarded(workerCtx, ins, ectx)
		done <- attempt{result: result, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case a := <-done:
		return a.result, a.err
	case <-timer.C:
		cancel()
		return nil, jidoerr.Timeout(
			fmt.Sprintf("action %s exceeded %s", ins.Action.Name(), timeout))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runGuarded invokes the action, converting panics and plain errors into
// execution errors.
func runGuarded(ctx context.Context, ins *instruction.Instruction,
	ectx *instruction.Context) (result *instruction.Result, err error) {

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = jidoerr.Execution(
				fmt.Sprintf("action %s panicked", ins.Action.Name()),
				fmt.Errorf("%v", r))
		}
	}()

	result, err = ins.Action.Run(ctx, ins.Params, ectx)
	if err != nil {
		var jerr *jidoerr.Error
		if errors.As(err, &jerr) {
			return nil, err
		}
		return nil, jidoerr.Execution(
			fmt.Sprintf("action %s failed", ins.Action.Name()), err)
	}
	if result == nil {
		result = &instruction.Result{}
	}
	return result, nil
}
