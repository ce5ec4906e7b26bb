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

package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/teradata-labs/jido/pkg/directive"
	"github.com/teradata-labs/jido/pkg/instruction"
	"github.com/teradata-labs/jido/pkg/jidoerr"
	"github.com/teradata-labs/jido/pkg/router"
	"github.com/teradata-labs/jido/pkg/runner"
	"github.com/teradata-labs/jido/pkg/signal"
	"github.com/teradata-labs/jido/pkg/strategy"
)

// processSignal runs one signal through middleware, routing, execution,
// and directive application, then answers a synchronous caller.
func (s *Server) processSignal(env envelope) {
	sig := env.sig
	reply := func(a *Agent, err error) {
		if env.reply != nil {
			env.reply <- callResult{agent: a, err: err}
		} else if err != nil {
			s.logger.Warn("signal processing failed",
				zap.String("signal_type", sig.Type), zap.Error(err))
		}
	}

	// Plugin middleware, in declaration order.
	sig, override, err := s.runMiddleware(sig)
	if err != nil {
		reply(nil, err)
		return
	}

	// Resolve to an instruction batch.
	instructions, handled, err := s.resolve(sig, override)
	if err != nil {
		reply(nil, err)
		return
	}
	if handled || len(instructions) == 0 {
		s.publishSnapshot()
		reply(s.transformedSnapshot(nil), nil)
		return
	}

	// Execute through the strategy and runner, draining the batch.
	outcome, runErr := s.executeBatch(instructions)

	if outcome != nil {
		s.agent.State = outcome.State
		s.agent.Result = outcome.Result
	}
	s.drainThreadEntries()

	var lastAction instruction.Action
	if len(instructions) > 0 {
		lastAction = instructions[len(instructions)-1].Action
	}

	if runErr != nil {
		s.publishSnapshot()
		reply(nil, runErr)
		return
	}

	ctx := context.Background()
	var applyErr error
	for _, d := range outcome.Directives {
		if err := s.applyDirective(ctx, d, lastAction); err != nil {
			s.logger.Error("directive application failed",
				zap.String("signal_type", sig.Type), zap.Error(err))
			if applyErr == nil {
				applyErr = err
			}
		}
		if directive.IsTerminal(d) {
			break
		}
	}

	s.publishSnapshot()
	if applyErr != nil {
		reply(nil, applyErr)
		return
	}
	reply(s.transformedSnapshot(lastAction), nil)
}

// runMiddleware runs every matching plugin's HandleSignal. The first
// override wins; replacements chain.
func (s *Server) runMiddleware(sig *signal.Signal) (*signal.Signal, *Decision, error) {
	for _, p := range s.plugins {
		if !router.MatchesAny(p.SignalPatterns(), sig.Type) {
			continue
		}
		pctx := &PluginContext{
			Agent:  s.agent,
			Config: s.pluginConfigs[p.Name()],
			Logger: s.logger.With(zap.String("plugin", p.Name())),
		}
		decision, err := p.HandleSignal(sig, pctx)
		if err != nil {
			return nil, nil, fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		switch decision.Kind {
		case DecisionReplace:
			if decision.Signal != nil {
				sig = decision.Signal
			}
		case DecisionOverride:
			return sig, &decision, nil
		}
	}
	return sig, nil, nil
}

// resolve turns a signal into the instruction batch to execute. handled
// reports that the signal was consumed without instructions (lifecycle
// defaults, pure dispatch routes).
func (s *Server) resolve(sig *signal.Signal, override *Decision) ([]*instruction.Instruction, bool, error) {
	if override != nil {
		params := mergeParams(override.Params, sig.DataMap())
		ins, err := instruction.New(override.Action, params, signalContext(sig), instruction.Opts{})
		if err != nil {
			return nil, false, err
		}
		return []*instruction.Instruction{ins}, false, nil
	}

	targets, err := s.routes.Route(sig)
	if err != nil {
		if jidoerr.CodeOf(err) == jidoerr.CodeNoHandler && isLifecycleType(sig.Type) {
			// Lifecycle signals have built-in default handling; silence
			// no_handler when the agent declares no route for them.
			return nil, true, nil
		}
		return nil, false, err
	}

	var instructions []*instruction.Instruction
	dispatched := false
	for _, t := range targets {
		switch target := t.(type) {
		case router.ActionTarget:
			params := mergeParams(target.Params, sig.DataMap())
			ins, err := instruction.New(target.Action, params, signalContext(sig), instruction.Opts{})
			if err != nil {
				return nil, false, err
			}
			instructions = append(instructions, ins)
		case router.DispatchTarget:
			if err := s.dispatcher.Dispatch(context.Background(), sig, target.Configs...); err != nil {
				s.logger.Warn("route dispatch failed",
					zap.String("signal_type", sig.Type), zap.Error(err))
			}
			dispatched = true
		}
	}
	return instructions, dispatched && len(instructions) == 0, nil
}

// executeBatch wraps the runner with the strategy lifecycle and drains
// the whole batch: the Simple runner executes one instruction per pass,
// so remaining instructions loop until the queue empties.
func (s *Server) executeBatch(instructions []*instruction.Instruction) (*runner.Outcome, error) {
	stratState, err := s.strat.Begin(s.stratState, instructions)
	if err != nil {
		return nil, err
	}
	s.stratState = stratState

	state := s.agent.State
	queue := instructions
	var merged runner.Outcome
	merged.State = state

	for len(queue) > 0 {
		outcome, runErr := s.run.Run(context.Background(), &runner.Request{
			AgentID:       s.id,
			State:         state,
			Instructions:  queue,
			ResolveAction: s.lookupAction,
		}, s.runnerOpts)

		if outcome != nil {
			merged.State = outcome.State
			merged.Result = outcome.Result
			merged.Directives = append(merged.Directives, outcome.Directives...)
			merged.Executed += outcome.Executed
			state = outcome.State
			queue = outcome.Remaining
		}
		if runErr != nil {
			s.stratState = s.strat.End(s.stratState, &merged, runErr)
			return &merged, runErr
		}
		if outcome == nil {
			break
		}
		if hasTerminal(outcome.Directives) {
			break
		}
	}

	s.stratState = s.strat.End(s.stratState, &merged, nil)
	return &merged, nil
}

func hasTerminal(ds []directive.Directive) bool {
	for _, d := range ds {
		if directive.IsTerminal(d) {
			return true
		}
	}
	return false
}

func (s *Server) lookupAction(name string) (instruction.Action, bool) {
	action, ok := s.actions[name]
	return action, ok
}

// drainThreadEntries moves recorded strategy thread entries into the
// thread plugin's state when one is mounted.
func (s *Server) drainThreadEntries() {
	threaded, ok := s.strat.(*strategy.Threaded)
	if !ok {
		return
	}
	entries, nextState := threaded.Drain(s.stratState)
	s.stratState = nextState
	if len(entries) == 0 {
		return
	}

	const threadKey = "thread"
	slot, ok := s.agent.State[threadKey].(map[string]any)
	if !ok {
		return
	}
	existing, _ := slot["entries"].([]any)
	for _, e := range entries {
		existing = append(existing, map[string]any{
			"kind":    e.Kind,
			"actions": e.Actions,
			"at":      e.At,
			"result":  e.Result,
			"error":   e.Error,
		})
	}
	slot["entries"] = existing
}

// transformedSnapshot clones the agent and runs every plugin's
// TransformResult on the clone, leaving server state untouched.
func (s *Server) transformedSnapshot(action instruction.Action) *Agent {
	view := s.agent.Clone()
	for _, p := range s.plugins {
		pctx := &PluginContext{
			Agent:  view,
			Config: s.pluginConfigs[p.Name()],
			Logger: s.logger.With(zap.String("plugin", p.Name())),
		}
		transformed, err := p.TransformResult(action, view, pctx)
		if err != nil {
			s.logger.Warn("transform_result failed",
				zap.String("plugin", p.Name()), zap.Error(err))
			continue
		}
		if transformed != nil {
			view = transformed
		}
	}
	return view
}

func isLifecycleType(signalType string) bool {
	return signalType == signal.TypeChildStarted || signalType == signal.TypeChildExited
}

// mergeParams overlays the signal's data map onto a route's default
// params.
func mergeParams(defaults, data map[string]any) map[string]any {
	if len(defaults) == 0 {
		return data
	}
	return directive.DeepMerge(defaults, data)
}

func signalContext(sig *signal.Signal) map[string]any {
	return map[string]any{
		"signal_id":     sig.ID,
		"signal_type":   sig.Type,
		"signal_source": sig.Source,
	}
}
