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
	"github.com/teradata-labs/jido/pkg/signal"
)

// applyDirective applies one non-state directive on the server loop.
// current is the action that produced the directive, used to reject
// self-deregistration.
func (s *Server) applyDirective(ctx context.Context, d directive.Directive, current instruction.Action) error {
	if err := directive.Validate(d); err != nil {
		return err
	}

	switch v := d.(type) {
	case directive.SetState, directive.ReplaceState, directive.DeleteKeys,
		directive.SetPath, directive.DeletePath:
		// State ops normally apply inside the runner; one arriving here
		// (runner configured with ApplyState false) applies directly.
		next, err := directive.ApplyStateOps(s.agent.State, []directive.Directive{d})
		if err != nil {
			return err
		}
		s.agent.State = next
		return nil

	case directive.Emit:
		return s.applyEmit(ctx, v)

	case directive.Schedule:
		s.sched.ScheduleOnce(v.Delay, v.Message)
		return nil

	case directive.Cron:
		return s.sched.RegisterCron(v.JobID, v.Spec, v.Timezone, v.Message)

	case directive.CronCancel:
		s.sched.CancelCron(v.JobID)
		return nil

	case directive.SpawnAgent:
		return s.applySpawn(ctx, v)

	case directive.StopChild:
		return s.applyStopChild(ctx, v)

	case directive.Stop:
		s.stopping = true
		s.stopReason = v.Reason
		return nil

	case directive.Enqueue:
		// Reaches here when the runner left the enqueue unresolved: the
		// Chain runner never resolves one, and Simple leaves unknown
		// action names unresolved.
		action, ok := s.actions[v.ActionName]
		if !ok {
			return jidoerr.Validation("unknown_action",
				fmt.Sprintf("enqueue references unknown action %q", v.ActionName))
		}
		ins, err := instruction.New(action, v.Params, v.Context, instruction.Opts{})
		if err != nil {
			return err
		}
		outcome, runErr := s.executeBatch([]*instruction.Instruction{ins})
		if outcome != nil {
			s.agent.State = outcome.State
			s.agent.Result = outcome.Result
		}
		return runErr

	case directive.RegisterAction:
		action, ok := v.Action.(instruction.Action)
		if !ok {
			return jidoerr.Validation("invalid_directive",
				"RegisterAction requires an instruction.Action")
		}
		s.actions[action.Name()] = action
		return nil

	case directive.DeregisterAction:
		if current != nil && current.Name() == v.ActionName {
			return jidoerr.Validation("invalid_directive",
				"an action cannot deregister itself")
		}
		delete(s.actions, v.ActionName)
		return nil

	case directive.RegisterRoute:
		action, ok := s.actions[v.ActionName]
		if !ok {
			return jidoerr.Validation("unknown_action",
				fmt.Sprintf("route references unknown action %q", v.ActionName))
		}
		_, err := s.routes.Add(&router.Route{
			Path:     v.Path,
			Target:   router.ActionTarget{Action: action, Params: v.Params},
			Priority: v.Priority,
		})
		return err

	case directive.DeregisterRoute:
		s.routes.Remove(v.Path)
		return nil

	default:
		return jidoerr.Validation("invalid_directive",
			fmt.Sprintf("unknown directive type %T", d))
	}
}

func (s *Server) applyEmit(ctx context.Context, v directive.Emit) error {
	if v.ToParent {
		if s.agent.Parent == nil || s.agent.Parent.Ref == nil {
			// Root agents drop parent emissions.
			s.logger.Debug("emit_to_parent with no parent, dropping",
				zap.String("signal_type", v.Signal.Type))
			return nil
		}
		return s.agent.Parent.Ref.Deliver(ctx, v.Signal)
	}

	configs := v.Dispatch
	if len(configs) == 0 {
		configs = s.defaultDispatch
	}
	if len(configs) == 0 {
		s.logger.Debug("emit with no dispatch target, dropping",
			zap.String("signal_type", v.Signal.Type))
		return nil
	}
	return s.dispatcher.Dispatch(ctx, v.Signal, configs...)
}

func (s *Server) applySpawn(ctx context.Context, v directive.SpawnAgent) error {
	if s.supervisor == nil {
		return jidoerr.Lifecycle("no_supervisor", "agent has no supervisor; cannot spawn children")
	}
	if _, exists := s.agent.Children[v.Tag]; exists {
		return jidoerr.Lifecycle(jidoerr.CodeChildAlreadyTracked,
			"child tag already in use").WithDetail("tag", v.Tag)
	}
	def, ok := v.Module.(*Definition)
	if !ok {
		return jidoerr.Validation("invalid_directive",
			"SpawnAgent module must be an agent definition")
	}

	child, err := s.supervisor.StartChild(ctx, s, def, v.Tag, v.Opts, v.Meta)
	if err != nil {
		return err
	}

	ref := ChildRef{
		Ref:    child,
		ID:     child.ID(),
		Module: def.Name,
		Tag:    v.Tag,
		Meta:   v.Meta,
	}
	s.agent.Children[v.Tag] = ref

	// Monitor the child and convert its exit into an inbox notice; the
	// children table update happens in-line before the next signal.
	go func(tag string, child *Server) {
		<-child.Done()
		s.notifyChildDown(tag, child.ExitReason())
	}(v.Tag, child)

	started, err := signal.New(signal.TypeChildStarted, s.id,
		signal.WithData(map[string]any{
			"pid":          child,
			"child_id":     child.ID(),
			"child_module": def.Name,
			"tag":          v.Tag,
			"meta":         v.Meta,
		}))
	if err != nil {
		return err
	}
	s.mailbox.Push(envelope{kind: envSignal, sig: started})

	s.logger.Info("spawned child",
		zap.String("child_id", child.ID()),
		zap.String("tag", v.Tag))
	return nil
}

func (s *Server) applyStopChild(ctx context.Context, v directive.StopChild) error {
	ref, ok := s.agent.Children[v.Tag]
	if !ok {
		return jidoerr.Lifecycle(jidoerr.CodeChildNotFound,
			"no child tracked under tag").WithDetail("tag", v.Tag)
	}
	if s.supervisor == nil {
		return jidoerr.Lifecycle("no_supervisor", "agent has no supervisor")
	}
	reason := v.Reason
	if reason == "" {
		reason = "stopped by parent"
	}
	// Removal from the children table happens on the DOWN notice, keeping
	// the table consistent with the supervisor.
	return s.supervisor.StopAgent(ctx, ref.ID, reason)
}
