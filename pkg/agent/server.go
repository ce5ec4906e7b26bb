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
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/jido/internal/csync"
	"github.com/teradata-labs/jido/pkg/directive"
	"github.com/teradata-labs/jido/pkg/dispatch"
	"github.com/teradata-labs/jido/pkg/instruction"
	"github.com/teradata-labs/jido/pkg/jidoerr"
	"github.com/teradata-labs/jido/pkg/router"
	"github.com/teradata-labs/jido/pkg/runner"
	"github.com/teradata-labs/jido/pkg/scheduler"
	"github.com/teradata-labs/jido/pkg/signal"
	"github.com/teradata-labs/jido/pkg/strategy"
)

type envKind int

const (
	envSignal envKind = iota
	envStep
	envChildDown
	envStop
)

type envelope struct {
	kind   envKind
	sig    *signal.Signal
	reply  chan callResult
	tag    string
	reason string
}

type callResult struct {
	agent *Agent
	err   error
}

// ServerConfig configures one agent server.
type ServerConfig struct {
	// Definition is the agent kind to run. Required.
	Definition *Definition

	// ID is the registry identity. Required.
	ID string

	// Supervisor starts and stops children; nil disables SpawnAgent and
	// StopChild directives.
	Supervisor Supervisor

	// Dispatcher delivers emitted signals; nil creates a private one.
	Dispatcher *dispatch.Dispatcher

	// Parent links a spawned child back to its parent.
	Parent *ParentRef

	// DefaultDispatch receives Emit directives that carry no target of
	// their own and are not addressed to the parent.
	DefaultDispatch []dispatch.Config

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Server is the supervised process of one agent: a single goroutine
// draining a FIFO mailbox. Signals, timer ticks, cron ticks, and child
// exit notices all pass through the same mailbox, so directive
// application for signal N completes before signal N+1 is examined.
type Server struct {
	id         string
	def        *Definition
	logger     *zap.Logger
	dispatcher *dispatch.Dispatcher
	supervisor Supervisor
	sched      *scheduler.Scheduler

	run        runner.Runner
	runnerOpts runner.Options
	strat      strategy.Strategy
	mode       Mode

	plugins       []Plugin
	pluginConfigs map[string]map[string]any

	mailbox  *csync.Queue[envelope]
	stopCh   chan struct{}
	done     chan struct{}
	alive    atomic.Bool
	abnormal atomic.Bool
	stopped  sync.Once

	defaultDispatch []dispatch.Config

	// Loop-owned state. Only the server goroutine touches these.
	agent       *Agent
	actions     map[string]instruction.Action
	routes      *router.Router
	stratState  strategy.State
	stepBacklog []envelope
	stopping    bool
	stopReason  string

	// snapshot is the last published agent view, readable without the
	// loop. Updated after every processed envelope. exitReason shares the
	// lock: it is written once on loop exit and read by monitors.
	snapshotMu sync.RWMutex
	snapshot   *Agent
	exitReason string
}

// NewServer builds, mounts, and starts an agent server. The returned
// server is live: its loop goroutine is draining the mailbox.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.Definition.validate(); err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		return nil, jidoerr.Validation("invalid_config", "agent server requires an id")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = dispatch.New(dispatch.Options{Logger: cfg.Logger})
	}

	def := cfg.Definition
	s := &Server{
		id:              cfg.ID,
		def:             def,
		logger:          cfg.Logger.With(zap.String("agent_id", cfg.ID), zap.String("module", def.Name)),
		dispatcher:      cfg.Dispatcher,
		supervisor:      cfg.Supervisor,
		mode:            def.Mode,
		plugins:         def.Plugins,
		pluginConfigs:   make(map[string]map[string]any),
		mailbox:         csync.NewQueue[envelope](),
		stopCh:          make(chan struct{}),
		done:            make(chan struct{}),
		defaultDispatch: cfg.DefaultDispatch,
		actions:         make(map[string]instruction.Action),
	}
	if s.mode == "" {
		s.mode = ModeAuto
	}

	s.run = def.Runner
	if s.run == nil {
		s.run = runner.NewSimple()
	}
	s.runnerOpts = def.RunnerOptions
	if s.runnerOpts == (runner.Options{}) {
		s.runnerOpts = runner.DefaultOptions()
	}
	s.runnerOpts.Logger = s.logger

	s.strat = def.Strategy
	if s.strat == nil {
		s.strat = strategy.NewDefault()
	}
	stratState, err := s.strat.Init(def.StrategyConfig)
	if err != nil {
		return nil, err
	}
	s.stratState = stratState

	s.agent = &Agent{
		ID:       cfg.ID,
		Module:   def.Name,
		State:    directive.DeepMerge(nil, def.InitialState),
		Children: make(map[string]ChildRef),
		Parent:   cfg.Parent,
	}

	for _, action := range def.Actions {
		s.actions[action.Name()] = action
	}

	combined, err := router.New(def.Routes...)
	if err != nil {
		return nil, err
	}
	s.routes = combined

	if err := s.mountPlugins(); err != nil {
		return nil, err
	}

	s.sched = scheduler.New(inboxSink{s: s}, s.logger)
	s.alive.Store(true)
	s.publishSnapshot()

	go s.loop()
	return s, nil
}

// mountPlugins validates plugin configs, mounts sub-state, and folds
// plugin actions and routes into the agent's tables.
func (s *Server) mountPlugins() error {
	for _, p := range s.plugins {
		config := s.pluginConfigFor(p)

		if v, ok := p.(ConfigValidator); ok {
			if err := v.ConfigSchema().Validate(config); err != nil {
				return fmt.Errorf("plugin %s config: %w", p.Name(), err)
			}
		}

		state, err := p.Mount(s.agent, config)
		if err != nil {
			return fmt.Errorf("mount plugin %s: %w", p.Name(), err)
		}
		if state != nil {
			s.agent.State[p.StateKey()] = state
		}

		for _, action := range p.Actions() {
			if _, taken := s.actions[action.Name()]; !taken {
				s.actions[action.Name()] = action
			}
		}
		if _, err := s.routes.Add(p.Routes(config)...); err != nil {
			return fmt.Errorf("plugin %s routes: %w", p.Name(), err)
		}
	}
	return nil
}

// PluginSpec pairs a plugin with its mount config inside
// Definition.DefaultPlugins overrides.
type PluginSpec struct {
	Plugin Plugin
	Config map[string]any
}

func (s *Server) pluginConfigFor(p Plugin) map[string]any {
	if cfg, ok := s.pluginConfigs[p.Name()]; ok {
		return cfg
	}
	for _, override := range s.def.DefaultPlugins {
		if spec, ok := override.(PluginSpec); ok && spec.Plugin != nil && spec.Plugin.Name() == p.Name() {
			s.pluginConfigs[p.Name()] = spec.Config
			return spec.Config
		}
	}
	return nil
}

// ID returns the registry identity.
func (s *Server) ID() string { return s.id }

// Module returns the definition name.
func (s *Server) Module() string { return s.def.Name }

// Alive implements dispatch.Process.
func (s *Server) Alive() bool { return s.alive.Load() }

// Done closes when the server loop has exited.
func (s *Server) Done() <-chan struct{} { return s.done }

// ExitReason reports why the server stopped; empty while running.
func (s *Server) ExitReason() string {
	s.snapshotMu.RLock()
	defer s.snapshotMu.RUnlock()
	return s.exitReason
}

// Abnormal reports whether the server terminated on an escaped fault
// rather than a requested stop. Transient restart policy keys off this.
func (s *Server) Abnormal() bool { return s.abnormal.Load() }

// Call delivers a signal synchronously: it enqueues and blocks until that
// signal's processing result is available, the context expires, or the
// server stops. The returned agent is a snapshot enriched by the plugins'
// TransformResult hooks.
func (s *Server) Call(ctx context.Context, sig *signal.Signal) (*Agent, error) {
	if !s.alive.Load() {
		return nil, jidoerr.Dispatch(jidoerr.CodeProcessNotAlive, "agent has stopped").
			WithDetail("agent_id", s.id)
	}
	reply := make(chan callResult, 1)
	s.mailbox.Push(envelope{kind: envSignal, sig: sig, reply: reply})

	select {
	case res := <-reply:
		return res.agent, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, jidoerr.Dispatch(jidoerr.CodeProcessNotAlive, "agent stopped while processing").
			WithDetail("agent_id", s.id)
	}
}

// Cast delivers a signal asynchronously.
func (s *Server) Cast(sig *signal.Signal) error {
	if !s.alive.Load() {
		return jidoerr.Dispatch(jidoerr.CodeProcessNotAlive, "agent has stopped").
			WithDetail("agent_id", s.id)
	}
	s.mailbox.Push(envelope{kind: envSignal, sig: sig})
	return nil
}

// Deliver implements dispatch.Process.
func (s *Server) Deliver(_ context.Context, sig *signal.Signal) error {
	return s.Cast(sig)
}

// Request implements dispatch.Process.
func (s *Server) Request(ctx context.Context, sig *signal.Signal) (any, error) {
	return s.Call(ctx, sig)
}

// State returns the last published agent snapshot. It never blocks on the
// processing loop.
func (s *Server) State() *Agent {
	s.snapshotMu.RLock()
	defer s.snapshotMu.RUnlock()
	return s.snapshot
}

// StrategyStatus reports the strategy machine's observable status.
func (s *Server) StrategyStatus() strategy.Status {
	s.snapshotMu.RLock()
	state := s.stratState
	s.snapshotMu.RUnlock()
	return s.strat.Snapshot(state)
}

// CronJobs returns the ids of the agent's registered cron jobs.
func (s *Server) CronJobs() []string {
	return s.sched.CronJobs()
}

// Step processes one queued signal when the server runs in ModeStep.
func (s *Server) Step() {
	s.mailbox.Push(envelope{kind: envStep})
}

// Stop terminates the server: timers and cron jobs are cancelled, tracked
// children are stopped, and the loop exits. Blocks until shutdown
// completes or the context expires.
func (s *Server) Stop(ctx context.Context, reason string) error {
	s.stopped.Do(func() {
		s.mailbox.Push(envelope{kind: envStop, reason: reason})
		close(s.stopCh)
	})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// inboxSink adapts the server mailbox to the scheduler.
type inboxSink struct{ s *Server }

func (sink inboxSink) Post(sig *signal.Signal) {
	if sink.s.alive.Load() {
		sink.s.mailbox.Push(envelope{kind: envSignal, sig: sig})
	}
}

// notifyChildDown is pushed by the monitor goroutine watching a child.
func (s *Server) notifyChildDown(tag, reason string) {
	s.mailbox.Push(envelope{kind: envChildDown, tag: tag, reason: reason})
}

func (s *Server) publishSnapshot() {
	s.snapshotMu.Lock()
	s.snapshot = s.agent.Clone()
	s.snapshotMu.Unlock()
}

// loop is the server goroutine: a strict FIFO drain of the mailbox. A
// fault escaping signal processing terminates the agent abnormally; the
// supervisor applies its restart policy.
func (s *Server) loop() {
	defer close(s.done)
	defer s.shutdown()
	defer func() {
		if r := recover(); r != nil {
			s.abnormal.Store(true)
			s.exitWith(fmt.Sprintf("panic: %v", r))
			s.logger.Error("agent loop fault", zap.Any("panic", r))
		}
	}()

	for {
		env, ok := s.mailbox.Pop()
		if !ok {
			select {
			case <-s.mailbox.Wait():
				continue
			case <-s.stopCh:
				// Drain anything that raced in ahead of the stop.
				if env, ok = s.mailbox.Pop(); !ok {
					return
				}
			}
		}

		switch env.kind {
		case envStop:
			s.exitWith(env.reason)
			return

		case envChildDown:
			s.handleChildDown(env)

		case envStep:
			if len(s.stepBacklog) > 0 {
				next := s.stepBacklog[0]
				s.stepBacklog = s.stepBacklog[1:]
				s.processSignal(next)
			}

		case envSignal:
			if s.mode == ModeStep {
				s.stepBacklog = append(s.stepBacklog, env)
				continue
			}
			s.processSignal(env)
		}

		if s.stopping {
			s.exitWith(s.stopReason)
			return
		}
	}
}

func (s *Server) exitWith(reason string) {
	s.snapshotMu.Lock()
	s.exitReason = reason
	s.snapshotMu.Unlock()
}

// shutdown runs on loop exit: cancel timers and cron, stop children,
// refuse further traffic.
func (s *Server) shutdown() {
	s.alive.Store(false)
	s.sched.StopAll()

	if s.supervisor != nil && len(s.agent.Children) > 0 {
		var wg sync.WaitGroup
		for _, child := range s.agent.Children {
			wg.Add(1)
			go func(ref ChildRef) {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := s.supervisor.StopAgent(ctx, ref.ID, "parent stopped"); err != nil {
					s.logger.Warn("failed to stop child",
						zap.String("child_id", ref.ID), zap.Error(err))
				}
			}(child)
		}
		wg.Wait()
	}

	s.publishSnapshot()
	s.logger.Info("agent stopped", zap.String("reason", s.exitReasonLocked()))
}

func (s *Server) exitReasonLocked() string {
	s.snapshotMu.RLock()
	defer s.snapshotMu.RUnlock()
	return s.exitReason
}

func (s *Server) handleChildDown(env envelope) {
	ref, ok := s.agent.Children[env.tag]
	if !ok {
		return
	}
	delete(s.agent.Children, env.tag)
	s.publishSnapshot()

	s.logger.Debug("child exited",
		zap.String("tag", env.tag),
		zap.String("child_id", ref.ID),
		zap.String("reason", env.reason))

	exited, err := signal.New(signal.TypeChildExited, s.id,
		signal.WithData(map[string]any{"tag": env.tag, "reason": env.reason}))
	if err == nil {
		s.mailbox.Push(envelope{kind: envSignal, sig: exited})
	}
}
