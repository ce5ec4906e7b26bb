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

// Package jido bundles one runtime instance: a dynamic supervisor of
// agent servers, the id registry, and the default dispatch target. Child
// agents register under "{parent.id}/{tag}"; abnormal exits restart per a
// transient policy with a bounded budget.
package jido

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/jido/internal/csync"
	"github.com/teradata-labs/jido/pkg/agent"
	"github.com/teradata-labs/jido/pkg/dispatch"
	"github.com/teradata-labs/jido/pkg/jidoerr"
	"github.com/teradata-labs/jido/pkg/plugin"
)

// Defaults for the transient restart policy.
const (
	DefaultMaxRestarts   = 3
	DefaultRestartWindow = time.Minute
)

// Config configures an instance.
type Config struct {
	// Name labels the instance in logs.
	Name string

	// Dispatcher is shared by every agent the instance starts; nil
	// creates one wired to the instance registry.
	Dispatcher *dispatch.Dispatcher

	// DefaultDispatch receives agent emissions that carry no target.
	DefaultDispatch []dispatch.Config

	// MaxRestarts bounds abnormal-exit restarts per agent within
	// RestartWindow. Zero applies DefaultMaxRestarts.
	MaxRestarts int

	// RestartWindow is the budget window. Zero applies
	// DefaultRestartWindow.
	RestartWindow time.Duration

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Instance is one running jido runtime.
type Instance struct {
	name            string
	logger          *zap.Logger
	dispatcher      *dispatch.Dispatcher
	defaultDispatch []dispatch.Config
	maxRestarts     int
	restartWindow   time.Duration

	registry *csync.Map[string, *agent.Server]

	// startMu serializes starts so duplicate-id checks and registry
	// insertion are atomic.
	startMu sync.Mutex

	specs *csync.Map[string, startSpec]

	closed bool
}

// startSpec remembers how an agent was started so the restart policy can
// recreate it.
type startSpec struct {
	def      *agent.Definition
	parent   *agent.ParentRef
	restarts []time.Time
}

// New creates an instance.
func New(cfg Config) *Instance {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = DefaultMaxRestarts
	}
	if cfg.RestartWindow <= 0 {
		cfg.RestartWindow = DefaultRestartWindow
	}

	inst := &Instance{
		name:            cfg.Name,
		logger:          cfg.Logger,
		defaultDispatch: cfg.DefaultDispatch,
		maxRestarts:     cfg.MaxRestarts,
		restartWindow:   cfg.RestartWindow,
		registry:        csync.NewMap[string, *agent.Server](),
		specs:           csync.NewMap[string, startSpec](),
	}

	inst.dispatcher = cfg.Dispatcher
	if inst.dispatcher == nil {
		inst.dispatcher = dispatch.New(dispatch.Options{
			Processes: inst,
			Logger:    cfg.Logger,
		})
	}
	return inst
}

// Resolve implements dispatch.Resolver over the agent registry.
func (j *Instance) Resolve(name string) (dispatch.Process, bool) {
	srv, ok := j.registry.Get(name)
	if !ok {
		return nil, false
	}
	return srv, true
}

// Dispatcher returns the instance's shared dispatcher.
func (j *Instance) Dispatcher() *dispatch.Dispatcher { return j.dispatcher }

// StartAgent starts def as a root agent registered under id.
func (j *Instance) StartAgent(ctx context.Context, def *agent.Definition, id string) (*agent.Server, error) {
	return j.start(ctx, def, id, nil)
}

// StartChild implements agent.Supervisor: the child registers under
// "{parent.id}/{tag}" and carries a parent ref.
func (j *Instance) StartChild(ctx context.Context, parent *agent.Server, def *agent.Definition,
	tag string, _ map[string]any, meta map[string]any) (*agent.Server, error) {

	if parent == nil {
		return nil, jidoerr.Validation("invalid_spawn", "child spawn requires a parent")
	}
	childID := fmt.Sprintf("%s/%s", parent.ID(), tag)
	parentRef := &agent.ParentRef{
		Ref:  parent,
		ID:   parent.ID(),
		Tag:  tag,
		Meta: meta,
	}
	return j.start(ctx, def, childID, parentRef)
}

func (j *Instance) start(_ context.Context, def *agent.Definition, id string,
	parent *agent.ParentRef) (*agent.Server, error) {

	if id == "" {
		return nil, jidoerr.Validation("invalid_config", "agent id is required")
	}

	expanded, err := plugin.Apply(def)
	if err != nil {
		return nil, err
	}

	j.startMu.Lock()
	defer j.startMu.Unlock()

	if j.closed {
		return nil, jidoerr.Lifecycle("instance_closed", "instance is shut down")
	}
	if _, exists := j.registry.Get(id); exists {
		return nil, jidoerr.Validation("duplicate_agent_id",
			"an agent with this id is already running").WithDetail("agent_id", id)
	}

	srv, err := agent.NewServer(agent.ServerConfig{
		Definition:      expanded,
		ID:              id,
		Supervisor:      j,
		Dispatcher:      j.dispatcher,
		Parent:          parent,
		DefaultDispatch: j.defaultDispatch,
		Logger:          j.logger,
	})
	if err != nil {
		return nil, err
	}

	j.registry.Set(id, srv)
	j.specs.Set(id, startSpec{def: expanded, parent: parent})
	go j.monitor(id, srv)

	j.logger.Info("agent started",
		zap.String("instance", j.name),
		zap.String("agent_id", id),
		zap.String("module", def.Name))
	return srv, nil
}

// monitor watches a server and applies the transient restart policy when
// it faults.
func (j *Instance) monitor(id string, srv *agent.Server) {
	<-srv.Done()

	j.startMu.Lock()
	current, ok := j.registry.Get(id)
	if !ok || current != srv {
		j.startMu.Unlock()
		return
	}
	j.registry.Delete(id)

	if !srv.Abnormal() || j.closed {
		j.specs.Delete(id)
		j.startMu.Unlock()
		return
	}

	spec, ok := j.specs.Get(id)
	if !ok {
		j.startMu.Unlock()
		return
	}

	now := time.Now()
	recent := spec.restarts[:0]
	for _, t := range spec.restarts {
		if now.Sub(t) < j.restartWindow {
			recent = append(recent, t)
		}
	}
	if len(recent) >= j.maxRestarts {
		j.specs.Delete(id)
		j.startMu.Unlock()
		j.logger.Error("agent exceeded restart budget, giving up",
			zap.String("agent_id", id),
			zap.String("reason", srv.ExitReason()))
		return
	}
	spec.restarts = append(recent, now)
	j.specs.Set(id, spec)

	replacement, err := agent.NewServer(agent.ServerConfig{
		Definition:      spec.def,
		ID:              id,
		Supervisor:      j,
		Dispatcher:      j.dispatcher,
		Parent:          spec.parent,
		DefaultDispatch: j.defaultDispatch,
		Logger:          j.logger,
	})
	if err != nil {
		j.specs.Delete(id)
		j.startMu.Unlock()
		j.logger.Error("agent restart failed", zap.String("agent_id", id), zap.Error(err))
		return
	}
	j.registry.Set(id, replacement)
	j.startMu.Unlock()

	j.logger.Warn("agent restarted after fault",
		zap.String("agent_id", id),
		zap.String("reason", srv.ExitReason()),
		zap.Int("restart_count", len(spec.restarts)))
	go j.monitor(id, replacement)
}

// StopAgent implements agent.Supervisor and the public stop API. The
// registry entry is removed up front so a stopping agent is no longer
// resolvable; the monitor goroutine tolerates the missing entry.
func (j *Instance) StopAgent(ctx context.Context, id string, reason string) error {
	srv, ok := j.registry.Take(id)
	if !ok {
		return jidoerr.Dispatch(jidoerr.CodeProcessNotFound,
			"no agent registered under id").WithDetail("agent_id", id)
	}
	j.specs.Delete(id)
	return srv.Stop(ctx, reason)
}

// AgentRef returns the running server registered under id.
func (j *Instance) AgentRef(id string) (*agent.Server, bool) {
	return j.registry.Get(id)
}

// ListAgents returns the ids of every running agent.
func (j *Instance) ListAgents() []string {
	return j.registry.Keys()
}

// Shutdown stops every running agent and refuses further starts.
func (j *Instance) Shutdown(ctx context.Context) error {
	j.startMu.Lock()
	j.closed = true
	j.startMu.Unlock()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, id := range j.registry.Keys() {
		srv, ok := j.registry.Get(id)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(srv *agent.Server) {
			defer wg.Done()
			if err := srv.Stop(ctx, "instance shutdown"); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(srv)
	}
	wg.Wait()

	j.logger.Info("instance shut down", zap.String("instance", j.name))
	return firstErr
}
