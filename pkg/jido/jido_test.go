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

package jido

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/jido/pkg/agent"
	"github.com/teradata-labs/jido/pkg/directive"
	"github.com/teradata-labs/jido/pkg/dispatch"
	"github.com/teradata-labs/jido/pkg/instruction"
	"github.com/teradata-labs/jido/pkg/router"
	"github.com/teradata-labs/jido/pkg/signal"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newInstance(t *testing.T) *Instance {
	t.Helper()
	inst := New(Config{Name: "test-instance"})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = inst.Shutdown(ctx)
	})
	return inst
}

func action(name string, fn func(params map[string]any, ectx *instruction.Context) (*instruction.Result, error)) instruction.Action {
	return instruction.NewFunc(name, "", nil,
		func(_ context.Context, params map[string]any, ectx *instruction.Context) (*instruction.Result, error) {
			return fn(params, ectx)
		})
}

func route(path string, act instruction.Action) *router.Route {
	return &router.Route{Path: path, Target: router.ActionTarget{Action: act}}
}

// pidOf extracts the child process handed to a child.started handler.
func pidOf(params map[string]any) dispatch.Process {
	proc, _ := params["pid"].(dispatch.Process)
	return proc
}

func TestStartAndStopAgent(t *testing.T) {
	inst := newInstance(t)

	def := &agent.Definition{
		Name:           "pinger",
		DefaultPlugins: map[string]any{"*": false},
		Routes: []*router.Route{
			route("ping.now", action("pong", func(map[string]any, *instruction.Context) (*instruction.Result, error) {
				return &instruction.Result{Output: map[string]any{"pong": true}}, nil
			})),
		},
	}

	srv, err := inst.StartAgent(testCtx(t), def, "pinger-1")
	require.NoError(t, err)
	assert.Contains(t, inst.ListAgents(), "pinger-1")

	a, err := srv.Call(testCtx(t), signal.MustNew("ping.now", "test"))
	require.NoError(t, err)
	assert.Equal(t, true, a.Result["pong"])

	require.NoError(t, inst.StopAgent(testCtx(t), "pinger-1", "test over"))
	assert.NotContains(t, inst.ListAgents(), "pinger-1")
}

func TestDuplicateAgentIDRejected(t *testing.T) {
	inst := newInstance(t)
	def := &agent.Definition{Name: "solo", DefaultPlugins: map[string]any{"*": false}}

	_, err := inst.StartAgent(testCtx(t), def, "solo-1")
	require.NoError(t, err)

	_, err = inst.StartAgent(testCtx(t), def, "solo-1")
	require.Error(t, err)
}

func TestNamedDispatchThroughInstanceRegistry(t *testing.T) {
	inst := newInstance(t)

	received := make(chan string, 1)
	def := &agent.Definition{
		Name:           "listener",
		DefaultPlugins: map[string]any{"*": false},
		Routes: []*router.Route{
			route("note.taken", action("note", func(params map[string]any, _ *instruction.Context) (*instruction.Result, error) {
				text, _ := params["text"].(string)
				received <- text
				return &instruction.Result{}, nil
			})),
		},
	}
	_, err := inst.StartAgent(testCtx(t), def, "listener-1")
	require.NoError(t, err)

	err = inst.Dispatcher().Dispatch(testCtx(t),
		signal.MustNew("note.taken", "test", signal.WithData(map[string]any{"text": "hello"})),
		dispatch.ToNamed("listener-1"))
	require.NoError(t, err)

	select {
	case text := <-received:
		assert.Equal(t, "hello", text)
	case <-time.After(5 * time.Second):
		t.Fatal("named dispatch never arrived")
	}
}

func TestDefaultPluginsMountState(t *testing.T) {
	inst := newInstance(t)

	srv, err := inst.StartAgent(testCtx(t), &agent.Definition{Name: "with-defaults"}, "wd-1")
	require.NoError(t, err)

	state := srv.State().State
	assert.Contains(t, state, "thread")
	assert.Contains(t, state, "identity")
	assert.Contains(t, state, "memory")

	// The memory plugin's routed actions work end to end.
	_, err = srv.Call(testCtx(t), signal.MustNew("jido.agent.memory.set", "test",
		signal.WithData(map[string]any{"space": "facts", "key": "answer", "value": 42})))
	require.NoError(t, err)

	a, err := srv.Call(testCtx(t), signal.MustNew("jido.agent.memory.get", "test",
		signal.WithData(map[string]any{"space": "facts", "key": "answer"})))
	require.NoError(t, err)
	assert.Equal(t, 42, a.Result["value"])
	assert.Equal(t, true, a.Result["found"])
}

// Scenario: spawn + reply. The coordinator spawns a worker, sends it the
// query on child.started, and collects the answer emitted to the parent.
func TestSpawnAndReply(t *testing.T) {
	inst := newInstance(t)

	workerDef := &agent.Definition{
		Name:           "worker",
		DefaultPlugins: map[string]any{"*": false},
		Routes: []*router.Route{
			route("worker.query", action("answer", func(params map[string]any, _ *instruction.Context) (*instruction.Result, error) {
				return &instruction.Result{
					Directives: []directive.Directive{
						directive.Emit{
							Signal: signal.MustNew("worker.answer", "worker",
								signal.WithData(map[string]any{"answer": "OK"})),
							ToParent: true,
						},
					},
				}, nil
			})),
		},
	}

	coordinatorDef := &agent.Definition{
		Name:           "coordinator",
		DefaultPlugins: map[string]any{"*": false},
		InitialState:   map[string]any{"status": "idle", "answers": []any{}},
		Routes: []*router.Route{
			route("start.work", action("start", func(params map[string]any, _ *instruction.Context) (*instruction.Result, error) {
				return &instruction.Result{
					Directives: []directive.Directive{
						directive.SetState{Attrs: map[string]any{
							"status": "spawning",
							"query":  params["query"],
						}},
						directive.SpawnAgent{Module: workerDef, Tag: "w1"},
					},
				}, nil
			})),
			route(signal.TypeChildStarted, action("on-child", func(params map[string]any, ectx *instruction.Context) (*instruction.Result, error) {
				query, _ := ectx.State["query"].(string)
				return &instruction.Result{
					Directives: []directive.Directive{
						directive.Emit{
							Signal: signal.MustNew("worker.query", "coordinator",
								signal.WithData(map[string]any{"query": query})),
							Dispatch: []dispatch.Config{dispatch.ToPid(pidOf(params))},
						},
					},
				}, nil
			})),
			route("worker.answer", action("collect", func(params map[string]any, ectx *instruction.Context) (*instruction.Result, error) {
				answers, _ := ectx.State["answers"].([]any)
				answers = append(append([]any(nil), answers...),
					map[string]any{"answer": params["answer"]})
				return &instruction.Result{
					Directives: []directive.Directive{
						directive.SetState{Attrs: map[string]any{
							"answers": answers,
							"status":  "completed",
						}},
					},
				}, nil
			})),
		},
	}

	srv, err := inst.StartAgent(testCtx(t), coordinatorDef, "coordinator-1")
	require.NoError(t, err)

	require.NoError(t, srv.Cast(signal.MustNew("start.work", "test",
		signal.WithData(map[string]any{"query": "hi"}))))

	require.Eventually(t, func() bool {
		return srv.State().State["status"] == "completed"
	}, 5*time.Second, 10*time.Millisecond)

	state := srv.State().State
	answers := state["answers"].([]any)
	require.Len(t, answers, 1)
	assert.Equal(t, map[string]any{"answer": "OK"}, answers[0])

	// The child registered under the hierarchical id.
	_, ok := inst.AgentRef("coordinator-1/w1")
	assert.True(t, ok)
}

// Scenario: cron registration and cancellation. Ticks are driven directly
// so the test does not wait for wall-clock cron boundaries; the cron
// registration itself is asserted through the agent's job table.
func TestCronTickLimit(t *testing.T) {
	inst := newInstance(t)

	const maxTicks = 5
	def := &agent.Definition{
		Name:           "sleeper",
		DefaultPlugins: map[string]any{"*": false},
		InitialState:   map[string]any{"tick_count": 0},
		Routes: []*router.Route{
			route("sleep.start", action("register", func(map[string]any, *instruction.Context) (*instruction.Result, error) {
				return &instruction.Result{
					Directives: []directive.Directive{
						directive.Cron{
							Spec:    "* * * * *",
							JobID:   "hb",
							Message: signal.MustNew("cron.tick", "sleeper"),
						},
					},
				}, nil
			})),
			route("cron.tick", action("tick", func(_ map[string]any, ectx *instruction.Context) (*instruction.Result, error) {
				count, _ := ectx.State["tick_count"].(int)
				count++
				ds := []directive.Directive{
					directive.SetState{Attrs: map[string]any{"tick_count": count}},
				}
				if count >= maxTicks {
					ds = append(ds, directive.CronCancel{JobID: "hb"})
				}
				return &instruction.Result{Directives: ds}, nil
			})),
		},
	}

	srv, err := inst.StartAgent(testCtx(t), def, "sleeper-1")
	require.NoError(t, err)

	_, err = srv.Call(testCtx(t), signal.MustNew("sleep.start", "test"))
	require.NoError(t, err)
	assert.Equal(t, []string{"hb"}, srv.CronJobs())

	for i := 0; i < maxTicks; i++ {
		_, err := srv.Call(testCtx(t), signal.MustNew("cron.tick", "test"))
		require.NoError(t, err)
	}

	assert.Equal(t, maxTicks, srv.State().State["tick_count"])
	assert.Empty(t, srv.CronJobs(), "fifth tick cancels the cron job")

	// A stray tick after cancellation still counts as a plain signal but
	// no job remains registered.
	_, err = srv.Call(testCtx(t), signal.MustNew("cron.tick", "test"))
	require.NoError(t, err)
	assert.Empty(t, srv.CronJobs())
}

// Scenario: hierarchical aggregation. Orchestrator -> Coordinator ->
// 3 workers; results flow back up and the orchestrator records one
// completed job.
func TestHierarchicalAggregation(t *testing.T) {
	inst := newInstance(t)

	workerDef := &agent.Definition{
		Name:           "task-worker",
		DefaultPlugins: map[string]any{"*": false},
		Routes: []*router.Route{
			route("task.run", action("run-task", func(params map[string]any, _ *instruction.Context) (*instruction.Result, error) {
				return &instruction.Result{
					Directives: []directive.Directive{
						directive.Emit{
							Signal: signal.MustNew("task.result", "task-worker",
								signal.WithData(map[string]any{"result": params["task"]})),
							ToParent: true,
						},
					},
				}, nil
			})),
		},
	}

	coordinatorDef := &agent.Definition{
		Name:           "job-coordinator",
		DefaultPlugins: map[string]any{"*": false},
		InitialState:   map[string]any{"results": []any{}, "total_tasks": 0},
		Routes: []*router.Route{
			route("job.start", action("fan-out", func(params map[string]any, _ *instruction.Context) (*instruction.Result, error) {
				tasks, _ := params["tasks"].([]any)
				ds := []directive.Directive{
					directive.SetState{Attrs: map[string]any{
						"total_tasks": len(tasks),
						"tasks":       tasks,
					}},
				}
				for i := range tasks {
					ds = append(ds, directive.SpawnAgent{
						Module: workerDef,
						Tag:    "w" + string(rune('1'+i)),
						Meta:   map[string]any{"task_index": i},
					})
				}
				return &instruction.Result{Directives: ds}, nil
			})),
			route(signal.TypeChildStarted, action("assign", func(params map[string]any, ectx *instruction.Context) (*instruction.Result, error) {
				meta, _ := params["meta"].(map[string]any)
				index, _ := meta["task_index"].(int)
				tasks, _ := ectx.State["tasks"].([]any)
				if index >= len(tasks) {
					return &instruction.Result{}, nil
				}
				return &instruction.Result{
					Directives: []directive.Directive{
						directive.Emit{
							Signal: signal.MustNew("task.run", "job-coordinator",
								signal.WithData(map[string]any{"task": tasks[index]})),
							Dispatch: []dispatch.Config{dispatch.ToPid(pidOf(params))},
						},
					},
				}, nil
			})),
			route("task.result", action("aggregate", func(params map[string]any, ectx *instruction.Context) (*instruction.Result, error) {
				results, _ := ectx.State["results"].([]any)
				results = append(append([]any(nil), results...), params["result"])
				total, _ := ectx.State["total_tasks"].(int)

				ds := []directive.Directive{
					directive.SetState{Attrs: map[string]any{"results": results}},
				}
				if len(results) == total {
					ds = append(ds, directive.Emit{
						Signal: signal.MustNew("job.result", "job-coordinator",
							signal.WithData(map[string]any{
								"results":     results,
								"total_tasks": total,
							})),
						ToParent: true,
					})
				}
				return &instruction.Result{Directives: ds}, nil
			})),
		},
	}

	orchestratorDef := &agent.Definition{
		Name:           "orchestrator",
		DefaultPlugins: map[string]any{"*": false},
		InitialState:   map[string]any{"completed_jobs": []any{}, "pending_jobs": map[string]any{}},
		Routes: []*router.Route{
			route("job.submit", action("submit", func(params map[string]any, _ *instruction.Context) (*instruction.Result, error) {
				return &instruction.Result{
					Directives: []directive.Directive{
						directive.SetPath{
							Path:  []string{"pending_jobs", "job-1"},
							Value: params["tasks"],
						},
						directive.SpawnAgent{Module: coordinatorDef, Tag: "job-1"},
					},
				}, nil
			})),
			route(signal.TypeChildStarted, action("kick-off", func(params map[string]any, ectx *instruction.Context) (*instruction.Result, error) {
				pending, _ := ectx.State["pending_jobs"].(map[string]any)
				tasks := pending["job-1"]
				return &instruction.Result{
					Directives: []directive.Directive{
						directive.Emit{
							Signal: signal.MustNew("job.start", "orchestrator",
								signal.WithData(map[string]any{"tasks": tasks})),
							Dispatch: []dispatch.Config{dispatch.ToPid(pidOf(params))},
						},
					},
				}, nil
			})),
			route("job.result", action("record", func(params map[string]any, ectx *instruction.Context) (*instruction.Result, error) {
				completed, _ := ectx.State["completed_jobs"].([]any)
				completed = append(append([]any(nil), completed...), map[string]any{
					"results":     params["results"],
					"total_tasks": params["total_tasks"],
				})
				return &instruction.Result{
					Directives: []directive.Directive{
						directive.SetState{Attrs: map[string]any{"completed_jobs": completed}},
						directive.DeleteKeys{Keys: []string{"pending_jobs"}},
					},
				}, nil
			})),
		},
	}

	srv, err := inst.StartAgent(testCtx(t), orchestratorDef, "orchestrator-1")
	require.NoError(t, err)

	require.NoError(t, srv.Cast(signal.MustNew("job.submit", "test",
		signal.WithData(map[string]any{"tasks": []any{"r1", "r2", "r3"}}))))

	require.Eventually(t, func() bool {
		completed, _ := srv.State().State["completed_jobs"].([]any)
		return len(completed) == 1
	}, 10*time.Second, 10*time.Millisecond)

	state := srv.State().State
	completed := state["completed_jobs"].([]any)
	job := completed[0].(map[string]any)
	assert.Equal(t, 3, job["total_tasks"])
	assert.Len(t, job["results"].([]any), 3)
	assert.NotContains(t, state, "pending_jobs", "pending jobs cleared")
}

// Child map consistency: after a child exits, the next signal the parent
// observes sees the children table without it.
func TestChildMapConsistencyAfterExit(t *testing.T) {
	inst := newInstance(t)

	childDef := &agent.Definition{
		Name:           "ephemeral",
		DefaultPlugins: map[string]any{"*": false},
	}

	parentDef := &agent.Definition{
		Name:           "parent",
		DefaultPlugins: map[string]any{"*": false},
		Routes: []*router.Route{
			route("spawn.child", action("spawn", func(map[string]any, *instruction.Context) (*instruction.Result, error) {
				return &instruction.Result{
					Directives: []directive.Directive{
						directive.SpawnAgent{Module: childDef, Tag: "c1"},
					},
				}, nil
			})),
			route("stop.child", action("stop-child", func(map[string]any, *instruction.Context) (*instruction.Result, error) {
				return &instruction.Result{
					Directives: []directive.Directive{
						directive.StopChild{Tag: "c1"},
					},
				}, nil
			})),
		},
	}

	srv, err := inst.StartAgent(testCtx(t), parentDef, "parent-1")
	require.NoError(t, err)

	_, err = srv.Call(testCtx(t), signal.MustNew("spawn.child", "test"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := srv.State().Children["c1"]
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	_, err = srv.Call(testCtx(t), signal.MustNew("stop.child", "test"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := srv.State().Children["c1"]
		return !ok
	}, 5*time.Second, 10*time.Millisecond)

	// The child is gone from the registry too.
	_, ok := inst.AgentRef("parent-1/c1")
	assert.False(t, ok)

	// Spawning under the same tag works again.
	_, err = srv.Call(testCtx(t), signal.MustNew("spawn.child", "test"))
	require.NoError(t, err)
}

func TestTransientRestartAfterFault(t *testing.T) {
	inst := newInstance(t)

	def := &agent.Definition{
		Name:           "fragile",
		DefaultPlugins: map[string]any{"*": false},
		Plugins: []agent.Plugin{
			&faultPlugin{},
		},
		Routes: []*router.Route{
			route("be.normal", action("normal", func(map[string]any, *instruction.Context) (*instruction.Result, error) {
				return &instruction.Result{Output: map[string]any{"ok": true}}, nil
			})),
			route("blow.up", action("unreachable", func(map[string]any, *instruction.Context) (*instruction.Result, error) {
				return &instruction.Result{}, nil
			})),
		},
	}

	first, err := inst.StartAgent(testCtx(t), def, "fragile-1")
	require.NoError(t, err)

	// Middleware panic escapes the action guard and faults the loop.
	_ = first.Cast(signal.MustNew("blow.up", "test"))

	select {
	case <-first.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("fault did not terminate the agent")
	}

	// The supervisor restarts it under the same id.
	require.Eventually(t, func() bool {
		replacement, ok := inst.AgentRef("fragile-1")
		return ok && replacement != first && replacement.Alive()
	}, 5*time.Second, 10*time.Millisecond)

	replacement, _ := inst.AgentRef("fragile-1")
	a, err := replacement.Call(testCtx(t), signal.MustNew("be.normal", "test"))
	require.NoError(t, err)
	assert.Equal(t, true, a.Result["ok"])
}

// faultPlugin panics on "blow.up" signals, simulating a fault escaping
// the agent loop's action guard.
type faultPlugin struct{}

func (*faultPlugin) Name() string                  { return "fault" }
func (*faultPlugin) StateKey() string              { return "fault" }
func (*faultPlugin) Actions() []instruction.Action { return nil }
func (*faultPlugin) SignalPatterns() []string      { return []string{"blow.up"} }

func (*faultPlugin) Mount(*agent.Agent, map[string]any) (any, error) {
	return map[string]any{}, nil
}

func (*faultPlugin) Routes(map[string]any) []*router.Route { return nil }

func (*faultPlugin) HandleSignal(*signal.Signal, *agent.PluginContext) (agent.Decision, error) {
	panic("deliberate fault")
}

func (*faultPlugin) TransformResult(_ instruction.Action, a *agent.Agent, _ *agent.PluginContext) (*agent.Agent, error) {
	return a, nil
}

func TestShutdownStopsEverything(t *testing.T) {
	inst := New(Config{Name: "doomed"})

	def := &agent.Definition{Name: "simple", DefaultPlugins: map[string]any{"*": false}}
	ctx := testCtx(t)

	_, err := inst.StartAgent(ctx, def, "a-1")
	require.NoError(t, err)
	_, err = inst.StartAgent(ctx, def, "a-2")
	require.NoError(t, err)

	require.NoError(t, inst.Shutdown(ctx))
	assert.Empty(t, inst.ListAgents())

	_, err = inst.StartAgent(ctx, def, "a-3")
	require.Error(t, err, "closed instance refuses new agents")
}
