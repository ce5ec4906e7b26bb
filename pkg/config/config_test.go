// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teradata-labs/jido/pkg/instruction"
	"github.com/teradata-labs/jido/pkg/router"
)

const sampleConfig = `
agent:
  name: billing-watcher
  description: watches billing events
  runner: chain
  mode: auto
  strategy:
    type: fsm
    initial_state: idle
    auto_transition: true
  initial_state:
    processed: 0
  default_plugins:
    memory: false
  routes:
    - path: billing.invoice.created
      action: record-invoice
      priority: 10
    - path: billing.**
      action: audit
      params:
        level: info
`

func registry() ActionMap {
	noop := func(name string) instruction.Action {
		return instruction.NewFunc(name, "", nil,
			func(context.Context, map[string]any, *instruction.Context) (*instruction.Result, error) {
				return &instruction.Result{}, nil
			})
	}
	return ActionMap{
		"record-invoice": noop("record-invoice"),
		"audit":          noop("audit"),
	}
}

func TestParseAndConvert(t *testing.T) {
	file, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "billing-watcher", file.Agent.Name)

	def, err := file.ToDefinition(registry())
	require.NoError(t, err)

	assert.Equal(t, "billing-watcher", def.Name)
	assert.Equal(t, 0, def.InitialState["processed"])
	require.Len(t, def.Routes, 2)
	assert.Equal(t, "billing.invoice.created", def.Routes[0].Path)
	assert.Equal(t, 10, def.Routes[0].Priority)

	target := def.Routes[1].Target.(router.ActionTarget)
	assert.Equal(t, "audit", target.Action.Name())
	assert.Equal(t, map[string]any{"level": "info"}, target.Params)

	assert.Equal(t, map[string]any{"memory": false}, def.DefaultPlugins)
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing agent key", "other: {}"},
		{"missing name", "agent: {description: x}"},
		{"route without action", "agent:\n  name: a\n  routes:\n    - path: x.y"},
		{"priority out of range", "agent:\n  name: a\n  routes:\n    - path: x.y\n      action: z\n      priority: 500"},
		{"bad runner", "agent:\n  name: a\n  runner: quantum"},
		{"not yaml", ":::"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, err := Parse([]byte(tt.yaml))
			if err != nil {
				return
			}
			_, err = file.ToDefinition(registry())
			assert.Error(t, err)
		})
	}
}

func TestToDefinitionUnknownAction(t *testing.T) {
	file, err := Parse([]byte("agent:\n  name: a\n  routes:\n    - path: x.y\n      action: ghost"))
	require.NoError(t, err)

	_, err = file.ToDefinition(registry())
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.yaml"),
		[]byte("agent:\n  name: one"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.yml"),
		[]byte("agent:\n  name: two"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"),
		[]byte("not yaml"), 0o644))

	files, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Contains(t, files, "one")
	assert.Contains(t, files, "two")
}

func TestLoadDirRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"),
		[]byte("agent:\n  name: same"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"),
		[]byte("agent:\n  name: same"), 0o644))

	_, err := LoadDir(dir)
	assert.Error(t, err)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  name: hot"), 0o644))

	var mu sync.Mutex
	reloads := make(map[string]int)

	w, err := NewWatcher(dir, func(name string, _ *AgentFile) {
		mu.Lock()
		reloads[name]++
		mu.Unlock()
	}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	count := func(name string) int {
		mu.Lock()
		defer mu.Unlock()
		return reloads[name]
	}

	// Initial scan fires once.
	require.Eventually(t, func() bool { return count("hot") == 1 }, 3*time.Second, 10*time.Millisecond)

	// Unchanged rewrite: same hash, no reload.
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  name: hot"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, count("hot"))

	// Content change reloads.
	require.NoError(t, os.WriteFile(path,
		[]byte("agent:\n  name: hot\n  description: updated"), 0o644))
	require.Eventually(t, func() bool { return count("hot") == 2 }, 3*time.Second, 10*time.Millisecond)

	// New file is picked up.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.yaml"),
		[]byte("agent:\n  name: fresh"), 0o644))
	require.Eventually(t, func() bool { return count("fresh") == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestWatcherSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"),
		[]byte("agent: {}"), 0o644))

	var mu sync.Mutex
	called := false

	w, err := NewWatcher(dir, func(string, *AgentFile) {
		mu.Lock()
		called = true
		mu.Unlock()
	}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.False(t, called)
}
