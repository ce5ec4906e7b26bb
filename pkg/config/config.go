// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package config loads agent definitions from YAML files: name, initial
// state, strategy, routes, and default-plugin overrides, validated
// against a JSON schema before they become runnable definitions. A
// directory watcher with content hashing supports hot-reload.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/jido/pkg/agent"
	"github.com/teradata-labs/jido/pkg/instruction"
	"github.com/teradata-labs/jido/pkg/jidoerr"
	"github.com/teradata-labs/jido/pkg/router"
	"github.com/teradata-labs/jido/pkg/runner"
	"github.com/teradata-labs/jido/pkg/strategy"
)

// AgentFile is the YAML structure of one agent definition file, rooted at
// an "agent:" key.
type AgentFile struct {
	Agent struct {
		Name           string         `yaml:"name"`
		Description    string         `yaml:"description"`
		InitialState   map[string]any `yaml:"initial_state"`
		Runner         string         `yaml:"runner"` // "simple" (default) or "chain"
		Strategy       StrategyYAML   `yaml:"strategy"`
		Routes         []RouteYAML    `yaml:"routes"`
		DefaultPlugins map[string]any `yaml:"default_plugins"`
		Mode           string         `yaml:"mode"` // "auto" (default) or "step"
	} `yaml:"agent"`
}

// StrategyYAML selects and configures the agent's strategy.
type StrategyYAML struct {
	Type           string              `yaml:"type"` // "", "default", "fsm", "threaded"
	InitialState   string              `yaml:"initial_state"`
	Transitions    map[string][]string `yaml:"transitions"`
	AutoTransition bool                `yaml:"auto_transition"`
}

// RouteYAML binds a signal path to a registered action by name.
type RouteYAML struct {
	Path     string         `yaml:"path"`
	Action   string         `yaml:"action"`
	Params   map[string]any `yaml:"params"`
	Priority int            `yaml:"priority"`
}

// agentFileSchema validates the decoded YAML document before conversion.
var agentFileSchema = instruction.MustSchema(map[string]any{
	"type":     "object",
	"required": []any{"agent"},
	"properties": map[string]any{
		"agent": map[string]any{
			"type":     "object",
			"required": []any{"name"},
			"properties": map[string]any{
				"name":        map[string]any{"type": "string", "minLength": 1},
				"description": map[string]any{"type": "string"},
				"runner":      map[string]any{"type": "string", "enum": []any{"", "simple", "chain"}},
				"mode":        map[string]any{"type": "string", "enum": []any{"", "auto", "step"}},
				"routes": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":     "object",
						"required": []any{"path", "action"},
						"properties": map[string]any{
							"path":     map[string]any{"type": "string", "minLength": 1},
							"action":   map[string]any{"type": "string", "minLength": 1},
							"priority": map[string]any{"type": "integer", "minimum": -100, "maximum": 100},
						},
					},
				},
			},
		},
	},
})

// ActionRegistry resolves action names referenced by config routes.
type ActionRegistry interface {
	Lookup(name string) (instruction.Action, bool)
}

// ActionMap is the map-backed ActionRegistry.
type ActionMap map[string]instruction.Action

// Lookup implements ActionRegistry.
func (m ActionMap) Lookup(name string) (instruction.Action, bool) {
	action, ok := m[name]
	return action, ok
}

// LoadFile parses and validates one agent definition file.
func LoadFile(path string) (*AgentFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates agent config YAML.
func Parse(raw []byte) (*AgentFile, error) {
	// Decode twice: once loosely for schema validation, once into the
	// typed structure.
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse agent config: %w", err)
	}
	if err := agentFileSchema.Validate(normalizeYAML(doc).(map[string]any)); err != nil {
		return nil, err
	}

	var file AgentFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse agent config: %w", err)
	}
	return &file, nil
}

// ToDefinition converts a parsed file into a runnable definition,
// resolving route actions through the registry.
func (f *AgentFile) ToDefinition(actions ActionRegistry) (*agent.Definition, error) {
	a := f.Agent

	def := &agent.Definition{
		Name:         a.Name,
		Description:  a.Description,
		InitialState: a.InitialState,
		Mode:         agent.Mode(a.Mode),
	}

	switch a.Runner {
	case "", "simple":
		def.Runner = runner.NewSimple()
	case "chain":
		def.Runner = runner.NewChain()
	default:
		return nil, jidoerr.Validation("invalid_config",
			fmt.Sprintf("unknown runner %q", a.Runner))
	}

	switch a.Strategy.Type {
	case "", "default":
		def.Strategy = strategy.NewDefault()
	case "fsm":
		def.Strategy = &strategy.FSM{
			Initial:        a.Strategy.InitialState,
			Transitions:    a.Strategy.Transitions,
			AutoTransition: a.Strategy.AutoTransition,
		}
	case "threaded":
		if a.Strategy.InitialState == "" {
			def.Strategy = strategy.NewThreaded(nil)
			break
		}
		def.Strategy = strategy.NewThreaded(&strategy.FSM{
			Initial:        a.Strategy.InitialState,
			Transitions:    a.Strategy.Transitions,
			AutoTransition: a.Strategy.AutoTransition,
		})
	default:
		return nil, jidoerr.Validation("invalid_config",
			fmt.Sprintf("unknown strategy type %q", a.Strategy.Type))
	}

	if len(a.DefaultPlugins) > 0 {
		def.DefaultPlugins = a.DefaultPlugins
	}

	for _, r := range a.Routes {
		action, ok := actions.Lookup(r.Action)
		if !ok {
			return nil, jidoerr.Validation("unknown_action",
				fmt.Sprintf("route %q references unknown action %q", r.Path, r.Action))
		}
		def.Routes = append(def.Routes, &router.Route{
			Path:     r.Path,
			Target:   router.ActionTarget{Action: action, Params: r.Params},
			Priority: r.Priority,
		})
	}
	return def, nil
}

// LoadDir loads every .yaml/.yml agent file in dir, keyed by agent name.
func LoadDir(dir string) (map[string]*AgentFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read agent config dir: %w", err)
	}

	files := make(map[string]*AgentFile)
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		file, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		if _, dup := files[file.Agent.Name]; dup {
			return nil, jidoerr.Validation("invalid_config",
				fmt.Sprintf("duplicate agent name %q", file.Agent.Name))
		}
		files[file.Agent.Name] = file
	}
	return files, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func contentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// normalizeYAML converts yaml.v3's map[any]any trees into the
// map[string]any form the schema validator expects.
func normalizeYAML(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			out[key] = normalizeYAML(child)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			out[fmt.Sprintf("%v", key)] = normalizeYAML(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = normalizeYAML(child)
		}
		return out
	default:
		return v
	}
}
