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

// Package plugin composes an agent's plugin set: the default plugins
// (thread, identity, memory), the definition's overrides, and its own
// custom plugins, resolved into the ordered list the agent server mounts.
package plugin

import (
	"fmt"

	"github.com/teradata-labs/jido/pkg/agent"
	"github.com/teradata-labs/jido/pkg/jidoerr"
	"github.com/teradata-labs/jido/pkg/plugin/builtin"
)

// DisableAllKey disables every default plugin when mapped to false in
// Definition.DefaultPlugins.
const DisableAllKey = "*"

// defaultOrder fixes the mount order of the default plugins.
var defaultOrder = []string{builtin.ThreadName, builtin.IdentityName, builtin.MemoryName}

func defaultPlugin(name string) agent.Plugin {
	switch name {
	case builtin.ThreadName:
		return builtin.NewThread()
	case builtin.IdentityName:
		return builtin.NewIdentity()
	case builtin.MemoryName:
		return builtin.NewMemory()
	}
	return nil
}

// Resolve expands a definition's plugin configuration into the ordered
// plugin list to mount: defaults first (minus disabled, with replacements
// applied), then the definition's own plugins.
//
// DefaultPlugins entries, keyed by default name:
//
//	false                       disable this default
//	agent.Plugin                replace with a custom module
//	agent.PluginSpec{P, cfg}    replace with a configured module
//
// The "*" key set to false disables every default.
func Resolve(def *agent.Definition) ([]agent.Plugin, error) {
	overrides := def.DefaultPlugins

	disableAll := false
	if v, ok := overrides[DisableAllKey]; ok {
		flag, isBool := v.(bool)
		if !isBool {
			return nil, jidoerr.Validation("invalid_plugins",
				`default_plugins["*"] must be a bool`)
		}
		disableAll = !flag
	}

	var resolved []agent.Plugin
	if !disableAll {
		for _, name := range defaultOrder {
			override, overridden := overrides[name]
			if !overridden {
				resolved = append(resolved, defaultPlugin(name))
				continue
			}
			switch v := override.(type) {
			case bool:
				if v {
					resolved = append(resolved, defaultPlugin(name))
				}
			case agent.Plugin:
				resolved = append(resolved, v)
			case agent.PluginSpec:
				if v.Plugin == nil {
					return nil, jidoerr.Validation("invalid_plugins",
						fmt.Sprintf("default_plugins[%q] spec has no plugin", name))
				}
				resolved = append(resolved, v.Plugin)
			default:
				return nil, jidoerr.Validation("invalid_plugins",
					fmt.Sprintf("default_plugins[%q] has unsupported type %T", name, v))
			}
		}
	}

	for _, p := range def.Plugins {
		if p == nil {
			return nil, jidoerr.Validation("invalid_plugins", "nil plugin in definition")
		}
		resolved = append(resolved, p)
	}

	// State keys must be unique: two plugins sharing a slot would corrupt
	// each other's sub-state.
	seen := make(map[string]string, len(resolved))
	for _, p := range resolved {
		if owner, taken := seen[p.StateKey()]; taken {
			return nil, jidoerr.Validation("invalid_plugins",
				fmt.Sprintf("plugins %s and %s share state key %q", owner, p.Name(), p.StateKey()))
		}
		seen[p.StateKey()] = p.Name()
	}
	return resolved, nil
}

// Apply returns a copy of def with its plugin set resolved. The input
// definition is not modified. DefaultPlugins is kept on the copy: the
// agent server reads PluginSpec mount configs from it.
func Apply(def *agent.Definition) (*agent.Definition, error) {
	resolved, err := Resolve(def)
	if err != nil {
		return nil, err
	}
	expanded := *def
	expanded.Plugins = resolved
	return &expanded, nil
}
