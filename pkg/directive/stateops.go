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

package directive

import (
	"fmt"

	"github.com/teradata-labs/jido/pkg/jidoerr"
)

// ApplyStateOps applies a sequence of state-op directives to state and
// returns the resulting map. The input map is never mutated: ops apply to
// a copy, so a failure part-way leaves the caller's state untouched and
// the whole sequence is atomic.
func ApplyStateOps(state map[string]any, ops []Directive) (map[string]any, error) {
	next := copyMap(state)
	for i, op := range ops {
		if err := Validate(op); err != nil {
			return nil, fmt.Errorf("state op %d: %w", i, err)
		}
		switch v := op.(type) {
		case SetState:
			next = DeepMerge(next, v.Attrs)
		case ReplaceState:
			next = copyMap(v.State)
		case DeleteKeys:
			for _, key := range v.Keys {
				delete(next, key)
			}
		case SetPath:
			setPath(next, v.Path, v.Value)
		case DeletePath:
			deletePath(next, v.Path)
		default:
			return nil, jidoerr.Validation("invalid_directive",
				fmt.Sprintf("%T is not a state op", op))
		}
	}
	return next, nil
}

// DeepMerge merges overlay into base recursively and returns a new map.
// Nested map[string]any values merge key-by-key; any other overlay value
// overwrites the base value. Neither input is mutated.
func DeepMerge(base, overlay map[string]any) map[string]any {
	merged := copyMap(base)
	for key, value := range overlay {
		overlayChild, overlayIsMap := value.(map[string]any)
		baseChild, baseIsMap := merged[key].(map[string]any)
		if overlayIsMap && baseIsMap {
			merged[key] = DeepMerge(baseChild, overlayChild)
			continue
		}
		if overlayIsMap {
			merged[key] = copyMap(overlayChild)
			continue
		}
		merged[key] = value
	}
	return merged
}

func copyMap(m map[string]any) map[string]any {
	dup := make(map[string]any, len(m))
	for k, v := range m {
		if child, ok := v.(map[string]any); ok {
			dup[k] = copyMap(child)
			continue
		}
		dup[k] = v
	}
	return dup
}

func setPath(state map[string]any, path []string, value any) {
	current := state
	for _, seg := range path[:len(path)-1] {
		child, ok := current[seg].(map[string]any)
		if !ok {
			// Non-map intermediates are overwritten, matching deep-merge
			// overwrite semantics for scalar collisions.
			child = make(map[string]any)
			current[seg] = child
		}
		current = child
	}
	current[path[len(path)-1]] = value
}

func deletePath(state map[string]any, path []string) {
	current := state
	for _, seg := range path[:len(path)-1] {
		child, ok := current[seg].(map[string]any)
		if !ok {
			return
		}
		current = child
	}
	delete(current, path[len(path)-1])
}
