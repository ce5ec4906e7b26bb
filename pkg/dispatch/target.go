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

package dispatch

import (
	"errors"

	"github.com/teradata-labs/jido/internal/csync"
	"github.com/teradata-labs/jido/pkg/signal"
)

// TargetHint is the typed value of the "target" signal extension: a
// routing hint naming where the signal wants to land.
type TargetHint struct {
	// Kind of the hinted dispatch, when the emitter pinned one.
	Kind Kind
	// Name is a registry name (named), bus name (bus), or topic (pubsub).
	Name string
	// Node is the remote node hint, when present.
	Node string
}

func init() {
	signal.RegisterExtension(signal.ExtensionTarget, signal.Codec{
		ToAttrs: func(value any) (map[string]any, error) {
			h, ok := value.(TargetHint)
			if !ok {
				return nil, errors.New("target extension expects a dispatch.TargetHint")
			}
			attrs := make(map[string]any, 3)
			if h.Kind != "" {
				attrs["kind"] = string(h.Kind)
			}
			if h.Name != "" {
				attrs["name"] = h.Name
			}
			if h.Node != "" {
				attrs["node"] = h.Node
			}
			return attrs, nil
		},
		FromAttrs: func(attrs map[string]any) (any, error) {
			var h TargetHint
			if kind, ok := attrs["kind"].(string); ok {
				h.Kind = Kind(kind)
			}
			if name, ok := attrs["name"].(string); ok {
				h.Name = name
			}
			if node, ok := attrs["node"].(string); ok {
				h.Node = node
			}
			return h, nil
		},
	})
}

// TargetOf decodes the routing hint carried by sig, when present.
func TargetOf(sig *signal.Signal) (TargetHint, bool) {
	value, ok, err := sig.TypedExtension(signal.ExtensionTarget)
	if err != nil || !ok {
		return TargetHint{}, false
	}
	hint, ok := value.(TargetHint)
	return hint, ok
}

// globalBuses is the process-wide registry of named bus publishers. The
// bus package registers each bus here at construction so the bus dispatch
// adapter can resolve them without a package dependency cycle.
var globalBuses = &busRegistry{names: csync.NewMap[string, Publisher]()}

type busRegistry struct {
	names *csync.Map[string, Publisher]
}

func (r *busRegistry) ResolveBus(name string) (Publisher, bool) {
	return r.names.Get(name)
}

// RegisterBus makes a publisher resolvable by name for bus dispatch.
// Registering an existing name replaces it.
func RegisterBus(name string, pub Publisher) {
	globalBuses.names.Set(name, pub)
}

// UnregisterBus removes a named publisher.
func UnregisterBus(name string) {
	globalBuses.names.Delete(name)
}
