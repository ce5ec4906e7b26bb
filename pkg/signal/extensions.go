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

package signal

import (
	"fmt"
	"sync"
)

// ExtensionTarget is the recognized extension namespace carrying a dispatch
// routing hint. The dispatch package decodes its attributes into a Config.
const ExtensionTarget = "target"

// Codec converts between a typed extension value and its attribute map.
// Each namespace registers its own contract.
type Codec struct {
	// ToAttrs flattens a typed value into extension attributes.
	ToAttrs func(value any) (map[string]any, error)

	// FromAttrs reconstructs the typed value from extension attributes.
	FromAttrs func(attrs map[string]any) (any, error)
}

var (
	codecMu sync.RWMutex
	codecs  = make(map[string]Codec)
)

// RegisterExtension registers the codec for an extension namespace,
// replacing any previous registration.
func RegisterExtension(namespace string, codec Codec) {
	codecMu.Lock()
	defer codecMu.Unlock()
	codecs[namespace] = codec
}

// SetTypedExtension encodes value through the namespace codec and stores
// the resulting attributes on the signal.
func (s *Signal) SetTypedExtension(namespace string, value any) error {
	codecMu.RLock()
	codec, ok := codecs[namespace]
	codecMu.RUnlock()
	if !ok {
		return fmt.Errorf("no codec registered for extension namespace %q", namespace)
	}
	attrs, err := codec.ToAttrs(value)
	if err != nil {
		return fmt.Errorf("encode extension %q: %w", namespace, err)
	}
	if s.Extensions == nil {
		s.Extensions = make(map[string]map[string]any)
	}
	s.Extensions[namespace] = attrs
	return nil
}

// TypedExtension decodes the namespace attributes through its codec. The
// second return is false when the signal has no such extension.
func (s *Signal) TypedExtension(namespace string) (any, bool, error) {
	attrs, ok := s.Extension(namespace)
	if !ok {
		return nil, false, nil
	}
	codecMu.RLock()
	codec, registered := codecs[namespace]
	codecMu.RUnlock()
	if !registered {
		return nil, false, fmt.Errorf("no codec registered for extension namespace %q", namespace)
	}
	value, err := codec.FromAttrs(attrs)
	if err != nil {
		return nil, true, fmt.Errorf("decode extension %q: %w", namespace, err)
	}
	return value, true, nil
}
