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

// Package signal defines the immutable typed records that flow through the
// runtime: agents receive signals, the bus logs them, and routers match on
// their dot-segmented type.
package signal

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/teradata-labs/jido/pkg/jid"
	"github.com/teradata-labs/jido/pkg/jidoerr"
)

// Reserved type prefixes and lifecycle signal types.
const (
	// PrefixAgent is the reserved prefix for agent lifecycle signals.
	PrefixAgent = "jido.agent"

	// TypeChildStarted is self-cast by a parent after a successful child
	// spawn. Data: pid, child_id, child_module, tag, meta.
	TypeChildStarted = "jido.agent.child.started"

	// TypeChildExited is self-cast by a parent when a tracked child goes
	// down. Data: tag, reason.
	TypeChildExited = "jido.agent.child.exited"
)

// DefaultContentType is applied when a signal carries data but no explicit
// content type.
const DefaultContentType = "application/json"

// typePattern validates the dot-segmented grammar shared by signal types
// and route paths.
var typePattern = regexp.MustCompile(`^[A-Za-z0-9*_\-]+(\.[A-Za-z0-9*_\-]+)*$`)

// Signal is an immutable typed record. Construct with New; treat fields as
// read-only afterward.
type Signal struct {
	// ID is the time-ordered unique identifier.
	ID jid.ID `json:"id"`

	// Type is the dot-segmented signal type, e.g. "user.created".
	Type string `json:"type"`

	// Source identifies the emitter.
	Source string `json:"source"`

	// Time is the creation time in UTC.
	Time time.Time `json:"time"`

	// DataContentType describes the encoding of Data.
	DataContentType string `json:"datacontenttype,omitempty"`

	// Data is the structured payload.
	Data any `json:"data,omitempty"`

	// Extensions holds namespaced attribute maps, e.g. the "target"
	// namespace carrying a dispatch routing hint.
	Extensions map[string]map[string]any `json:"extensions,omitempty"`
}

// Option configures a signal at construction time.
type Option func(*Signal)

// WithData sets the structured payload.
func WithData(data any) Option {
	return func(s *Signal) { s.Data = data }
}

// WithDataContentType overrides the payload content type.
func WithDataContentType(ct string) Option {
	return func(s *Signal) { s.DataContentType = ct }
}

// WithID overrides the generated id. Used by the bus when recording.
func WithID(id jid.ID) Option {
	return func(s *Signal) { s.ID = id }
}

// WithTime overrides the creation time.
func WithTime(t time.Time) Option {
	return func(s *Signal) { s.Time = t.UTC() }
}

// WithExtension sets one namespaced extension attribute map.
func WithExtension(namespace string, attrs map[string]any) Option {
	return func(s *Signal) {
		if s.Extensions == nil {
			s.Extensions = make(map[string]map[string]any)
		}
		s.Extensions[namespace] = attrs
	}
}

// New creates a validated signal. The type must match the dot-segmented
// grammar and must not contain wildcards (those are only valid in route
// paths); source must be non-empty.
func New(signalType, source string, opts ...Option) (*Signal, error) {
	if err := ValidateType(signalType); err != nil {
		return nil, err
	}
	if strings.Contains(signalType, "*") {
		return nil, jidoerr.Validation("invalid_type",
			"wildcards are not valid in signal types").
			WithDetail("type", signalType)
	}
	if source == "" {
		return nil, jidoerr.Validation("invalid_source", "source must not be empty")
	}

	id, _ := jid.Generate()
	s := &Signal{
		ID:     id,
		Type:   signalType,
		Source: source,
		Time:   time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Data != nil && s.DataContentType == "" {
		s.DataContentType = DefaultContentType
	}
	return s, nil
}

// MustNew is New for statically known inputs; it panics on validation
// failure. Intended for tests and literals.
func MustNew(signalType, source string, opts ...Option) *Signal {
	s, err := New(signalType, source, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// ValidateType checks the dot-segmented grammar shared by signal types and
// route paths: segments of [A-Za-z0-9*_-], no empty segments, and "**"
// only as a whole segment.
func ValidateType(signalType string) error {
	if signalType == "" {
		return jidoerr.Validation("invalid_type", "type must not be empty")
	}
	if !typePattern.MatchString(signalType) {
		return jidoerr.Validation("invalid_type",
			fmt.Sprintf("type %q does not match the path grammar", signalType))
	}
	for _, seg := range strings.Split(signalType, ".") {
		if strings.Contains(seg, "**") && seg != "**" {
			return jidoerr.Validation("invalid_type",
				fmt.Sprintf("segment %q embeds a multi-level wildcard", seg))
		}
	}
	return nil
}

// Equal reports signal equality, which is by id.
func (s *Signal) Equal(other *Signal) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.ID == other.ID
}

// DataMap returns the payload as a map when it is one, or nil otherwise.
// Routing and action-parameter merging only consume map payloads.
func (s *Signal) DataMap() map[string]any {
	if m, ok := s.Data.(map[string]any); ok {
		return m
	}
	return nil
}

// Extension returns the attribute map stored under namespace.
func (s *Signal) Extension(namespace string) (map[string]any, bool) {
	attrs, ok := s.Extensions[namespace]
	return attrs, ok
}

// Clone returns a shallow copy with its own extensions map, so callers can
// derive a modified signal without mutating the original.
func (s *Signal) Clone() *Signal {
	dup := *s
	if s.Extensions != nil {
		dup.Extensions = make(map[string]map[string]any, len(s.Extensions))
		for ns, attrs := range s.Extensions {
			attrsCopy := make(map[string]any, len(attrs))
			for k, v := range attrs {
				attrsCopy[k] = v
			}
			dup.Extensions[ns] = attrsCopy
		}
	}
	return &dup
}
