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

// Package dispatch delivers signals to configured targets: a concrete
// process, a registry name, a named bus, a pub/sub topic, or a remote
// wrapper around any of these. A dispatch list delivers in order and
// aborts on the first failure.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/jido/pkg/jidoerr"
	"github.com/teradata-labs/jido/pkg/signal"
)

// Kind selects a dispatch adapter.
type Kind string

const (
	// KindPid delivers to a concrete Process handle.
	KindPid Kind = "pid"
	// KindNamed resolves a process by name through the registry.
	KindNamed Kind = "named"
	// KindBus publishes onto a named signal bus.
	KindBus Kind = "bus"
	// KindPubSub broadcasts on a broker topic.
	KindPubSub Kind = "pubsub"
	// KindRemote wraps another config with a node hint. The single-process
	// build validates the hint and delegates to the wrapped config.
	KindRemote Kind = "remote"
)

// DefaultRequestTimeout bounds synchronous pid dispatches that carry no
// explicit timeout.
const DefaultRequestTimeout = 5 * time.Second

// Process is a deliverable target, implemented by agent servers.
type Process interface {
	// Deliver enqueues the signal asynchronously.
	Deliver(ctx context.Context, sig *signal.Signal) error

	// Request enqueues the signal and blocks for its processing result.
	Request(ctx context.Context, sig *signal.Signal) (any, error)

	// Alive reports whether the process still accepts signals.
	Alive() bool
}

// Resolver looks up a live process by registered name.
type Resolver interface {
	Resolve(name string) (Process, bool)
}

// Publisher accepts signals for a bus stream. The bus package registers
// its buses here; the indirection keeps this package bus-agnostic.
type Publisher interface {
	PublishSignals(ctx context.Context, stream string, sigs []*signal.Signal) error
}

// BusResolver looks up a named bus publisher.
type BusResolver interface {
	ResolveBus(name string) (Publisher, bool)
}

// Config describes one dispatch target.
type Config struct {
	Kind Kind

	// Process is the target handle for KindPid.
	Process Process

	// Name is the registry name for KindNamed.
	Name string

	// Bus and Stream address a named bus for KindBus.
	Bus    string
	Stream string

	// Topic is the broker topic for KindPubSub.
	Topic string

	// Node and Wrapped carry the remote hint for KindRemote.
	Node    string
	Wrapped *Config

	// Sync requests a request/reply delivery for pid and named targets.
	Sync bool

	// Timeout bounds a synchronous delivery; zero applies
	// DefaultRequestTimeout.
	Timeout time.Duration
}

// ToPid builds an async pid config.
func ToPid(p Process) Config {
	return Config{Kind: KindPid, Process: p}
}

// ToPidSync builds a request/reply pid config.
func ToPidSync(p Process, timeout time.Duration) Config {
	return Config{Kind: KindPid, Process: p, Sync: true, Timeout: timeout}
}

// ToNamed builds a registry-name config.
func ToNamed(name string) Config {
	return Config{Kind: KindNamed, Name: name}
}

// ToBus builds a named-bus config.
func ToBus(bus, stream string) Config {
	return Config{Kind: KindBus, Bus: bus, Stream: stream}
}

// ToTopic builds a pub/sub topic config.
func ToTopic(topic string) Config {
	return Config{Kind: KindPubSub, Topic: topic}
}

// ToRemote wraps a config with a node hint.
func ToRemote(node string, inner Config) Config {
	return Config{Kind: KindRemote, Node: node, Wrapped: &inner}
}

// Validate statically checks one config.
func (c Config) Validate() error {
	switch c.Kind {
	case KindPid:
		if c.Process == nil {
			return jidoerr.Validation("invalid_dispatch", "pid dispatch requires a process")
		}
	case KindNamed:
		if c.Name == "" {
			return jidoerr.Validation("invalid_dispatch", "named dispatch requires a name")
		}
	case KindBus:
		if c.Bus == "" {
			return jidoerr.Validation("invalid_dispatch", "bus dispatch requires a bus name")
		}
	case KindPubSub:
		if c.Topic == "" {
			return jidoerr.Validation("invalid_dispatch", "pubsub dispatch requires a topic")
		}
	case KindRemote:
		if c.Node == "" {
			return jidoerr.Validation("invalid_dispatch", "remote dispatch requires a node")
		}
		if c.Wrapped == nil {
			return jidoerr.Validation("invalid_dispatch", "remote dispatch requires a wrapped config")
		}
		if c.Wrapped.Kind == KindRemote {
			return jidoerr.Validation("invalid_dispatch", "remote dispatch cannot nest")
		}
		return c.Wrapped.Validate()
	default:
		return jidoerr.Validation("invalid_dispatch", fmt.Sprintf("unknown dispatch kind %q", c.Kind))
	}
	return nil
}

// ValidateOpts statically checks a config list.
func ValidateOpts(configs []Config) error {
	for i, c := range configs {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("dispatch config %d: %w", i, err)
		}
	}
	return nil
}

// Dispatcher resolves and delivers signals. Construct with New; the zero
// value only supports pid dispatch.
type Dispatcher struct {
	processes Resolver
	buses     BusResolver
	broker    *Broker
	logger    *zap.Logger
}

// Options wires a dispatcher's collaborators.
type Options struct {
	// Processes resolves named targets; nil disables KindNamed.
	Processes Resolver

	// Buses resolves named buses; nil falls back to the process-wide bus
	// registry installed by the bus package.
	Buses BusResolver

	// Broker serves pub/sub topics; nil makes New create a private broker.
	Broker *Broker

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	if opts.Broker == nil {
		opts.Broker = NewBroker()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Buses == nil {
		opts.Buses = globalBuses
	}
	return &Dispatcher{
		processes: opts.Processes,
		buses:     opts.Buses,
		broker:    opts.Broker,
		logger:    opts.Logger,
	}
}

// Broker returns the dispatcher's pub/sub broker.
func (d *Dispatcher) Broker() *Broker { return d.broker }

// Dispatch delivers sig to every config in order. The first failure aborts
// the remainder and is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, sig *signal.Signal, configs ...Config) error {
	for i, c := range configs {
		if _, err := d.dispatchOne(ctx, sig, c); err != nil {
			return fmt.Errorf("dispatch target %d (%s): %w", i, c.Kind, err)
		}
	}
	return nil
}

// Request delivers sig synchronously to a single pid or named target and
// returns the processing reply.
func (d *Dispatcher) Request(ctx context.Context, sig *signal.Signal, c Config) (any, error) {
	c.Sync = true
	return d.dispatchOne(ctx, sig, c)
}

func (d *Dispatcher) dispatchOne(ctx context.Context, sig *signal.Signal, c Config) (any, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	switch c.Kind {
	case KindPid:
		return d.toProcess(ctx, sig, c.Process, c)

	case KindNamed:
		if d.processes == nil {
			return nil, jidoerr.Dispatch(jidoerr.CodeProcessNotFound,
				"no process registry configured")
		}
		p, ok := d.processes.Resolve(c.Name)
		if !ok {
			return nil, jidoerr.Dispatch(jidoerr.CodeProcessNotFound,
				"no process registered under name").WithDetail("name", c.Name)
		}
		return d.toProcess(ctx, sig, p, c)

	case KindBus:
		pub, ok := d.buses.ResolveBus(c.Bus)
		if !ok {
			return nil, jidoerr.Dispatch(jidoerr.CodeBusNotFound,
				"no bus registered under name").WithDetail("bus", c.Bus)
		}
		return nil, pub.PublishSignals(ctx, c.Stream, []*signal.Signal{sig})

	case KindPubSub:
		d.broker.Publish(c.Topic, sig)
		return nil, nil

	case KindRemote:
		// Single-process deployment: the node hint is recorded for the
		// receiver and delivery stays local.
		hinted := sig.Clone()
		if err := hinted.SetTypedExtension(signal.ExtensionTarget, TargetHint{Node: c.Node}); err != nil {
			d.logger.Warn("failed to attach node hint", zap.Error(err))
			hinted = sig
		}
		return d.dispatchOne(ctx, hinted, *c.Wrapped)

	default:
		return nil, jidoerr.Validation("invalid_dispatch",
			fmt.Sprintf("unknown dispatch kind %q", c.Kind))
	}
}

func (d *Dispatcher) toProcess(ctx context.Context, sig *signal.Signal, p Process, c Config) (any, error) {
	if !p.Alive() {
		return nil, jidoerr.Dispatch(jidoerr.CodeProcessNotAlive, "target process has stopped")
	}
	if !c.Sync {
		return nil, p.Deliver(ctx, sig)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Request(reqCtx, sig)
}
