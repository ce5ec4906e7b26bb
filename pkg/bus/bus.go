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

// Package bus implements the in-process signal bus: an append-only
// recorded log with pattern filtering, subscriptions with acknowledgement
// checkpoints, immutable snapshots of log subsets, and optional signal
// routing on publish. Log order equals the total order of record ids.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/jido/pkg/dispatch"
	"github.com/teradata-labs/jido/pkg/jid"
	"github.com/teradata-labs/jido/pkg/jidoerr"
	"github.com/teradata-labs/jido/pkg/router"
	"github.com/teradata-labs/jido/pkg/signal"
)

// ExtensionBus is the extension namespace stamped onto delivered signals
// so a subscriber can acknowledge the underlying record.
const ExtensionBus = "bus"

// Config configures a bus.
type Config struct {
	// Name registers the bus for bus-kind dispatch. Required.
	Name string

	// Router optionally routes published signals to extra targets when
	// RouteSignals is set.
	Router *router.Router

	// RouteSignals enables routing of published signals through Router.
	RouteSignals bool

	// Dispatcher delivers to subscription targets; nil creates a private
	// dispatcher.
	Dispatcher *dispatch.Dispatcher

	// Store optionally persists snapshots across restarts.
	Store *SnapshotStore

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Subscription is one registered consumer of matching published signals.
type Subscription struct {
	ID         string
	Path       string
	Dispatch   []dispatch.Config
	Persistent bool
	CreatedAt  time.Time

	// begin is the delivery floor: only records with CreatedAt strictly
	// after it are delivered.
	begin int64

	// cursor is the last delivered record id, enforcing at-most-once.
	cursor jid.ID
}

// Bus is a single-process signal bus. All state mutation happens under
// its lock; dispatch to subscribers happens outside it.
type Bus struct {
	id         string
	name       string
	gen        *jid.Generator
	dispatcher *dispatch.Dispatcher
	store      *SnapshotStore
	logger     *zap.Logger

	mu           sync.Mutex
	deliverMu    sync.Mutex
	log          []*signal.Recorded
	subs         map[string]*Subscription
	checkpoints  map[string]int64
	snapshots    map[string]SnapshotRef
	router       *router.Router
	routeSignals bool
}

// New creates a bus and registers it for bus-kind dispatch under its
// name.
func New(cfg Config) (*Bus, error) {
	if cfg.Name == "" {
		return nil, jidoerr.Validation("invalid_bus", "bus requires a name")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = dispatch.New(dispatch.Options{Logger: cfg.Logger})
	}

	b := &Bus{
		id:           uuid.New().String(),
		name:         cfg.Name,
		gen:          jid.NewGenerator(),
		dispatcher:   cfg.Dispatcher,
		store:        cfg.Store,
		logger:       cfg.Logger.With(zap.String("bus", cfg.Name)),
		subs:         make(map[string]*Subscription),
		checkpoints:  make(map[string]int64),
		snapshots:    make(map[string]SnapshotRef),
		router:       cfg.Router,
		routeSignals: cfg.RouteSignals,
	}
	dispatch.RegisterBus(cfg.Name, b)
	return b, nil
}

// ID returns the bus id.
func (b *Bus) ID() string { return b.id }

// Name returns the registered bus name.
func (b *Bus) Name() string { return b.name }

// Close unregisters the bus from bus-kind dispatch. The log and snapshot
// registry entries remain until deleted.
func (b *Bus) Close() {
	dispatch.UnregisterBus(b.name)
}

// PublishSignals implements dispatch.Publisher.
func (b *Bus) PublishSignals(ctx context.Context, stream string, sigs []*signal.Signal) error {
	_, err := b.publish(ctx, jid.Nil, stream, sigs)
	return err
}

// Publish validates, records, and delivers the given signals in order.
// Validation failures abort the whole call with nothing recorded.
// Delivery failures are logged per subscriber and never fail the publish:
// the log is authoritative.
func (b *Bus) Publish(ctx context.Context, sigs ...*signal.Signal) ([]*signal.Recorded, error) {
	return b.publish(ctx, jid.Nil, "", sigs)
}

// PublishCorrelated is Publish with the originating signal's id attached
// to every record.
func (b *Bus) PublishCorrelated(ctx context.Context, correlationID jid.ID, sigs ...*signal.Signal) ([]*signal.Recorded, error) {
	return b.publish(ctx, correlationID, "", sigs)
}

func (b *Bus) publish(ctx context.Context, correlationID jid.ID, stream string, sigs []*signal.Signal) ([]*signal.Recorded, error) {
	if len(sigs) == 0 {
		return nil, nil
	}
	for i, s := range sigs {
		if s == nil {
			return nil, jidoerr.Validation("invalid_signal",
				fmt.Sprintf("publish entry %d is nil", i))
		}
		if err := signal.ValidateType(s.Type); err != nil {
			return nil, err
		}
		if s.Source == "" {
			return nil, jidoerr.Validation("invalid_signal",
				fmt.Sprintf("publish entry %d has no source", i))
		}
	}

	ids, _ := b.gen.GenerateBatch(len(sigs))
	records := make([]*signal.Recorded, len(sigs))
	for i, s := range sigs {
		records[i] = &signal.Recorded{
			ID:            ids[i],
			CorrelationID: correlationID,
			CreatedAt:     ids[i].Time(),
			Type:          s.Type,
			Signal:        s,
		}
	}

	b.mu.Lock()
	b.log = append(b.log, records...)
	deliveries := make([]delivery, 0, len(records))
	for _, rec := range records {
		deliveries = append(deliveries, b.pendingDeliveriesLocked(rec)...)
	}
	busRouter := b.router
	routeSignals := b.routeSignals
	// Take the delivery lock before releasing the state lock so two
	// concurrent publishes deliver to subscribers in log order.
	b.deliverMu.Lock()
	b.mu.Unlock()

	for _, d := range deliveries {
		b.deliver(ctx, d)
	}
	b.deliverMu.Unlock()

	if routeSignals && busRouter != nil {
		for _, rec := range records {
			b.routeRecord(ctx, busRouter, rec)
		}
	}

	if stream != "" {
		b.logger.Debug("published to stream",
			zap.String("stream", stream), zap.Int("count", len(records)))
	}
	return records, nil
}

type delivery struct {
	sub *Subscription
	rec *signal.Recorded
}

// pendingDeliveriesLocked selects the subscriptions rec must go to and
// advances their cursors, enforcing at-most-once per subscriber.
func (b *Bus) pendingDeliveriesLocked(rec *signal.Recorded) []delivery {
	var out []delivery
	for _, sub := range b.subs {
		if !matchFilter(sub.Path, rec.Type) {
			continue
		}
		if rec.CreatedAtMillis() <= sub.begin {
			continue
		}
		if !sub.cursor.IsNil() && jid.Compare(rec.ID, sub.cursor) <= 0 {
			continue
		}
		sub.cursor = rec.ID
		out = append(out, delivery{sub: sub, rec: rec})
	}
	return out
}

func (b *Bus) deliver(ctx context.Context, d delivery) {
	stamped := d.rec.Signal.Clone()
	if stamped.Extensions == nil {
		stamped.Extensions = make(map[string]map[string]any)
	}
	stamped.Extensions[ExtensionBus] = map[string]any{
		"record_id":     d.rec.ID.String(),
		"created_at_ms": d.rec.CreatedAtMillis(),
		"bus":           b.name,
	}

	if err := b.dispatcher.Dispatch(ctx, stamped, d.sub.Dispatch...); err != nil {
		b.logger.Warn("subscription delivery failed",
			zap.String("subscription_id", d.sub.ID),
			zap.String("record_id", d.rec.ID.String()),
			zap.Error(err))
	}
}

func (b *Bus) routeRecord(ctx context.Context, r *router.Router, rec *signal.Recorded) {
	targets, err := r.Route(rec.Signal)
	if err != nil {
		// No handler is routine for an optional bus router.
		return
	}
	for _, t := range targets {
		dt, ok := t.(router.DispatchTarget)
		if !ok {
			continue
		}
		if err := b.dispatcher.Dispatch(ctx, rec.Signal, dt.Configs...); err != nil {
			b.logger.Warn("route dispatch failed",
				zap.String("record_id", rec.ID.String()),
				zap.Error(err))
		}
	}
}

// FilterOption tunes a Filter call.
type FilterOption func(*filterOpts)

type filterOpts struct {
	batchSize int
}

// WithBatchSize caps the number of returned records.
func WithBatchSize(n int) FilterOption {
	return func(o *filterOpts) { o.batchSize = n }
}

// Filter returns the recorded signals matching a type pattern, in log
// order. "*" matches every type; other patterns use route-path wildcard
// semantics, so a literal pattern matches exactly. startTS filters to
// records created strictly after the given unix-millisecond timestamp.
func (b *Bus) Filter(pattern string, startTS int64, opts ...FilterOption) ([]*signal.Recorded, error) {
	if pattern != "*" {
		if err := signal.ValidateType(pattern); err != nil {
			return nil, jidoerr.Wrap(jidoerr.KindValidation, jidoerr.CodeFilterFailed,
				fmt.Sprintf("invalid filter pattern %q", pattern), err)
		}
	}

	var o filterOpts
	for _, opt := range opts {
		opt(&o)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*signal.Recorded
	for _, rec := range b.log {
		if !matchFilter(pattern, rec.Type) {
			continue
		}
		if startTS > 0 && rec.CreatedAtMillis() <= startTS {
			continue
		}
		out = append(out, rec)
		if o.batchSize > 0 && len(out) >= o.batchSize {
			break
		}
	}
	return out, nil
}

// Replay is shorthand for Filter with an empty pattern defaulting to all
// records.
func (b *Bus) Replay(pattern string, startTS int64) ([]*signal.Recorded, error) {
	if pattern == "" {
		pattern = "*"
	}
	return b.Filter(pattern, startTS)
}

// Log returns a copy of the full recorded log in order.
func (b *Bus) Log() []*signal.Recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*signal.Recorded, len(b.log))
	copy(out, b.log)
	return out
}

// matchFilter applies bus filter semantics: "*" alone matches everything;
// any other pattern uses route-path matching.
func matchFilter(pattern, signalType string) bool {
	if pattern == "*" || pattern == "" {
		return true
	}
	return router.PathMatch(pattern, signalType)
}
