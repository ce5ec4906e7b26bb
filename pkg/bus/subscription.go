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

package bus

import (
	"context"
	"time"

	"github.com/teradata-labs/jido/pkg/dispatch"
	"github.com/teradata-labs/jido/pkg/jid"
	"github.com/teradata-labs/jido/pkg/jidoerr"
	"github.com/teradata-labs/jido/pkg/signal"
)

// SubscribeOption tunes a subscription.
type SubscribeOption func(*subscribeOpts)

type subscribeOpts struct {
	persistent bool
	begin      int64
	beginSet   bool
}

// WithPersistent keeps the subscription's checkpoint across unsubscribe,
// so a resubscribe under the same id resumes where delivery left off.
func WithPersistent() SubscribeOption {
	return func(o *subscribeOpts) { o.persistent = true }
}

// WithBeginTimestamp sets the delivery floor explicitly: only records
// created strictly after ts (unix milliseconds) are delivered. Overrides a
// retained checkpoint.
func WithBeginTimestamp(ts int64) SubscribeOption {
	return func(o *subscribeOpts) {
		o.begin = ts
		o.beginSet = true
	}
}

// Subscribe registers a consumer for signals matching path and replays the
// matching backlog past its begin timestamp. A subscription resuming under
// an id with a retained checkpoint defaults its begin timestamp to that
// checkpoint, so every record since the last acknowledgement is replayed.
func (b *Bus) Subscribe(ctx context.Context, subID, path string, configs []dispatch.Config, opts ...SubscribeOption) error {
	if subID == "" {
		return jidoerr.Subscription("invalid_subscription", "subscription requires an id")
	}
	if path != "*" {
		if err := signal.ValidateType(path); err != nil {
			return err
		}
	}
	if err := dispatch.ValidateOpts(configs); err != nil {
		return err
	}

	var o subscribeOpts
	for _, opt := range opts {
		opt(&o)
	}

	b.mu.Lock()
	if _, exists := b.subs[subID]; exists {
		b.mu.Unlock()
		return jidoerr.Subscription(jidoerr.CodeSubscriptionExists,
			"subscription id already registered").WithDetail("subscription_id", subID)
	}

	begin := o.begin
	if !o.beginSet {
		if checkpoint, ok := b.checkpoints[subID]; ok {
			begin = checkpoint
		}
	}

	sub := &Subscription{
		ID:         subID,
		Path:       path,
		Dispatch:   configs,
		Persistent: o.persistent,
		CreatedAt:  time.Now().UTC(),
		begin:      begin,
	}
	b.subs[subID] = sub

	// Replay the matching backlog before any live delivery, advancing the
	// cursor under the lock so concurrent publishes cannot duplicate.
	var backlog []delivery
	for _, rec := range b.log {
		if !matchFilter(sub.Path, rec.Type) {
			continue
		}
		if rec.CreatedAtMillis() <= sub.begin {
			continue
		}
		sub.cursor = rec.ID
		backlog = append(backlog, delivery{sub: sub, rec: rec})
	}
	b.deliverMu.Lock()
	b.mu.Unlock()

	for _, d := range backlog {
		b.deliver(ctx, d)
	}
	b.deliverMu.Unlock()
	return nil
}

// UnsubscribeOption tunes an Unsubscribe call.
type UnsubscribeOption func(*unsubscribeOpts)

type unsubscribeOpts struct {
	deletePersistence bool
}

// WithDeletePersistence drops the retained checkpoint along with the
// subscription.
func WithDeletePersistence() UnsubscribeOption {
	return func(o *unsubscribeOpts) { o.deletePersistence = true }
}

// Unsubscribe removes a subscription. A persistent subscription's
// checkpoint is retained for resubscribe unless WithDeletePersistence is
// given.
func (b *Bus) Unsubscribe(subID string, opts ...UnsubscribeOption) error {
	var o unsubscribeOpts
	for _, opt := range opts {
		opt(&o)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[subID]
	if !ok {
		return jidoerr.Subscription(jidoerr.CodeSubscriptionNotFound,
			"unknown subscription id").WithDetail("subscription_id", subID)
	}
	delete(b.subs, subID)

	if o.deletePersistence || !sub.Persistent {
		delete(b.checkpoints, subID)
	}
	return nil
}

// Ack advances a subscription's checkpoint to the record's creation
// timestamp. Checkpoints are monotonic: acknowledging an older record
// never moves the checkpoint backward.
func (b *Bus) Ack(subID string, rec *signal.Recorded) error {
	if rec == nil {
		return jidoerr.Subscription("invalid_ack", "ack requires a recorded signal")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[subID]; !ok {
		if _, retained := b.checkpoints[subID]; !retained {
			return jidoerr.Subscription(jidoerr.CodeSubscriptionNotFound,
				"unknown subscription id").WithDetail("subscription_id", subID)
		}
	}

	if ts := rec.CreatedAtMillis(); ts > b.checkpoints[subID] {
		b.checkpoints[subID] = ts
	}
	return nil
}

// Checkpoint returns a subscription's checkpoint in unix milliseconds,
// zero when none has been recorded.
func (b *Bus) Checkpoint(subID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.checkpoints[subID]
}

// Subscriptions returns a snapshot of the active subscriptions.
func (b *Bus) Subscriptions() []*Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		dup := *sub
		out = append(out, &dup)
	}
	return out
}

// RecordOf extracts the bus record identity a delivered signal was stamped
// with, letting a subscriber acknowledge without holding the Recorded.
func RecordOf(sig *signal.Signal) (recordID jid.ID, createdAtMillis int64, ok bool) {
	attrs, found := sig.Extension(ExtensionBus)
	if !found {
		return jid.Nil, 0, false
	}
	raw, _ := attrs["record_id"].(string)
	id, err := jid.Parse(raw)
	if err != nil {
		return jid.Nil, 0, false
	}
	ms, _ := attrs["created_at_ms"].(int64)
	return id, ms, true
}
