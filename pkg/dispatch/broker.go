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
	"sync"

	"github.com/teradata-labs/jido/pkg/signal"
)

// DefaultSubscriptionBuffer is the channel buffer applied when a topic
// subscriber passes a non-positive size.
const DefaultSubscriptionBuffer = 64

// Broker is a non-blocking in-process topic broadcaster. Subscribers
// receive on buffered channels; a full subscriber misses signals rather
// than blocking publishers.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[chan *signal.Signal]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{topics: make(map[string]map[chan *signal.Signal]struct{})}
}

// Publish broadcasts sig to every subscriber of topic. Safe on a nil
// receiver (no-op).
func (b *Broker) Publish(topic string, sig *signal.Signal) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.topics[topic] {
		select {
		case ch <- sig:
		default:
			// Subscriber is full; drop rather than block the publisher.
		}
	}
}

// Subscribe registers a topic subscriber and returns its receive channel
// plus a cancel function that unsubscribes and closes the channel.
func (b *Broker) Subscribe(topic string, bufSize int) (<-chan *signal.Signal, func()) {
	if bufSize <= 0 {
		bufSize = DefaultSubscriptionBuffer
	}
	ch := make(chan *signal.Signal, bufSize)

	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[chan *signal.Signal]struct{})
		b.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.topics[topic]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.topics, topic)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of subscribers on topic.
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
