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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/jido/pkg/jidoerr"
	"github.com/teradata-labs/jido/pkg/signal"
)

type fakeProcess struct {
	delivered []*signal.Signal
	reply     any
	alive     bool
	err       error
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{alive: true, reply: "ok"}
}

func (p *fakeProcess) Deliver(_ context.Context, sig *signal.Signal) error {
	if p.err != nil {
		return p.err
	}
	p.delivered = append(p.delivered, sig)
	return nil
}

func (p *fakeProcess) Request(_ context.Context, sig *signal.Signal) (any, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.delivered = append(p.delivered, sig)
	return p.reply, nil
}

func (p *fakeProcess) Alive() bool { return p.alive }

type mapResolver map[string]Process

func (r mapResolver) Resolve(name string) (Process, bool) {
	p, ok := r[name]
	return p, ok
}

func TestPidDispatchAsync(t *testing.T) {
	p := newFakeProcess()
	d := New(Options{})
	sig := signal.MustNew("t.one", "test")

	require.NoError(t, d.Dispatch(context.Background(), sig, ToPid(p)))
	require.Len(t, p.delivered, 1)
	assert.True(t, sig.Equal(p.delivered[0]))
}

func TestPidDispatchSyncReturnsReply(t *testing.T) {
	p := newFakeProcess()
	p.reply = map[string]any{"answer": 42}
	d := New(Options{})

	reply, err := d.Request(context.Background(), signal.MustNew("t.one", "test"),
		ToPidSync(p, time.Second))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"answer": 42}, reply)
}

func TestPidDispatchDeadProcess(t *testing.T) {
	p := newFakeProcess()
	p.alive = false
	d := New(Options{})

	err := d.Dispatch(context.Background(), signal.MustNew("t.one", "test"), ToPid(p))
	require.Error(t, err)
	assert.Equal(t, jidoerr.CodeProcessNotAlive, jidoerr.CodeOf(err))
}

func TestNamedDispatchResolvesRegistry(t *testing.T) {
	p := newFakeProcess()
	d := New(Options{Processes: mapResolver{"worker": p}})

	require.NoError(t, d.Dispatch(context.Background(),
		signal.MustNew("t.one", "test"), ToNamed("worker")))
	assert.Len(t, p.delivered, 1)

	err := d.Dispatch(context.Background(),
		signal.MustNew("t.one", "test"), ToNamed("ghost"))
	require.Error(t, err)
	assert.Equal(t, jidoerr.CodeProcessNotFound, jidoerr.CodeOf(err))
}

type fakeBus struct {
	streams map[string][]*signal.Signal
}

func (b *fakeBus) PublishSignals(_ context.Context, stream string, sigs []*signal.Signal) error {
	if b.streams == nil {
		b.streams = make(map[string][]*signal.Signal)
	}
	b.streams[stream] = append(b.streams[stream], sigs...)
	return nil
}

func TestBusDispatchUsesRegisteredPublisher(t *testing.T) {
	pub := &fakeBus{}
	RegisterBus("main-bus", pub)
	defer UnregisterBus("main-bus")

	d := New(Options{})
	require.NoError(t, d.Dispatch(context.Background(),
		signal.MustNew("t.one", "test"), ToBus("main-bus", "audit")))
	assert.Len(t, pub.streams["audit"], 1)

	err := d.Dispatch(context.Background(),
		signal.MustNew("t.one", "test"), ToBus("missing", ""))
	require.Error(t, err)
	assert.Equal(t, jidoerr.CodeBusNotFound, jidoerr.CodeOf(err))
}

func TestPubSubDispatchBroadcasts(t *testing.T) {
	d := New(Options{})
	ch, cancel := d.Broker().Subscribe("alerts", 4)
	defer cancel()

	sig := signal.MustNew("alert.raised", "test")
	require.NoError(t, d.Dispatch(context.Background(), sig, ToTopic("alerts")))

	select {
	case got := <-ch:
		assert.True(t, sig.Equal(got))
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the signal")
	}
}

func TestRemoteDispatchDelegatesWithHint(t *testing.T) {
	p := newFakeProcess()
	d := New(Options{})

	require.NoError(t, d.Dispatch(context.Background(),
		signal.MustNew("t.one", "test"), ToRemote("node-b", ToPid(p))))
	require.Len(t, p.delivered, 1)

	hint, ok := TargetOf(p.delivered[0])
	require.True(t, ok)
	assert.Equal(t, "node-b", hint.Node)
}

func TestDispatchListAbortsOnFirstError(t *testing.T) {
	good := newFakeProcess()
	bad := newFakeProcess()
	bad.err = errors.New("mailbox closed")
	after := newFakeProcess()

	d := New(Options{})
	err := d.Dispatch(context.Background(), signal.MustNew("t.one", "test"),
		ToPid(good), ToPid(bad), ToPid(after))

	require.Error(t, err)
	assert.Len(t, good.delivered, 1)
	assert.Empty(t, after.delivered, "targets after the failure must not run")
}

func TestValidateOpts(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid pid", ToPid(newFakeProcess()), false},
		{"pid without process", Config{Kind: KindPid}, true},
		{"named without name", Config{Kind: KindNamed}, true},
		{"bus without name", Config{Kind: KindBus}, true},
		{"pubsub without topic", Config{Kind: KindPubSub}, true},
		{"remote without node", Config{Kind: KindRemote, Wrapped: &Config{Kind: KindPubSub, Topic: "t"}}, true},
		{"nested remote", ToRemote("a", ToRemote("b", ToTopic("t"))), true},
		{"valid remote", ToRemote("a", ToTopic("t")), false},
		{"unknown kind", Config{Kind: "carrier-pigeon"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOpts([]Config{tt.config})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBrokerDropsWhenSubscriberFull(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("busy", 1)
	defer cancel()

	b.Publish("busy", signal.MustNew("t.one", "test"))
	b.Publish("busy", signal.MustNew("t.two", "test"))

	got := <-ch
	assert.Equal(t, "t.one", got.Type)
	select {
	case extra := <-ch:
		t.Fatalf("expected drop, received %s", extra.Type)
	default:
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("topic", 1)
	assert.Equal(t, 1, b.SubscriberCount("topic"))

	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount("topic"))
}
