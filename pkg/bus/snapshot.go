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
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/jido/internal/csync"
	"github.com/teradata-labs/jido/pkg/jidoerr"
	"github.com/teradata-labs/jido/pkg/signal"
)

// SnapshotRef is the lightweight handle a bus keeps for each snapshot.
// The materialized data lives in the process-wide registry.
type SnapshotRef struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// SnapshotData is the materialized filter result: immutable from creation
// until deletion.
type SnapshotData struct {
	SnapshotRef
	Signals []*signal.Recorded `json:"signals"`
}

// snapshotRegistry is the process-wide immutable snapshot store, keyed by
// (bus id, snapshot id).
var snapshotRegistry = csync.NewMap[string, *SnapshotData]()

func snapshotKey(busID, snapID string) string {
	return busID + "/" + snapID
}

// SnapshotCreate materializes the current filter result for pattern,
// stores the data in the process-wide registry (and the persistent store,
// when configured), and records the ref in bus state.
func (b *Bus) SnapshotCreate(pattern string) (*SnapshotRef, error) {
	records, err := b.Filter(pattern, 0)
	if err != nil {
		return nil, err
	}

	data := &SnapshotData{
		SnapshotRef: SnapshotRef{
			Path:      pattern,
			CreatedAt: time.Now().UTC(),
		},
		// Copy the slice so later log appends can never alias into the
		// snapshot.
		Signals: append([]*signal.Recorded(nil), records...),
	}

	// Registry entries are immutable once stored: insert under a fresh id
	// and retry on the (theoretical) collision rather than overwrite.
	for {
		data.ID = uuid.New().String()
		if snapshotRegistry.SetIfAbsent(snapshotKey(b.id, data.ID), data) {
			break
		}
	}

	b.mu.Lock()
	b.snapshots[data.ID] = data.SnapshotRef
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.SaveSnapshot(b.id, data); err != nil {
			b.logger.Warn("snapshot persistence failed",
				zap.String("snapshot_id", data.ID), zap.Error(err))
		}
	}

	ref := data.SnapshotRef
	return &ref, nil
}

// SnapshotRead returns the materialized snapshot data. Reads hit the
// in-process registry first and fall back to the persistent store.
func (b *Bus) SnapshotRead(snapID string) (*SnapshotData, error) {
	if data, ok := snapshotRegistry.Get(snapshotKey(b.id, snapID)); ok {
		return snapshotCopy(data), nil
	}
	if b.store != nil {
		data, err := b.store.LoadSnapshot(b.id, snapID)
		if err == nil && data != nil {
			return data, nil
		}
	}
	return nil, jidoerr.Snapshot(jidoerr.CodeNotFound, "unknown snapshot").
		WithDetail("snapshot_id", snapID)
}

// SnapshotList returns the refs of the bus's snapshots, newest first.
func (b *Bus) SnapshotList() []SnapshotRef {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]SnapshotRef, 0, len(b.snapshots))
	for _, ref := range b.snapshots {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// SnapshotDelete removes a snapshot from bus state, the process-wide
// registry, and the persistent store.
func (b *Bus) SnapshotDelete(snapID string) error {
	b.mu.Lock()
	_, known := b.snapshots[snapID]
	delete(b.snapshots, snapID)
	b.mu.Unlock()

	if !known {
		return jidoerr.Snapshot(jidoerr.CodeNotFound, "unknown snapshot").
			WithDetail("snapshot_id", snapID)
	}

	snapshotRegistry.Delete(snapshotKey(b.id, snapID))
	if b.store != nil {
		if err := b.store.DeleteSnapshot(b.id, snapID); err != nil {
			b.logger.Warn("snapshot store delete failed",
				zap.String("snapshot_id", snapID), zap.Error(err))
		}
	}
	return nil
}

// snapshotCopy returns a defensive copy so callers cannot mutate the
// registry's view.
func snapshotCopy(data *SnapshotData) *SnapshotData {
	return &SnapshotData{
		SnapshotRef: data.SnapshotRef,
		Signals:     append([]*signal.Recorded(nil), data.Signals...),
	}
}
