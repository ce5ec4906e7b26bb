// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package bus

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SnapshotStore persists bus snapshots to SQLite so they survive process
// restarts. Uses WAL mode for concurrent read/write access.
type SnapshotStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewSnapshotStore opens (or creates) a snapshot store at dbPath.
func NewSnapshotStore(ctx context.Context, dbPath string, logger *zap.Logger) (*SnapshotStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &SnapshotStore{db: db, logger: logger}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SnapshotStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS bus_snapshots (
		bus_id      TEXT NOT NULL,
		snapshot_id TEXT NOT NULL,
		path        TEXT NOT NULL,
		created_at  INTEGER NOT NULL,
		data        BLOB NOT NULL,
		PRIMARY KEY (bus_id, snapshot_id)
	);
	CREATE INDEX IF NOT EXISTS idx_bus_snapshots_bus ON bus_snapshots(bus_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveSnapshot writes a snapshot, replacing any previous row under the
// same (bus, snapshot) key.
func (s *SnapshotStore) SaveSnapshot(busID string, data *SnapshotData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO bus_snapshots (bus_id, snapshot_id, path, created_at, data)
		VALUES (?, ?, ?, ?, ?)`,
		busID, data.ID, data.Path, data.CreatedAt.UnixMilli(), payload)
	if err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads one snapshot; (nil, nil) when absent.
func (s *SnapshotStore) LoadSnapshot(busID, snapID string) (*SnapshotData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload []byte
	err := s.db.QueryRow(`
		SELECT data FROM bus_snapshots WHERE bus_id = ? AND snapshot_id = ?`,
		busID, snapID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var data SnapshotData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &data, nil
}

// ListSnapshots returns the refs persisted for a bus, newest first.
func (s *SnapshotStore) ListSnapshots(busID string) ([]SnapshotRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT snapshot_id, path, created_at FROM bus_snapshots
		WHERE bus_id = ? ORDER BY created_at DESC`, busID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var refs []SnapshotRef
	for rows.Next() {
		var ref SnapshotRef
		var createdAt int64
		if err := rows.Scan(&ref.ID, &ref.Path, &createdAt); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		ref.CreatedAt = time.UnixMilli(createdAt).UTC()
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// DeleteSnapshot removes one persisted snapshot.
func (s *SnapshotStore) DeleteSnapshot(busID, snapID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		DELETE FROM bus_snapshots WHERE bus_id = ? AND snapshot_id = ?`,
		busID, snapID)
	return err
}

// Close closes the underlying database.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
