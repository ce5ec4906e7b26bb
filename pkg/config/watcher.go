// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadFunc is called when an agent config file is added or its content
// changes. name is the agent name from the file.
type ReloadFunc func(name string, file *AgentFile)

// Watcher hot-reloads agent config files from a directory. Change
// detection is content-hash based, so editor save dances (truncate +
// write, rename-over) do not produce duplicate reloads.
type Watcher struct {
	dir      string
	logger   *zap.Logger
	onReload ReloadFunc

	mu     sync.Mutex
	hashes map[string]string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a watcher over dir. Call Start to begin watching.
func NewWatcher(dir string, onReload ReloadFunc, logger *zap.Logger) (*Watcher, error) {
	if onReload == nil {
		return nil, fmt.Errorf("watcher requires a reload callback")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		dir:      dir,
		logger:   logger,
		onReload: onReload,
		hashes:   make(map[string]string),
		done:     make(chan struct{}),
	}, nil
}

// Start scans the directory once, then watches for changes until the
// context is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.watcher = fsw

	// Initial scan fires the callback for every existing file.
	if err := w.scan(); err != nil {
		w.logger.Warn("initial config scan failed", zap.Error(err))
	}

	go w.run(ctx)
	return nil
}

// Stop ends the watch loop.
func (w *Watcher) Stop() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !isYAML(event.Name) {
				continue
			}
			w.reloadFile(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))

		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}

// scan walks the directory and reloads anything new or changed.
func (w *Watcher) scan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		w.reloadFile(filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

func (w *Watcher) reloadFile(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		// Renamed-away or mid-write; the follow-up event retries.
		return
	}

	hash := contentHash(raw)
	w.mu.Lock()
	if w.hashes[path] == hash {
		w.mu.Unlock()
		return
	}
	w.hashes[path] = hash
	w.mu.Unlock()

	file, err := Parse(raw)
	if err != nil {
		w.logger.Warn("invalid agent config, skipping",
			zap.String("path", path), zap.Error(err))
		return
	}

	w.logger.Info("agent config loaded",
		zap.String("path", path),
		zap.String("agent", file.Agent.Name))
	w.onReload(file.Agent.Name, file)
}
