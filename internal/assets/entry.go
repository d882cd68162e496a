// Package assets holds the SPA entry document served for client-side routes.
package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"podcast-web/internal/config"
	"podcast-web/internal/metrics"
)

// debounceInterval coalesces the burst of events a bundler emits while
// rewriting the entry document.
const debounceInterval = 100 * time.Millisecond

// EntryDocument caches the SPA entry document in memory and optionally
// reloads it when the file changes on disk.
type EntryDocument struct {
	path    string
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	body []byte

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewEntryDocument reads the entry document. A missing file is a startup
// error: without it every client-side route would fail. The metrics
// parameter is optional.
func NewEntryDocument(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*EntryDocument, error) {
	d := &EntryDocument{
		path:    cfg.Assets.IndexPath(),
		logger:  logger.With("component", "entry_document"),
		metrics: m,
	}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Bytes returns the current entry document. The slice must not be modified.
func (d *EntryDocument) Bytes() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.body
}

// Path returns the entry document location on disk.
func (d *EntryDocument) Path() string {
	return d.path
}

// Reload re-reads the entry document from disk. On failure the previous
// content is kept.
func (d *EntryDocument) Reload() error {
	body, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("read entry document %s: %w", d.path, err)
	}
	d.mu.Lock()
	d.body = body
	d.mu.Unlock()
	return nil
}

// Watch starts reloading the entry document whenever it is written, created
// or renamed into place. The parent directory is watched because bundlers
// usually replace the file rather than write to it.
func (d *EntryDocument) Watch() error {
	if d.watcher != nil {
		return errors.New("entry document watcher already running")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(d.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	d.watcher = w
	d.done = make(chan struct{})
	go d.loop()

	d.logger.Info("watching entry document", "path", d.path)
	return nil
}

// Close stops the watcher, if any, and waits for its goroutine to exit.
func (d *EntryDocument) Close(_ context.Context) error {
	if d.watcher == nil {
		return nil
	}
	err := d.watcher.Close()
	<-d.done
	d.watcher = nil
	return err
}

func (d *EntryDocument) loop() {
	defer close(d.done)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	name := filepath.Clean(d.path)
	for {
		select {
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceInterval)
			} else {
				timer.Reset(debounceInterval)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			d.reloadFromWatch()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Error("entry document watcher error", "err", err)
		}
	}
}

func (d *EntryDocument) reloadFromWatch() {
	result := "ok"
	if err := d.Reload(); err != nil {
		result = "error"
		d.logger.Warn("entry document reload failed; keeping previous version", "err", err)
	} else {
		d.logger.Info("entry document reloaded", "path", d.path)
	}
	if d.metrics != nil {
		d.metrics.EntryReloads.WithLabelValues(result).Inc()
	}
}
