// Package source feeds desired-state entries into the reconciliation
// engine. The file source watches a JSON or YAML file of desired
// records and triggers a pass when it changes.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"trafego/trafegodns/reconcile"
	"trafego/trafegodns/types"
)

// FileSource loads desired entries from a file and keeps the engine's
// desired set current while the file changes.
type FileSource struct {
	path   string
	engine *reconcile.Engine
}

// NewFileSource creates a source for the given path. The file format
// is chosen by extension: .yaml/.yml parse as YAML, everything else as
// JSON.
func NewFileSource(path string, engine *reconcile.Engine) *FileSource {
	return &FileSource{path: path, engine: engine}
}

// desiredFile is the top-level file shape. A bare array of entries is
// also accepted.
type desiredFile struct {
	Records []reconcile.DesiredEntry `json:"records" yaml:"records"`
}

// Load parses the file and validates its entries.
func (s *FileSource) Load() ([]reconcile.DesiredEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read desired file: %w", err)
	}
	return Parse(data, s.path)
}

// Parse decodes desired entries from raw file contents. name selects
// the format by extension.
func Parse(data []byte, name string) ([]reconcile.DesiredEntry, error) {
	unmarshal := json.Unmarshal
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		unmarshal = func(data []byte, v any) error { return yaml.Unmarshal(data, v) }
	}

	// Accept either {"records": [...]} or a bare array of entries.
	var file desiredFile
	if err := unmarshal(data, &file); err != nil {
		var entries []reconcile.DesiredEntry
		if lerr := unmarshal(data, &entries); lerr != nil {
			return nil, fmt.Errorf("parse desired file: %w", err)
		}
		file.Records = entries
	}

	for i, entry := range file.Records {
		if entry.Skip {
			continue
		}
		if entry.Hostname == "" {
			return nil, fmt.Errorf("entry %d: hostname is required", i)
		}
		entry.Type = types.RecordType(strings.ToUpper(string(entry.Type)))
		if !entry.Type.IsValid() {
			return nil, fmt.Errorf("entry %d (%s): %w: %q", i, entry.Hostname, types.ErrInvalidRecordType, entry.Type)
		}
		if entry.Content == "" {
			return nil, fmt.Errorf("entry %d (%s): content is required", i, entry.Hostname)
		}
		file.Records[i] = entry
	}
	return file.Records, nil
}

// LoadAndApply loads the file and pushes the result into the engine,
// triggering a reconciliation pass. A parse failure leaves the
// engine's previous desired set untouched.
func (s *FileSource) LoadAndApply(ctx context.Context) error {
	entries, err := s.Load()
	if err != nil {
		return err
	}
	s.engine.SetDesired(entries)
	slog.Info("desired state loaded", "path", s.path, "entries", len(entries))
	s.engine.Trigger()
	return nil
}

// Watch blocks, reloading the file whenever it changes, until the
// context is cancelled.
func (s *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so we catch atomic rename-based writes.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}

	// Debounce timer to coalesce rapid writes.
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			absEvent, _ := filepath.Abs(event.Name)
			absPath, _ := filepath.Abs(s.path)
			if absEvent != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, func() {
				if err := s.LoadAndApply(ctx); err != nil {
					slog.Error("reload desired file", "err", err)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("fsnotify error", "err", err)
		}
	}
}
