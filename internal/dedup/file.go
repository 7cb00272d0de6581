package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// timestamp layouts accepted when loading; older files were written without a zone
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// FileStore is a MemoryStore persisted to a JSON file after every change
type FileStore struct {
	*MemoryStore
	path string
}

// NewFileStore loads path if it exists; expired entries are dropped on load
func NewFileStore(path string, ttl time.Duration) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create dedup directory: %w", err)
		}
	}
	fs := &FileStore{MemoryStore: NewMemoryStore(ttl), path: path}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) MarkSeen(ctx context.Context, key string) error {
	if err := f.MemoryStore.MarkSeen(ctx, key); err != nil {
		return err
	}
	return f.save()
}

// load accepts either {"key": "timestamp"} or a bare ["key", ...] list
func (f *FileStore) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", f.path, err)
	}

	now := f.now()
	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		var keys []string
		if listErr := json.Unmarshal(data, &keys); listErr != nil {
			return fmt.Errorf("parse %s: %w", f.path, err)
		}
		entries = make(map[string]string, len(keys))
		for _, k := range keys {
			entries[k] = now.Format(time.RFC3339Nano)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for key, ts := range entries {
		f.seen[key] = parseTimestamp(ts, now)
	}
	f.pruneLocked()
	return nil
}

func (f *FileStore) save() error {
	f.mu.Lock()
	entries := make(map[string]string, len(f.seen))
	for key, at := range f.seen {
		entries[key] = at.Format(time.RFC3339Nano)
	}
	f.mu.Unlock()

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal seen postings: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

func parseTimestamp(s string, fallback time.Time) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return fallback
}
