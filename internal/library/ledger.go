package library

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrLegacyFormat is returned by OpenLedger when the record file
// predates the JSON-lines format (one bare video id per line). Callers
// should run the migration before retrying.
var ErrLegacyFormat = errors.New("ledger file is in the legacy one-id-per-line format")

// Ledger is the persistent download record store: one record per video
// id, the sole source of truth for "already downloaded". Every mutation
// rewrites the backing file through a temp-file-then-rename so a crash
// mid-write never leaves a corrupt ledger and concurrent readers always
// see a complete file.
type Ledger struct {
	path  string
	mu    sync.RWMutex
	items map[string]*Item
}

// OpenLedger loads the ledger at path, creating an empty one when the
// file does not exist yet.
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{
		path:  path,
		items: make(map[string]*Item),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "{") {
			return nil, ErrLegacyFormat
		}
		var item Item
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			return nil, fmt.Errorf("corrupt ledger record at line %d: %w", lineNo, err)
		}
		if item.VideoID == "" {
			return nil, fmt.Errorf("ledger record at line %d has no video id", lineNo)
		}
		l.items[item.VideoID] = &item
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	return l, nil
}

// Path returns the backing file path
func (l *Ledger) Path() string {
	return l.path
}

// Lookup returns the item for a video id when its file still exists on
// disk. A downloaded record whose file has been removed externally is
// demoted to pending and nil is returned, so the next acquisition treats
// the song as not yet downloaded.
func (l *Ledger) Lookup(videoID string) *Item {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[videoID]
	if !ok || item.Status != StatusDownloaded {
		return nil
	}

	if _, err := os.Stat(item.Path); err != nil {
		item.Status = StatusPending
		item.UpdatedAt = time.Now().UTC()
		// Best effort: an unpersisted demotion is rediscovered on the
		// next lookup anyway.
		_ = l.persistLocked()
		return nil
	}

	return item.Clone()
}

// Record stores an item as downloaded and persists the ledger
func (l *Ledger) Record(item *Item) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored := item.Clone()
	stored.Status = StatusDownloaded
	stored.UpdatedAt = time.Now().UTC()
	l.items[stored.VideoID] = stored

	return l.persistLocked()
}

// MarkFailed records a failed acquisition for a video id
func (l *Ledger) MarkFailed(videoID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[videoID]
	if !ok {
		item = &Item{VideoID: videoID}
		l.items[videoID] = item
	}
	item.Status = StatusFailed
	item.UpdatedAt = time.Now().UTC()

	return l.persistLocked()
}

// Remove deletes the record for a video id, used when a file is deleted
// through the external browser.
func (l *Ledger) Remove(videoID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.items[videoID]; !ok {
		return nil
	}
	delete(l.items, videoID)

	return l.persistLocked()
}

// Items returns a snapshot of all records ordered by video id
func (l *Ledger) Items() []*Item {
	l.mu.RLock()
	defer l.mu.RUnlock()

	items := make([]*Item, 0, len(l.items))
	for _, item := range l.items {
		items = append(items, item.Clone())
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].VideoID < items[j].VideoID
	})
	return items
}

// Len returns the number of records in the ledger
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// persistLocked rewrites the backing file atomically. Callers must hold
// the write lock.
func (l *Ledger) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	ids := make([]string, 0, len(l.items))
	for id := range l.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tmpPath := l.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp ledger: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, id := range ids {
		data, err := json.Marshal(l.items[id])
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to encode ledger record %s: %w", id, err)
		}
		w.Write(data)
		w.WriteByte('\n')
	}

	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp ledger: %w", err)
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace ledger: %w", err)
	}

	return nil
}
