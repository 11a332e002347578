// Package state persists small bookkeeping records between runs: when each
// plugin was last checked for updates, and a journal of install activity.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	ErrStoreClosed   = errors.New("state store is closed")
	ErrMissingPlugin = errors.New("plugin name is required")
)

// Event types recorded in the journal.
const (
	EventPluginInstall   = "plugin_install"
	EventPluginUninstall = "plugin_uninstall"
	EventPluginUpdate    = "plugin_update"
	EventToolInstall     = "tool_install"
	EventToolUninstall   = "tool_uninstall"
)

var timeNow = time.Now

// PluginUpdate records the last update check for one plugin.
type PluginUpdate struct {
	LastCheckAt string `json:"last_check_at"`
	LastSHA     string `json:"last_sha,omitempty"`
}

// CheckedAt parses the recorded check time.
func (u PluginUpdate) CheckedAt() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, u.LastCheckAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Event is one journal entry.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Plugin  string `json:"plugin,omitempty"`
	Version string `json:"version,omitempty"`
	At      string `json:"at"`
}

// Store is the bolt-backed state database.
type Store struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool
}

// Open opens or creates the state database at path.
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("state path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state dir: %w", err)
	}
	options := &bolt.Options{Timeout: time.Second}
	base, err := bolt.Open(trimmed, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if err := ensureSchema(base); err != nil {
		_ = base.Close()
		return nil, err
	}
	return &Store{db: base, path: trimmed}, nil
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Close releases the database. Further calls fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// UpdateCheck returns the last recorded update check for plugin.
func (s *Store) UpdateCheck(plugin string) (PluginUpdate, bool, error) {
	if strings.TrimSpace(plugin) == "" {
		return PluginUpdate{}, false, ErrMissingPlugin
	}
	var (
		record PluginUpdate
		found  bool
	)
	err := s.view(func(tx *bolt.Tx) error {
		bucket, err := stateBucket(tx, updatesBucketName)
		if err != nil {
			return err
		}
		raw := bucket.Get([]byte(plugin))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &record); err != nil {
			return fmt.Errorf("decode update record for %s: %w", plugin, err)
		}
		found = true
		return nil
	})
	return record, found, err
}

// RecordUpdateCheck stamps plugin as checked now, remembering the sha it
// ended up on.
func (s *Store) RecordUpdateCheck(plugin, sha string) error {
	if strings.TrimSpace(plugin) == "" {
		return ErrMissingPlugin
	}
	record := PluginUpdate{
		LastCheckAt: timeNow().UTC().Format(time.RFC3339Nano),
		LastSHA:     sha,
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode update record for %s: %w", plugin, err)
	}
	return s.update(func(tx *bolt.Tx) error {
		bucket, err := stateBucket(tx, updatesBucketName)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(plugin), raw)
	})
}

// ForgetPlugin drops all records for plugin, typically after an uninstall.
func (s *Store) ForgetPlugin(plugin string) error {
	if strings.TrimSpace(plugin) == "" {
		return ErrMissingPlugin
	}
	return s.update(func(tx *bolt.Tx) error {
		bucket, err := stateBucket(tx, updatesBucketName)
		if err != nil {
			return err
		}
		return bucket.Delete([]byte(plugin))
	})
}

// RecordEvent appends a journal entry and returns it.
func (s *Store) RecordEvent(eventType, plugin, version string) (Event, error) {
	event := Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Plugin:  plugin,
		Version: version,
		At:      timeNow().UTC().Format(time.RFC3339Nano),
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return Event{}, fmt.Errorf("encode event: %w", err)
	}
	err = s.update(func(tx *bolt.Tx) error {
		bucket, err := stateBucket(tx, eventsBucketName)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(event.ID), raw)
	})
	if err != nil {
		return Event{}, err
	}
	return event, nil
}

// RecentEvents returns up to limit journal entries, newest first. A limit of
// zero or less returns everything.
func (s *Store) RecentEvents(limit int) ([]Event, error) {
	var events []Event
	err := s.view(func(tx *bolt.Tx) error {
		bucket, err := stateBucket(tx, eventsBucketName)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(_, value []byte) error {
			var event Event
			if err := json.Unmarshal(value, &event); err != nil {
				return nil
			}
			events = append(events, event)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		return parseEventTime(events[i].At).After(parseEventTime(events[j].At))
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func parseEventTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *Store) view(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *Store) update(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(fn)
}

func stateBucket(tx *bolt.Tx, name string) (*bolt.Bucket, error) {
	root := tx.Bucket([]byte(rootBucketName))
	if root == nil {
		return nil, fmt.Errorf("missing root bucket")
	}
	bucket := root.Bucket([]byte(name))
	if bucket == nil {
		return nil, fmt.Errorf("missing %s bucket", name)
	}
	return bucket, nil
}
