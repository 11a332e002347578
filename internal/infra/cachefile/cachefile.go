// Package cachefile provides a small disk cache for expensive lookups such
// as plugin script output. Entries are gob-encoded, zlib-compressed files
// whose freshness is judged by age and by the modification times of
// designated source files.
package cachefile

import (
	"compress/zlib"
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

type config struct {
	ttl        time.Duration
	freshFiles []string
	logger     *zap.Logger
}

// Option configures a Manager.
type Option func(*config)

// WithTTL marks the cache stale once the cache file is older than d.
// A zero duration disables age checks.
func WithTTL(d time.Duration) Option {
	return func(c *config) { c.ttl = d }
}

// WithFreshFile marks the cache stale whenever path has been modified after
// the cache file was written. Missing paths are ignored.
func WithFreshFile(path string) Option {
	return func(c *config) { c.freshFiles = append(c.freshFiles, path) }
}

// WithLogger sets the logger used for non-fatal cache I/O problems.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// Manager memoizes a single computed value behind a cache file. The first
// Get per process either parses a fresh cache file or runs compute; later
// Gets return the memoized value without touching the disk again.
type Manager[T any] struct {
	path   string
	cfg    config
	logger *zap.Logger

	mu     sync.Mutex
	loaded bool
	value  T
}

// New creates a Manager persisting to path.
func New[T any](path string, opts ...Option) *Manager[T] {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager[T]{
		path:   path,
		cfg:    cfg,
		logger: logger.Named("cache"),
	}
}

// Path returns the cache file location.
func (m *Manager[T]) Path() string { return m.path }

// Get returns the cached value, parsing the cache file when it is fresh and
// calling compute otherwise. A freshly computed value is written back to
// disk; write failures are logged and the value is still returned. Errors
// from compute are returned as-is and nothing is memoized.
func (m *Manager[T]) Get(ctx context.Context, compute func(context.Context) (T, error)) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return m.value, nil
	}
	if m.isFresh() {
		value, err := m.parse()
		if err == nil {
			m.value = value
			m.loaded = true
			return value, nil
		}
		m.logger.Warn("discarding unreadable cache file",
			zap.String("path", m.path),
			zap.Error(err))
	}

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := m.write(value); err != nil {
		m.logger.Warn("failed to write cache file",
			zap.String("path", m.path),
			zap.Error(err))
	}
	m.value = value
	m.loaded = true
	return value, nil
}

// Clear removes the cache file and drops the memoized value so the next Get
// recomputes.
func (m *Manager[T]) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	m.value = zero
	m.loaded = false
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// isFresh reports whether the cache file exists and passes both the age and
// the freshness-file checks. Comparisons use modification times as-is, so
// clock skew between writers can mask staleness.
func (m *Manager[T]) isFresh() bool {
	info, err := os.Stat(m.path)
	if err != nil {
		return false
	}
	if m.cfg.ttl > 0 && time.Since(info.ModTime()) > m.cfg.ttl {
		return false
	}
	for _, fresh := range m.cfg.freshFiles {
		freshInfo, err := os.Stat(fresh)
		if err != nil {
			continue
		}
		if freshInfo.ModTime().After(info.ModTime()) {
			return false
		}
	}
	return true
}

func (m *Manager[T]) parse() (T, error) {
	var value T
	f, err := os.Open(m.path)
	if err != nil {
		return value, err
	}
	defer f.Close()
	zr, err := zlib.NewReader(f)
	if err != nil {
		return value, err
	}
	defer zr.Close()
	if err := gob.NewDecoder(zr).Decode(&value); err != nil {
		return value, err
	}
	return value, nil
}

func (m *Manager[T]) write(value T) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".cache-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	zw := zlib.NewWriter(tmp)
	if err := gob.NewEncoder(zw).Encode(value); err != nil {
		tmp.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), m.path)
}
