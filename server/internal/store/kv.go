package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/thermowatch/thermowatch/pkg/types"
)

// Well-known keys.
const (
	APIURLKey         = "thermowatch.api_url"
	AlertThresholdKey = "thermowatch.alert_threshold"
	HistoryKey        = "thermowatch.history"
)

// KV is a string-keyed, string-valued durable store.
// Get reports ok=false for a missing key; that is not an error.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Options selects and configures a KV backend.
type Options struct {
	// Backend is "memory" | "sqlite" | "redis".
	Backend string

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// RedisPrefix is prepended to every key, e.g. "ward-3:".
	RedisPrefix string
}

// Open returns the backend named by opts.Backend. An empty backend means memory.
func Open(ctx context.Context, opts Options) (KV, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(ctx, opts.SQLitePath)
	case "redis":
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisPrefix)
	}
	return nil, fmt.Errorf("store: unknown backend %q", opts.Backend)
}

// Memory is an in-process KV. Safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
	// failWrites makes Set and Delete fail; tests use it to simulate a full disk.
	failWrites bool
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return fmt.Errorf("%w: memory store is read-only", types.ErrStorageUnavailable)
	}
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return fmt.Errorf("%w: memory store is read-only", types.ErrStorageUnavailable)
	}
	delete(m.data, key)
	return nil
}

func (m *Memory) Close() error { return nil }

// SetFailWrites toggles simulated write failures.
func (m *Memory) SetFailWrites(fail bool) {
	m.mu.Lock()
	m.failWrites = fail
	m.mu.Unlock()
}
