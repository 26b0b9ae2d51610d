package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thermowatch/thermowatch/pkg/types"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, APIURLKey, "http://a"))
	require.NoError(t, kv.Set(ctx, APIURLKey, "http://b"))
	v, ok, err := kv.Get(ctx, APIURLKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://b", v, "Set replaces the previous value")

	require.NoError(t, kv.Delete(ctx, APIURLKey))
	_, ok, err = kv.Get(ctx, APIURLKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestSQLite(t *testing.T) {
	kv, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	defer kv.Close()
	exerciseKV(t, kv)
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()

	kv, err := Open(ctx, Options{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, kv)

	kv, err = Open(ctx, Options{Backend: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, kv)
	kv.Close()

	_, err = Open(ctx, Options{Backend: "etcd"})
	assert.Error(t, err)

	_, err = Open(ctx, Options{Backend: "sqlite"})
	assert.ErrorIs(t, err, types.ErrStorageUnavailable)
}

func TestOpenRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Port 1 on loopback refuses connections immediately.
	_, err := OpenRedis(ctx, "127.0.0.1:1", "", 0, "test:")
	assert.ErrorIs(t, err, types.ErrStorageUnavailable)
}

func TestSettings_Defaults(t *testing.T) {
	s := LoadSettings(context.Background(), NewMemory(), DefaultSettings())
	assert.Equal(t, DefaultSettings(), s)
	assert.Equal(t, 1.0, s.AlertThreshold)
}

func TestSettings_SaveLoad(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()

	require.NoError(t, SaveSettings(ctx, kv, Settings{APIURL: " https://api.example.com/ ", AlertThreshold: 0.7}))
	got := LoadSettings(ctx, kv, DefaultSettings())
	assert.Equal(t, "https://api.example.com", got.APIURL)
	assert.Equal(t, 0.7, got.AlertThreshold)
}

func TestSettings_Invalid(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()

	tests := []Settings{
		{APIURL: "ftp://x", AlertThreshold: 1},
		{APIURL: "not a url", AlertThreshold: 1},
		{APIURL: "", AlertThreshold: 0},
		{APIURL: "", AlertThreshold: -1},
	}
	for _, s := range tests {
		assert.ErrorIs(t, SaveSettings(ctx, kv, s), types.ErrInvalidInput, "%+v", s)
	}
	_, ok, _ := kv.Get(ctx, APIURLKey)
	assert.False(t, ok, "nothing written on validation failure")
}

func TestSettings_CorruptThreshold(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	require.NoError(t, kv.Set(ctx, AlertThresholdKey, "abc"))
	assert.Equal(t, DefaultAlertThreshold, LoadSettings(ctx, kv, DefaultSettings()).AlertThreshold)
}

func TestSettings_WriteFailure(t *testing.T) {
	kv := NewMemory()
	kv.SetFailWrites(true)
	err := SaveSettings(context.Background(), kv, DefaultSettings())
	assert.ErrorIs(t, err, types.ErrStorageUnavailable)
}

func TestSettings_LoadFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	defaults := Settings{APIURL: "http://remote.example:8000", AlertThreshold: 1.5}

	assert.Equal(t, defaults, LoadSettings(ctx, NewMemory(), defaults))

	// A saved empty URL means forwarding was switched off and wins over the default.
	kv := NewMemory()
	require.NoError(t, SaveSettings(ctx, kv, Settings{APIURL: "", AlertThreshold: 0.8}))
	got := LoadSettings(ctx, kv, defaults)
	assert.Equal(t, "", got.APIURL)
	assert.Equal(t, 0.8, got.AlertThreshold)
}

// failKey fails writes to one key and passes everything else through.
type failKey struct {
	KV
	key string
}

func (f failKey) Set(ctx context.Context, key, value string) error {
	if key == f.key {
		return errors.New("disk full")
	}
	return f.KV.Set(ctx, key, value)
}

func TestSettings_PartialWriteRolledBack(t *testing.T) {
	ctx := context.Background()

	t.Run("previous value restored", func(t *testing.T) {
		mem := NewMemory()
		require.NoError(t, SaveSettings(ctx, mem, Settings{APIURL: "http://old:8000", AlertThreshold: 1}))

		err := SaveSettings(ctx, failKey{KV: mem, key: AlertThresholdKey},
			Settings{APIURL: "http://new:8000", AlertThreshold: 2})
		assert.ErrorIs(t, err, types.ErrStorageUnavailable)

		got := LoadSettings(ctx, mem, DefaultSettings())
		assert.Equal(t, Settings{APIURL: "http://old:8000", AlertThreshold: 1}, got)
	})

	t.Run("missing key removed", func(t *testing.T) {
		mem := NewMemory()
		err := SaveSettings(ctx, failKey{KV: mem, key: AlertThresholdKey},
			Settings{APIURL: "http://new:8000", AlertThreshold: 2})
		assert.ErrorIs(t, err, types.ErrStorageUnavailable)

		_, ok, err := mem.Get(ctx, APIURLKey)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
