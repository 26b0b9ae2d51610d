// Package store holds the server's durable state: the measurement history log,
// user settings, and the latest reading per sensor device.
//
// kv.go defines the KV contract (string keys, string values, synchronous
// Get/Set/Delete) and its backends: Memory for tests and ephemeral runs,
// SQLite (modernc.org/sqlite, no cgo) as the default on-disk store, and Redis
// for deployments that share state between server replicas. Open picks one
// from Options. Backend failures wrap types.ErrStorageUnavailable.
//
// history.go is the newest-first, append-only History. Every mutation
// rewrites the whole collection as one JSON snapshot under HistoryKey. A
// failed write is reported but never rolls back the in-memory state, and a
// missing or corrupt snapshot loads as an empty history.
//
// devices.go keeps the last reading received from each sensor device and
// evicts devices that have gone quiet for longer than the configured TTL.
package store
