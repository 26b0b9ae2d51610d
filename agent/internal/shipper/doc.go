// Package shipper sends readings to thermowatch-server over gRPC
// (ReadingService.SendReading, JSON codec from pkg/wire).
//
// Ship is non-blocking: readings go into an in-memory channel (default
// capacity 1000). When the buffer is full the oldest reading is evicted so the
// newest temperatures always reach the dashboard.
//
// Run drains the buffer, reconnecting with truncated exponential backoff
// (1s to 60s, ±25% jitter) on connection or send errors. Readings the server
// rejects as invalid are discarded rather than retried.
//
// Transport is plaintext unless agent.server_tls is enabled, in which case
// credentials.NewTLS is used with the system roots or a configured CA bundle.
package shipper
