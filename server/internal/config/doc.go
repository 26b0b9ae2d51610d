// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - GRPCPort         : port for the gRPC reading receiver (default 50051)
//   - HTTPPort         : port for the REST API and WebSocket hub (default 8080)
//   - Thresholds       : risk classification bounds (defaults 0.5/1.0 °C, 37.5/38.0 °C)
//   - Storage          : sqlite (default thermowatch.db) | redis | memory
//   - Devices.TTL      : how long a sensor device stays listed (default 5m)
//   - Analysis         : simulated image analysis delay, scenario, upload limit
//   - Forwarder        : remote measurement API default URL and timeout
//   - Events           : Kafka brokers and topic; empty brokers disables publishing
//   - Alerts           : rules over measurement metrics plus webhook targets
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, fn) reloads the file on change; the server applies new
// thresholds and alert rules without a restart.
package config
