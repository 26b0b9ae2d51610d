// Package config loads and watches the agent configuration file.
//
// Top-level types:
//   - Config{Agent}: the `agent:` section; a `server:` section in the same
//     file is ignored
//   - AgentConfig: server_endpoint, scrape_interval, buffer_size,
//     send_timeout, server_tls, sources[]
//   - Source: id, type (prometheus|simulated), endpoint, device_id, auth, tls
//   - AuthConfig: mode (apikey|bearer|basic|none); Key, Token and Password
//     resolve secrets from the environment variables named in the file
//
// Load(path) applies defaults (30s scrape, 1000 buffer, 10s send timeout),
// defaults each device_id to the source id, then validates.
//
// Watch(ctx, path, onChange) reloads on write and re-adds the watch after an
// atomic save so the agent can rebuild its sources without a restart.
package config
