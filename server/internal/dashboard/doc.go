// Package dashboard owns the server's mutable state: the current measurement,
// history, settings, the pending image analysis and the storage health flag.
//
// Controller is the single entry point for HTTP, gRPC and WebSocket callers.
// A submission runs the metrics engine, appends to history (degrading to
// in-memory on storage failure), evaluates alert rules, records sensor
// devices, then fires the best-effort side effects: the measurement event,
// the remote API forward (manual readings only), record listeners and change
// listeners. When a conclusion provider is configured, its text replaces the
// rule-based conclusion of the measurement that is still current.
//
// Image analyses are generation-numbered. Starting a new one or calling
// CancelAnalysis cancels the previous context and bumps the generation, and a
// result from an older generation is discarded with ErrAnalysisSuperseded.
package dashboard
