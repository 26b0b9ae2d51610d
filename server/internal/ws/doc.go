// Package ws pushes the live dashboard to browsers over WebSocket.
//
// Hub.Run(ctx) broadcasts on a fixed interval until ctx is cancelled; register
// Hub.Broadcast with dashboard.Controller.OnChange to push immediately after
// every measurement, cancellation or settings change. Each message is
//
//	{"event": "dashboard", "data": { /* GET /api/v1/dashboard */ }}
//
// The server mounts the hub at /ws/stream.
package ws
