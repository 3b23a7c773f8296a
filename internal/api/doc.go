// Package api implements the local HTTP REST API and WebSocket server.
//
// This package provides:
//   - REST endpoints to list displays and read or change their attributes
//   - WebSocket hub broadcasting hotplug and attribute change events
//   - Bearer-token authorisation on write and audit endpoints
//   - Middleware: request ID, access log, panic recovery, CORS, body limit
//   - TLS support when the listener leaves the local host
//
// # Architecture
//
// Every handler goes through control.Service, so API writes share the
// cache, validation, audit trail and MQTT state publishing with the CLI
// and the MQTT command handler. Service events are relayed to WebSocket
// clients subscribed to the matching channel.
//
// # Errors
//
// Domain errors map to HTTP statuses: a rejected value is 422 with the
// legal range, an unreachable device is 503, a failing nvidia-settings is
// 502. The body carries the stable error code and a remediation hint.
package api
