// Package control is the facade the CLI, the HTTP API and the MQTT
// command handler call.
//
// A Service composes a backend (usually backend.Real over the NVKMS
// session and the nvidia-settings fallback) with the attribute cache and
// the hotplug monitor, and fans the results of every write out to the
// optional collaborators:
//
//   - audit: one entry per set attempt, including rejected values
//   - telemetry: InfluxDB samples of reads, writes and availability
//   - publisher: retained MQTT state per display and attribute
//   - event listeners: the WebSocket hub
//
// Reads go through the cache. A read that fails live but has a cached
// value returns that value with Stale set, never an error.
//
// Close stops the monitor and closes the backend exactly once.
package control
