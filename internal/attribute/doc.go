// Package attribute is the single place that knows, per attribute kind,
// how to obtain the legal value domain and how to validate a value before
// it reaches a driver.
//
// A Registry wraps one set of raw driver operations (the NVKMS session or
// the nvidia-settings fallback). Set ensures the domain for the
// (display, kind) pair is cached, querying it once, and rejects values
// outside it with *display.InvalidValueError. Values are never clamped.
//
// Domains are treated as stable for the session, except that a protocol
// error on a pair drops its cached domain so the next Set queries it again.
// That covers a driver reloaded underneath a running process.
package attribute
