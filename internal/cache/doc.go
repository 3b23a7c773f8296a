// Package cache keeps the last observed value of every display attribute.
//
// Reads within the freshness window are served from memory. Older entries
// are re-read from the backend; if that fails, the old value is returned
// flagged Stale so callers can show it as last known. Writes always go to
// the backend and update the cache only when they succeed.
package cache
