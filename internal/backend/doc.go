// Package backend is the capability layer every higher layer depends on.
//
// A Backend lists displays and reads, writes and describes their
// attributes. Two implementations exist:
//
//   - Real composes the NVKMS session (SessionDriver) with the
//     nvidia-settings fallback. The strategy is resolved once: the first
//     PermissionDenied or DeviceAbsent from the session switches to the
//     fallback for the rest of the process.
//   - Mock is deterministic and in memory, for tests and for running
//     without hardware.
//
// The session is owned by a Worker, a single goroutine that serializes
// every operation and releases the device on its own goroutine when the
// worker stops. Shared hands out reference-counted handles so several
// consumers use one session.
package backend
