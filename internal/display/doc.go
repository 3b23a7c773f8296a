// Package display defines the shared vocabulary of the attribute-control layer.
//
// It holds the types every other package agrees on:
//   - ID: the (device, connector) key identifying one physical output
//   - Kind: the visual attributes that can be read or written
//   - Value / ValueRange: a typed attribute value and its legal domain
//   - ConnectorStatic / ConnectorDynamic: facts about a connector
//   - the error taxonomy shared by the session, fallback and backend layers
//
// # Error Taxonomy
//
// Errors are sentinels checked with errors.Is:
//
//	if errors.Is(err, display.ErrDeviceUnavailable) {
//	    // privileged path unreachable, a fallback may still work
//	}
//
// ErrPermissionDenied and ErrDeviceAbsent are both narrower forms of
// ErrDeviceUnavailable, so errors.Is(ErrPermissionDenied, ErrDeviceUnavailable)
// holds.
//
// This package has no dependencies on the rest of the module.
package display
