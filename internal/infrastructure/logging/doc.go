// Package logging builds the slog loggers shared by the daemon and the CLI.
//
// Every entry carries service=nvdisplay and the build version. Subsystems
// add a component field:
//
//	log := logging.New(cfg.Logging, version).Component("hotplug")
//	log.Info("display connected", "display", "0:0", "name", "DP-0")
//
// The daemon logs JSON to stdout; the CLI logs text to stderr so that
// command output on stdout stays parseable. Token secrets and bearer
// tokens are never logged.
package logging
