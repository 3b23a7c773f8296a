// Package process runs short-lived external commands and captures their output.
//
// It exists for the nvidia-settings fallback, where each attribute read or
// write is one subprocess. A Runner:
//   - starts the child in its own process group
//   - on context cancellation sends SIGTERM to the group, then kills it after
//     GracefulTimeout
//   - caps captured stdout/stderr so a misbehaving tool cannot grow memory
//   - reports a non-zero exit as *ExitError carrying the trimmed stderr
//
// Example usage:
//
//	r := process.NewRunner(process.Config{
//	    Name:    "nvidia-settings",
//	    Binary:  "nvidia-settings",
//	    Timeout: 5 * time.Second,
//	})
//
//	res, err := r.Run(ctx, "-q", "[DPY:DP-0]/DigitalVibrance", "-t")
package process
