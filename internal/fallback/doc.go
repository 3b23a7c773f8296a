// Package fallback implements the attribute driver contract by running the
// nvidia-settings command-line tool.
//
// It is used when the NVKMS device cannot be opened. Every call spawns a
// subprocess through internal/process, so it is one to two orders of
// magnitude slower than the device path; the attribute cache absorbs that.
//
// Command forms:
//
//	nvidia-settings -q dpys                          list displays
//	nvidia-settings -q [DPY:DP-0]/DigitalVibrance -t read a value
//	nvidia-settings -q [DPY:DP-0]/DigitalVibrance    read the valid values
//	nvidia-settings -a [DPY:DP-0]/DigitalVibrance=512
//
// A non-zero exit or output that cannot be parsed is a *ToolError, which
// matches display.ErrExternalTool. No further fallback exists after it.
package fallback
